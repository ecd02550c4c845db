package scanning

import (
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const reportURLBase = "https://www.virustotal.com/gui/file/"

// ScanResult is the observable record for one file, keyed by FullPath. Observers
// receive copies; a later update for the same FullPath replaces the earlier one.
type ScanResult struct {
	FileName string
	FullPath string
	// PreviousPath is set only when the update was caused by a rename, so a
	// presentation layer can re-target the row it already shows for the old path.
	PreviousPath   string
	Status         ScanStatus
	DetectionCount int
	FileHash       string
	Message        string
}

// NewScanResult creates a result for path in the given status.
func NewScanResult(path string, status ScanStatus) ScanResult {
	return ScanResult{
		FileName: filepath.Base(path),
		FullPath: path,
		Status:   status,
	}
}

// ReportURL returns the public report link for the file, or "" when the hash is
// not known yet.
func (r ScanResult) ReportURL() string {
	if r.FileHash == "" {
		return ""
	}
	return reportURLBase + r.FileHash
}

// ScanJob is a file path awaiting or undergoing processing.
type ScanJob struct {
	ID         uuid.UUID
	Path       string
	EnqueuedAt time.Time
}

// NewScanJob creates a job for path.
func NewScanJob(path string, now time.Time) ScanJob {
	return ScanJob{ID: uuid.New(), Path: path, EnqueuedAt: now}
}
