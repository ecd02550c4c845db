package scanning

import "time"

// Verdict is the outcome of remote analysis for a single file.
type Verdict string

const (
	VerdictClean       Verdict = "CLEAN"
	VerdictCompromised Verdict = "COMPROMISED"
	VerdictUnknown     Verdict = "UNKNOWN"
	VerdictFailed      Verdict = "FAILED"
)

// String returns the string representation of the Verdict.
func (v Verdict) String() string { return string(v) }

// VerdictResult carries the verdict together with what an observer needs to render
// it without further lookups.
type VerdictResult struct {
	Verdict        Verdict
	DetectionCount int
	Hash           string
	Message        string
}

// FailedVerdict builds a failed result carrying msg.
func FailedVerdict(hash, msg string) VerdictResult {
	return VerdictResult{Verdict: VerdictFailed, Hash: hash, Message: msg}
}

// AnalysisStats mirrors the engine tallies the reputation API reports for a file or
// an analysis.
type AnalysisStats struct {
	Harmless         int `json:"harmless"`
	TypeUnsupported  int `json:"type-unsupported"`
	Suspicious       int `json:"suspicious"`
	ConfirmedTimeout int `json:"confirmed-timeout"`
	Timeout          int `json:"timeout"`
	Failure          int `json:"failure"`
	Malicious        int `json:"malicious"`
	Undetected       int `json:"undetected"`
}

// VerdictFromStats maps engine statistics to a verdict. Missing statistics yield
// VerdictUnknown.
func VerdictFromStats(stats *AnalysisStats, hash string) VerdictResult {
	switch {
	case stats == nil:
		return VerdictResult{Verdict: VerdictUnknown, Hash: hash}
	case stats.Malicious > 0:
		return VerdictResult{Verdict: VerdictCompromised, DetectionCount: stats.Malicious, Hash: hash}
	default:
		return VerdictResult{Verdict: VerdictClean, Hash: hash}
	}
}

// AnalysisJob tracks one remote analysis while it is polled.
type AnalysisJob struct {
	AnalysisID string
	Hash       string
	FilePath   string
	StartTime  time.Time
}

// Expired reports whether the analysis has run longer than timeout as of now.
func (j AnalysisJob) Expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(j.StartTime) > timeout
}

// AnalysisStatus is the remote lifecycle state of an analysis.
type AnalysisStatus string

const (
	AnalysisQueued     AnalysisStatus = "queued"
	AnalysisInProgress AnalysisStatus = "in-progress"
	AnalysisCompleted  AnalysisStatus = "completed"
)

// FileReport is the API's existing record for a hash.
type FileReport struct {
	Hash  string
	Stats *AnalysisStats
}

// Analysis is one poll result for a submitted file. Stats is only populated once
// the status is AnalysisCompleted.
type Analysis struct {
	ID     string
	Status AnalysisStatus
	Stats  *AnalysisStats
}
