package scanning

// ScanStatus represents the externally visible state of a file moving through the
// scan pipeline.
type ScanStatus string

const (
	// StatusPending indicates the file is queued and waiting for the consumer.
	StatusPending ScanStatus = "PENDING"

	// StatusPendingLocked indicates the file is held open by another process and
	// will be re-probed by the locked-file timer.
	StatusPendingLocked ScanStatus = "PENDING_LOCKED"

	// StatusScanning indicates the file is being checked against the remote API.
	StatusScanning ScanStatus = "SCANNING"

	// StatusClean indicates the remote verdict found no malicious detections.
	StatusClean ScanStatus = "CLEAN"

	// StatusCompromised indicates at least one engine flagged the file.
	StatusCompromised ScanStatus = "COMPROMISED"

	// StatusFailed indicates the file could not be scanned. It stays in place.
	StatusFailed ScanStatus = "FAILED"

	// StatusSkipped indicates the file matched a partial-write or lock-file pattern.
	StatusSkipped ScanStatus = "SKIPPED"

	// StatusRemoved indicates a locked file disappeared before it could be scanned.
	StatusRemoved ScanStatus = "REMOVED"
)

// String returns the string representation of the ScanStatus.
func (s ScanStatus) String() string { return string(s) }

// Display returns a human-readable label.
func (s ScanStatus) Display() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusPendingLocked:
		return "Pending (Locked)"
	case StatusScanning:
		return "Scanning..."
	case StatusClean:
		return "Clean"
	case StatusCompromised:
		return "Compromised"
	case StatusFailed:
		return "Failed"
	case StatusSkipped:
		return "Skipped"
	case StatusRemoved:
		return "Removed"
	default:
		return string(s)
	}
}

// IsTerminal reports whether no further transitions are expected for the file.
func (s ScanStatus) IsTerminal() bool {
	switch s {
	case StatusClean, StatusCompromised, StatusFailed, StatusSkipped, StatusRemoved:
		return true
	default:
		return false
	}
}
