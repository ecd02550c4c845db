package scanning

import (
	"context"
	"io"
	"time"
)

// FileOps abstracts the filesystem operations the pipeline and the verdict client
// depend on.
type FileOps interface {
	// ComputeHash returns the lowercase hex SHA-256 digest of the file's contents.
	ComputeHash(ctx context.Context, path string) (string, error)
	// IsLocked reports whether another process holds the file open exclusively.
	IsLocked(path string) bool
	// Move renames src to dst, falling back to copy and delete across devices.
	Move(src, dst string) error
	Delete(path string) error
	Exists(path string) bool
	Size(path string) (int64, error)
	Open(path string) (io.ReadCloser, error)
	// EnsureDir creates dir when missing and reports whether it had to.
	EnsureDir(dir string) (created bool, err error)
	// ListFiles returns the regular files directly inside dir.
	ListFiles(dir string) ([]string, error)
}

// VerdictScanner maps a local file to a remote verdict.
type VerdictScanner interface {
	ScanFile(ctx context.Context, path string) (VerdictResult, error)
}

// WatchOp identifies the kind of filesystem change a WatchEvent reports.
type WatchOp int

const (
	WatchCreated WatchOp = iota
	WatchRenamed
	WatchChanged
)

func (op WatchOp) String() string {
	switch op {
	case WatchCreated:
		return "created"
	case WatchRenamed:
		return "renamed"
	case WatchChanged:
		return "changed"
	default:
		return "unknown"
	}
}

// WatchEvent is a single filesystem notification. OldPath is only set for renames.
type WatchEvent struct {
	Op      WatchOp
	Path    string
	OldPath string
}

// Watcher delivers filesystem notifications for one directory until closed.
type Watcher interface {
	Events() <-chan WatchEvent
	Errors() <-chan error
	Close() error
}

// WatcherFactory opens a Watcher on a directory.
type WatcherFactory interface {
	Watch(dir string) (Watcher, error)
}

// RateLimitEventKind distinguishes a limiter stall from its resolution.
type RateLimitEventKind int

const (
	// RateLimitHit is raised when a request has to wait for the next window.
	RateLimitHit RateLimitEventKind = iota
	// RateLimitResolved is raised once the waiting request acquired a permit.
	RateLimitResolved
)

// RateLimitEvent reports a transition of the request rate limiter. Wait is only
// meaningful for RateLimitHit.
type RateLimitEvent struct {
	Kind RateLimitEventKind
	Wait time.Duration
}

// RateLimitNotifier lets the pipeline observe limiter stalls so it can surface a
// countdown. The returned function removes the subscription.
type RateLimitNotifier interface {
	Subscribe(fn func(RateLimitEvent)) (unsubscribe func())
	TimeUntilReset() time.Duration
}
