// Package auditlog appends pipeline log lines to a size-rotated text file that an
// operator can read after the fact.
package auditlog

import (
	"context"
	"fmt"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/timeutil"
)

const lineLayout = "2006-01-02 15:04:05"

// Config controls where the log lives and how it rotates.
type Config struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

var _ scanning.StatusObserver = (*Writer)(nil)

// Writer is a StatusObserver that records log messages as
// "YYYY-MM-DD HH:MM:SS: message" lines. Status changes are not written; they are
// already summarized by the log messages that accompany them.
type Writer struct {
	mu           sync.Mutex
	out          io.WriteCloser
	timeProvider timeutil.Provider
	// onError receives write failures. The pipeline never sees them.
	onError func(error)
}

// Option configures a Writer.
type Option func(*Writer)

// WithTimeProvider replaces the clock used for line timestamps.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(w *Writer) { w.timeProvider = tp }
}

// WithErrorHandler sets the callback for failed writes.
func WithErrorHandler(fn func(error)) Option {
	return func(w *Writer) { w.onError = fn }
}

// New opens a rotating log at cfg.Path. The file is created on first write.
func New(cfg Config, opts ...Option) *Writer {
	return NewWithWriter(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}, opts...)
}

// NewWithWriter writes lines to out.
func NewWithWriter(out io.WriteCloser, opts ...Option) *Writer {
	w := &Writer{out: out, timeProvider: timeutil.Default(), onError: func(error) {}}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// OnStatus is a no-op.
func (w *Writer) OnStatus(context.Context, scanning.ScanResult) {}

// OnLog appends message with a local timestamp.
func (w *Writer) OnLog(_ context.Context, message string) {
	line := fmt.Sprintf("%s: %s\n", w.timeProvider.Now().Format(lineLayout), message)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := io.WriteString(w.out, line); err != nil {
		w.onError(fmt.Errorf("writing audit log: %w", err))
	}
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
