package main

import (
	"context"

	domain "github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/logger"
)

// consoleObserver renders pipeline activity as structured log records.
type consoleObserver struct {
	log *logger.Logger
}

func newConsoleObserver(log *logger.Logger) *consoleObserver {
	return &consoleObserver{log: log.With("component", "console")}
}

func (c *consoleObserver) OnStatus(ctx context.Context, r domain.ScanResult) {
	args := []any{
		"file", r.FileName,
		"path", r.FullPath,
		"status", r.Status.Display(),
	}
	if r.PreviousPath != "" {
		args = append(args, "previous_path", r.PreviousPath)
	}
	if r.DetectionCount > 0 {
		args = append(args, "detections", r.DetectionCount)
	}
	if url := r.ReportURL(); url != "" {
		args = append(args, "report", url)
	}
	if r.Message != "" {
		args = append(args, "message", r.Message)
	}

	if r.Status == domain.StatusCompromised || r.Status == domain.StatusFailed {
		c.log.Warn(ctx, "file status", args...)
		return
	}
	c.log.Info(ctx, "file status", args...)
}

func (c *consoleObserver) OnLog(ctx context.Context, message string) {
	c.log.Debug(ctx, message)
}
