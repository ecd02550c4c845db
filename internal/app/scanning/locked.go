package scanning

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ahrav/dropscan/internal/domain/scanning"
)

// markLocked parks path in the locked set and wakes the retry loop.
func (p *Pipeline) markLocked(ctx context.Context, path string) {
	p.lockedMu.Lock()
	_, already := p.locked[path]
	p.locked[path] = struct{}{}
	p.lockedMu.Unlock()

	if !already {
		p.metrics.IncLockedFiles(ctx)
	}

	p.update(ctx, path, func(r *scanning.ScanResult) bool {
		r.Status = scanning.StatusPendingLocked
		r.Message = "File is locked by another process"
		return true
	})
	p.logMessage(ctx, fmt.Sprintf("File is locked: %s. Queuing for retry.", filepath.Base(path)))

	select {
	case p.lockedSignal <- struct{}{}:
	default:
	}
}

// unlock removes path from the locked set and reports whether it was there.
func (p *Pipeline) unlock(ctx context.Context, path string) bool {
	p.lockedMu.Lock()
	_, ok := p.locked[path]
	delete(p.locked, path)
	p.lockedMu.Unlock()

	if ok {
		p.metrics.DecLockedFiles(ctx)
	}
	return ok
}

func (p *Pipeline) isLocked(path string) bool {
	p.lockedMu.Lock()
	defer p.lockedMu.Unlock()
	_, ok := p.locked[path]
	return ok
}

// retryLocked sleeps until a file is locked, then re-probes the locked set every
// LockedRetryInterval. The ticker stops again once the set is empty.
func (p *Pipeline) retryLocked(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.lockedSignal:
		}

		p.logMessage(ctx, "Locked file timer started.")
		ticker := time.NewTicker(p.cfg.LockedRetryInterval)

		for running := true; running; {
			select {
			case <-ctx.Done():
				ticker.Stop()
				p.logMessage(ctx, "Locked file timer stopped.")
				return nil
			case <-ticker.C:
				if p.recheckLocked(ctx) == 0 {
					running = false
				}
			}
		}

		ticker.Stop()
		p.logMessage(ctx, "Locked file timer stopped (no locked files).")
	}
}

// recheckLocked probes every locked path once and returns how many remain locked.
// Gone files are reported Removed; released files go back to the queue.
func (p *Pipeline) recheckLocked(ctx context.Context) int {
	ctx, span := p.tracer.Start(ctx, "scan_pipeline.recheck_locked")
	defer span.End()

	paths := p.LockedFiles()
	span.SetAttributes(attribute.Int("locked_count", len(paths)))

	for _, path := range paths {
		name := filepath.Base(path)
		switch {
		case !p.files.Exists(path):
			if !p.unlock(ctx, path) {
				continue
			}
			p.logMessage(ctx, fmt.Sprintf("Locked file was removed: %s", name))
			p.finish(ctx, path, scanning.StatusRemoved, func(r *scanning.ScanResult) {
				r.Message = "File was removed before it could be scanned"
			})

		case !p.files.IsLocked(path):
			if !p.unlock(ctx, path) {
				continue
			}
			span.AddEvent("file_unlocked", trace.WithAttributes(attribute.String("path", path)))
			p.logMessage(ctx, fmt.Sprintf("File unlocked: %s. Re-queuing.", name))
			p.Enqueue(ctx, path)
		}
	}

	p.lockedMu.Lock()
	defer p.lockedMu.Unlock()
	return len(p.locked)
}
