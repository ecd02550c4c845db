package scanning

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ahrav/dropscan/internal/domain/scanning"
)

// watch forwards filesystem notifications until the context ends or the watcher
// closes. Handlers only touch the queue, the locked set and debounce timers.
func (p *Pipeline) watch(ctx context.Context, w scanning.Watcher) error {
	events, errs := w.Events(), w.Errors()
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			p.handleEvent(ctx, ev)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			p.logger.Warn(ctx, "watcher error", "error", err)
		}
	}
}

func (p *Pipeline) handleEvent(ctx context.Context, ev scanning.WatchEvent) {
	switch ev.Op {
	case scanning.WatchCreated:
		p.debounceEnqueue(ctx, ev.Path)

	case scanning.WatchChanged:
		// Locked files are re-probed by the retry loop.
		if p.isLocked(ev.Path) {
			return
		}
		p.debounceEnqueue(ctx, ev.Path)

	case scanning.WatchRenamed:
		p.handleRename(ctx, ev.OldPath, ev.Path)
	}
}

// handleRename re-targets the result for the old path and queues the new one.
func (p *Pipeline) handleRename(ctx context.Context, oldPath, newPath string) {
	if p.isLogFile(oldPath) || p.isLogFile(newPath) {
		return
	}
	p.cancelDebounce(oldPath)
	if p.queue.remove(oldPath) {
		p.logger.Debug(ctx, "renamed file left the queue", "old_path", oldPath)
	}
	if p.unlock(ctx, oldPath) {
		p.logger.Debug(ctx, "renamed file left the locked set", "old_path", oldPath)
	}

	p.resultsMu.Lock()
	if r, ok := p.results[oldPath]; ok {
		delete(p.results, oldPath)
		r.FullPath = newPath
		r.FileName = filepath.Base(newPath)
		p.results[newPath] = r
	}
	p.resultsMu.Unlock()

	p.logMessage(ctx, fmt.Sprintf("File renamed: %s -> %s", filepath.Base(oldPath), filepath.Base(newPath)))
	p.enqueue(ctx, newPath, oldPath)
}

// debounceEnqueue waits for CreateDebounce of quiet before queuing path, absorbing
// the bursts of events a browser produces while it settles on a final name.
func (p *Pipeline) debounceEnqueue(ctx context.Context, path string) {
	if p.cfg.CreateDebounce <= 0 {
		p.Enqueue(ctx, path)
		return
	}

	p.debounceMu.Lock()
	defer p.debounceMu.Unlock()

	if t, ok := p.debounce[path]; ok {
		t.Reset(p.cfg.CreateDebounce)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(p.cfg.CreateDebounce, func() {
		p.debounceMu.Lock()
		if p.debounce[path] != timer {
			p.debounceMu.Unlock()
			return
		}
		delete(p.debounce, path)
		p.debounceMu.Unlock()

		if ctx.Err() != nil {
			return
		}
		p.Enqueue(ctx, path)
	})
	p.debounce[path] = timer
}

func (p *Pipeline) cancelDebounce(path string) {
	p.debounceMu.Lock()
	defer p.debounceMu.Unlock()

	if t, ok := p.debounce[path]; ok {
		t.Stop()
		delete(p.debounce, path)
	}
}
