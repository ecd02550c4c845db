// Package watcher adapts fsnotify to the pipeline's WatchEvent stream.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/logger"
)

// defaultRenameWindow is how long a Rename waits for the matching Create that
// carries the new name.
const defaultRenameWindow = 250 * time.Millisecond

var _ scanning.WatcherFactory = (*Factory)(nil)

// Factory opens fsnotify-backed watchers.
type Factory struct {
	logger       *logger.Logger
	renameWindow time.Duration
}

// Option configures a Factory.
type Option func(*Factory)

// WithRenameWindow overrides the rename pairing window.
func WithRenameWindow(d time.Duration) Option {
	return func(f *Factory) { f.renameWindow = d }
}

// NewFactory creates a Factory.
func NewFactory(log *logger.Logger, opts ...Option) *Factory {
	f := &Factory{
		logger:       log.With("component", "watcher"),
		renameWindow: defaultRenameWindow,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Watch subscribes to create, rename and write notifications for dir.
func (f *Factory) Watch(dir string) (scanning.Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", dir, err)
	}

	w := &dirWatcher{
		fw:           fw,
		logger:       f.logger.With("dir", dir),
		renameWindow: f.renameWindow,
		events:       make(chan scanning.WatchEvent, 64),
		errors:       make(chan error, 8),
		done:         make(chan struct{}),
		known:        make(map[string]os.FileInfo),
	}
	w.seed(dir)
	w.wg.Add(1)
	go w.run()
	return w, nil
}

type dirWatcher struct {
	fw           *fsnotify.Watcher
	logger       *logger.Logger
	renameWindow time.Duration

	events chan scanning.WatchEvent
	errors chan error
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup

	// known holds the identity of every file seen in the directory. Only the run
	// goroutine touches it after Watch returns.
	known map[string]os.FileInfo
}

func (w *dirWatcher) Events() <-chan scanning.WatchEvent { return w.events }
func (w *dirWatcher) Errors() <-chan error               { return w.errors }

// Close stops the watcher and closes both channels.
func (w *dirWatcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fw.Close()
		w.wg.Wait()
		close(w.events)
		close(w.errors)
	})
	return err
}

func (w *dirWatcher) run() {
	defer w.wg.Done()

	var (
		pendingOld  string
		pendingInfo os.FileInfo
		renameTmr   *time.Timer
		renameC     <-chan time.Time
	)
	clearRename := func() {
		if renameTmr != nil {
			renameTmr.Stop()
		}
		pendingOld, pendingInfo, renameTmr, renameC = "", nil, nil, nil
	}

	for {
		select {
		case <-w.done:
			clearRename()
			return

		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			switch {
			case ev.Has(fsnotify.Rename):
				// The old name leaves; the new name arrives as a Create. A file moved
				// out of the directory also raises Rename, so the Create only pairs
				// with it when both refer to the same file.
				clearRename()
				pendingOld = ev.Name
				pendingInfo = w.known[ev.Name]
				delete(w.known, ev.Name)
				renameTmr = time.NewTimer(w.renameWindow)
				renameC = renameTmr.C

			case ev.Has(fsnotify.Create):
				info, err := os.Stat(ev.Name)
				if err == nil && info.IsDir() {
					continue
				}
				if err == nil {
					w.remember(ev.Name, info)
					if pendingInfo != nil && os.SameFile(pendingInfo, info) {
						old := pendingOld
						clearRename()
						w.emit(scanning.WatchEvent{Op: scanning.WatchRenamed, Path: ev.Name, OldPath: old})
						continue
					}
				}
				w.emit(scanning.WatchEvent{Op: scanning.WatchCreated, Path: ev.Name})

			case ev.Has(fsnotify.Remove):
				delete(w.known, ev.Name)

			case ev.Has(fsnotify.Write):
				w.emit(scanning.WatchEvent{Op: scanning.WatchChanged, Path: ev.Name})
			}

		case <-renameC:
			// Moved out of the directory; nothing to scan.
			w.logger.Debug(context.Background(), "rename without destination", "path", pendingOld)
			clearRename()

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			select {
			case w.errors <- err:
			default:
				w.logger.Warn(context.Background(), "dropping watcher error", "error", err)
			}
		}
	}
}

func (w *dirWatcher) emit(ev scanning.WatchEvent) {
	select {
	case w.events <- ev:
	case <-w.done:
	}
}

// seed records the files already present so renames of them can be paired.
func (w *dirWatcher) seed(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		w.logger.Warn(context.Background(), "listing watched directory", "error", err)
		return
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if info, err := os.Stat(path); err == nil {
			w.remember(path, info)
		}
	}
}

// remember stores info for path. Comparing info with itself resolves the file ID
// on platforms that load it lazily, so the identity survives the name going away.
func (w *dirWatcher) remember(path string, info os.FileInfo) {
	_ = os.SameFile(info, info)
	w.known[path] = info
}
