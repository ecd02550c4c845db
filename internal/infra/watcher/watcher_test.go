package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/logger"
)

func nextEvent(t *testing.T, w scanning.Watcher, op scanning.WatchOp) scanning.WatchEvent {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "watcher closed")
			if ev.Op == op {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event received", op)
		}
	}
}

func TestWatch_Create(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFactory(logger.Noop()).Watch(dir)
	require.NoError(t, err)
	defer w.Close()

	p := filepath.Join(dir, "new.txt")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))

	ev := nextEvent(t, w, scanning.WatchCreated)
	assert.Equal(t, p, ev.Path)
}

func TestWatch_RenameWithinDirectory(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "download.crdownload")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o644))

	w, err := NewFactory(logger.Noop(), WithRenameWindow(time.Second)).Watch(dir)
	require.NoError(t, err)
	defer w.Close()

	renamed := filepath.Join(dir, "download.zip")
	require.NoError(t, os.Rename(old, renamed))

	ev := nextEvent(t, w, scanning.WatchRenamed)
	assert.Equal(t, renamed, ev.Path)
	assert.Equal(t, old, ev.OldPath)
}

func TestWatch_MoveOutThenCreateIsNotARename(t *testing.T) {
	dir, elsewhere := t.TempDir(), t.TempDir()
	scanned := filepath.Join(dir, "scanned.pdf")
	require.NoError(t, os.WriteFile(scanned, []byte("x"), 0o644))

	w, err := NewFactory(logger.Noop(), WithRenameWindow(time.Second)).Watch(dir)
	require.NoError(t, err)
	defer w.Close()

	require.NoError(t, os.Rename(scanned, filepath.Join(elsewhere, "scanned.pdf")))
	unrelated := filepath.Join(dir, "unrelated.exe")
	require.NoError(t, os.WriteFile(unrelated, []byte("y"), 0o644))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			require.True(t, ok, "watcher closed")
			require.NotEqual(t, scanning.WatchRenamed, ev.Op, "unrelated create paired with %s", ev.OldPath)
			if ev.Op == scanning.WatchCreated {
				assert.Equal(t, unrelated, ev.Path)
				return
			}
		case <-deadline:
			t.Fatal("no create event received")
		}
	}
}

func TestWatch_RenameOfFileCreatedWhileWatching(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFactory(logger.Noop(), WithRenameWindow(time.Second)).Watch(dir)
	require.NoError(t, err)
	defer w.Close()

	partial := filepath.Join(dir, "setup.exe.part")
	require.NoError(t, os.WriteFile(partial, []byte("x"), 0o644))
	nextEvent(t, w, scanning.WatchCreated)

	final := filepath.Join(dir, "setup.exe")
	require.NoError(t, os.Rename(partial, final))

	ev := nextEvent(t, w, scanning.WatchRenamed)
	assert.Equal(t, final, ev.Path)
	assert.Equal(t, partial, ev.OldPath)
}

func TestWatch_MissingDirectory(t *testing.T) {
	_, err := NewFactory(logger.Noop()).Watch(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestWatch_CloseIsIdempotent(t *testing.T) {
	w, err := NewFactory(logger.Noop()).Watch(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, w.Close())
	assert.NotPanics(t, func() { _ = w.Close() })

	_, ok := <-w.Events()
	assert.False(t, ok)
}
