package fileops

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const helloWorldSHA256 = "a591a6d40bf420404a011733cfb7b190d62c65bf0bcda32b57b277d9ad9f146e"

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestComputeHash_KnownDigest(t *testing.T) {
	p := writeFile(t, t.TempDir(), "hello.txt", "Hello World")

	got, err := New().ComputeHash(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, helloWorldSHA256, got)
	assert.Equal(t, helloWorldSHA256, HashBytes([]byte("Hello World")))
}

func TestComputeHash_CancelledContext(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.bin", "data")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New().ComputeHash(ctx, p)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestComputeHash_MissingFile(t *testing.T) {
	_, err := New().ComputeHash(context.Background(), filepath.Join(t.TempDir(), "nope"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestIsLocked(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "free.txt", "x")
	fs := New()

	assert.False(t, fs.IsLocked(p))
	assert.False(t, fs.IsLocked(filepath.Join(dir, "missing.txt")))
}

func TestMove(t *testing.T) {
	dir := t.TempDir()
	src := writeFile(t, dir, "a.txt", "content")
	dst := filepath.Join(dir, "out", "a.txt")
	fs := New()

	created, err := fs.EnsureDir(filepath.Dir(dst))
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, fs.Move(src, dst))
	assert.False(t, fs.Exists(src))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(b))
}

func TestEnsureDir_Existing(t *testing.T) {
	created, err := New().EnsureDir(t.TempDir())
	require.NoError(t, err)
	assert.False(t, created)
}

func TestEnsureDir_FileInTheWay(t *testing.T) {
	p := writeFile(t, t.TempDir(), "f", "x")
	_, err := New().EnsureDir(p)
	assert.Error(t, err)
}

func TestListFiles_SkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.txt", "1")
	b := writeFile(t, dir, "b.txt", "2")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	files, err := New().ListFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, files)
}

func TestSizeAndDelete(t *testing.T) {
	p := writeFile(t, t.TempDir(), "s.bin", "12345")
	fs := New()

	n, err := fs.Size(p)
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	require.NoError(t, fs.Delete(p))
	assert.False(t, fs.Exists(p))
	assert.Error(t, fs.Delete(p))
}
