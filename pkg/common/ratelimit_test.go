package common

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLimitedReader_Unlimited(t *testing.T) {
	src := bytes.NewReader([]byte("payload"))
	r := NewLimitedReader(context.Background(), src, 0)
	assert.Same(t, src, r)
}

func TestLimitedReader_ReadsAllBytes(t *testing.T) {
	data := bytes.Repeat([]byte("a"), 4096)
	r := NewLimitedReader(context.Background(), bytes.NewReader(data), 1<<20)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestLimitedReader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	// Burst of 16 bytes at 16 B/s: the second chunk must wait about a second.
	r := NewLimitedReader(ctx, bytes.NewReader(bytes.Repeat([]byte("a"), 64)), 16)

	buf := make([]byte, 64)
	n, err := r.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 16, n)

	cancel()
	_, err = r.Read(buf)
	assert.Error(t, err)
}

func TestRateLimiter_UpdateLimits(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.UpdateLimits(1000, 10)
	assert.Equal(t, 10, rl.Burst())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, rl.Wait(ctx))
}
