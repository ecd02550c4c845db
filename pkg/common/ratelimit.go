package common

import (
	"context"
	"io"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter provides thread-safe rate limiting with dynamically adjustable limits.
// It is used to cap upload bandwidth so a large submission does not saturate the
// operator's uplink.
type RateLimiter struct {
	limiter *rate.Limiter
	mu      sync.RWMutex // Protects concurrent access to the limiter
}

// NewRateLimiter creates a RateLimiter with the specified events per second (rps)
// and burst size. The burst parameter controls how many events can be consumed at once.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until the rate limiter allows an event or the context is canceled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	return rl.WaitN(ctx, 1)
}

// WaitN blocks until n events are allowed or the context is canceled.
func (rl *RateLimiter) WaitN(ctx context.Context, n int) error {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.WaitN(ctx, n)
}

// Burst returns the current burst size.
func (rl *RateLimiter) Burst() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.limiter.Burst()
}

// UpdateLimits dynamically adjusts the rate limiter's events per second and burst size.
func (rl *RateLimiter) UpdateLimits(rps float64, burst int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.limiter.SetLimit(rate.Limit(rps))
	rl.limiter.SetBurst(burst)
}

type limitedReader struct {
	ctx     context.Context
	r       io.Reader
	limiter *RateLimiter
}

// NewLimitedReader wraps r so reads proceed at no more than bytesPerSecond.
// A non-positive bytesPerSecond returns r unchanged.
func NewLimitedReader(ctx context.Context, r io.Reader, bytesPerSecond int) io.Reader {
	if bytesPerSecond <= 0 {
		return r
	}
	return &limitedReader{
		ctx:     ctx,
		r:       r,
		limiter: NewRateLimiter(float64(bytesPerSecond), bytesPerSecond),
	}
}

func (l *limitedReader) Read(p []byte) (int, error) {
	// A single WaitN larger than the burst always fails, so reads are capped.
	if burst := l.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}

	n, err := l.r.Read(p)
	if n > 0 {
		if werr := l.limiter.WaitN(l.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
