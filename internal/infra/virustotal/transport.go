package virustotal

import (
	"context"
	"net/http"
	"time"

	"github.com/ahrav/dropscan/internal/domain/scanning"
)

// Limiter is the request limiter the throttling transport consults.
type Limiter interface {
	Available() int
	TimeUntilReset() time.Duration
	Acquire(ctx context.Context) error
	Notify(scanning.RateLimitEvent)
}

// ThrottlingTransport holds every request until the limiter grants a permit. When
// the window is already exhausted it announces the stall and, once through, its
// resolution.
type ThrottlingTransport struct {
	limiter Limiter
	next    http.RoundTripper
}

// NewThrottlingTransport wraps next. A nil next uses http.DefaultTransport.
func NewThrottlingTransport(limiter Limiter, next http.RoundTripper) *ThrottlingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &ThrottlingTransport{limiter: limiter, next: next}
}

// RoundTrip implements http.RoundTripper.
func (t *ThrottlingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	stalled := t.limiter.Available() == 0
	if stalled {
		t.limiter.Notify(scanning.RateLimitEvent{Kind: scanning.RateLimitHit, Wait: t.limiter.TimeUntilReset()})
	}

	if err := t.limiter.Acquire(req.Context()); err != nil {
		if req.Body != nil {
			req.Body.Close()
		}
		return nil, err
	}

	if stalled {
		t.limiter.Notify(scanning.RateLimitEvent{Kind: scanning.RateLimitResolved})
	}
	return t.next.RoundTrip(req)
}
