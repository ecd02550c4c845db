// Package ratelimit provides the per-minute request limiter shared by every call to
// the reputation API.
package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ahrav/dropscan/internal/domain/scanning"
	"github.com/ahrav/dropscan/pkg/common/logger"
	"github.com/ahrav/dropscan/pkg/common/timeutil"
)

// Notification is delivered to subscribers when a request stalls on the limiter and
// again when it gets through.
type Notification = scanning.RateLimitEvent

const (
	DefaultPermitLimit = 4
	DefaultQueueLimit  = 100
	defaultWindow      = time.Minute
)

// ErrQueueFull is returned when too many callers are already waiting for a permit.
var ErrQueueFull = errors.New("rate limiter queue is full")

var _ scanning.RateLimitNotifier = (*FixedWindow)(nil)

// FixedWindow grants permitLimit permits per window. Windows are anchored at
// construction time, not at calendar minute boundaries. Waiters are served oldest
// first.
type FixedWindow struct {
	mu          sync.Mutex
	anchor      time.Time
	window      time.Duration
	permitLimit int
	queueLimit  int

	windowIdx int64
	used      int
	waiters   []*waiter
	wakeTimer *time.Timer

	subs    map[int]func(Notification)
	nextSub int

	timeProvider timeutil.Provider
	logger       *logger.Logger
}

type waiter struct {
	ready chan struct{}
	// window is the index of the window the permit was granted in.
	window int64
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithWindow overrides the window length.
func WithWindow(d time.Duration) Option {
	return func(f *FixedWindow) { f.window = d }
}

// WithQueueLimit overrides the maximum number of queued waiters.
func WithQueueLimit(n int) Option {
	return func(f *FixedWindow) { f.queueLimit = n }
}

// WithTimeProvider replaces the wall clock used to compute window boundaries.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(f *FixedWindow) { f.timeProvider = tp }
}

// NewFixedWindow creates a limiter granting permitLimit requests per minute. A
// non-positive limit falls back to DefaultPermitLimit.
func NewFixedWindow(permitLimit int, log *logger.Logger, opts ...Option) *FixedWindow {
	if permitLimit <= 0 {
		permitLimit = DefaultPermitLimit
	}
	f := &FixedWindow{
		window:       defaultWindow,
		permitLimit:  permitLimit,
		queueLimit:   DefaultQueueLimit,
		subs:         make(map[int]func(Notification)),
		timeProvider: timeutil.Default(),
		logger:       log.With("component", "rate_limiter"),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.anchor = f.timeProvider.Now()
	return f
}

// Acquire blocks until a permit is available in the current or a later window.
func (f *FixedWindow) Acquire(ctx context.Context) error {
	f.mu.Lock()
	f.refreshLocked()

	if len(f.waiters) == 0 && f.used < f.permitLimit {
		f.used++
		f.mu.Unlock()
		return nil
	}
	if len(f.waiters) >= f.queueLimit {
		f.mu.Unlock()
		return ErrQueueFull
	}

	w := &waiter{ready: make(chan struct{})}
	f.waiters = append(f.waiters, w)
	f.scheduleWakeLocked()
	f.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		f.abandon(w)
		return ctx.Err()
	}
}

// abandon withdraws a cancelled waiter. A permit granted to it while the context
// was being cancelled goes to the next waiter, or back to the window it was
// granted in.
func (f *FixedWindow) abandon(w *waiter) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.removeWaiterLocked(w) {
		return
	}
	f.refreshLocked()
	if w.window != f.windowIdx {
		return
	}
	if len(f.waiters) > 0 {
		next := f.waiters[0]
		f.waiters = f.waiters[1:]
		next.window = f.windowIdx
		close(next.ready)
		return
	}
	if f.used > 0 {
		f.used--
	}
}

// SetPermitLimit changes the permits granted per window. Raising it releases
// queued waiters into the current window. A non-positive limit falls back to
// DefaultPermitLimit.
func (f *FixedWindow) SetPermitLimit(n int) {
	if n <= 0 {
		n = DefaultPermitLimit
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshLocked()
	f.permitLimit = n
	f.grantLocked()
}

// Available returns the permits left in the current window, ignoring queued waiters.
func (f *FixedWindow) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.refreshLocked()
	if n := f.permitLimit - f.used - len(f.waiters); n > 0 {
		return n
	}
	return 0
}

// TimeUntilReset returns the time left until the next window boundary, measured
// from the construction anchor.
func (f *FixedWindow) TimeUntilReset() time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.untilResetLocked()
}

// Subscribe registers fn for hit and resolved notifications. fn runs on the
// goroutine that raised the notification.
func (f *FixedWindow) Subscribe(fn func(Notification)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextSub
	f.nextSub++
	f.subs[id] = fn

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Notify delivers n to every subscriber.
func (f *FixedWindow) Notify(n Notification) {
	f.mu.Lock()
	subs := make([]func(Notification), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()

	if n.Kind == scanning.RateLimitHit {
		f.logger.Info(context.Background(), "rate limit hit", "wait", n.Wait.Round(time.Second).String())
	}
	for _, fn := range subs {
		fn(n)
	}
}

func (f *FixedWindow) untilResetLocked() time.Duration {
	elapsed := f.timeProvider.Now().Sub(f.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := f.window - elapsed%f.window
	if remaining < 0 {
		return 0
	}
	return remaining
}

// refreshLocked starts a new count when a window boundary has passed and hands the
// fresh permits to queued waiters in arrival order.
func (f *FixedWindow) refreshLocked() {
	elapsed := f.timeProvider.Now().Sub(f.anchor)
	if elapsed < 0 {
		elapsed = 0
	}
	idx := int64(elapsed / f.window)
	if idx == f.windowIdx {
		return
	}
	f.windowIdx = idx
	f.used = 0
	f.grantLocked()
}

// grantLocked hands free permits in the current window to waiters in arrival order.
func (f *FixedWindow) grantLocked() {
	for len(f.waiters) > 0 && f.used < f.permitLimit {
		w := f.waiters[0]
		f.waiters = f.waiters[1:]
		f.used++
		w.window = f.windowIdx
		close(w.ready)
	}
}

func (f *FixedWindow) scheduleWakeLocked() {
	if f.wakeTimer != nil {
		return
	}
	f.wakeTimer = time.AfterFunc(f.untilResetLocked(), f.wake)
}

func (f *FixedWindow) wake() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.wakeTimer = nil
	f.refreshLocked()
	if len(f.waiters) > 0 {
		f.scheduleWakeLocked()
	}
}

// removeWaiterLocked reports whether target was still queued.
func (f *FixedWindow) removeWaiterLocked(target *waiter) bool {
	for i, w := range f.waiters {
		if w == target {
			f.waiters = append(f.waiters[:i], f.waiters[i+1:]...)
			return true
		}
	}
	return false
}
