// Package quota tracks API usage against the configured daily and monthly caps and
// persists the counters after every counted request.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ahrav/dropscan/internal/config"
	"github.com/ahrav/dropscan/pkg/common/logger"
	"github.com/ahrav/dropscan/pkg/common/timeutil"
)

// Tracker is the only mutator of quota state. Every method runs under one mutex so
// check, increment and persist form a single critical section.
type Tracker struct {
	mu    sync.Mutex
	state config.QuotaSettings

	store        config.SettingsStore
	limiter      PermitLimiter
	timeProvider timeutil.Provider
	logger       *logger.Logger
}

// PermitLimiter enforces the per-minute cap.
type PermitLimiter interface {
	SetPermitLimit(n int)
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithTimeProvider replaces the wall clock, mainly for tests.
func WithTimeProvider(tp timeutil.Provider) Option {
	return func(t *Tracker) { t.timeProvider = tp }
}

// WithPermitLimiter keeps l's per-minute limit in step with UpdateLimits.
func WithPermitLimiter(l PermitLimiter) Option {
	return func(t *Tracker) { t.limiter = l }
}

// NewTracker loads the current quota state from store.
func NewTracker(ctx context.Context, store config.SettingsStore, log *logger.Logger, opts ...Option) (*Tracker, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading quota state: %w", err)
	}

	t := &Tracker{
		state:        doc.Quota,
		store:        store,
		timeProvider: timeutil.Default(),
		logger:       log.With("component", "quota_tracker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// CheckQuota applies any calendar rollover and fails when the daily or monthly cap
// is already met. It reserves nothing.
func (t *Tracker) CheckQuota(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.checkLocked(ctx)
}

// Increment re-checks the caps, counts one request against both periods and
// persists the new state before returning. A persistence failure is returned; the
// in-memory counters keep the request so usage is never under-reported.
func (t *Tracker) Increment(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.checkLocked(ctx); err != nil {
		return err
	}

	t.state.UsedToday++
	t.state.UsedThisMonth++
	t.state.LastUsedDate = t.timeProvider.Now()

	if err := t.persistLocked(ctx); err != nil {
		return fmt.Errorf("persisting quota usage: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the current quota state.
func (t *Tracker) Snapshot() config.QuotaSettings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// UpdateLimits changes the caps without touching the usage counters and persists
// the result. The per-minute cap takes effect on the limiter immediately.
func (t *Tracker) UpdateLimits(ctx context.Context, perMinute, perDay, perMonth int) error {
	if perMinute < 0 || perDay < 0 || perMonth < 0 {
		return config.ErrNegativeQuota
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.state.PerMinute = perMinute
	t.state.PerDay = perDay
	t.state.PerMonth = perMonth
	if t.limiter != nil {
		t.limiter.SetPermitLimit(perMinute)
	}
	return t.persistLocked(ctx)
}

// RegisterMetrics exposes the usage counters as observable gauges.
func (t *Tracker) RegisterMetrics(mp metric.MeterProvider) error {
	meter := mp.Meter("dropscan.quota", metric.WithInstrumentationVersion("v0.1.0"))

	usedToday, err := meter.Int64ObservableGauge("quota_used_today",
		metric.WithDescription("API requests counted against today's quota"))
	if err != nil {
		return err
	}
	usedMonth, err := meter.Int64ObservableGauge("quota_used_this_month",
		metric.WithDescription("API requests counted against this month's quota"))
	if err != nil {
		return err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		s := t.Snapshot()
		o.ObserveInt64(usedToday, int64(s.UsedToday))
		o.ObserveInt64(usedMonth, int64(s.UsedThisMonth))
		return nil
	}, usedToday, usedMonth)
	return err
}

func (t *Tracker) checkLocked(ctx context.Context) error {
	t.rolloverLocked(ctx, t.timeProvider.Now())

	if t.state.PerDay > 0 && t.state.UsedToday >= t.state.PerDay {
		t.logger.Warn(ctx, "daily quota exhausted", "used", t.state.UsedToday, "limit", t.state.PerDay)
		return &QuotaError{Period: PeriodDaily, Used: t.state.UsedToday, Limit: t.state.PerDay}
	}
	if t.state.PerMonth > 0 && t.state.UsedThisMonth >= t.state.PerMonth {
		t.logger.Warn(ctx, "monthly quota exhausted", "used", t.state.UsedThisMonth, "limit", t.state.PerMonth)
		return &QuotaError{Period: PeriodMonthly, Used: t.state.UsedThisMonth, Limit: t.state.PerMonth}
	}
	return nil
}

// rolloverLocked compares the stored date, not the one it is about to write, so a
// month change is detected even when the day also changed.
func (t *Tracker) rolloverLocked(ctx context.Context, now time.Time) {
	last := t.state.LastUsedDate.In(now.Location())
	if sameDay(last, now) {
		return
	}

	t.state.UsedToday = 0
	if last.Year() != now.Year() || last.Month() != now.Month() {
		t.state.UsedThisMonth = 0
	}
	t.state.LastUsedDate = now
	t.logger.Debug(ctx, "quota counters rolled over", "date", now.Format(time.DateOnly))
}

// persistLocked rewrites the settings document with the current quota section,
// keeping whatever else the document holds.
func (t *Tracker) persistLocked(ctx context.Context) error {
	doc, err := t.store.Load(ctx)
	if err != nil {
		return err
	}
	doc.Quota = t.state
	return t.store.Save(ctx, doc)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
