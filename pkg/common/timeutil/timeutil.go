// Package timeutil provides a swappable clock so time-dependent logic can be
// exercised deterministically in tests.
package timeutil

import (
	"sync"
	"time"
)

// Provider abstracts the source of the current time.
type Provider interface {
	Now() time.Time
}

type realProvider struct{}

func (realProvider) Now() time.Time { return time.Now() }

// Default returns a Provider backed by the system clock.
func Default() Provider { return realProvider{} }

// Mock is a Provider that returns a fixed, manually advanced time.
type Mock struct {
	mu          sync.RWMutex
	CurrentTime time.Time
}

// NewMock returns a Mock pinned to t.
func NewMock(t time.Time) *Mock { return &Mock{CurrentTime: t} }

// Now returns the mocked time.
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.CurrentTime
}

// Set pins the mocked time to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = t
}

// Advance moves the mocked time forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = m.CurrentTime.Add(d)
}
