package scanning

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/ahrav/dropscan/internal/domain/scanning"
)

// onRateLimit runs on the goroutine issuing the throttled request.
func (p *Pipeline) onRateLimit(ev scanning.RateLimitEvent) {
	switch ev.Kind {
	case scanning.RateLimitHit:
		p.countdown.start(ev.Wait)
	case scanning.RateLimitResolved:
		p.countdown.stop()
		p.setActiveMessage(context.Background(), "")
	}
}

// setActiveMessage changes the message of the file being scanned, if any, as long as
// it is still in the Scanning state.
func (p *Pipeline) setActiveMessage(ctx context.Context, msg string) {
	path, _ := p.activePath.Load().(string)
	if path == "" {
		return
	}
	p.update(ctx, path, func(r *scanning.ScanResult) bool {
		if r.Status != scanning.StatusScanning || r.Message == msg {
			return false
		}
		r.Message = msg
		return true
	})
}

// countdown pushes "Waiting for quota" text once per second while the rate limiter
// holds a request.
type countdown struct {
	p *Pipeline

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newCountdown(p *Pipeline) *countdown { return &countdown{p: p} }

func (c *countdown) start(wait time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
		c.wg.Wait()
	}
	parent := c.p.ctx
	if parent == nil || parent.Err() != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	c.cancel = cancel

	c.p.logMessage(ctx, fmt.Sprintf("Rate limit reached. Waiting %ds.", seconds(wait)))

	deadline := c.p.timeProvider.Now().Add(wait)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for {
			remaining := deadline.Sub(c.p.timeProvider.Now())
			if remaining <= 0 || ctx.Err() != nil {
				return
			}
			c.p.setActiveMessage(ctx, fmt.Sprintf("Waiting for quota: %ds", seconds(remaining)))

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// stop ends the running countdown and waits for its last update to land.
func (c *countdown) stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.wg.Wait()
}

func (c *countdown) wait() { c.wg.Wait() }

func seconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}
