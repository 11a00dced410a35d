package pricing

import (
	"context"
	"sync"
	"time"
)

// Window bounds outbound API calls to a fixed budget per interval. A caller
// that exceeds the budget sleeps until the window resets; it never fails.
type Window struct {
	mu          sync.Mutex
	limit       int
	interval    time.Duration
	count       int
	windowStart time.Time
}

// NewWindow constructs a fixed-window rate limiter.
func NewWindow(limit int, interval time.Duration) *Window {
	if limit <= 0 {
		limit = 600
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &Window{limit: limit, interval: interval}
}

// Reserve consumes one slot, blocking until a slot is available or the
// context is cancelled.
func (w *Window) Reserve(ctx context.Context) error {
	for {
		w.mu.Lock()
		now := time.Now()
		if w.windowStart.IsZero() || now.Sub(w.windowStart) >= w.interval {
			w.windowStart = now
			w.count = 0
		}
		if w.count < w.limit {
			w.count++
			w.mu.Unlock()
			return nil
		}
		wait := w.windowStart.Add(w.interval).Sub(now)
		w.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
