package session

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Throttle lets an action run at most once per interval. The first call
// runs immediately; calls inside the window are dropped and only leave the
// pending flag set.
type Throttle struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	interval time.Duration
	last     time.Time
	fired    bool
	pending  bool
}

// NewThrottle creates a throttle with the given minimum spacing.
func NewThrottle(interval time.Duration, clock clockwork.Clock) *Throttle {
	return &Throttle{clock: clock, interval: interval}
}

// Allow reports whether an action may run now and, if so, starts a new window.
func (t *Throttle) Allow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	if t.fired && now.Sub(t.last) < t.interval {
		t.pending = true
		return false
	}
	t.last = now
	t.fired = true
	t.pending = false
	return true
}

// Pending reports whether a call was dropped since the last allowed one.
func (t *Throttle) Pending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

// Interval returns the minimum spacing between allowed calls.
func (t *Throttle) Interval() time.Duration {
	return t.interval
}
