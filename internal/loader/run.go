package loader

import (
	"context"
	"time"
)

// Retry delays while no dataset has loaded yet.
const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

// Run loads until the first success, retrying with exponential backoff,
// then reloads every refresh interval until ctx is cancelled. With a zero
// interval it returns after the first successful load.
func (l *Loader) Run(ctx context.Context) error {
	l.logger.Info("loader started", "refresh_interval", l.interval)

	backoff := initialBackoff
	for {
		if _, err := l.Load(ctx); err == nil {
			break
		}
		if !l.sleep(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}

	if l.interval <= 0 {
		return nil
	}
	for l.sleep(ctx, l.interval) {
		// Failures are logged by Load; the previous snapshot stays current.
		_, _ = l.Load(ctx)
	}
	l.logger.Info("loader stopping", "reason", ctx.Err())
	return nil
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

// sleep waits for d on the loader clock. It returns false if ctx ends first.
func (l *Loader) sleep(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	timer := l.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
