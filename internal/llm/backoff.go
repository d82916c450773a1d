package llm

import (
	"context"
	"time"
)

// Backoff computes exponential retry delays.
type Backoff struct {
	Initial time.Duration
	Factor  float64
	// Max caps a single delay; zero means uncapped.
	Max time.Duration
}

// DelayForAttempt returns the delay after the given zero-based failed attempt.
func (b Backoff) DelayForAttempt(attempt int) time.Duration {
	d := float64(b.Initial)
	for range attempt {
		d *= b.Factor
	}
	delay := time.Duration(d)
	if b.Max > 0 && delay > b.Max {
		return b.Max
	}
	return delay
}

// sleepWithContext waits for d or until ctx is done.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
