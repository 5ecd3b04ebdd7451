package reconnect

import (
	"context"
	"time"
)

// Schedule defines the backoff durations for successive reconnect attempts.
var Schedule = []time.Duration{
	time.Second, time.Second, time.Second,
	5 * time.Second, 5 * time.Second, 5 * time.Second,
	15 * time.Second, 15 * time.Second, 15 * time.Second,
}

// Delay returns the backoff duration for the given attempt.
// Attempts beyond the length of the schedule default to 30 seconds.
func Delay(attempt int) time.Duration {
	if attempt < len(Schedule) {
		return Schedule[attempt]
	}
	return 30 * time.Second
}

// Run calls fn until it returns nil or ctx ends. When enabled is false the
// first result is returned as is. onRetry, when set, is told about each
// failed attempt before the backoff sleep.
func Run(ctx context.Context, enabled bool, fn func(context.Context) error, onRetry func(attempt int, delay time.Duration, err error)) error {
	return run(ctx, enabled, fn, onRetry, Delay)
}

func run(ctx context.Context, enabled bool, fn func(context.Context) error, onRetry func(int, time.Duration, error), delayFor func(int) time.Duration) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil || !enabled {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		delay := delayFor(attempt)
		if onRetry != nil {
			onRetry(attempt, delay, err)
		}
		attempt++
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
