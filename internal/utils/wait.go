package utils

import (
	"context"
	"time"
)

// WaitFor blocks for d or until ctx is done, whichever comes first.
func WaitFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Backoff returns the delay before retry attempt n (1-based), doubling from base and capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if attempt < 1 || base <= 0 {
		return 0
	}

	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if max > 0 && delay >= max {
			return max
		}
	}

	if max > 0 && delay > max {
		return max
	}
	return delay
}
