package util

import (
	"context"
	"time"
)

// DefaultRetryDelay is the initial sleep between retry attempts.
const DefaultRetryDelay = time.Second

// Retry calls fn up to maxAttempts times with exponential backoff starting at
// baseDelay and growing by multiplier after each failed attempt. It returns
// nil on the first successful call, or the last error if all attempts fail.
// The function respects context cancellation between retries. A multiplier
// below 1 is treated as 1 (constant delay); there is no upper delay cap, so
// callers are expected to keep maxAttempts small.
func Retry(ctx context.Context, maxAttempts int, baseDelay time.Duration, multiplier float64, fn func() error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if multiplier < 1 {
		multiplier = 1
	}

	var err error
	delay := baseDelay

	for attempt := 0; attempt < maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		// Don't sleep after the last failed attempt.
		if attempt < maxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay = time.Duration(float64(delay) * multiplier)
		}
	}

	return err
}
