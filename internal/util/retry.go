package util

import (
	"context"
	"time"
)

// Retry runs fn up to attempts times, waiting baseDelay, 2*baseDelay,
// 3*baseDelay... between attempts. It returns the last error once attempts
// are exhausted. Errors for which permanent returns true are surfaced
// immediately without further attempts.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, permanent func(error) bool, fn func() error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if permanent != nil && permanent(err) {
			return err
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(time.Duration(i+1) * baseDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
