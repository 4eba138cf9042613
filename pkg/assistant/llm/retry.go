// Package llm – retry.go implements retry with exponential backoff for
// engine calls that must not fail transiently (e.g. the consolidation
// extraction call).
package llm

import (
	"context"
	"fmt"
	"time"
)

const (
	// DefaultRetryAttempts is the total number of tries for WithRetry.
	DefaultRetryAttempts = 3

	// DefaultRetryBase is the delay before the first retry; it doubles on
	// each subsequent attempt.
	DefaultRetryBase = 2 * time.Second
)

// WithRetry calls fn up to attempts times, sleeping base, 2*base, 4*base...
// between failures. Returns nil on the first success, the last error
// otherwise. The context cancels both the wait and further attempts.
func WithRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	delay := base

	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}

	return fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}
