package llm

import (
	"context"
	"time"

	"secondbrain/internal/service"
)

const (
	retryAttempts  = 3
	retryBaseDelay = 200 * time.Millisecond
)

// WithRetry runs fn, retrying transient provider failures with exponential
// backoff. Only ProviderUnavailable errors are retried; validation failures
// and every other error return immediately.
func WithRetry(ctx context.Context, fn func() error) error {
	var err error
	delay := retryBaseDelay

	for attempt := 0; attempt < retryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}

		if err = fn(); err == nil {
			return nil
		}
		if !service.IsCode(err, service.CodeProviderUnavailable) {
			return err
		}
	}

	return err
}
