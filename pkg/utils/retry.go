package utils

import (
	"context"
	"time"
)

// RetryConfig holds retry configuration.
type RetryConfig struct {
	MaxAttempts int
	// Retryable, when set, limits retries to errors it accepts.
	Retryable func(err error) bool
	// Backoff is the wait after a failed attempt. attempt is zero-based.
	// Nil retries immediately.
	Backoff func(attempt int) time.Duration
	// OnRetry is called before each wait with the failed attempt number (1-based).
	OnRetry func(attempt int, err error, wait time.Duration)
	// Sleep replaces the context-aware timer, mainly in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// LinearBackoff waits base, 2*base, 3*base and so on.
func LinearBackoff(base time.Duration) func(attempt int) time.Duration {
	return func(attempt int) time.Duration {
		return base * time.Duration(attempt+1)
	}
}

// RetryWithResult executes a function with backoff retry and returns a result.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	sleep := cfg.Sleep
	if sleep == nil {
		sleep = SleepContext
	}

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		// Check if context is cancelled
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}

		// Don't sleep after the last attempt
		if attempt < cfg.MaxAttempts-1 {
			var wait time.Duration
			if cfg.Backoff != nil {
				wait = cfg.Backoff(attempt)
			}
			if cfg.OnRetry != nil {
				cfg.OnRetry(attempt+1, err, wait)
			}
			if err := sleep(ctx, wait); err != nil {
				return zero, err
			}
		}
	}

	return zero, lastErr
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
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
