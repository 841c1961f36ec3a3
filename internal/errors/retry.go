package errors

import (
	"context"
	"fmt"
	"time"
)

// RetryConfig configures caller-side retry behavior. Search paths never retry;
// this is used by the index watcher when the database is busy mid-write.
type RetryConfig struct {
	// MaxRetries is the number of retry attempts after the initial one.
	MaxRetries int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the delay between retries.
	MaxDelay time.Duration

	// Multiplier grows the delay after each retry.
	Multiplier float64

	// ShouldRetry decides whether err is worth another attempt.
	// Nil retries every error.
	ShouldRetry func(err error) bool
}

// DefaultRetryConfig returns the watcher's retry defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: 200 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Multiplier:   2.0,
		ShouldRetry:  IsRetryable,
	}
}

// Retry runs fn with exponential backoff until it succeeds, returns a
// non-retryable error, exhausts MaxRetries, or ctx is done.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	delay := cfg.InitialDelay
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if cfg.ShouldRetry != nil && !cfg.ShouldRetry(lastErr) {
			return lastErr
		}
		if attempt >= cfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.Multiplier)
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
}
