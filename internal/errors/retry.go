package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryConfig tunes exponential backoff.
type RetryConfig struct {
	// MaxRetries counts retries only; the initial attempt is free.
	MaxRetries int
	// InitialDelay precedes the first retry.
	InitialDelay time.Duration
	// MaxDelay caps backoff growth.
	MaxDelay time.Duration
	// Multiplier grows the delay after each retry.
	Multiplier float64
	// Jitter randomizes each delay into [0.5, 1.0] of its value.
	Jitter bool
}

// DefaultRetryConfig is 3 retries from 1s doubling to a 16s cap.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Second,
		MaxDelay:     16 * time.Second,
		Multiplier:   2.0,
	}
}

// Retry runs fn with exponential backoff until it succeeds, the retry
// budget is spent, or the context ends.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that produce a value. On
// exhaustion it returns the zero value and the last error, wrapped.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var (
		zero    T
		lastErr error
		delay   = cfg.InitialDelay
	)

	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == cfg.MaxRetries {
			return zero, fmt.Errorf("failed after %d retries: %w", cfg.MaxRetries, lastErr)
		}

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(withJitter(delay, cfg.Jitter)):
		}

		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
	}
}

func withJitter(d time.Duration, jitter bool) time.Duration {
	if !jitter {
		return d
	}
	return time.Duration(float64(d) * (0.5 + rand.Float64()/2))
}
