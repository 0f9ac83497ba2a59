// Package retry runs an operation with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// ErrMaxAttemptsExceeded wraps the last error once every attempt has failed.
var ErrMaxAttemptsExceeded = errors.New("max retry attempts exceeded")

// Default backoff settings.
const (
	DefaultMaxAttempts  = 5
	DefaultInitialDelay = 10 * time.Millisecond
	DefaultMaxDelay     = 500 * time.Millisecond
	DefaultMultiplier   = 2.0

	// jitterFraction is the share of each delay that is randomized.
	jitterFraction = 0.25
)

// Config configures retry behavior.
type Config struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// IsRetryable decides whether an error warrants another attempt.
	// A nil IsRetryable retries every error.
	IsRetryable func(error) bool
	// OnRetry is called before sleeping between attempts.
	OnRetry func(attempt int, err error)
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = DefaultInitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = DefaultMaxDelay
	}
	if c.Multiplier < 1 {
		c.Multiplier = DefaultMultiplier
	}
	return c
}

// Do calls fn until it succeeds, returns a non-retryable error, ctx is done
// or MaxAttempts is reached. Exhaustion returns an error wrapping both
// ErrMaxAttemptsExceeded and the last error from fn.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()

	delay := cfg.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if cfg.IsRetryable != nil && !cfg.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, lastErr)
		}

		timer := time.NewTimer(jitter(delay))
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("retry cancelled: %w", ctx.Err())
		case <-timer.C:
		}

		delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
}

func jitter(d time.Duration) time.Duration {
	spread := time.Duration(float64(d) * jitterFraction)
	if spread <= 0 {
		return d
	}
	return d - spread + rand.N(2*spread)
}
