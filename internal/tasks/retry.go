package tasks

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/spotifier/internal/shared"
)

// RetryConfig configures [WithRetry].
type RetryConfig struct {
	MaxAttempts       int
	InitialDelay      time.Duration
	MaxDelay          time.Duration
	BackoffMultiplier float64
}

// RetryConfigFrom maps the queue section of the config onto a [RetryConfig].
func RetryConfigFrom(cfg shared.QueueConfig) RetryConfig {
	return RetryConfig{
		MaxAttempts:       max(cfg.MaxAttempts, 1),
		InitialDelay:      cfg.InitialBackoff.Duration,
		MaxDelay:          cfg.MaxBackoff.Duration,
		BackoffMultiplier: 2,
	}
}

// delay returns the wait before attempt+1, given that attempt (1-based) failed.
func (c RetryConfig) delay(attempt int) time.Duration {
	mult := c.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := time.Duration(float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1)))
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// RetryableFunc is called once per attempt; attempt starts at 1.
type RetryableFunc func(attempt int) error

// WithRetry calls fn until it succeeds, returns a permanent error or MaxAttempts is reached.
// It returns the number of attempts made and the last error.
//
// Validation and context errors are permanent.
func WithRetry(ctx context.Context, logger *log.Logger, cfg RetryConfig, fn RetryableFunc) (int, error) {
	var lastErr error
	attempts := max(cfg.MaxAttempts, 1)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}

		err := fn(attempt)
		if err == nil {
			return attempt, nil
		}
		lastErr = err

		if !retryable(err) || attempt == attempts {
			return attempt, lastErr
		}

		delay := cfg.delay(attempt)
		logger.Warn("attempt failed, retrying", "attempt", attempt, "max_attempts", attempts, "delay", delay, "err", err)

		select {
		case <-ctx.Done():
			return attempt, ctx.Err()
		case <-time.After(delay):
		}
	}

	return attempts, lastErr
}

func retryable(err error) bool {
	switch {
	case errors.Is(err, shared.ErrValidation),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	default:
		return true
	}
}
