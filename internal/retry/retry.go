// Package retry provides bounded exponential backoff for operations that
// are safe to repeat: startup connection attempts and retention pruning.
// Query-path storage failures are deliberately not retried here; the
// aggregation core surfaces them to the caller instead.
package retry

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// Config configures retry behavior
type Config struct {
	MaxAttempts  int           // Maximum number of attempts
	InitialDelay time.Duration // Delay before first retry
	MaxDelay     time.Duration // Cap on the delay between retries
	Multiplier   float64       // Exponential backoff multiplier
}

// DefaultConfig returns the default backoff schedule: 1s, 2s, 4s, 8s, capped at 30s.
func DefaultConfig() *Config {
	return &Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// Func is a function that can be retried
type Func func(ctx context.Context, attempt int) error

// WithBackoff executes fn with exponential backoff until it succeeds, the
// attempts are exhausted, or the context is cancelled. It returns the last
// error observed, or nil on success.
func WithBackoff(ctx context.Context, cfg *Config, logger *zap.Logger, op string, fn Func) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			if attempt > 1 {
				logger.Info("operation succeeded after retry",
					zap.String("op", op),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}
		lastErr = err

		if attempt >= cfg.MaxAttempts {
			logger.Error("operation failed after max attempts",
				zap.String("op", op),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			break
		}

		delay := calculateDelay(cfg, attempt)
		logger.Warn("operation failed, backing off",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

// calculateDelay computes the backoff delay for a given attempt
func calculateDelay(cfg *Config, attempt int) time.Duration {
	delay := float64(cfg.InitialDelay) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if delay > float64(cfg.MaxDelay) {
		delay = float64(cfg.MaxDelay)
	}
	return time.Duration(delay)
}
