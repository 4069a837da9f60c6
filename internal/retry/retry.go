// Package retry wraps an operation in exponential backoff with jitter.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"
)

// Config controls the backoff curve.
type Config struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultConfig is three attempts starting at one second, doubling.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2,
		JitterFactor:  0.1,
	}
}

// Classifier reports whether an error is worth another attempt.
type Classifier func(error) bool

// Retrier runs operations under a Config.
type Retrier struct {
	config      Config
	isRetryable Classifier
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// New builds a Retrier. A nil classifier never retries.
func New(config Config, classifier Classifier, logger *slog.Logger) *Retrier {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 1
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retrier{
		config:      config,
		isRetryable: classifier,
		logger:      logger,
		sleep:       sleepContext,
	}
}

// Do calls operation until it succeeds, returns a non-retryable error, runs out
// of attempts, or ctx is done while waiting.
func (r *Retrier) Do(ctx context.Context, operation func(ctx context.Context, attempt int) error) error {
	start := time.Now()
	var lastErr error
	var totalWait time.Duration

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		lastErr = operation(ctx, attempt)
		if lastErr == nil {
			if attempt > 1 {
				r.logger.Debug("operation succeeded after retry",
					"attempt", attempt,
					"total_wait_ms", totalWait.Milliseconds())
			}
			return nil
		}

		retryable := r.isRetryable != nil && r.isRetryable(lastErr)
		if attempt == r.config.MaxAttempts || !retryable {
			r.logger.Debug("operation failed permanently",
				"attempt", attempt,
				"error", lastErr,
				"retryable", retryable,
				"total_duration_ms", time.Since(start).Milliseconds())
			if !retryable {
				return lastErr
			}
			break
		}

		delay := r.Delay(attempt)
		totalWait += delay
		r.logger.Debug("retry backoff wait",
			"attempt", attempt,
			"error", lastErr,
			"retry_delay_ms", delay.Milliseconds())

		if err := r.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", r.config.MaxAttempts, lastErr)
}

// Delay returns the wait before the attempt following attempt.
func (r *Retrier) Delay(attempt int) time.Duration {
	delay := float64(r.config.BaseDelay) * math.Pow(r.config.BackoffFactor, float64(attempt-1))
	if r.config.MaxDelay > 0 && delay > float64(r.config.MaxDelay) {
		delay = float64(r.config.MaxDelay)
	}
	if r.config.JitterFactor > 0 {
		delay *= 1.0 + (rand.Float64()-0.5)*r.config.JitterFactor
	}
	return time.Duration(delay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
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
