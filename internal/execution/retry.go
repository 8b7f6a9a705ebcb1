package execution

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/reelgen/internal/provider"
)

// RetryConfig controls the exponential backoff applied to retryable
// provider failures.
type RetryConfig struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int

	// BaseDelay is the delay before the first retry. Each subsequent
	// retry doubles it.
	BaseDelay time.Duration

	// MaxDelay caps the backoff delay.
	MaxDelay time.Duration
}

// backoffDelay returns the delay before retry number attempt (0-based).
func (c RetryConfig) backoffDelay(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.MaxDelay {
			return c.MaxDelay
		}
	}
	if delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// RetryObserver is notified before each backoff sleep. attempt is the
// 0-based index of the attempt that just failed.
type RetryObserver func(attempt int, kind provider.ErrorKind, err error, delay time.Duration)

// WithRetry runs op, retrying on failures whose classified kind is
// retryable. Terminal kinds and exhausted budgets return the last error
// unchanged so callers can classify it themselves. The backoff sleep is
// context-aware; cancellation surfaces as ctx.Err().
func WithRetry[T any](ctx context.Context, cfg RetryConfig, log *slog.Logger, observe RetryObserver, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		kind := provider.KindOf(err)
		if !kind.Retryable() {
			return zero, err
		}
		if attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.backoffDelay(attempt)
		if log != nil {
			log.Warn("retrying after transient failure",
				"attempt", attempt+1,
				"max_retries", cfg.MaxRetries,
				"kind", string(kind),
				"delay", delay.String(),
				"error", err)
		}
		if observe != nil {
			observe(attempt, kind, err, delay)
		}

		if err := sleepCtx(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("retries exhausted after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// sleepCtx sleeps for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
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
