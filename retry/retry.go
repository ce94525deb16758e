// Package retry runs fallible remote calls with exponential backoff.
package retry

import (
	"context"
	"errors"
	"time"

	apperrors "checkout-service/errors"

	"go.uber.org/zap"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 500 * time.Millisecond
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Policy bounds how often and how patiently an operation is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Sleep       Sleeper
}

// DefaultPolicy is 3 attempts with 500ms, 1s backoff between them.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Delay returns the wait after the given zero-based failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(1<<uint(attempt))
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = DefaultMaxAttempts
	}
	if p.BaseDelay < 0 {
		p.BaseDelay = 0
	}
	if p.Sleep == nil {
		p.Sleep = SleepContext
	}
	return p
}

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do runs op until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. The returned error is always the last error op
// produced; it is never replaced with a generic one.
func Do[T any](ctx context.Context, p Policy, logger *zap.Logger, name string, op func(ctx context.Context) (T, error)) (T, error) {
	p = p.normalized()
	if logger == nil {
		logger = zap.NewNop()
	}

	var zero T
	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				logger.Info("Operation succeeded after retry",
					zap.String("operation", name),
					zap.Int("attempt", attempt+1),
				)
			}
			return result, nil
		}
		lastErr = err

		retryable := apperrors.IsRetryable(err)
		logger.Warn("Operation attempt failed",
			zap.String("operation", name),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Bool("retryable", retryable),
			zap.Error(err),
		)
		if !retryable {
			return zero, err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		if sleepErr := p.Sleep(ctx, p.Delay(attempt)); sleepErr != nil {
			return zero, errors.Join(sleepErr, lastErr)
		}
	}

	logger.Error("Operation failed, attempts exhausted",
		zap.String("operation", name),
		zap.Int("attempts", p.MaxAttempts),
		zap.Error(lastErr),
	)
	return zero, lastErr
}
