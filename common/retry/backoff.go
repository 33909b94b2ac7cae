package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Config controls exponential backoff
type Config struct {
	MaxAttempts        int
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BackoffCoefficient float64
	MaxElapsedTime     time.Duration
}

// DefaultConfig is tuned for waiting on infrastructure during startup
func DefaultConfig() Config {
	return Config{
		MaxAttempts:        5,
		InitialInterval:    500 * time.Millisecond,
		MaxInterval:        10 * time.Second,
		BackoffCoefficient: 2.0,
		MaxElapsedTime:     time.Minute,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a permanent error, or the budget runs out
func Do(ctx context.Context, config Config, logger *zap.Logger, name string, fn func(ctx context.Context) error) error {
	_, err := DoWithResult(ctx, config, logger, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// DoWithResult is Do for functions that produce a value
func DoWithResult[T any](ctx context.Context, config Config, logger *zap.Logger, name string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	interval := config.InitialInterval
	startTime := time.Now()

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		if config.MaxElapsedTime > 0 && time.Since(startTime) > config.MaxElapsedTime {
			return zero, fmt.Errorf("%s: max elapsed time exceeded: %w", name, lastErr)
		}

		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}

		var perm *permanentError
		if stderrors.As(err, &perm) {
			return zero, perm.err
		}

		lastErr = err
		logger.Warn("retry attempt failed",
			zap.String("operation", name),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", config.MaxAttempts),
			zap.Error(err))

		if attempt == config.MaxAttempts {
			break
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}

		interval = time.Duration(float64(interval) * config.BackoffCoefficient)
		if interval > config.MaxInterval {
			interval = config.MaxInterval
		}
	}

	return zero, fmt.Errorf("%s: max attempts reached: %w", name, lastErr)
}
