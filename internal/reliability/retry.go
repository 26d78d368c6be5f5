// Package reliability provides retry with exponential backoff for
// transient failures.
package reliability

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrMaxAttemptsExceeded wraps the last error once every attempt has failed.
var ErrMaxAttemptsExceeded = errors.New("maximum attempts exceeded")

// TemporaryError is implemented by errors worth retrying.
type TemporaryError interface {
	error
	Temporary() bool
}

// Config holds retry configuration.
type Config struct {
	MaxAttempts    int           // total attempts, including the first
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         bool

	// OnRetry, when set, is invoked before each backoff wait.
	OnRetry func(attempt int, err error, backoff time.Duration)
}

// Func is an operation that can be retried.
type Func func(ctx context.Context) error

// Retry executes fn with exponential backoff until it succeeds, returns a
// non-retryable error, the attempt budget is exhausted, or ctx is done.
// The backoff wait is cancellable: a stop request never sits out a sleep.
func Retry(ctx context.Context, cfg Config, fn Func) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.InitialBackoff == 0 {
		cfg.InitialBackoff = 100 * time.Millisecond
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = 2.0
	}

	var lastErr error
	backoff := cfg.InitialBackoff

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}
		if attempt == cfg.MaxAttempts {
			return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
		}

		wait := backoff
		if cfg.Jitter {
			wait = addJitter(wait)
		}
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		case <-time.After(wait):
		}

		backoff = time.Duration(float64(backoff) * cfg.Multiplier)
		if backoff > cfg.MaxBackoff {
			backoff = cfg.MaxBackoff
		}
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrMaxAttemptsExceeded, cfg.MaxAttempts, lastErr)
}

// isRetryable reports whether an error is worth another attempt. Context
// errors never are; everything else must declare itself temporary.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var tmp TemporaryError
	if errors.As(err, &tmp) {
		return tmp.Temporary()
	}
	return false
}

// addJitter spreads the wait by ±20% so synchronized retries do not herd.
func addJitter(d time.Duration) time.Duration {
	spread := float64(d) * 0.4
	return time.Duration(float64(d) + (rand.Float64()-0.5)*spread)
}
