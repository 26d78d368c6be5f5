package reliability

import (
	"context"
	"errors"
	"testing"
	"time"
)

type tempErr struct{ msg string }

func (e *tempErr) Error() string   { return e.msg }
func (e *tempErr) Temporary() bool { return true }

var errFatal = errors.New("fatal")

func fastConfig(maxAttempts int) Config {
	return Config{
		MaxAttempts:    maxAttempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Multiplier:     2.0,
	}
}

func TestRetry_SucceedsWithinBudget(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		if attempts < 3 {
			return &tempErr{"busy"}
		}
		return nil
	})
	if err != nil {
		t.Errorf("Retry() error = %v, want nil", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetry_BudgetExhausted(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func(ctx context.Context) error {
		attempts++
		return &tempErr{"busy"}
	})
	if !errors.Is(err, ErrMaxAttemptsExceeded) {
		t.Errorf("Retry() error = %v, want ErrMaxAttemptsExceeded", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}

	// The last underlying error stays reachable.
	var tmp *tempErr
	if !errors.As(err, &tmp) {
		t.Errorf("underlying error not wrapped: %v", err)
	}
}

func TestRetry_NonTemporaryStopsImmediately(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(5), func(ctx context.Context) error {
		attempts++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Errorf("Retry() error = %v, want errFatal", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastConfig(5), func(ctx context.Context) error {
		attempts++
		return &tempErr{"busy"}
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() error = %v, want context.Canceled", err)
	}
	if attempts != 0 {
		t.Errorf("attempts = %d, want 0", attempts)
	}
}

func TestRetry_CancelDuringBackoff(t *testing.T) {
	cfg := Config{
		MaxAttempts:    3,
		InitialBackoff: time.Minute,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Retry(ctx, cfg, func(ctx context.Context) error {
			return &tempErr{"busy"}
		})
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Retry() error = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Retry() did not abort its backoff wait")
	}
}

func TestRetry_OnRetryCallback(t *testing.T) {
	var seen []int
	cfg := fastConfig(3)
	cfg.OnRetry = func(attempt int, err error, backoff time.Duration) {
		seen = append(seen, attempt)
	}

	_ = Retry(context.Background(), cfg, func(ctx context.Context) error {
		return &tempErr{"busy"}
	})

	// Called before each backoff wait, never after the final attempt.
	if len(seen) != 2 || seen[0] != 1 || seen[1] != 2 {
		t.Errorf("OnRetry attempts = %v, want [1 2]", seen)
	}
}

func TestRetry_BackoffGrows(t *testing.T) {
	var stamps []time.Time
	cfg := Config{
		MaxAttempts:    3,
		InitialBackoff: 20 * time.Millisecond,
		Multiplier:     2.0,
	}

	_ = Retry(context.Background(), cfg, func(ctx context.Context) error {
		stamps = append(stamps, time.Now())
		return &tempErr{"busy"}
	})

	if len(stamps) != 3 {
		t.Fatalf("attempts = %d, want 3", len(stamps))
	}
	first := stamps[1].Sub(stamps[0])
	second := stamps[2].Sub(stamps[1])
	if second < first {
		t.Errorf("backoff did not grow: first=%v second=%v", first, second)
	}
}

func TestAddJitter_StaysInBand(t *testing.T) {
	base := 100 * time.Millisecond
	for i := 0; i < 100; i++ {
		got := addJitter(base)
		if got < 80*time.Millisecond || got > 120*time.Millisecond {
			t.Fatalf("addJitter(%v) = %v, outside the 20%% band", base, got)
		}
	}
}
