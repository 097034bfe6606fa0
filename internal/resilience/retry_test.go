package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{MaxAttempts: attempts, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
}

func TestDo_FirstAttempt(t *testing.T) {
	calls := 0
	err := Do(context.Background(), DefaultRetryConfig(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_RetriesTransient(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("unavailable"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestDo_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastRetry(5), func(context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDoVal_Exhausts(t *testing.T) {
	calls := 0
	retried := 0
	cfg := fastRetry(3)
	cfg.OnRetry = func(int, error) { retried++ }
	v, err := DoVal(context.Background(), cfg, func(context.Context) (int, error) {
		calls++
		return 7, NewTransientError(errors.New("down"), 500)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if v != 0 {
		t.Errorf("expected zero value, got %d", v)
	}
	if calls != 3 || retried != 2 {
		t.Errorf("expected 3 calls and 2 retries, got %d and %d", calls, retried)
	}
	if StatusCode(err) != 500 {
		t.Errorf("expected status 500, got %d", StatusCode(err))
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, RetryConfig{MaxAttempts: 5, InitialBackoff: time.Hour}, func(context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("down"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestBackoff_Capped(t *testing.T) {
	cfg := withDefaults(RetryConfig{InitialBackoff: time.Second, MaxBackoff: 3 * time.Second})
	if got := backoff(0, cfg); got != time.Second {
		t.Errorf("attempt 0: got %v", got)
	}
	if got := backoff(5, cfg); got != 3*time.Second {
		t.Errorf("attempt 5: got %v", got)
	}
}

func TestWithAttempts(t *testing.T) {
	if WithAttempts(7).MaxAttempts != 7 {
		t.Error("expected 7 attempts")
	}
	if WithAttempts(0).MaxAttempts != 3 {
		t.Error("expected default attempts")
	}
}
