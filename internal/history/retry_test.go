package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"spendcast/internal/core"
)

func testRetryConfig(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:    maxRetries,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func transient(msg string) error {
	return &core.FetchError{Op: "test", Retryable: true, Cause: errors.New(msg)}
}

func TestWithRetry_SuccessFirstAttempt(t *testing.T) {
	calls := 0
	result, attempts, err := WithRetry(context.Background(), testRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected 'ok', got %q", result)
	}
	if calls != 1 || attempts != 1 {
		t.Fatalf("expected 1 attempt, got calls=%d attempts=%d", calls, attempts)
	}
}

func TestWithRetry_TransientThenSuccess(t *testing.T) {
	calls := 0
	result, attempts, err := WithRetry(context.Background(), testRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", transient("flaky")
		}
		return "recovered", nil
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if result != "recovered" {
		t.Fatalf("expected 'recovered', got %q", result)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestWithRetry_ExhaustsAllAttempts(t *testing.T) {
	calls := 0
	_, attempts, err := WithRetry(context.Background(), testRetryConfig(2), func(ctx context.Context) (string, error) {
		calls++
		return "", transient("always failing")
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 3 || attempts != 3 {
		t.Fatalf("expected 3 attempts (1 + 2 retries), got calls=%d attempts=%d", calls, attempts)
	}
}

func TestWithRetry_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	_, _, err := WithRetry(context.Background(), testRetryConfig(3), func(ctx context.Context) (string, error) {
		calls++
		return "", &core.FetchError{Op: "test", StatusCode: 404, Cause: errors.New("not found")}
	})

	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt for non-retryable error, got %d", calls)
	}
}

func TestWithRetry_PlainErrorsAreNotRetried(t *testing.T) {
	calls := 0
	_, _, err := WithRetry(context.Background(), testRetryConfig(3), func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("decode failure")
	})

	if err == nil || calls != 1 {
		t.Fatalf("expected a single failed attempt, got calls=%d err=%v", calls, err)
	}
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{
		MaxRetries:    5,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
	}

	calls := 0
	_, _, err := WithRetry(ctx, cfg, func(ctx context.Context) (string, error) {
		calls++
		cancel()
		return "", transient("retry me")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 attempt before cancellation, got %d", calls)
	}
}

func TestBackoffRespectsMaxDelay(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      300 * time.Millisecond,
		BackoffFactor: 2.0,
	}

	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for attempt, w := range want {
		if got := backoff(cfg, attempt); got != w {
			t.Errorf("backoff(%d) = %v, want %v", attempt, got, w)
		}
	}
}

func TestBackoffJitterStaysInBand(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:   100 * time.Millisecond,
		MaxDelay:       time.Second,
		BackoffFactor:  2.0,
		JitterFraction: 0.5,
	}
	for range 100 {
		d := backoff(cfg, 1)
		if d < 100*time.Millisecond || d > 300*time.Millisecond {
			t.Fatalf("jittered delay %v outside [100ms, 300ms]", d)
		}
	}
}
