package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		JitterFactor: 0,
	}
}

func TestBackoffGrowsExponentially(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, JitterFactor: 0}

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
	}
	for _, tc := range cases {
		if got := Backoff(tc.attempt, config); got != tc.want {
			t.Errorf("Backoff(%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

func TestBackoffCapsAtMaxDelay(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: 5 * time.Second, JitterFactor: 0}
	if got := Backoff(10, config); got != 5*time.Second {
		t.Errorf("Expected cap at 5s, got %v", got)
	}
}

func TestBackoffJitterStaysInRange(t *testing.T) {
	config := RetryConfig{BaseDelay: time.Second, MaxDelay: time.Minute, JitterFactor: 0.25}

	for i := 0; i < 100; i++ {
		delay := Backoff(1, config)
		if delay < 1500*time.Millisecond || delay > 2500*time.Millisecond {
			t.Fatalf("Jittered delay %v outside ±25%% of 2s", delay)
		}
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(fmt.Errorf("engine hiccup"), "")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("Expected 3 calls, got %d", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	cause := NewPermanentError(fmt.Errorf("no such job"), "Job not found.")
	err := Retry(context.Background(), fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return cause
	})
	if calls != 1 {
		t.Errorf("Permanent error must not be retried, got %d calls", calls)
	}
	if !errors.Is(err, cause) {
		t.Errorf("Expected the permanent error back, got %v", err)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	config := fastRetryConfig()
	calls := 0
	err := Retry(context.Background(), config, func(ctx context.Context) error {
		calls++
		return NewTransientError(fmt.Errorf("still down"), "")
	})
	if err == nil {
		t.Fatal("Expected an error after exhausting retries")
	}
	if calls != config.MaxAttempts+1 {
		t.Errorf("Expected %d calls, got %d", config.MaxAttempts+1, calls)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Retry(ctx, fastRetryConfig(), func(ctx context.Context) error {
		calls++
		return NewTransientError(fmt.Errorf("down"), "")
	})
	if err == nil {
		t.Fatal("Expected an error from a cancelled context")
	}
	if calls != 0 {
		t.Errorf("Cancelled context must not execute the function, got %d calls", calls)
	}
}

func TestRetryWithResultReturnsValue(t *testing.T) {
	attempts := 0
	got, err := RetryWithResult(context.Background(), fastRetryConfig(), func(ctx context.Context) (string, error) {
		attempts++
		if attempts == 1 {
			return "", NewTransientError(fmt.Errorf("first try fails"), "")
		}
		return "snapshot", nil
	})
	if err != nil {
		t.Fatalf("RetryWithResult: %v", err)
	}
	if got != "snapshot" {
		t.Errorf("Expected %q, got %q", "snapshot", got)
	}
}
