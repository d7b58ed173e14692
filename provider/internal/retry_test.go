package internal

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetry_Success(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_ExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		attempts++
		return errors.New("always fails")
	})
	if err == nil || err.Error() != "always fails" {
		t.Fatalf("expected 'always fails' error, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestRetry_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	err := Retry(ctx, 10, 20*time.Millisecond, func() error {
		attempts++
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts >= 10 {
		t.Fatalf("expected fewer than 10 attempts due to cancellation, got %d", attempts)
	}
}

func TestRetryResult_Success(t *testing.T) {
	attempts := 0
	result, err := RetryResult(context.Background(), 3, time.Millisecond, func() (string, error) {
		attempts++
		if attempts < 2 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result != "ok" {
		t.Fatalf("expected 'ok', got %q", result)
	}
}

func TestRetryResult_ExhaustsAttempts(t *testing.T) {
	result, err := RetryResult(context.Background(), 2, time.Millisecond, func() (int, error) {
		return -1, errors.New("always fails")
	})
	if err == nil || err.Error() != "always fails" {
		t.Fatalf("expected 'always fails' error, got %v", err)
	}
	if result != -1 {
		t.Fatalf("expected -1, got %d", result)
	}
}

func TestRetryResult_CancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()
	_, err := RetryResult(ctx, 10, 20*time.Millisecond, func() (string, error) {
		attempts++
		return "", errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts >= 10 {
		t.Fatalf("expected fewer than 10 attempts due to cancellation, got %d", attempts)
	}
}
