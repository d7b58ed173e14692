package internal

import (
	"context"
	"time"
)

// Retry calls fn up to maxAttempts times, doubling the pause between
// attempts starting from interval. Returns the last error if all attempts
// fail, or ctx.Err() if the context is cancelled while pausing.
func Retry(ctx context.Context, maxAttempts int, interval time.Duration, fn func() error) error {
	var err error
	for i := 0; i < maxAttempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if i < maxAttempts-1 {
			select {
			case <-time.After(interval << i):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return err
}

// RetryResult is like Retry but for functions that return a value.
func RetryResult[T any](ctx context.Context, maxAttempts int, interval time.Duration, fn func() (T, error)) (T, error) {
	var result T
	var err error
	for i := 0; i < maxAttempts; i++ {
		if result, err = fn(); err == nil {
			return result, nil
		}
		if i < maxAttempts-1 {
			select {
			case <-time.After(interval << i):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, err
}
