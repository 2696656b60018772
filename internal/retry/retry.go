package retry

import (
	"context"
	"time"
)

// Backoff returns the delay before the attempt following attempt i (100ms, 200ms, 400ms, ...).
func Backoff(i int) time.Duration {
	return time.Duration(100*(1<<i)) * time.Millisecond
}

// Do calls fn up to maxAttempts times with exponential backoff.
// Returns the last error if all attempts fail, or ctx.Err() if the context is
// cancelled before all attempts are exhausted.
func Do(ctx context.Context, maxAttempts int, fn func() error) error {
	_, err := Result(ctx, maxAttempts, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Result is like Do but for functions that return a value.
func Result[T any](ctx context.Context, maxAttempts int, fn func() (T, error)) (T, error) {
	var result T
	var err error
	for i := 0; i < maxAttempts; i++ {
		if result, err = fn(); err == nil {
			return result, nil
		}
		if i < maxAttempts-1 {
			select {
			case <-time.After(Backoff(i)):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}
	return result, err
}
