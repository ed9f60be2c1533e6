package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultBackoff is the wait before the first retry.
const DefaultBackoff = 500 * time.Millisecond

// Retry repeats a publish attempt with exponential backoff.
type Retry struct {
	// Retries is the number of attempts after the first.
	Retries int
	// Backoff is the wait before the first retry. It doubles each time.
	Backoff time.Duration
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	return &permanentError{err: err}
}

// Do calls attempt until it succeeds, fails permanently, runs out of
// retries, or ctx is done.
func (r Retry) Do(ctx context.Context, attempt func(context.Context) error) error {
	var last error
	wait := r.Backoff
	for i := 0; i <= r.Retries; i++ {
		if i > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return fmt.Errorf("canceled during backoff: %w", ctx.Err())
			case <-timer.C:
			}
			wait *= 2
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("canceled: %w", err)
		}

		last = attempt(ctx)
		if last == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(last, &perm) {
			return fmt.Errorf("non-retriable error: %w", perm.err)
		}
	}
	return fmt.Errorf("failed after %d attempts: %w", r.Retries+1, last)
}
