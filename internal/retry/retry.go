// Package retry wraps a single-attempt operation with the exponential
// backoff policy and a should-retry predicate.
package retry

import (
	"context"
	"time"

	"healthwatch/internal/backoff"
)

// Predicate decides whether err on the given 1-based attempt warrants
// another try. The default retries on any error.
type Predicate func(err error, attempt int) bool

// Options configures Do.
type Options struct {
	// Retries is the number of re-attempts after the first; 0 disables
	// retries entirely.
	Retries int
	Backoff backoff.Options
	// ShouldRetry defaults to retry-on-any-error.
	ShouldRetry Predicate
}

// Do runs op, retrying per the policy. The final error is always the
// one that terminated the last attempt; cancellation during the sleep
// aborts the loop and surfaces the context's cause unchanged.
func Do[T any](ctx context.Context, opts Options, op func(ctx context.Context, attempt int) (T, error)) (T, error) {
	var zero T
	retries := opts.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.NewExponential(opts.Backoff)

	var lastErr error
	for attempt := 1; attempt <= retries+1; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, cause(ctx)
		}

		result, err := op(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == retries+1 {
			break
		}
		if opts.ShouldRetry != nil && !opts.ShouldRetry(err, attempt) {
			break
		}

		select {
		case <-time.After(policy.NextDelay()):
		case <-ctx.Done():
			return zero, cause(ctx)
		}
	}
	return zero, lastErr
}

func cause(ctx context.Context) error {
	if c := context.Cause(ctx); c != nil {
		return c
	}
	return ctx.Err()
}
