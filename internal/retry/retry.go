// Package retry holds bounded polling and retry helpers for hardware calls.
// Nothing here ever blocks past its timeout or attempt budget.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout is returned by Poll when the condition did not hold in time.
var ErrTimeout = errors.New("retry: timed out")

// Poll calls fn every interval until it reports done, returns an error, ctx
// ends, or timeout elapses. fn is always called at least once.
func Poll(ctx context.Context, timeout, interval time.Duration, fn func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	deadline := time.Now().Add(timeout)

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return ErrTimeout
		}
		wait := interval
		if wait > remaining {
			wait = remaining
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Do runs fn up to attempts times, sleeping backoff between attempts, for as
// long as retryable reports the error as worth another try. The last error is
// returned wrapped with the attempt count.
func Do(ctx context.Context, attempts int, backoff time.Duration, retryable func(error) bool, fn func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if i == attempts || (retryable != nil && !retryable(err)) {
			break
		}

		t := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	if attempts == 1 {
		return err
	}
	return fmt.Errorf("after %d attempts: %w", attempts, err)
}
