// Package retry runs an operation a bounded number of times with a linear
// backoff between attempts.
package retry

import (
	"context"
	"errors"
	"time"
)

// Policy controls how often and how patiently an operation is retried.
// The wait after attempt n (zero-based) is BaseDelay*(n+1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// Delay returns the wait after the given zero-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.BaseDelay * time.Duration(attempt+1)
}

// permanent marks an error that must not be retried.
type permanent struct{ err error }

func (p *permanent) Error() string { return p.err.Error() }
func (p *permanent) Unwrap() error { return p.err }

// Permanent wraps err so Do returns it immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanent{err: err}
}

// Do calls fn until it succeeds, returns a Permanent error, or the attempts
// run out. The last error is returned. A cancelled ctx stops the wait and
// returns the last error joined with ctx.Err().
func Do(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	n := p.attempts()
	for attempt := range n {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		var perm *permanent
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt == n-1 {
			break
		}

		timer := time.NewTimer(p.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}
	}
	return lastErr
}
