// Package panicerr turns panics in background work into ordinary errors.
package panicerr

import (
	"context"
	"fmt"

	"github.com/sourcegraph/conc/panics"
)

// Safe wraps fn so that a panic is returned as an error naming the job.
func Safe(name string, fn func() error) func() error {
	return func() error {
		var (
			catcher panics.Catcher
			err     error
		)
		catcher.Try(func() {
			err = fn()
		})
		if r := catcher.Recovered(); r != nil {
			return fmt.Errorf("%s panicked: %w", name, r.AsError())
		}
		return err
	}
}

// SafeContext is Safe for functions taking a context.
func SafeContext(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		return Safe(name, func() error { return fn(ctx) })()
	}
}
