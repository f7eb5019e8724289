package ir

import (
	"fmt"

	"github.com/pkg/errors"
)

// InvariantError marks a broken structural IR invariant: spec.md §7 treats
// these as bugs, not scheduling errors, so they carry a stack trace via
// pkg/errors rather than the caret-style diagnostic internal/serr renders
// for expected failures.
type InvariantError struct {
	cause error
}

func (e *InvariantError) Error() string { return e.cause.Error() }
func (e *InvariantError) Unwrap() error { return e.cause }

func panicInvariant(format string, args ...interface{}) {
	panic(&InvariantError{cause: errors.WithStack(fmt.Errorf(format, args...))})
}
