// Package errors wraps github.com/pkg/errors so call sites get printf-style
// constructors and stack traces without importing two error packages.
package errors

import (
	"github.com/pkg/errors"
)

// New returns an error with the supplied message, formatted when args are
// given. The error carries a stack trace from the point it was created.
func New(format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.New(format)
	}
	return errors.Errorf(format, args...)
}

// Wrap returns an error annotating err with a message and a stack trace.
// Returns nil if err is nil.
func Wrap(err error, format string, args ...interface{}) error {
	if len(args) == 0 {
		return errors.Wrap(err, format)
	}
	return errors.Wrapf(err, format, args...)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Cause returns the underlying cause of the error, if possible.
func Cause(err error) error {
	return errors.Cause(err)
}
