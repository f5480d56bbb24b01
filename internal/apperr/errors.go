// Package apperr holds the error taxonomy shared across the composer and the feed.
package apperr

import "errors"

var (
	// ErrTransient marks network failures the user may retry.
	ErrTransient = errors.New("transient network error")
	// ErrValidation marks input rejected locally, before any network call.
	ErrValidation = errors.New("validation failed")
	// ErrPersistence marks a local storage failure. Drafts are best-effort,
	// so callers log these and carry on.
	ErrPersistence = errors.New("local persistence failed")
	ErrNotFound    = errors.New("not found")
	ErrCanceled    = errors.New("operation canceled")
)

// ValidationError wraps the field errors that blocked a submission.
type ValidationError struct {
	Err error
}

// Validation wraps err as a ValidationError. A nil err yields nil.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}

func (e *ValidationError) Error() string {
	return "validation: " + e.Err.Error()
}

func (e *ValidationError) Unwrap() []error {
	return []error{ErrValidation, e.Err}
}
