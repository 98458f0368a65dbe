package report

import "errors"

// ValidationError marks user-correctable input problems. The message is safe
// to surface verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func NewValidationError(message string) error {
	return &ValidationError{Message: message}
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// NotFoundError marks operations against a nonexistent cluster. The message
// is safe to surface verbatim.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

func NewNotFoundError(message string) error {
	return &NotFoundError{Message: message}
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// PersistenceError wraps storage failures on the primary write path. Handlers
// report these generically without leaking internal detail.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *PersistenceError) Unwrap() error { return e.Err }

func IsPersistence(err error) bool {
	var target *PersistenceError
	return errors.As(err, &target)
}
