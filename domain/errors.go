package domain

import (
	"errors"
	"fmt"
)

var (
	ErrDuplicateEmail     = errors.New("a user with that email already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrUnauthorized       = errors.New("not authorized")
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrInternal           = errors.New("internal error")
)

// ValidationError reports a missing or malformed required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Internal wraps a store failure so that callers can match ErrInternal
// while the cause stays available for logging.
func Internal(op string, err error) error {
	return &internalError{op: op, err: err}
}

type internalError struct {
	op  string
	err error
}

func (e *internalError) Error() string {
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *internalError) Unwrap() []error {
	return []error{ErrInternal, e.err}
}
