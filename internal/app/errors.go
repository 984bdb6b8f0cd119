package service

import (
	"errors"
	"fmt"
)

// Sentinel kinds for service errors.
var (
	ErrValidation       = errors.New("validation failed")
	ErrNotStarted       = errors.New("service not started")
	ErrSubmitInProgress = errors.New("a submission with this idempotency key is still in progress")
)

// ValidationError reports a malformed or out-of-range input field.
// It is returned before anything is written.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
