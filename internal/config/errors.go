package config

import (
	"errors"
	"fmt"
)

// ValidationError reports one configuration value that cannot be used. Field is
// the flag or properties key the value came from.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
}

// ConflictError reports two settings that cannot be combined.
type ConflictError struct {
	Left  string
	Right string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("options %s and %s cannot be used together", e.Left, e.Right)
}

// NewValidationError constructs a validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// NewValueError constructs a validation error that quotes the rejected value.
func NewValueError(field, value, message string) error {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// NewConflictError constructs an option conflict error.
func NewConflictError(left, right string) error {
	return &ConflictError{
		Left:  left,
		Right: right,
	}
}

// IsUsageError reports whether err is a validation or conflict error, i.e. the
// run was misconfigured rather than failing at runtime.
func IsUsageError(err error) bool {
	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return true
	}
	var cErr *ConflictError
	return errors.As(err, &cErr)
}

// WrapError adds config operation context while keeping err matchable with errors.Is and errors.As.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("config %s: %w", op, err)
}
