package errors

import (
	"errors"
	"fmt"
)

var (
	// Dead-letter queue errors
	ErrEntryNotFound       = errors.New("dead letter entry not found")
	ErrEntryAlreadyClaimed = errors.New("dead letter entry already claimed")
	ErrEntryTerminal       = errors.New("dead letter entry is terminal")

	// Evaluation errors
	ErrEvaluationNotFound     = errors.New("evaluation not found")
	ErrVersionConflict        = errors.New("evaluation version conflict")
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// Event bus errors
	ErrNoSubscribers = errors.New("no subscribers for event type")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")

	// Validation errors
	ErrInvalidInput = errors.New("invalid input")
)

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
