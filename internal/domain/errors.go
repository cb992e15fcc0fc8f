package domain

import (
	"errors"
	"fmt"
)

// ValidationError reports malformed or out-of-range input. Nothing is persisted when one is returned.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError creates a validation error for a single field
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: message}
}

// NotFoundError reports a missing resource, or one the caller does not own.
// Both cases are reported identically so ownership cannot be probed.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// NewNotFoundError creates a not-found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{Resource: resource, ID: id}
}

// ConsistencyError reports a ledger mutation that looked successful but failed its
// read-after-write verification. It must always surface to the caller.
type ConsistencyError struct {
	Operation string
	ID        string
	Message   string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency check failed for %s %s: %s", e.Operation, e.ID, e.Message)
}

// DerivedStateError reports a position update that failed after the ledger write committed.
// It is never returned from ledger operations; it travels in MutationResult / ImportSummary instead.
type DerivedStateError struct {
	Operation     string
	Key           PositionKey
	TransactionID string
	Err           error
}

func (e *DerivedStateError) Error() string {
	return fmt.Sprintf("position %s failed for transaction %s (%s): %v",
		e.Operation, e.TransactionID, e.Key, e.Err)
}

func (e *DerivedStateError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsConsistency reports whether err is (or wraps) a ConsistencyError
func IsConsistency(err error) bool {
	var target *ConsistencyError
	return errors.As(err, &target)
}
