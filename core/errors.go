package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a recovery entry, or a file one of its parts
// refers to, does not exist.
var ErrNotFound = errors.New("recovery entry not found")

// IntegrityError reports recovery state that exists but cannot be trusted:
// unparseable metadata, an index that references a missing chunk file, or an
// original file whose size no longer matches the stored index.
type IntegrityError struct {
	ID     string // recovery id the error belongs to
	Reason string
	Err    error // underlying cause, may be nil
}

func (e *IntegrityError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("integrity error for recovery %q: %s: %v", e.ID, e.Reason, e.Err)
	}
	return fmt.Sprintf("integrity error for recovery %q: %s", e.ID, e.Reason)
}

func (e *IntegrityError) Unwrap() error {
	return e.Err
}

// NewIntegrityError builds an IntegrityError for id.
func NewIntegrityError(id, reason string, err error) *IntegrityError {
	return &IntegrityError{ID: id, Reason: reason, Err: err}
}

// IsIntegrityError checks if an error is an IntegrityError.
func IsIntegrityError(err error) bool {
	var integrityError *IntegrityError
	return errors.As(err, &integrityError)
}

// ValidationError is a custom error type for rejected input such as an
// invalid recovery id.
type ValidationError struct {
	Message string
	Field   string // e.g., "id", "chunk"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}
