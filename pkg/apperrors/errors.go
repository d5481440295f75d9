// Package apperrors defines the error taxonomy shared by the permission
// stores, the HTTP handlers and the client.
//
// Callers classify errors with errors.Is / errors.As:
//
//	if apperrors.IsValidation(err) { ... }
//	if errors.Is(err, apperrors.ErrNotFound) { ... }
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates the role or user no longer exists.
	ErrNotFound = errors.New("not found")
	// ErrPermissionDenied indicates the caller lacks the required permission.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConflict indicates the write was rejected because of the current
	// stored state (role still assigned, stale version token).
	ErrConflict = errors.New("conflict")
)

// ValidationError reports a malformed input such as a bad permission key or
// an empty role name.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"error"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidation creates a validation error for a field
func NewValidation(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// AsValidation returns the wrapped ValidationError, if any
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// NotFound wraps ErrNotFound with the missing entity
func NotFound(entity string, id interface{}) error {
	return fmt.Errorf("%s %v: %w", entity, id, ErrNotFound)
}

// Conflict wraps ErrConflict with a reason
func Conflict(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrConflict)
}

// Denied wraps ErrPermissionDenied with the permission key that was missing
func Denied(key string) error {
	return fmt.Errorf("missing %s: %w", key, ErrPermissionDenied)
}
