package shared

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique constraint conflict.
	ErrDuplicate = errors.New("duplicate entry")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrCSRFTokenMissing occurs when CSRF token missing.
	ErrCSRFTokenMissing = errors.New("csrf token missing")
	// ErrCSRFTokenMismatch occurs when CSRF tokens do not match.
	ErrCSRFTokenMismatch = errors.New("csrf token mismatch")

	// ErrValidation marks input rejected before any side effect.
	ErrValidation = errors.New("validation failed")
	// ErrUnauthorized marks a mutation attempted without a resolvable identity.
	ErrUnauthorized = errors.New("unauthenticated")
	// ErrForbidden marks an identity lacking the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrPersistenceUnavailable marks a read or write that could not reach storage.
	ErrPersistenceUnavailable = errors.New("persistence unavailable")
	// ErrPosting marks a ledger posting failure.
	ErrPosting = errors.New("posting failed")
)

// ValidationError carries per-field messages. It matches ErrValidation.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

// NewValidationError builds a ValidationError with a general message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// FieldError builds a ValidationError for a single field.
func FieldError(field, message string) *ValidationError {
	return &ValidationError{Message: message, Fields: map[string]string{field: message}}
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid converts err into a ValidationError keeping its message.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return err
	}
	return &ValidationError{Message: err.Error()}
}
