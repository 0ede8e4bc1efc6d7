package core

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// =============================================================================
// Predefined Error Values
// =============================================================================

var (
	ErrNetwork      = errors.New("network error")
	ErrServerError  = errors.New("server error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrInvalidInput = errors.New("invalid input")
	ErrLocked       = errors.New("entity is locked")
	ErrNoSelection  = errors.New("no entity selected")
	ErrNoGateway    = errors.New("no gateway configured")
)

// =============================================================================
// Core Error Types
// =============================================================================

// NotFoundError reports an entity the backend no longer knows about. Callers treat
// it as "deleted elsewhere".
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// ValidationError represents a boundary validation failure
type ValidationError struct {
	Entity    string // Entity kind being validated
	Field     string // Field that failed validation
	Message   string // Human-readable error message
	Value     any    // Offending value
	Timestamp time.Time
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation failed for %s: %s", e.Entity, e.Message)
	}
	return fmt.Sprintf("validation failed for %s.%s: %s", e.Entity, e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// APIError carries a non-success response from the storage backend
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: API error (status %d): %s", e.Method, e.Path, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.StatusCode >= 500:
		return ErrServerError
	case e.StatusCode >= 400:
		return ErrInvalidInput
	}
	return nil
}

// =============================================================================
// Error Creation Helpers
// =============================================================================

// NewNotFoundError creates a NotFoundError
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// NewValidationError creates a new ValidationError with timestamp
func NewValidationError(entity, field, message string, value any) *ValidationError {
	return &ValidationError{
		Entity:    entity,
		Field:     field,
		Message:   message,
		Value:     value,
		Timestamp: time.Now(),
	}
}

// =============================================================================
// Error Classification Functions
// =============================================================================

// IsNotFound reports whether err means the entity no longer exists
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsUnauthorized reports whether err requires re-authentication
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsRetryable reports whether repeating the same request could succeed. Nothing
// retries automatically; the classification feeds the status shown to the user.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrServerError)
}
