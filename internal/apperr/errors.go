// Package apperr provides a structured application error used across the delivery fabric.
package apperr

import (
	"fmt"
	"time"
)

// Type categorizes an error for logging, alerting, and the internal error_code vocabulary.
type Type string

const (
	TypeValidation  Type = "validation"
	TypeNotFound    Type = "not_found"
	TypeConflict    Type = "conflict"
	TypeInternal    Type = "internal"
	TypeExternal    Type = "external"
	TypeTimeout     Type = "timeout"
	TypeDatabase    Type = "database"
	TypeCache       Type = "cache"
	TypeProvider    Type = "provider"
	TypeBreakerOpen Type = "breaker_open"
)

// AppError is a structured application error carrying a stable Code for the persisted
// error_code column plus a free-form diagnostic Message.
type AppError struct {
	Type          Type
	Code          string
	Message       string
	Details       string
	CorrelationID string
	Timestamp     time.Time
	Cause         error
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s - %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates an AppError without a cause.
func New(t Type, code, message string) *AppError {
	return &AppError{Type: t, Code: code, Message: message, Timestamp: time.Now().UTC()}
}

// Wrap creates an AppError with an underlying cause.
func Wrap(t Type, code, message string, cause error) *AppError {
	e := New(t, code, message)
	e.Cause = cause
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// WithCorrelationID attaches a correlation id, usually the originating request_id.
func (e *AppError) WithCorrelationID(id string) *AppError {
	e.CorrelationID = id
	return e
}

// IsType reports whether err is an *AppError of the given type.
func IsType(err error, t Type) bool {
	if ae, ok := err.(*AppError); ok {
		return ae.Type == t
	}
	return false
}

func NewValidationError(field, message string) *AppError {
	return New(TypeValidation, "VALIDATION_ERROR", fmt.Sprintf("%s: %s", field, message))
}

func NewNotFoundError(resource string) *AppError {
	return New(TypeNotFound, "NOT_FOUND", fmt.Sprintf("%s not found", resource))
}

func NewDatabaseError(operation string, cause error) *AppError {
	return Wrap(TypeDatabase, "DATABASE_ERROR", fmt.Sprintf("database operation failed: %s", operation), cause)
}

func NewCacheError(operation string, cause error) *AppError {
	return Wrap(TypeCache, "CACHE_ERROR", fmt.Sprintf("cache operation failed: %s", operation), cause)
}

func NewExternalError(service, operation string, cause error) *AppError {
	return Wrap(TypeExternal, "EXTERNAL_ERROR", fmt.Sprintf("%s call failed: %s", service, operation), cause)
}

func NewProviderError(provider string, cause error) *AppError {
	return Wrap(TypeProvider, "PROVIDER_ERROR", fmt.Sprintf("provider %s failed", provider), cause)
}

func NewBreakerOpenError(dependency string) *AppError {
	return New(TypeBreakerOpen, "PROVIDER_UNAVAILABLE", fmt.Sprintf("circuit open for %s", dependency))
}

func NewTimeoutError(operation string, timeout time.Duration) *AppError {
	return New(TypeTimeout, "TIMEOUT", fmt.Sprintf("%s timed out after %s", operation, timeout))
}
