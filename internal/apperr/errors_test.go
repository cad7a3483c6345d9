package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorFormatsWithAndWithoutDetails(t *testing.T) {
	bare := New(TypeValidation, "VALIDATION_ERROR", "field required")
	require.Equal(t, "VALIDATION_ERROR: field required", bare.Error())

	wrapped := Wrap(TypeDatabase, "DATABASE_ERROR", "insert failed", errors.New("connection reset"))
	require.Equal(t, "DATABASE_ERROR: insert failed - connection reset", wrapped.Error())
}

func TestAppError_UnwrapExposesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(TypeCache, "CACHE_ERROR", "get failed", cause)
	require.ErrorIs(t, err, cause)
}

func TestAppError_WithCorrelationID(t *testing.T) {
	err := New(TypeInternal, "INTERNAL", "oops").WithCorrelationID("req-42")
	require.Equal(t, "req-42", err.CorrelationID)
}

func TestIsType(t *testing.T) {
	err := NewNotFoundError("delivery")
	require.True(t, IsType(err, TypeNotFound))
	require.False(t, IsType(err, TypeValidation))
	require.False(t, IsType(errors.New("plain"), TypeNotFound))
}

func TestConstructorHelpers(t *testing.T) {
	require.Equal(t, TypeBreakerOpen, NewBreakerOpenError("user-service").Type)
	require.Equal(t, "PROVIDER_UNAVAILABLE", NewBreakerOpenError("user-service").Code)
	require.Equal(t, TypeProvider, NewProviderError("smtp", errors.New("x")).Type)
	require.Equal(t, TypeTimeout, NewTimeoutError("render", 0).Type)
	require.Equal(t, TypeExternal, NewExternalError("user-service", "get-preferences", errors.New("x")).Type)
}
