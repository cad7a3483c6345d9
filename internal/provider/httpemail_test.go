package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praiz001/notifab/internal/delivery"
)

func TestHTTPEmailSender_MissingAddressFailsWithoutCallingTheProvider(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	s := NewHTTPEmailSender(HTTPEmailConfig{BaseURL: srv.URL})
	result := s.Send(context.Background(), &delivery.Record{})

	require.False(t, result.Success)
	require.Equal(t, delivery.ErrorCodeNoAddress, result.ErrorCode)
	require.False(t, called)
}

func TestHTTPEmailSender_AcceptedCapturesMessageIDFromHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v3/mail/send", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		w.Header().Set("X-Message-Id", "abc-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewHTTPEmailSender(HTTPEmailConfig{BaseURL: srv.URL, APIKey: "secret", From: "noreply@example.com"})
	subject := "hello"
	result := s.Send(context.Background(), &delivery.Record{Address: "ada@example.com", Subject: &subject})

	require.True(t, result.Success)
	require.Equal(t, "abc-123", result.ProviderMessageID)
}

func TestHTTPEmailSender_RateLimitedMapsToRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewHTTPEmailSender(HTTPEmailConfig{BaseURL: srv.URL})
	result := s.Send(context.Background(), &delivery.Record{Address: "ada@example.com"})

	require.False(t, result.Success)
	require.Equal(t, delivery.ErrorCodeRateLimited, result.ErrorCode)
	require.True(t, result.ErrorCode.ShouldRetry())
}

func TestHTTPEmailSender_UnauthorizedIsNotRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewHTTPEmailSender(HTTPEmailConfig{BaseURL: srv.URL})
	result := s.Send(context.Background(), &delivery.Record{Address: "ada@example.com"})

	require.False(t, result.Success)
	require.Equal(t, delivery.ErrorCodeProviderRejected, result.ErrorCode)
	require.False(t, result.ErrorCode.ShouldRetry())
}

func TestHTTPEmailSender_ServerErrorMapsToServiceDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := NewHTTPEmailSender(HTTPEmailConfig{BaseURL: srv.URL})
	result := s.Send(context.Background(), &delivery.Record{Address: "ada@example.com"})

	require.Equal(t, delivery.ErrorCodeServiceDown, result.ErrorCode)
}

func TestHTTPEmailSender_Name(t *testing.T) {
	require.Equal(t, "http-email-api", NewHTTPEmailSender(HTTPEmailConfig{}).Name())
}
