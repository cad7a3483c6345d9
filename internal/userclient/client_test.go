package userclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/praiz001/notifab/internal/apperr"
)

func TestGetPreferences_Success(t *testing.T) {
	userID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/users/"+userID.String()+"/notification-preferences", r.URL.Path)
		_, _ = w.Write([]byte(`{"email_enabled":true,"push_enabled":false,"email_address":"ada@example.com"}`))
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	prefs, err := c.GetPreferences(context.Background(), userID)
	require.NoError(t, err)
	require.True(t, prefs.EmailEnabled)
	require.False(t, prefs.PushEnabled)
	require.Equal(t, "ada@example.com", *prefs.EmailAddress)
}

func TestGetPreferences_NotFoundMapsToAppErrNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.GetPreferences(context.Background(), uuid.New())
	require.True(t, apperr.IsType(err, apperr.TypeNotFound))
}

func TestGetPreferences_ServerErrorMapsToExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	_, err := c.GetPreferences(context.Background(), uuid.New())
	require.True(t, apperr.IsType(err, apperr.TypeExternal))
}

func TestGetPreferences_ConnectionFailureMapsToExternal(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // closed before use: guarantees a connection failure

	c := New(srv.URL, time.Second)
	_, err := c.GetPreferences(context.Background(), uuid.New())
	require.True(t, apperr.IsType(err, apperr.TypeExternal))
}
