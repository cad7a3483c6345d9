package sentryinit

import (
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/require"

	"github.com/praiz001/notifab/internal/config"
)

func TestInit_NoOpWhenDSNUnset(t *testing.T) {
	require.NoError(t, Init(config.Config{}, "test-release"))
}

func TestSanitize_StripsSensitiveHeaders(t *testing.T) {
	event := &sentry.Event{
		Request: &sentry.Request{
			Headers: map[string]string{
				"Authorization": "Bearer secret",
				"Cookie":        "session=abc",
				"X-Api-Key":     "key-1",
				"Content-Type":  "application/json",
			},
		},
	}

	sanitize(event)

	_, hasAuth := event.Request.Headers["Authorization"]
	_, hasCookie := event.Request.Headers["Cookie"]
	_, hasAPIKey := event.Request.Headers["X-Api-Key"]
	require.False(t, hasAuth)
	require.False(t, hasCookie)
	require.False(t, hasAPIKey)
	require.Equal(t, "application/json", event.Request.Headers["Content-Type"])
}

func TestSanitize_NilRequestIsNoOp(t *testing.T) {
	event := &sentry.Event{}
	require.NotPanics(t, func() { sanitize(event) })
}
