// Package sentryinit wires Sentry error reporting, degrading to a no-op when SENTRY_DSN is
// unset so local and CI runs never need a real DSN configured.
package sentryinit

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/praiz001/notifab/internal/config"
)

// Init configures the global Sentry hub. Returns nil without contacting Sentry if cfg.SentryDSN
// is empty.
func Init(cfg config.Config, release string) error {
	if cfg.SentryDSN == "" {
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     release,
		BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
			sanitize(event)
			return event
		},
	})
	if err != nil {
		return fmt.Errorf("sentryinit: init failed: %w", err)
	}
	return nil
}

// Flush blocks until buffered events are sent or timeout elapses; call during shutdown.
func Flush(timeout time.Duration) {
	sentry.Flush(timeout)
}

func sanitize(event *sentry.Event) {
	if event.Request != nil {
		delete(event.Request.Headers, "Authorization")
		delete(event.Request.Headers, "Cookie")
		delete(event.Request.Headers, "X-Api-Key")
	}
}
