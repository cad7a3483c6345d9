// Package userclient fetches per-user notification preferences from the user service.
package userclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/praiz001/notifab/internal/apperr"
	"github.com/praiz001/notifab/internal/delivery"
)

type Client struct {
	baseURL string
	client  *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

type preferencesResponse struct {
	EmailEnabled bool    `json:"email_enabled"`
	PushEnabled  bool    `json:"push_enabled"`
	EmailAddress *string `json:"email_address"`
	PushToken    *string `json:"push_token"`
}

// GetPreferences fetches the notification preference snapshot for a user. A 404 is reported as
// apperr.TypeNotFound so the orchestrator can distinguish "user has no preferences" from a
// transient service failure.
func (c *Client) GetPreferences(ctx context.Context, userID uuid.UUID) (delivery.PreferenceSnapshot, error) {
	url := fmt.Sprintf("%s/users/%s/notification-preferences", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return delivery.PreferenceSnapshot{}, apperr.Wrap(apperr.TypeInternal, "BUILD_REQUEST", "build preferences request", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return delivery.PreferenceSnapshot{}, apperr.NewExternalError("user-service", "get_preferences", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return delivery.PreferenceSnapshot{}, apperr.NewNotFoundError(fmt.Sprintf("user preferences for %s", userID))
	}
	if resp.StatusCode != http.StatusOK {
		return delivery.PreferenceSnapshot{}, apperr.New(apperr.TypeExternal, "USER_SERVICE_ERROR", fmt.Sprintf("user-service returned %d", resp.StatusCode))
	}

	var parsed preferencesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return delivery.PreferenceSnapshot{}, apperr.Wrap(apperr.TypeExternal, "DECODE_ERROR", "decode user-service response", err)
	}

	return delivery.PreferenceSnapshot{
		EmailEnabled: parsed.EmailEnabled,
		PushEnabled:  parsed.PushEnabled,
		EmailAddress: parsed.EmailAddress,
		PushToken:    parsed.PushToken,
	}, nil
}
