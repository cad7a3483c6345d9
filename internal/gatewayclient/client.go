// Package gatewayclient reports delivery status back to the notification gateway that
// originally dispatched the job. Reporting failures are non-fatal: the delivery row is already
// the durable source of truth, the gateway report is a best-effort notice.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

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

type statusReport struct {
	Channel           delivery.Channel        `json:"channel"`
	Status            delivery.ExternalStatus `json:"status"`
	ProviderMessageID *string                 `json:"provider_message_id,omitempty"`
	SentAt            *time.Time              `json:"sent_at,omitempty"`
	ErrorMessage      *string                 `json:"error_message,omitempty"`
}

// ReportStatus PATCHes the external status mapping for a notification to the gateway.
func (c *Client) ReportStatus(ctx context.Context, rec *delivery.Record) error {
	body, err := json.Marshal(statusReport{
		Channel:           rec.Channel,
		Status:            delivery.ToExternal(rec.Status),
		ProviderMessageID: rec.ProviderMessageID,
		SentAt:            rec.SentAt,
		ErrorMessage:      rec.ErrorMessage,
	})
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "ENCODE_ERROR", "encode status report", err)
	}

	url := fmt.Sprintf("%s/notifications/%s", c.baseURL, rec.NotificationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, url, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.TypeInternal, "BUILD_REQUEST", "build status report request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return apperr.NewExternalError("gateway", "report_status", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return apperr.New(apperr.TypeExternal, "GATEWAY_ERROR", fmt.Sprintf("gateway returned %d", resp.StatusCode))
	}
	return nil
}
