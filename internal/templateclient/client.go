// Package templateclient renders notification templates via the template service.
package templateclient

import (
	"bytes"
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

type renderRequest struct {
	TemplateID   *uuid.UUID         `json:"template_id,omitempty"`
	TemplateCode *string            `json:"template_code,omitempty"`
	Channel      delivery.Channel   `json:"channel"`
	Variables    delivery.Variables `json:"variables"`
}

// RenderResult is the one response shape decoded for both channels: subject, body_html and
// body_text, with any field the template service leaves out staying empty. Separate title/body
// response fields are not decoded; the push sender uses Subject as the title and BodyText as
// the body.
type RenderResult struct {
	Subject  string `json:"subject"`
	BodyHTML string `json:"body_html"`
	BodyText string `json:"body_text"`
}

// Render calls the template service and returns the rendered content. A 422 response is mapped
// to apperr.TypeValidation (bad variables), everything else non-200 to apperr.TypeExternal.
func (c *Client) Render(ctx context.Context, job delivery.Job, channel delivery.Channel) (RenderResult, error) {
	reqBody := renderRequest{
		TemplateID:   job.TemplateID,
		TemplateCode: job.TemplateCode,
		Channel:      channel,
		Variables:    job.Variables,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return RenderResult{}, apperr.Wrap(apperr.TypeInternal, "ENCODE_ERROR", "encode render request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/render", bytes.NewReader(body))
	if err != nil {
		return RenderResult{}, apperr.Wrap(apperr.TypeInternal, "BUILD_REQUEST", "build render request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return RenderResult{}, apperr.NewExternalError("template-service", "render", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnprocessableEntity {
		return RenderResult{}, apperr.NewValidationError("variables", "template service rejected variables")
	}
	if resp.StatusCode != http.StatusOK {
		return RenderResult{}, apperr.New(apperr.TypeExternal, "TEMPLATE_SERVICE_ERROR", fmt.Sprintf("template-service returned %d", resp.StatusCode))
	}

	var result RenderResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return RenderResult{}, apperr.Wrap(apperr.TypeExternal, "DECODE_ERROR", "decode render response", err)
	}
	return result, nil
}
