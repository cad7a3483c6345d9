package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/praiz001/notifab/internal/delivery"
)

type HTTPEmailConfig struct {
	BaseURL string
	APIKey  string
	From    string
	Timeout time.Duration
}

// HTTPEmailSender delivers email through a SendGrid-style transactional HTTP API: a 202
// response with no body means "accepted", and the provider's message id travels back in the
// X-Message-Id response header rather than in the JSON body.
type HTTPEmailSender struct {
	cfg    HTTPEmailConfig
	client *http.Client
}

func NewHTTPEmailSender(cfg HTTPEmailConfig) *HTTPEmailSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPEmailSender{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (s *HTTPEmailSender) Name() string { return "http-email-api" }

type httpEmailEnvelope struct {
	Personalizations []httpEmailPersonalization `json:"personalizations"`
	From             httpEmailAddress           `json:"from"`
	Subject          string                     `json:"subject,omitempty"`
	Content          []httpEmailContent         `json:"content"`
}

type httpEmailPersonalization struct {
	To []httpEmailAddress `json:"to"`
}

type httpEmailAddress struct {
	Email string `json:"email"`
}

type httpEmailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *HTTPEmailSender) Send(ctx context.Context, rec *delivery.Record) SendResult {
	if rec.Address == "" {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeNoAddress, Err: fmt.Errorf("http-email-api: missing address")}
	}

	envelope := httpEmailEnvelope{
		Personalizations: []httpEmailPersonalization{{To: []httpEmailAddress{{Email: rec.Address}}}},
		From:             httpEmailAddress{Email: s.cfg.From},
	}
	if rec.Subject != nil {
		envelope.Subject = *rec.Subject
	}
	if rec.BodyText != nil {
		envelope.Content = append(envelope.Content, httpEmailContent{Type: "text/plain", Value: *rec.BodyText})
	}
	if rec.BodyHTML != nil {
		envelope.Content = append(envelope.Content, httpEmailContent{Type: "text/html", Value: *rec.BodyHTML})
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeInvalidPayload, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/v3/mail/send", bytes.NewReader(body))
	if err != nil {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{Success: false, ErrorCode: categorizeHTTPNetworkError(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusAccepted {
		return SendResult{
			Success:           true,
			ProviderMessageID: resp.Header.Get("X-Message-Id"),
			ResponseBody:      respBody,
		}
	}

	return SendResult{
		Success:      false,
		ErrorCode:    mapHTTPEmailStatus(resp.StatusCode),
		Err:          fmt.Errorf("http-email-api: status %d", resp.StatusCode),
		ResponseBody: respBody,
	}
}

func mapHTTPEmailStatus(status int) delivery.ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return delivery.ErrorCodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || status == http.StatusBadRequest:
		return delivery.ErrorCodeProviderRejected
	case status >= 500:
		return delivery.ErrorCodeServiceDown
	default:
		return delivery.ErrorCodeUnknown
	}
}

func categorizeHTTPNetworkError(err error) delivery.ErrorCode {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return delivery.ErrorCodeNetworkError
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return delivery.ErrorCodeServiceDown
	default:
		return delivery.ErrorCodeNetworkError
	}
}
