package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/praiz001/notifab/internal/delivery"
)

type HTTPPushConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// HTTPPushSender delivers push notifications through an FCM-style legacy HTTP API: the request
// carries a device token, a notification payload, and an optional data payload, and success is
// reported as a top-level success:1 counter rather than an HTTP status code alone.
type HTTPPushSender struct {
	cfg    HTTPPushConfig
	client *http.Client
}

func NewHTTPPushSender(cfg HTTPPushConfig) *HTTPPushSender {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPPushSender{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (s *HTTPPushSender) Name() string { return "http-push-api" }

type httpPushRequest struct {
	To           string                 `json:"to"`
	Notification httpPushNotification   `json:"notification"`
	Data         map[string]interface{} `json:"data,omitempty"`
	Priority     string                 `json:"priority,omitempty"`
}

type httpPushNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body,omitempty"`
	Image string `json:"image,omitempty"`
}

type httpPushResponse struct {
	Success int    `json:"success"`
	Failure int    `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id,omitempty"`
		Error     string `json:"error,omitempty"`
	} `json:"results,omitempty"`
}

func (s *HTTPPushSender) Send(ctx context.Context, rec *delivery.Record) SendResult {
	if rec.Address == "" {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeNoAddress, Err: fmt.Errorf("http-push-api: missing device token")}
	}

	reqBody := httpPushRequest{To: rec.Address, Priority: "high"}
	if rec.Subject != nil {
		reqBody.Notification.Title = *rec.Subject
	}
	if rec.BodyText != nil {
		reqBody.Notification.Body = *rec.BodyText
	}
	if len(rec.ExtraData) > 0 {
		reqBody.Data = map[string]interface{}(rec.ExtraData)
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeInvalidPayload, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.BaseURL+"/fcm/send", bytes.NewReader(body))
	if err != nil {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return SendResult{Success: false, ErrorCode: categorizeHTTPNetworkError(err), Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeNetworkError, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return SendResult{Success: false, ErrorCode: mapHTTPPushStatus(resp.StatusCode), Err: fmt.Errorf("http-push-api: status %d", resp.StatusCode), ResponseBody: raw}
	}

	var result httpPushResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeUnknown, Err: fmt.Errorf("http-push-api: decode response: %w", err), ResponseBody: raw}
	}

	if result.Success != 1 {
		errMsg := "unknown"
		if len(result.Results) > 0 && result.Results[0].Error != "" {
			errMsg = result.Results[0].Error
		}
		return SendResult{Success: false, ErrorCode: mapFCMResultError(errMsg), Err: fmt.Errorf("http-push-api: %s", errMsg), ResponseBody: raw}
	}

	messageID := ""
	if len(result.Results) > 0 {
		messageID = result.Results[0].MessageID
	}
	return SendResult{Success: true, ProviderMessageID: messageID, ResponseBody: raw}
}

func mapHTTPPushStatus(status int) delivery.ErrorCode {
	switch {
	case status == http.StatusTooManyRequests:
		return delivery.ErrorCodeRateLimited
	case status == http.StatusUnauthorized || status == http.StatusBadRequest:
		return delivery.ErrorCodeProviderRejected
	case status >= 500:
		return delivery.ErrorCodeServiceDown
	default:
		return delivery.ErrorCodeUnknown
	}
}

func mapFCMResultError(errMsg string) delivery.ErrorCode {
	switch errMsg {
	case "NotRegistered", "InvalidRegistration":
		return delivery.ErrorCodeProviderRejected
	case "Unavailable", "InternalServerError":
		return delivery.ErrorCodeServiceDown
	case "MessageRateExceeded", "DeviceMessageRateExceeded":
		return delivery.ErrorCodeRateLimited
	default:
		return delivery.ErrorCodeUnknown
	}
}
