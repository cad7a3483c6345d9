// Package delivery defines the DeliveryJob/DeliveryRecord data model shared by every
// channel worker and the state machine that governs status transitions.
package delivery

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Channel identifies which transport family a delivery targets.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

// Status is a DeliveryRecord's lifecycle state. See Transition for the legal state graph.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusBounced   Status = "bounced"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// IsTerminal reports whether no further orchestrator-driven transition is expected.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusBounced, StatusFailed, StatusSkipped:
		return true
	default:
		return false
	}
}

// ErrorCode is the stable, persisted vocabulary for why a delivery failed.
type ErrorCode string

const (
	ErrorCodeNone                ErrorCode = ""
	ErrorCodeNoAddress           ErrorCode = "NO_ADDRESS"
	ErrorCodeRenderFailed        ErrorCode = "RENDER_FAILED"
	ErrorCodeInvalidPayload      ErrorCode = "INVALID_PAYLOAD"
	ErrorCodeNetworkError        ErrorCode = "NETWORK_ERROR"
	ErrorCodeRateLimited         ErrorCode = "RATE_LIMITED"
	ErrorCodeServiceDown         ErrorCode = "SERVICE_DOWN"
	ErrorCodeProviderUnavailable ErrorCode = "PROVIDER_UNAVAILABLE"
	ErrorCodeProviderRejected    ErrorCode = "PROVIDER_REJECTED"
	ErrorCodeUnknown             ErrorCode = "UNKNOWN"
)

// ShouldRetry reports whether a send failure carrying this code is worth retrying.
// Mirrors the classification-as-a-method idiom used for the sibling provider error taxonomy.
func (e ErrorCode) ShouldRetry() bool {
	switch e {
	case ErrorCodeNetworkError, ErrorCodeRateLimited, ErrorCodeServiceDown, ErrorCodeUnknown:
		return true
	default:
		return false
	}
}

// Variables is a template-rendering variable map; string keys, arbitrary JSON values.
type Variables map[string]interface{}

// Value implements driver.Valuer so Variables can be persisted as JSONB.
func (v Variables) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Scan implements sql.Scanner.
func (v *Variables) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("delivery: type assertion to []byte failed for Variables")
	}
	return json.Unmarshal(b, v)
}

// Job is the transient payload dequeued from the broker (spec DeliveryJob).
type Job struct {
	NotificationID uuid.UUID              `json:"notification_id"`
	UserID         uuid.UUID              `json:"user_id"`
	TemplateID     *uuid.UUID             `json:"template_id,omitempty"`
	TemplateCode   *string                `json:"template_code,omitempty"`
	Variables      Variables              `json:"variables,omitempty"`
	Priority       int                    `json:"priority"`
	RequestID      string                 `json:"request_id"`
	CreatedAt      time.Time              `json:"created_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Validate checks the well-formedness rule from spec §3: notification_id, user_id, and at
// least one of template_id/template_code must be present.
func (j Job) Validate() error {
	if j.NotificationID == uuid.Nil {
		return errors.New("delivery: job missing notification_id")
	}
	if j.UserID == uuid.Nil {
		return errors.New("delivery: job missing user_id")
	}
	if j.TemplateID == nil && (j.TemplateCode == nil || *j.TemplateCode == "") {
		return errors.New("delivery: job missing template_id and template_code")
	}
	return nil
}

// Record is one persisted row in `deliveries`, keyed by (notification_id, channel).
type Record struct {
	ID                uuid.UUID
	NotificationID    uuid.UUID
	UserID            uuid.UUID
	RequestID         string
	Channel           Channel
	Address           string
	Subject           *string
	BodyHTML          *string
	BodyText          *string
	Provider          string
	ProviderMessageID *string
	Status            Status
	AttemptCount      int
	MaxAttempts       int
	ErrorCode         *ErrorCode
	ErrorMessage      *string
	ExtraData         Variables
	CreatedAt         time.Time
	UpdatedAt         time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	FailedAt          *time.Time
}

// PreferenceSnapshot is a cached, possibly-stale view of a user's per-channel enablement
// and address (spec UserPreferenceSnapshot). Not authoritative — see invariant 6.
type PreferenceSnapshot struct {
	EmailEnabled bool    `json:"email_enabled"`
	PushEnabled  bool    `json:"push_enabled"`
	EmailAddress *string `json:"email_address,omitempty"`
	PushToken    *string `json:"push_token,omitempty"`
}

// AddressFor returns the address/token for the given channel, or "" if absent.
func (p PreferenceSnapshot) AddressFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		if p.EmailAddress != nil {
			return *p.EmailAddress
		}
	case ChannelPush:
		if p.PushToken != nil {
			return *p.PushToken
		}
	}
	return ""
}

// EnabledFor returns the per-channel enablement flag.
func (p PreferenceSnapshot) EnabledFor(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelPush:
		return p.PushEnabled
	default:
		return false
	}
}

// ConservativeDefault is the snapshot synthesized when the user-service breaker is open
// (spec §4.2 step 1) or the user service reports the user as not found: channels enabled,
// no address, so the caller still fails cleanly on
// the "require address" step rather than silently dropping the notification.
func ConservativeDefault() PreferenceSnapshot {
	return PreferenceSnapshot{EmailEnabled: true, PushEnabled: true}
}

// Ptr is a small generic pointer-of helper, used throughout this package's tests and the
// orchestrator for optional columns.
func Ptr[T any](v T) *T {
	return &v
}
