package delivery

import "fmt"

// Cause names the event driving a status transition, used only for error messages and logs.
type Cause string

const (
	CauseProviderAck     Cause = "provider_ack"
	CauseSendExhausted   Cause = "send_exhausted"
	CauseChannelDisabled Cause = "channel_disabled"
	CauseWebhookDelivered Cause = "webhook_delivered"
	CauseWebhookBounce   Cause = "webhook_bounce"
	CauseWebhookDropped  Cause = "webhook_dropped"
	CauseWebhookDeferred Cause = "webhook_deferred"
	CauseManualReset     Cause = "manual_reset"
)

// legalTransitions is the table from spec §4.2.1. Anything not listed here is invalid.
var legalTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusSent:    true,
		StatusFailed:  true,
		StatusSkipped: true,
	},
	StatusSent: {
		StatusDelivered: true,
		StatusBounced:   true,
		StatusFailed:    true,
		StatusPending:   true, // webhook: deferred
	},
}

// ErrInvalidTransition is returned by Transition when from->to is not in the table.
var ErrInvalidTransition = fmt.Errorf("delivery: invalid status transition")

// Transition validates a proposed status change. Already-terminal states reject every
// transition except the ones explicitly listed (there are none out of a terminal state in
// the table above), satisfying the monotonicity invariant. Callers that need an explicit
// manual reset must bypass Transition and write the reset directly — this function only
// ever green-lights the transitions spec.md names.
func Transition(from, to Status, cause Cause) (Status, error) {
	allowed, ok := legalTransitions[from]
	if !ok || !allowed[to] {
		return from, fmt.Errorf("%w: %s -> %s (%s)", ErrInvalidTransition, from, to, cause)
	}
	return to, nil
}

// WebhookEventStatus maps an inbound transport event name to its target status, per the
// §4.2.1 transition table. ok is false for event names this system doesn't recognize.
func WebhookEventStatus(event string) (Status, bool) {
	switch event {
	case "delivered":
		return StatusDelivered, true
	case "bounce":
		return StatusBounced, true
	case "dropped":
		return StatusFailed, true
	case "deferred":
		return StatusPending, true
	default:
		return "", false
	}
}

// causeForEvent returns the Cause value used purely for diagnostics when applying a webhook
// event through Transition.
func causeForEvent(event string) Cause {
	switch event {
	case "delivered":
		return CauseWebhookDelivered
	case "bounce":
		return CauseWebhookBounce
	case "dropped":
		return CauseWebhookDropped
	case "deferred":
		return CauseWebhookDeferred
	default:
		return ""
	}
}

// ApplyWebhookEvent maps event to a target status and validates the transition from the
// record's current status in one call, used by the webhook reconciler.
func ApplyWebhookEvent(from Status, event string) (Status, error) {
	target, ok := WebhookEventStatus(event)
	if !ok {
		return from, fmt.Errorf("delivery: unrecognized webhook event %q", event)
	}
	return Transition(from, target, causeForEvent(event))
}

// ExternalStatus is the gateway-facing status, per the §4.6 mapping table.
type ExternalStatus string

const (
	ExternalDelivered ExternalStatus = "delivered"
	ExternalFailed    ExternalStatus = "failed"
	ExternalPending   ExternalStatus = "pending"
)

// ToExternal maps an internal Status to the external status reported to the gateway.
func ToExternal(s Status) ExternalStatus {
	switch s {
	case StatusSent, StatusDelivered:
		return ExternalDelivered
	case StatusFailed, StatusBounced:
		return ExternalFailed
	default: // pending, skipped
		return ExternalPending
	}
}
