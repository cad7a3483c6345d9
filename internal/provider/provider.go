// Package provider implements the outbound transport adapters that actually hand a rendered
// notification to an email or push gateway. Each adapter normalizes its own transport errors
// into a delivery.ErrorCode and never panics or returns a raw transport error to the caller.
package provider

import (
	"context"

	"github.com/praiz001/notifab/internal/delivery"
)

// SendResult is the outcome of a single send attempt against a concrete provider.
type SendResult struct {
	Success           bool
	ProviderMessageID string
	ErrorCode         delivery.ErrorCode
	Err               error
	ResponseBody      []byte
}

// Sender is implemented by every concrete provider adapter (SMTP, HTTP email API, HTTP push
// API). Send must never panic; all failure modes are reported through SendResult.
type Sender interface {
	Send(ctx context.Context, rec *delivery.Record) SendResult
	Name() string
}

// Registry resolves a Sender by name, keyed by the configured provider identifier rather than
// by a type switch over a sealed hierarchy, per the interface-plus-tagged-variants redesign.
type Registry struct {
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

func (r *Registry) Register(s Sender) {
	r.senders[s.Name()] = s
}

func (r *Registry) Get(name string) (Sender, bool) {
	s, ok := r.senders[name]
	return s, ok
}
