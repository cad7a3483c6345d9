package provider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/praiz001/notifab/internal/delivery"
)

type stubSender struct {
	name   string
	result SendResult
}

func (s stubSender) Send(ctx context.Context, rec *delivery.Record) SendResult { return s.result }
func (s stubSender) Name() string                                             { return s.name }

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(stubSender{name: "smtp"})

	got, ok := r.Get("smtp")
	require.True(t, ok)
	require.Equal(t, "smtp", got.Name())

	_, ok = r.Get("missing")
	require.False(t, ok)
}
