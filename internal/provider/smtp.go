package provider

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"gopkg.in/gomail.v2"

	"github.com/praiz001/notifab/internal/delivery"
)

// TLSMode names how the SMTP adapter secures its connection to the mail relay. Spec §9 flags
// the original system's "TLS/SSL" naming as inverted against what the ports actually do:
// port 465 is an implicit TLS handshake from the first byte, port 587 negotiates TLS via
// STARTTLS after a plaintext greeting. These names describe the handshake, not the port.
type TLSMode string

const (
	TLSModeSTARTTLS TLSMode = "starttls"
	TLSModeImplicit TLSMode = "implicit"
)

func ParseTLSMode(s string) TLSMode {
	if TLSMode(s) == TLSModeImplicit {
		return TLSModeImplicit
	}
	return TLSModeSTARTTLS
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	TLSMode  TLSMode
}

// SMTPSender delivers email over SMTP via gomail, for relays that don't expose an HTTP API.
type SMTPSender struct {
	cfg  SMTPConfig
	dial *gomail.Dialer
	from string
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	switch cfg.TLSMode {
	case TLSModeImplicit:
		d.SSL = true
	default:
		d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	}
	return &SMTPSender{cfg: cfg, dial: d, from: cfg.From}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) Send(ctx context.Context, rec *delivery.Record) SendResult {
	if rec.Address == "" {
		return SendResult{Success: false, ErrorCode: delivery.ErrorCodeNoAddress, Err: fmt.Errorf("smtp: missing address")}
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", rec.Address)
	if rec.Subject != nil {
		m.SetHeader("Subject", *rec.Subject)
	}
	if rec.BodyText != nil {
		m.SetBody("text/plain", *rec.BodyText)
	}
	if rec.BodyHTML != nil {
		if rec.BodyText != nil {
			m.AddAlternative("text/html", *rec.BodyHTML)
		} else {
			m.SetBody("text/html", *rec.BodyHTML)
		}
	}

	if err := s.dial.DialAndSend(m); err != nil {
		return SendResult{Success: false, ErrorCode: classifySMTPError(err), Err: err}
	}

	// SMTP's final 250 OK carries no provider-assigned message id the way an HTTP API response
	// body would, so we have nothing to record beyond success. Inbound webhook events are matched
	// by provider_message_id only, so they cannot be matched to rows sent through this provider.
	return SendResult{Success: true}
}

func classifySMTPError(err error) delivery.ErrorCode {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline exceeded"):
		return delivery.ErrorCodeNetworkError
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host"):
		return delivery.ErrorCodeServiceDown
	case strings.Contains(msg, "too many") || strings.Contains(msg, "rate"):
		return delivery.ErrorCodeRateLimited
	case strings.Contains(msg, "550") || strings.Contains(msg, "mailbox") || strings.Contains(msg, "recipient"):
		return delivery.ErrorCodeProviderRejected
	default:
		return delivery.ErrorCodeUnknown
	}
}
