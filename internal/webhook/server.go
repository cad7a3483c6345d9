// Package webhook runs the HTTP endpoints that receive delivery-status callbacks from the
// email and push transports, reconciling them into the delivery state machine.
package webhook

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/logging"
	"github.com/praiz001/notifab/internal/repository"
)

// Event is one transport webhook event, keyed by the provider-assigned message id. Both the
// email and push payload shapes collapse onto this one struct since only the field names the
// two providers happen to share (message id, event name, timestamp) are load-bearing here.
type Event struct {
	ProviderMessageID string `json:"provider_message_id"`
	Event             string `json:"event"`
	Timestamp         int64  `json:"timestamp,omitempty"`
}

// Response is what every webhook endpoint returns, success or partial success alike — per spec
// §4.7 the batch is never failed over a single bad event.
type Response struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
}

type Server struct {
	App    *fiber.App
	Repo   repository.Repository
	Logger *logging.Logger
}

func NewServer(repo repository.Repository, logger *logging.Logger) *Server {
	s := &Server{App: fiber.New(), Repo: repo, Logger: logger}

	s.App.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	s.App.Post("/webhooks/email", s.handleBatch)
	s.App.Post("/webhooks/push", s.handleBatch)

	return s
}

// handleBatch decodes an array of Events and applies each independently. Only a malformed JSON
// body fails the whole request; every other per-event problem (unknown message id, illegal
// transition, unrecognized event name) is swallowed and simply not counted as processed.
func (s *Server) handleBatch(c *fiber.Ctx) error {
	var events []Event
	if err := c.BodyParser(&events); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "malformed webhook body"})
	}

	ctx := c.UserContext()
	logger := s.Logger.WithContext(ctx)

	processed := 0
	for _, evt := range events {
		if s.applyEvent(ctx, evt, logger) {
			processed++
		}
	}

	logger.WithFields(map[string]interface{}{
		"received":  len(events),
		"processed": processed,
	}).Info("webhook batch processed")

	return c.JSON(Response{Received: len(events), Processed: processed})
}

// applyEvent looks up the delivery row by provider_message_id and, if found, applies the
// transition the event implies. It reports true only when the row existed and the transition
// was legal and persisted — everything else (unknown message id, invalid transition, unrecognized
// event name) is a no-op that doesn't count toward "processed".
func (s *Server) applyEvent(ctx context.Context, evt Event, logger *logging.Contextual) bool {
	if evt.ProviderMessageID == "" {
		// An empty id is never looked up, so it cannot match a row that stored no message id.
		logger.WithField("event", evt.Event).Warn("webhook event without provider_message_id, dropped")
		return false
	}

	rec, err := s.Repo.GetByProviderMessageID(ctx, evt.ProviderMessageID)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"provider_message_id": evt.ProviderMessageID,
			"error":                err.Error(),
		}).Warn("webhook event for unknown delivery, dropped")
		return false
	}

	target, ok := delivery.WebhookEventStatus(evt.Event)
	if !ok {
		logger.WithField("event", evt.Event).Warn("webhook event name not recognized, dropped")
		return false
	}

	var deliveredAt *time.Time
	if target == delivery.StatusDelivered && evt.Timestamp > 0 {
		t := time.Unix(evt.Timestamp, 0).UTC()
		deliveredAt = &t
	}

	applied, err := s.Repo.ApplyWebhookTransition(ctx, rec.ID, target, deliveredAt)
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"delivery_id": rec.ID,
			"error":       err.Error(),
		}).Warn("webhook transition failed to persist")
		return false
	}
	return applied
}
