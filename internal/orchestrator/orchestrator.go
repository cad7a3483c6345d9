// Package orchestrator runs the per-job delivery pipeline shared by the email and push
// workers: resolve preferences, gate by channel, require an address, render a template,
// persist the delivery row, then send with retry and report status upstream.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"github.com/praiz001/notifab/internal/apperr"
	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/gatewayclient"
	"github.com/praiz001/notifab/internal/logging"
	"github.com/praiz001/notifab/internal/provider"
	"github.com/praiz001/notifab/internal/repository"
	"github.com/praiz001/notifab/internal/resilience"
	"github.com/praiz001/notifab/internal/templateclient"
	"github.com/praiz001/notifab/internal/userclient"
)

// Outcome classifies how a job finished, for the queue handler to map onto its
// ack/retry/permanent-failure contract.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeTransientFailure
	OutcomePermanentFailure
)

type Orchestrator struct {
	Channel      delivery.Channel
	Repo         repository.Repository
	Breakers     *resilience.BreakerRegistry
	Cache        *resilience.PreferenceCache
	UserClient   *userclient.Client
	TemplateCli  *templateclient.Client
	GatewayCli   *gatewayclient.Client
	Senders      *provider.Registry
	ProviderName string
	Retry        RetryPolicy
	Logger       *logging.Logger
}

// Process runs the full pipeline for one job, per spec §4.2. All outbound calls route through
// the resilience layer. A failure of the address, render or send step produces a terminal
// delivery status; an error reaching the user service or the database produces no status and
// returns OutcomeTransientFailure, so the caller retries the job.
func (o *Orchestrator) Process(ctx context.Context, job delivery.Job) (outcome Outcome, err error) {
	if err := job.Validate(); err != nil {
		return OutcomePermanentFailure, err
	}

	snapshot, err := o.resolvePreferences(ctx, job.UserID)
	if err != nil {
		return OutcomeTransientFailure, err
	}

	logger := o.Logger.WithContext(ctx).WithFields(map[string]interface{}{
		"notification_id": job.NotificationID,
		"channel":          o.Channel,
		"user_id":          job.UserID,
	})

	if !snapshot.EnabledFor(o.Channel) {
		rec, err := o.Repo.Upsert(ctx, job.NotificationID, job.UserID, job.RequestID, o.Channel, o.Retry.MaxAttempts)
		if err != nil {
			return OutcomeTransientFailure, fmt.Errorf("orchestrator: upsert for skip: %w", err)
		}
		if err := o.Repo.MarkSkipped(ctx, rec.ID); err != nil {
			return OutcomeTransientFailure, fmt.Errorf("orchestrator: mark skipped: %w", err)
		}
		rec.Status = delivery.StatusSkipped
		o.reportStatus(ctx, rec)
		logger.Info("channel disabled by preferences, skipped")
		return OutcomeOK, nil
	}

	address := snapshot.AddressFor(o.Channel)

	rec, err := o.Repo.Upsert(ctx, job.NotificationID, job.UserID, job.RequestID, o.Channel, o.Retry.MaxAttempts)
	if err != nil {
		return OutcomeTransientFailure, fmt.Errorf("orchestrator: upsert: %w", err)
	}

	if rec.Status.IsTerminal() || (rec.Status == delivery.StatusSent && rec.ProviderMessageID != nil) {
		// Redelivered message for an already-finished or already-sent job: ack without redoing work.
		return OutcomeOK, nil
	}

	if address == "" {
		if err := o.Repo.MarkFailed(ctx, rec.ID, delivery.ErrorCodeNoAddress, "no address on file", time.Now().UTC()); err != nil {
			return OutcomeTransientFailure, fmt.Errorf("orchestrator: mark failed (no address): %w", err)
		}
		rec.Status = delivery.StatusFailed
		rec.ErrorCode = delivery.Ptr(delivery.ErrorCodeNoAddress)
		o.reportStatus(ctx, rec)
		return OutcomeOK, nil
	}

	rendered, err := resilience.Call(ctx, o.Breakers, "template-service", func(ctx context.Context) (templateclient.RenderResult, error) {
		return o.TemplateCli.Render(ctx, job, o.Channel)
	})
	if err != nil {
		if err := o.Repo.MarkFailed(ctx, rec.ID, delivery.ErrorCodeRenderFailed, err.Error(), time.Now().UTC()); err != nil {
			return OutcomeTransientFailure, fmt.Errorf("orchestrator: mark failed (render): %w", err)
		}
		rec.Status = delivery.StatusFailed
		rec.ErrorCode = delivery.Ptr(delivery.ErrorCodeRenderFailed)
		o.reportStatus(ctx, rec)
		logger.WithField("error", err.Error()).Warn("template render failed, delivery marked failed")
		return OutcomeOK, nil
	}

	if err := o.Repo.SetRendered(ctx, rec.ID, address, subjectOrNil(rendered.Subject), bodyOrNil(rendered.BodyHTML), bodyOrNil(rendered.BodyText)); err != nil {
		return OutcomeTransientFailure, fmt.Errorf("orchestrator: set rendered: %w", err)
	}
	rec.Address = address
	rec.Subject = subjectOrNil(rendered.Subject)
	rec.BodyHTML = bodyOrNil(rendered.BodyHTML)
	rec.BodyText = bodyOrNil(rendered.BodyText)

	return o.sendWithRetry(ctx, rec, logger)
}

func (o *Orchestrator) resolvePreferences(ctx context.Context, userID uuid.UUID) (delivery.PreferenceSnapshot, error) {
	if cached, err := o.Cache.Get(ctx, userID.String()); err == nil && cached != nil {
		return *cached, nil
	}

	if o.Breakers.IsOpen("user-service") {
		return delivery.ConservativeDefault(), nil
	}

	snapshot, err := resilience.Call(ctx, o.Breakers, "user-service", func(ctx context.Context) (delivery.PreferenceSnapshot, error) {
		return o.UserClient.GetPreferences(ctx, userID)
	})
	if err != nil {
		if apperr.IsType(err, apperr.TypeBreakerOpen) || o.Breakers.IsOpen("user-service") {
			return delivery.ConservativeDefault(), nil
		}
		if apperr.IsType(err, apperr.TypeNotFound) {
			// An unknown user has no address on file: the default snapshot ends the pipeline
			// in a terminal NO_ADDRESS failure instead of a retry.
			return delivery.ConservativeDefault(), nil
		}
		return delivery.PreferenceSnapshot{}, err
	}

	_ = o.Cache.Set(ctx, userID.String(), snapshot)
	return snapshot, nil
}

// sendWithRetry executes the provider call through the breaker and the bounded retry policy,
// per spec §4.3: the attempt counter is persisted before each call so a crash mid-retry resumes
// monotonically rather than repeating an already-counted attempt.
func (o *Orchestrator) sendWithRetry(ctx context.Context, rec *delivery.Record, logger *logging.Contextual) (Outcome, error) {
	sender, ok := o.Senders.Get(o.ProviderName)
	if !ok {
		return OutcomeTransientFailure, fmt.Errorf("orchestrator: no sender registered for provider %q", o.ProviderName)
	}

	if o.Breakers.IsOpen(o.ProviderName) {
		return o.failSend(ctx, rec, delivery.ErrorCodeProviderUnavailable, "provider circuit open", logger)
	}

	for {
		attemptCount, err := o.Repo.IncrementAttempt(ctx, rec.ID)
		if err != nil {
			return OutcomeTransientFailure, fmt.Errorf("orchestrator: increment attempt: %w", err)
		}

		started := time.Now()
		result, breakerErr := resilience.Call(ctx, o.Breakers, o.ProviderName, func(ctx context.Context) (provider.SendResult, error) {
			r := sender.Send(ctx, rec)
			if !r.Success {
				return r, r.Err
			}
			return r, nil
		})

		_ = o.Repo.RecordAttempt(ctx, rec.ID, attemptCount, result.Success, errorCodePtr(result), errorMessagePtr(result, breakerErr), int(time.Since(started).Milliseconds()), started)

		if result.Success {
			sentAt := time.Now().UTC()
			if err := o.Repo.MarkSent(ctx, rec.ID, sender.Name(), result.ProviderMessageID, attemptCount, sentAt); err != nil {
				return OutcomeTransientFailure, fmt.Errorf("orchestrator: mark sent: %w", err)
			}
			rec.Status = delivery.StatusSent
			rec.Provider = sender.Name()
			rec.ProviderMessageID = delivery.Ptr(result.ProviderMessageID)
			rec.SentAt = &sentAt
			o.reportStatus(ctx, rec)
			return OutcomeOK, nil
		}

		if apperr.IsType(breakerErr, apperr.TypeBreakerOpen) {
			return o.failSend(ctx, rec, delivery.ErrorCodeProviderUnavailable, "provider circuit open", logger)
		}

		if !result.ErrorCode.ShouldRetry() || o.Retry.Exhausted(attemptCount) {
			msg := "send exhausted"
			if result.Err != nil {
				msg = result.Err.Error()
			}
			return o.failSend(ctx, rec, result.ErrorCode, msg, logger)
		}

		wait := o.Retry.Wait(attemptCount)
		logger.WithFields(map[string]interface{}{"attempt": attemptCount, "wait": wait.String()}).Warn("send failed, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return OutcomeTransientFailure, ctx.Err()
		}
	}
}

func (o *Orchestrator) failSend(ctx context.Context, rec *delivery.Record, code delivery.ErrorCode, message string, logger *logging.Contextual) (Outcome, error) {
	if err := o.Repo.MarkFailed(ctx, rec.ID, code, message, time.Now().UTC()); err != nil {
		return OutcomeTransientFailure, fmt.Errorf("orchestrator: mark failed (send): %w", err)
	}
	rec.Status = delivery.StatusFailed
	rec.ErrorCode = delivery.Ptr(code)
	o.reportStatus(ctx, rec)
	logger.WithFields(map[string]interface{}{"error_code": code, "message": message}).Error("delivery failed")
	o.captureDeliveryFailure(rec, message)
	return OutcomeOK, nil
}

func (o *Orchestrator) reportStatus(ctx context.Context, rec *delivery.Record) {
	if _, err := resilience.Call(ctx, o.Breakers, "gateway", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, o.GatewayCli.ReportStatus(ctx, rec)
	}); err != nil {
		o.Logger.WithFields(map[string]interface{}{
			"notification_id": rec.NotificationID,
			"error":            err.Error(),
		}).Warn("gateway status report failed, continuing")
	}
}

// captureDeliveryFailure mirrors the teacher's sentry breadcrumb-and-capture pattern for notifications
// that land in a terminal failed state, giving on-call the same signal the original DLQ alert did.
func (o *Orchestrator) captureDeliveryFailure(rec *delivery.Record, message string) {
	hub := sentry.CurrentHub().Clone()
	scope := hub.Scope()
	scope.SetTag("component", "orchestrator")
	scope.SetTag("channel", string(rec.Channel))
	if rec.ErrorCode != nil {
		scope.SetTag("error_code", string(*rec.ErrorCode))
	}
	scope.SetUser(sentry.User{ID: rec.UserID.String()})
	scope.SetExtra("notification_id", rec.NotificationID.String())
	scope.SetExtra("attempt_count", rec.AttemptCount)
	hub.CaptureMessage(fmt.Sprintf("delivery failed: %s (%s)", rec.NotificationID, message))
}

func subjectOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func bodyOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func errorCodePtr(r provider.SendResult) *delivery.ErrorCode {
	if r.Success {
		return nil
	}
	return &r.ErrorCode
}

func errorMessagePtr(r provider.SendResult, breakerErr error) *string {
	if r.Success {
		return nil
	}
	if r.Err != nil {
		s := r.Err.Error()
		return &s
	}
	if breakerErr != nil {
		s := breakerErr.Error()
		return &s
	}
	return nil
}
