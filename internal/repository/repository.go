// Package repository persists DeliveryRecords and their attempt history to Postgres.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/praiz001/notifab/internal/delivery"
)

// ErrNotFound is returned when a delivery record doesn't exist.
var ErrNotFound = errors.New("repository: delivery not found")

// Repository is the persistence boundary the orchestrator and webhook reconciler use.
type Repository interface {
	// Upsert creates a DeliveryRecord in pending status, or returns the existing row for
	// (notificationID, channel) if one was already created — satisfies invariant 5.
	Upsert(ctx context.Context, notificationID, userID uuid.UUID, requestID string, channel delivery.Channel, maxAttempts int) (*delivery.Record, error)

	GetByID(ctx context.Context, id uuid.UUID) (*delivery.Record, error)
	GetByProviderMessageID(ctx context.Context, providerMessageID string) (*delivery.Record, error)

	// SetRendered persists the resolved address and rendered template fields before send.
	SetRendered(ctx context.Context, id uuid.UUID, address string, subject, bodyHTML, bodyText *string) error

	// MarkSent records a successful provider send — the pending→sent transition.
	MarkSent(ctx context.Context, id uuid.UUID, provider, providerMessageID string, attemptCount int, sentAt time.Time) error

	// MarkFailed records a terminal failure, from pending (send exhausted/permanent) or a
	// webhook "dropped" event from sent.
	MarkFailed(ctx context.Context, id uuid.UUID, errorCode delivery.ErrorCode, errorMessage string, failedAt time.Time) error

	// MarkSkipped records the pending→skipped transition (channel disabled).
	MarkSkipped(ctx context.Context, id uuid.UUID) error

	// ApplyWebhookTransition moves a record to newStatus if the transition from its current
	// status is legal; returns (false, nil) if the transition was rejected (already-terminal
	// or unrecognized), never erroring on that case per spec §4.7 step 3.
	ApplyWebhookTransition(ctx context.Context, id uuid.UUID, newStatus delivery.Status, deliveredAt *time.Time) (bool, error)

	// IncrementAttempt persists the attempt_count bump that must happen before each retrying
	// provider call, per spec §4.3.
	IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error)

	RecordAttempt(ctx context.Context, deliveryID uuid.UUID, attemptNumber int, success bool, errorCode *delivery.ErrorCode, errorMessage *string, durationMs int, startedAt time.Time) error

	// GetStalePending returns pending/sent rows that haven't moved in longer than olderThan,
	// for the reconciliation sweep.
	GetStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*delivery.Record, error)
}

// Postgres implements Repository over database/sql + lib/pq.
type Postgres struct {
	db *sql.DB
}

// New wraps an already-open *sql.DB.
func New(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

const selectColumns = `
	id, notification_id, user_id, request_id, channel, address, subject, body_html, body_text,
	provider, provider_message_id, status, attempt_count, max_attempts, error_code, error_message,
	extra_data, created_at, updated_at, sent_at, delivered_at, failed_at
`

func scanRecord(row interface{ Scan(...interface{}) error }) (*delivery.Record, error) {
	var r delivery.Record
	var extraData []byte
	var errorCode sql.NullString

	err := row.Scan(
		&r.ID, &r.NotificationID, &r.UserID, &r.RequestID, &r.Channel, &r.Address, &r.Subject,
		&r.BodyHTML, &r.BodyText, &r.Provider, &r.ProviderMessageID, &r.Status, &r.AttemptCount,
		&r.MaxAttempts, &errorCode, &r.ErrorMessage, &extraData, &r.CreatedAt, &r.UpdatedAt,
		&r.SentAt, &r.DeliveredAt, &r.FailedAt,
	)
	if err != nil {
		return nil, err
	}
	if errorCode.Valid {
		ec := delivery.ErrorCode(errorCode.String)
		r.ErrorCode = &ec
	}
	if len(extraData) > 0 {
		if err := json.Unmarshal(extraData, &r.ExtraData); err != nil {
			return nil, fmt.Errorf("repository: unmarshal extra_data: %w", err)
		}
	}
	return &r, nil
}

// Upsert inserts a new pending row, or returns the existing one on a unique-violation of
// (notification_id, channel) — the same conflict-as-idempotent-lookup pattern this codebase
// uses for idempotency-key conflicts elsewhere.
func (p *Postgres) Upsert(ctx context.Context, notificationID, userID uuid.UUID, requestID string, channel delivery.Channel, maxAttempts int) (*delivery.Record, error) {
	id := uuid.New()
	now := time.Now().UTC()

	query := `
		INSERT INTO deliveries (
			id, notification_id, user_id, request_id, channel, status, attempt_count, max_attempts,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + selectColumns

	row := p.db.QueryRowContext(ctx, query,
		id, notificationID, userID, requestID, channel, delivery.StatusPending, 0, maxAttempts, now, now,
	)
	rec, err := scanRecord(row)
	if err != nil {
		if isUniqueViolation(err) {
			return p.getByNotificationChannel(ctx, notificationID, channel)
		}
		return nil, fmt.Errorf("repository: insert delivery: %w", err)
	}
	return rec, nil
}

func (p *Postgres) getByNotificationChannel(ctx context.Context, notificationID uuid.UUID, channel delivery.Channel) (*delivery.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM deliveries WHERE notification_id = $1 AND channel = $2`
	row := p.db.QueryRowContext(ctx, query, notificationID, channel)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: get delivery by notification/channel: %w", err)
	}
	return rec, nil
}

func (p *Postgres) GetByID(ctx context.Context, id uuid.UUID) (*delivery.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM deliveries WHERE id = $1`
	rec, err := scanRecord(p.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: get delivery by id: %w", err)
	}
	return rec, nil
}

func (p *Postgres) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*delivery.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM deliveries WHERE provider_message_id = $1`
	rec, err := scanRecord(p.db.QueryRowContext(ctx, query, providerMessageID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("repository: get delivery by provider_message_id: %w", err)
	}
	return rec, nil
}

func (p *Postgres) SetRendered(ctx context.Context, id uuid.UUID, address string, subject, bodyHTML, bodyText *string) error {
	return p.exec(ctx, `
		UPDATE deliveries SET address = $2, subject = $3, body_html = $4, body_text = $5, updated_at = $6
		WHERE id = $1`,
		id, address, subject, bodyHTML, bodyText, time.Now().UTC(),
	)
}

func (p *Postgres) MarkSent(ctx context.Context, id uuid.UUID, provider, providerMessageID string, attemptCount int, sentAt time.Time) error {
	// provider_message_id, once set, is never overwritten (invariant 3) — WHERE clause below
	// makes the no-op-if-already-sent case (idempotent redelivery) explicit rather than relying
	// on the caller to check first.
	return p.exec(ctx, `
		UPDATE deliveries
		SET status = $2, provider = $3, provider_message_id = $4, attempt_count = $5, sent_at = $6, updated_at = $7
		WHERE id = $1 AND provider_message_id IS NULL`,
		id, delivery.StatusSent, provider, providerMessageID, attemptCount, sentAt, time.Now().UTC(),
	)
}

func (p *Postgres) MarkFailed(ctx context.Context, id uuid.UUID, errorCode delivery.ErrorCode, errorMessage string, failedAt time.Time) error {
	return p.exec(ctx, `
		UPDATE deliveries
		SET status = $2, error_code = $3, error_message = $4, failed_at = $5, updated_at = $6
		WHERE id = $1`,
		id, delivery.StatusFailed, errorCode, errorMessage, failedAt, time.Now().UTC(),
	)
}

func (p *Postgres) MarkSkipped(ctx context.Context, id uuid.UUID) error {
	return p.exec(ctx, `
		UPDATE deliveries SET status = $2, updated_at = $3 WHERE id = $1`,
		id, delivery.StatusSkipped, time.Now().UTC(),
	)
}

func (p *Postgres) ApplyWebhookTransition(ctx context.Context, id uuid.UUID, newStatus delivery.Status, deliveredAt *time.Time) (bool, error) {
	rec, err := p.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if _, err := delivery.Transition(rec.Status, newStatus, delivery.CauseWebhookDelivered); err != nil {
		return false, nil // invalid transition: silently rejected per spec §4.7.3
	}

	now := time.Now().UTC()
	var err2 error
	switch newStatus {
	case delivery.StatusDelivered:
		at := deliveredAt
		if at == nil {
			at = &now
		}
		err2 = p.exec(ctx, `UPDATE deliveries SET status=$2, delivered_at=$3, updated_at=$4 WHERE id=$1`,
			id, newStatus, *at, now)
	case delivery.StatusBounced, delivery.StatusFailed:
		err2 = p.exec(ctx, `UPDATE deliveries SET status=$2, failed_at=$3, updated_at=$4 WHERE id=$1`,
			id, newStatus, now, now)
	case delivery.StatusPending:
		err2 = p.exec(ctx, `UPDATE deliveries SET status=$2, updated_at=$3 WHERE id=$1`, id, newStatus, now)
	default:
		err2 = p.exec(ctx, `UPDATE deliveries SET status=$2, updated_at=$3 WHERE id=$1`, id, newStatus, now)
	}
	if err2 != nil {
		return false, err2
	}
	return true, nil
}

func (p *Postgres) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) {
	var attemptCount int
	err := p.db.QueryRowContext(ctx, `
		UPDATE deliveries SET attempt_count = attempt_count + 1, updated_at = $2
		WHERE id = $1
		RETURNING attempt_count`,
		id, time.Now().UTC(),
	).Scan(&attemptCount)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("repository: increment attempt: %w", err)
	}
	return attemptCount, nil
}

func (p *Postgres) RecordAttempt(ctx context.Context, deliveryID uuid.UUID, attemptNumber int, success bool, errorCode *delivery.ErrorCode, errorMessage *string, durationMs int, startedAt time.Time) error {
	completedAt := time.Now().UTC()
	var errorCodeStr *string
	if errorCode != nil {
		s := string(*errorCode)
		errorCodeStr = &s
	}
	return p.exec(ctx, `
		INSERT INTO delivery_attempts (
			id, delivery_id, attempt_number, success, error_code, error_message, started_at, completed_at, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		uuid.New(), deliveryID, attemptNumber, success, errorCodeStr, errorMessage, startedAt, completedAt, durationMs,
	)
}

func (p *Postgres) GetStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*delivery.Record, error) {
	query := `SELECT ` + selectColumns + ` FROM deliveries
		WHERE status IN ('pending', 'sent')
		  AND updated_at < $1
		ORDER BY updated_at ASC
		LIMIT $2`
	rows, err := p.db.QueryContext(ctx, query, time.Now().UTC().Add(-olderThan), limit)
	if err != nil {
		return nil, fmt.Errorf("repository: get stale pending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*delivery.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *Postgres) exec(ctx context.Context, query string, args ...interface{}) error {
	result, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("repository: exec: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("repository: rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// isUniqueViolation mirrors the sibling service's pq.Error.Code == "23505" check.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
