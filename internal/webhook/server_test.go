package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/logging"
	"github.com/praiz001/notifab/internal/repository"
)

// fakeRepo is a minimal in-memory Repository sufficient to drive the reconciler's lookup and
// transition calls, mirroring the shape of the orchestrator package's own test fake.
type fakeRepo struct {
	byMessageID map[string]*delivery.Record
	byID        map[uuid.UUID]*delivery.Record
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{byMessageID: map[string]*delivery.Record{}, byID: map[uuid.UUID]*delivery.Record{}}
}

func (f *fakeRepo) put(rec *delivery.Record) {
	f.byID[rec.ID] = rec
	if rec.ProviderMessageID != nil {
		f.byMessageID[*rec.ProviderMessageID] = rec
	}
}

func (f *fakeRepo) Upsert(ctx context.Context, notificationID, userID uuid.UUID, requestID string, channel delivery.Channel, maxAttempts int) (*delivery.Record, error) {
	return nil, nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id uuid.UUID) (*delivery.Record, error) {
	rec, ok := f.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) GetByProviderMessageID(ctx context.Context, providerMessageID string) (*delivery.Record, error) {
	if providerMessageID == "" {
		// An empty id must never fall through to matching any row.
		return nil, repository.ErrNotFound
	}
	rec, ok := f.byMessageID[providerMessageID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) SetRendered(ctx context.Context, id uuid.UUID, address string, subject, bodyHTML, bodyText *string) error {
	return nil
}

func (f *fakeRepo) MarkSent(ctx context.Context, id uuid.UUID, provider, providerMessageID string, attemptCount int, sentAt time.Time) error {
	return nil
}

func (f *fakeRepo) MarkFailed(ctx context.Context, id uuid.UUID, errorCode delivery.ErrorCode, errorMessage string, failedAt time.Time) error {
	return nil
}

func (f *fakeRepo) MarkSkipped(ctx context.Context, id uuid.UUID) error { return nil }

func (f *fakeRepo) ApplyWebhookTransition(ctx context.Context, id uuid.UUID, newStatus delivery.Status, deliveredAt *time.Time) (bool, error) {
	rec, ok := f.byID[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if _, err := delivery.Transition(rec.Status, newStatus, delivery.CauseWebhookDelivered); err != nil {
		return false, nil
	}
	rec.Status = newStatus
	if newStatus == delivery.StatusDelivered {
		rec.DeliveredAt = deliveredAt
	}
	return true, nil
}

func (f *fakeRepo) IncrementAttempt(ctx context.Context, id uuid.UUID) (int, error) { return 0, nil }

func (f *fakeRepo) RecordAttempt(ctx context.Context, deliveryID uuid.UUID, attemptNumber int, success bool, errorCode *delivery.ErrorCode, errorMessage *string, durationMs int, startedAt time.Time) error {
	return nil
}

func (f *fakeRepo) GetStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]*delivery.Record, error) {
	return nil, nil
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(&logging.Config{Level: logging.ErrorLevel, Format: "text", Output: "stdout"})
	require.NoError(t, err)
	return logger
}

func postEvents(t *testing.T, srv *Server, path string, events []Event) *http.Response {
	t.Helper()
	body, err := json.Marshal(events)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App.Test(req)
	require.NoError(t, err)
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response) Response {
	t.Helper()
	defer resp.Body.Close()
	var out Response
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestWebhook_EmptyBatchReturnsZeroZero(t *testing.T) {
	srv := NewServer(newFakeRepo(), testLogger(t))
	resp := postEvents(t, srv, "/webhooks/email", []Event{})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, Response{Received: 0, Processed: 0}, decodeResponse(t, resp))
}

func TestWebhook_DeliveredEventTransitionsSentToDelivered(t *testing.T) {
	repo := newFakeRepo()
	rec := &delivery.Record{ID: uuid.New(), Status: delivery.StatusSent, ProviderMessageID: delivery.Ptr("M5")}
	repo.put(rec)

	srv := NewServer(repo, testLogger(t))
	resp := postEvents(t, srv, "/webhooks/email", []Event{{ProviderMessageID: "M5", Event: "delivered", Timestamp: time.Now().Unix()}})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, Response{Received: 1, Processed: 1}, decodeResponse(t, resp))
	require.Equal(t, delivery.StatusDelivered, rec.Status)
	require.NotNil(t, rec.DeliveredAt)
}

func TestWebhook_UnknownMessageIDIsSkippedNotFailed(t *testing.T) {
	repo := newFakeRepo()
	srv := NewServer(repo, testLogger(t))
	resp := postEvents(t, srv, "/webhooks/email", []Event{{ProviderMessageID: "does-not-exist", Event: "delivered"}})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, Response{Received: 1, Processed: 0}, decodeResponse(t, resp))
}

func TestWebhook_EmptyProviderMessageIDIsSkippedNotMatched(t *testing.T) {
	repo := newFakeRepo()
	// A row that would sort first lexicographically among any provider_message_id, to prove
	// an empty event id is never matched against it.
	rec := &delivery.Record{ID: uuid.New(), Status: delivery.StatusSent, ProviderMessageID: delivery.Ptr("AAAA")}
	repo.put(rec)

	srv := NewServer(repo, testLogger(t))
	resp := postEvents(t, srv, "/webhooks/email", []Event{{ProviderMessageID: "", Event: "delivered"}})

	require.Equal(t, Response{Received: 1, Processed: 0}, decodeResponse(t, resp))
	require.Equal(t, delivery.StatusSent, rec.Status, "the unrelated row must not have been touched")
}

func TestWebhook_AlreadyTerminalRowRejectsTransitionSilently(t *testing.T) {
	repo := newFakeRepo()
	rec := &delivery.Record{ID: uuid.New(), Status: delivery.StatusDelivered, ProviderMessageID: delivery.Ptr("M9")}
	repo.put(rec)

	srv := NewServer(repo, testLogger(t))
	resp := postEvents(t, srv, "/webhooks/email", []Event{{ProviderMessageID: "M9", Event: "delivered"}})

	require.Equal(t, Response{Received: 1, Processed: 0}, decodeResponse(t, resp))
	require.Equal(t, delivery.StatusDelivered, rec.Status)
}

func TestWebhook_MalformedBodyReturns500(t *testing.T) {
	srv := NewServer(newFakeRepo(), testLogger(t))
	req := httptest.NewRequest(http.MethodPost, "/webhooks/email", bytes.NewReader([]byte("not json")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := srv.App.Test(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestWebhook_OneBadEventDoesNotFailTheBatch(t *testing.T) {
	repo := newFakeRepo()
	good := &delivery.Record{ID: uuid.New(), Status: delivery.StatusSent, ProviderMessageID: delivery.Ptr("GOOD")}
	repo.put(good)

	srv := NewServer(repo, testLogger(t))
	resp := postEvents(t, srv, "/webhooks/email", []Event{
		{ProviderMessageID: "GOOD", Event: "delivered"},
		{ProviderMessageID: "unknown", Event: "delivered"},
		{ProviderMessageID: "GOOD", Event: "not-a-real-event"},
	})

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, Response{Received: 3, Processed: 1}, decodeResponse(t, resp))
}

var _ = io.EOF // keep io imported for readability of future byte-stream assertions
