package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/logging"
	"github.com/praiz001/notifab/internal/orchestrator"
)

func TestTaskType(t *testing.T) {
	require.Equal(t, "deliver:email", TaskType(delivery.ChannelEmail))
	require.Equal(t, "deliver:push", TaskType(delivery.ChannelPush))
}

func TestNewJobTask_RoundTripsPayload(t *testing.T) {
	job := delivery.Job{
		NotificationID: uuid.New(),
		UserID:         uuid.New(),
		TemplateCode:   delivery.Ptr("welcome"),
		Variables:      delivery.Variables{"name": "Ada"},
		RequestID:      "req-1",
		CreatedAt:      time.Now().UTC().Truncate(time.Second),
	}

	task, err := NewJobTask(delivery.ChannelEmail, job)
	require.NoError(t, err)
	require.Equal(t, "deliver:email", task.Type())

	var decoded delivery.Job
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.Equal(t, job.NotificationID, decoded.NotificationID)
	require.Equal(t, job.UserID, decoded.UserID)
	require.Equal(t, *job.TemplateCode, *decoded.TemplateCode)
	require.Equal(t, job.RequestID, decoded.RequestID)
}

func testLogger(t *testing.T) *logging.Logger {
	t.Helper()
	logger, err := logging.New(&logging.Config{Level: logging.ErrorLevel, Format: "text", Output: "stdout"})
	require.NoError(t, err)
	return logger
}

func TestHandler_MalformedPayloadSkipsRetry(t *testing.T) {
	h := &Handler{Orchestrator: nil, Logger: testLogger(t)}
	task := asynq.NewTask(TaskType(delivery.ChannelEmail), []byte("not json"))

	err := h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

// TestHandler_PermanentFailureSkipsRetry drives ProcessTask against a real orchestrator with a
// job that fails Validate before any I/O, exercising the OutcomePermanentFailure -> SkipRetry
// branch of Handler without needing a live database or provider.
func TestHandler_PermanentFailureSkipsRetry(t *testing.T) {
	orch := &orchestrator.Orchestrator{Channel: delivery.ChannelEmail}
	h := &Handler{Orchestrator: orch, Logger: testLogger(t)}

	payload, err := json.Marshal(delivery.Job{}) // missing notification_id/user_id/template
	require.NoError(t, err)
	task := asynq.NewTask(TaskType(delivery.ChannelEmail), payload)

	err = h.ProcessTask(context.Background(), task)
	require.Error(t, err)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
