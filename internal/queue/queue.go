// Package queue wires the delivery orchestrator to a broker queue via asynq. Each channel gets
// its own asynq task type and its own queue name, and the consumer's {ok, transient-failure,
// permanent-failure} contract is mapped onto asynq's own ack/retry/archive semantics.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/logging"
	"github.com/praiz001/notifab/internal/orchestrator"
)

// TaskType returns the asynq task type name for a channel, e.g. "deliver:email".
func TaskType(channel delivery.Channel) string {
	return "deliver:" + string(channel)
}

// NewJobTask builds an asynq task carrying a JSON-encoded delivery.Job.
func NewJobTask(channel delivery.Channel, job delivery.Job) (*asynq.Task, error) {
	payload, err := json.Marshal(job)
	if err != nil {
		return nil, fmt.Errorf("queue: marshal job: %w", err)
	}
	return asynq.NewTask(TaskType(channel), payload), nil
}

// Handler adapts an orchestrator.Orchestrator into an asynq.Handler, translating its Outcome
// into the return value asynq inspects to decide ack/retry/archive.
type Handler struct {
	Orchestrator *orchestrator.Orchestrator
	Logger       *logging.Logger
}

func (h *Handler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var job delivery.Job
	if err := json.Unmarshal(task.Payload(), &job); err != nil {
		// Malformed payload can never succeed on retry — straight to the dead queue.
		return fmt.Errorf("queue: decode job payload: %w: %w", err, asynq.SkipRetry)
	}

	outcome, err := h.Orchestrator.Process(ctx, job)
	switch outcome {
	case orchestrator.OutcomeOK:
		return nil
	case orchestrator.OutcomePermanentFailure:
		h.Logger.WithContext(ctx).WithFields(map[string]interface{}{
			"notification_id": job.NotificationID,
			"error":            errString(err),
		}).Error("job permanently failed, archiving")
		return fmt.Errorf("queue: permanent failure: %w: %w", err, asynq.SkipRetry)
	default: // OutcomeTransientFailure
		h.Logger.WithContext(ctx).WithFields(map[string]interface{}{
			"notification_id": job.NotificationID,
			"error":            errString(err),
		}).Warn("job transiently failed, will retry")
		return fmt.Errorf("queue: transient failure: %w", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewServer builds an asynq.Server scoped to a single channel's queue, with PREFETCH_COUNT
// mapped onto asynq's Concurrency knob the way the teacher's worker config maps a concurrency
// count onto its own goroutine pool.
func NewServer(redisOpt asynq.RedisConnOpt, channel delivery.Channel, concurrency int) *asynq.Server {
	queueName := string(channel)
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{queueName: 1},
	})
}

// NewMux registers the single channel handler under its task type.
func NewMux(channel delivery.Channel, handler asynq.Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskType(channel), handler)
	return mux
}
