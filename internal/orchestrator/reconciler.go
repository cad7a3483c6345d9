package orchestrator

import (
	"context"
	"time"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/logging"
	"github.com/praiz001/notifab/internal/repository"
)

// Reconciler sweeps deliveries stuck in pending or sent for longer than StaleAfter, covering
// the case where a webhook never arrived or a worker crashed mid-send. Grounded on the
// teacher's Service.Reconcile, adapted: there is no Redis lock to re-acquire here since asynq
// already guarantees at-least-once redelivery, so the sweep's only job is to push rows that
// exhausted their window into a terminal state rather than leaving them pending forever.
type Reconciler struct {
	Repo       repository.Repository
	Logger     *logging.Logger
	StaleAfter time.Duration
	BatchLimit int
}

// Run processes up to BatchLimit stale rows and returns how many it moved to a terminal state.
func (r *Reconciler) Run(ctx context.Context) (int, error) {
	stale, err := r.Repo.GetStalePending(ctx, r.StaleAfter, r.BatchLimit)
	if err != nil {
		return 0, err
	}

	logger := r.Logger.WithContext(ctx)
	moved := 0
	for _, rec := range stale {
		if err := r.reconcileOne(ctx, rec); err != nil {
			logger.WithFields(map[string]interface{}{
				"delivery_id": rec.ID,
				"error":       err.Error(),
			}).Warn("reconciler: failed to reconcile stale delivery")
			continue
		}
		moved++
	}

	if moved > 0 {
		logger.WithField("count", moved).Info("reconciler: moved stale deliveries to a terminal state")
	}
	return moved, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, rec *delivery.Record) error {
	switch rec.Status {
	case delivery.StatusPending:
		return r.Repo.MarkFailed(ctx, rec.ID, delivery.ErrorCodeServiceDown, "reconciliation: stuck pending past stale window", time.Now().UTC())
	case delivery.StatusSent:
		// A row stuck in sent past the window means the webhook never arrived; treat it as
		// failed rather than leaving it ambiguous forever. A late webhook after this point is
		// rejected by the state machine (sent/failed has no legal transition back to delivered
		// in this direction only if failed is already terminal — it is), which is the correct
		// conservative outcome for a reconciliation sweep.
		return r.Repo.MarkFailed(ctx, rec.ID, delivery.ErrorCodeServiceDown, "reconciliation: no webhook received past stale window", time.Now().UTC())
	default:
		return nil
	}
}
