package queue

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/hibiken/asynq"

	"github.com/praiz001/notifab/internal/logging"
)

// DLQMonitor periodically inspects a channel's archived-task set (asynq's "dead" queue, which
// serves as this system's DLQ) and raises a Sentry alert past configured thresholds. Grounded
// on the teacher's Service.CheckDLQHealth, adapted from Postgres-row counts to asynq's own
// asynq.Inspector.GetQueueInfo archived-task counter.
type DLQMonitor struct {
	Inspector         *asynq.Inspector
	Queue             string
	Logger            *logging.Logger
	WarningThreshold  int
	CriticalThreshold int
}

func NewDLQMonitor(inspector *asynq.Inspector, queue string, logger *logging.Logger) *DLQMonitor {
	return &DLQMonitor{
		Inspector:         inspector,
		Queue:             queue,
		Logger:            logger,
		WarningThreshold:  10,
		CriticalThreshold: 50,
	}
}

// Check reads the current archived-task count and alerts if it crosses a threshold.
func (m *DLQMonitor) Check() error {
	info, err := m.Inspector.GetQueueInfo(m.Queue)
	if err != nil {
		return fmt.Errorf("dlqmonitor: get queue info: %w", err)
	}

	switch {
	case info.Archived >= m.CriticalThreshold:
		m.alert(sentry.LevelError, "DLQ critical threshold exceeded", info.Archived, m.CriticalThreshold)
	case info.Archived >= m.WarningThreshold:
		m.alert(sentry.LevelWarning, "DLQ warning threshold exceeded", info.Archived, m.WarningThreshold)
	}
	return nil
}

func (m *DLQMonitor) alert(level sentry.Level, message string, count, threshold int) {
	hub := sentry.CurrentHub().Clone()
	scope := hub.Scope()
	scope.SetTag("component", "dlq_monitor")
	scope.SetTag("queue", m.Queue)
	scope.SetLevel(level)
	scope.SetExtra("archived_count", count)
	scope.SetExtra("threshold", threshold)
	hub.CaptureMessage(fmt.Sprintf("%s: %d items (threshold: %d)", message, count, threshold))
	m.Logger.WithFields(map[string]interface{}{"queue": m.Queue, "archived": count, "threshold": threshold}).Warn(message)
}

// RunEvery starts a blocking ticker loop calling Check, matching the teacher's
// dlqCheckTicker pattern. Intended to run in its own goroutine.
func (m *DLQMonitor) RunEvery(interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := m.Check(); err != nil {
				m.Logger.WithField("error", err.Error()).Warn("dlq health check failed")
			}
		}
	}
}
