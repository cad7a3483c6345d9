// Package workerrun holds the process-lifecycle glue shared by cmd/email-worker and
// cmd/push-worker: wire the graph, start the asynq consumer and the webhook server side by
// side, and tear both down on signal. Grounded on services/worker/cmd/worker/main.go's
// errgroup + signal.NotifyContext shutdown shape.
package workerrun

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/praiz001/notifab/internal/delivery"
	"github.com/praiz001/notifab/internal/orchestrator"
	"github.com/praiz001/notifab/internal/queue"
	"github.com/praiz001/notifab/internal/sentryinit"
	"github.com/praiz001/notifab/internal/webhook"
	"github.com/praiz001/notifab/internal/wiring"
)

const reconcileInterval = 5 * time.Minute

// Main builds the dependency graph for channel and runs its consumer, webhook server, and
// reconciliation sweep until a termination signal arrives. release is passed through to
// Sentry as the release tag; it is a no-op string when SENTRY_DSN is unset.
func Main(channel delivery.Channel, release string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	graph, err := wiring.Build(ctx, channel)
	if err != nil {
		return fmt.Errorf("%s-worker: build graph: %w", channel, err)
	}
	defer graph.Close()

	if err := sentryinit.Init(graph.Config, release); err != nil {
		graph.Logger.WithField("error", err.Error()).Warn("sentry init failed, continuing without it")
	}
	defer sentryinit.Flush(2 * time.Second)

	handler := &queue.Handler{Orchestrator: graph.Orchestrator, Logger: graph.Logger}
	mux := queue.NewMux(channel, handler)
	server := queue.NewServer(graph.RedisConnOpt, channel, graph.Config.PrefetchCount)

	webhookSrv := webhook.NewServer(graph.Repo, graph.Logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		graph.Logger.WithField("channel", string(channel)).Info("starting queue consumer")
		if err := server.Run(mux); err != nil {
			return fmt.Errorf("consumer: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		addr := graph.Config.WebhookAddr
		graph.Logger.WithField("addr", addr).Info("starting webhook server")
		if err := webhookSrv.App.Listen(addr); err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return runReconciler(gctx, graph.Reconciler)
	})

	g.Go(func() error {
		<-gctx.Done()
		graph.Logger.Info("shutdown signal received, draining")
		server.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = webhookSrv.App.ShutdownWithContext(shutdownCtx)
		return nil
	})

	if err := g.Wait(); err != nil && gctx.Err() == nil {
		return err
	}
	return nil
}

func runReconciler(ctx context.Context, r *orchestrator.Reconciler) error {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := r.Run(ctx); err != nil {
				r.Logger.WithField("error", err.Error()).Warn("reconciler sweep failed")
			}
		}
	}
}
