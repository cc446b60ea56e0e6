package syncjob

import (
	"context"
	"log/slog"
	"time"
)

// Worker runs every configured job once per interval. A zero interval
// disables scheduled runs; jobs can still be triggered by operators.
type Worker struct {
	orchestrator *Orchestrator
	interval     time.Duration
	logger       *slog.Logger
	stopCh       chan struct{}
}

func NewWorker(orchestrator *Orchestrator, interval time.Duration, logger *slog.Logger) *Worker {
	return &Worker{
		orchestrator: orchestrator,
		interval:     interval,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	if w.interval <= 0 {
		w.logger.Info("sync worker disabled")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("sync worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("sync worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("sync worker stopped")
			return
		case <-ticker.C:
			w.runAll(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}

func (w *Worker) runAll(ctx context.Context) {
	for _, def := range w.orchestrator.Definitions() {
		if ctx.Err() != nil {
			return
		}
		if _, err := w.orchestrator.Run(ctx, def.Type); err != nil {
			w.logger.Error("sync job could not be recorded",
				slog.String("job_type", def.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}
