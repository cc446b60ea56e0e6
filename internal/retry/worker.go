package retry

import (
	"context"
	"log/slog"
	"time"
)

// Worker sweeps the retry queue on a fixed interval.
type Worker struct {
	scheduler *Scheduler
	interval  time.Duration
	limit     int
	logger    *slog.Logger
	stopCh    chan struct{}
}

func NewWorker(scheduler *Scheduler, interval time.Duration, limit int, logger *slog.Logger) *Worker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Worker{
		scheduler: scheduler,
		interval:  interval,
		limit:     limit,
		logger:    logger,
		stopCh:    make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("retry worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("retry worker stopped")
			return
		case <-w.stopCh:
			w.logger.Info("retry worker stopped")
			return
		case <-ticker.C:
			if _, err := w.scheduler.ProcessRetryQueue(ctx, w.limit); err != nil {
				w.logger.Error("retry sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
}
