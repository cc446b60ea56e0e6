package router

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/queue"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

const pollBatch = 100

// Worker drives the router from dispatch signals and from a periodic poll
// of pending events, and returns events stuck in processing to pending.
type Worker struct {
	router       *Router
	events       repository.EventRepository
	consumer     queue.Consumer
	pollInterval time.Duration
	staleAfter   time.Duration
	logger       *slog.Logger
	stopCh       chan struct{}
	stopOnce     sync.Once
}

func NewWorker(router *Router, events repository.EventRepository, consumer queue.Consumer, pollInterval, staleAfter time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &Worker{
		router:       router,
		events:       events,
		consumer:     consumer,
		pollInterval: pollInterval,
		staleAfter:   staleAfter,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	if w.consumer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := w.consumer.Consume(ctx, func(ctx context.Context, id uuid.UUID) error {
				return w.router.Execute(ctx, id)
			})
			if err != nil {
				w.logger.Error("dispatch consumer stopped", slog.String("error", err.Error()))
			}
		}()
	}

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	w.logger.Info("router worker started", slog.Duration("poll_interval", w.pollInterval))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			w.logger.Info("router worker stopped")
			return
		case <-w.stopCh:
			cancel()
			wg.Wait()
			w.logger.Info("router worker stopped")
			return
		case <-ticker.C:
			w.releaseStale(ctx)
			w.poll(ctx)
		}
	}
}

func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
}

func (w *Worker) poll(ctx context.Context) {
	ids, err := w.events.ListPendingIDs(ctx, pollBatch)
	if err != nil {
		w.logger.Error("failed to list pending events", slog.String("error", err.Error()))
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}
		if err := w.router.Execute(ctx, id); err != nil {
			w.logger.Error("failed to route pending event",
				slog.String("event_id", id.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (w *Worker) releaseStale(ctx context.Context) {
	cutoff := time.Now().Add(-w.staleAfter)
	n, err := w.events.ReleaseStale(ctx, cutoff)
	if err != nil {
		w.logger.Error("failed to release stale events", slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		w.logger.Warn("released events stuck in processing", slog.Int64("count", n))
	}
}
