package monitor

import (
	"context"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/metrics"
)

// Worker refreshes the Prometheus gauges, evaluates alerts and notifies.
type Worker struct {
	monitor  *Monitor
	notifier *Notifier
	logger   *slog.Logger
	interval time.Duration
	done     chan struct{}
}

func NewWorker(monitor *Monitor, notifier *Notifier, logger *slog.Logger, interval time.Duration) *Worker {
	if interval == 0 {
		interval = time.Minute
	}
	return &Worker{
		monitor:  monitor,
		notifier: notifier,
		logger:   logger,
		interval: interval,
		done:     make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("monitor worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("monitor worker stopped")
			return
		case <-w.done:
			w.logger.Info("monitor worker stopped")
			return
		case <-ticker.C:
			w.process(ctx)
		}
	}
}

func (w *Worker) Stop() {
	close(w.done)
}

func (w *Worker) process(ctx context.Context) {
	snap, err := w.monitor.Snapshot(ctx)
	if err != nil {
		w.logger.Error("failed to sample pipeline", slog.String("error", err.Error()))
		return
	}
	publish(snap)

	alerts := Evaluate(snap, w.monitor.Thresholds())
	var warnings, criticals float64
	for _, a := range alerts {
		if a.Level == LevelCritical {
			criticals++
		} else {
			warnings++
		}
		w.logger.Warn("alert active",
			slog.String("type", string(a.Type)),
			slog.String("level", string(a.Level)),
			slog.String("message", a.Message),
		)
	}
	metrics.ActiveAlerts.WithLabelValues(string(LevelWarning)).Set(warnings)
	metrics.ActiveAlerts.WithLabelValues(string(LevelCritical)).Set(criticals)

	if _, err := w.notifier.Notify(ctx, alerts); err != nil {
		w.logger.Error("alert notification failed", slog.String("error", err.Error()))
	}

	if c := w.monitor.opts.Cache; c != nil {
		if n, err := c.CleanupExpired(ctx); err != nil {
			w.logger.Warn("cache cleanup failed", slog.String("error", err.Error()))
		} else if n > 0 {
			w.logger.Debug("expired cache entries removed", slog.Int64("count", n))
		}
	}
}

func publish(s *Snapshot) {
	metrics.PendingEvents.Set(float64(s.Events.Pending))
	metrics.RetryQueueDepth.Set(float64(s.RetryQueue.Depth))
	metrics.DeadLetters.Set(float64(s.DeadLetters.Total))
	metrics.DeliveryErrorRate.Set(s.Deliveries.ErrorRate)
	for _, c := range s.Circuits {
		metrics.CircuitState.WithLabelValues(c.Service).Set(metrics.CircuitStateValue(string(c.State)))
	}
}
