// Package monitor aggregates pipeline state into a dashboard, alerts and a
// health grade. It only reads.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/cache"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

const dashboardKey = "monitor:dashboard"

type CircuitReader interface {
	StatusAll(ctx context.Context, services []string) []breaker.Status
}

type Options struct {
	Events      repository.EventRepository
	RetryQueue  repository.RetryQueueRepository
	DeadLetters repository.DeadLetterRepository
	Deliveries  repository.DeliveryRepository
	Circuits    CircuitReader
	Cache       cache.Cache
	Systems     []string
	Thresholds  Thresholds
	Period      time.Duration
	CacheTTL    time.Duration
	Logger      *slog.Logger
}

type Monitor struct {
	opts Options
	now  func() time.Time
}

func New(opts Options) *Monitor {
	if opts.Period <= 0 {
		opts.Period = time.Hour
	}
	if opts.Thresholds.CriticalMultiplier <= 0 {
		opts.Thresholds.CriticalMultiplier = DefaultThresholds().CriticalMultiplier
	}
	return &Monitor{opts: opts, now: time.Now}
}

// WithClock replaces the time source.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	m.now = now
	return m
}

// Dashboard returns the current snapshot, served from cache while fresh.
func (m *Monitor) Dashboard(ctx context.Context) (*Snapshot, error) {
	if m.opts.Cache != nil && m.opts.CacheTTL > 0 {
		var cached Snapshot
		err := cache.GetJSON(ctx, m.opts.Cache, dashboardKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !cache.IsMiss(err) {
			m.opts.Logger.Warn("dashboard cache read failed", slog.String("error", err.Error()))
		}
	}

	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	if m.opts.Cache != nil && m.opts.CacheTTL > 0 {
		if err := cache.SetJSON(ctx, m.opts.Cache, dashboardKey, snap, m.opts.CacheTTL); err != nil {
			m.opts.Logger.Warn("dashboard cache write failed", slog.String("error", err.Error()))
		}
	}
	return snap, nil
}

// Snapshot samples every store, bypassing the cache.
func (m *Monitor) Snapshot(ctx context.Context) (*Snapshot, error) {
	now := m.now().UTC()
	snap := &Snapshot{GeneratedAt: now}

	counts, err := m.opts.Events.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	snap.Events = EventCounts{
		Pending:    counts[domain.EventStatusPending],
		Processing: counts[domain.EventStatusProcessing],
		Done:       counts[domain.EventStatusDone],
		Failed:     counts[domain.EventStatusFailed],
	}

	rq, err := m.opts.RetryQueue.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("retry queue stats: %w", err)
	}
	snap.RetryQueue.Depth = rq.Depth
	if rq.OldestEntry != nil {
		snap.RetryQueue.OldestAgeSeconds = now.Sub(*rq.OldestEntry).Seconds()
	}

	snap.DeadLetters, err = m.opts.DeadLetters.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("dead letter stats: %w", err)
	}

	ds, err := m.opts.Deliveries.Stats(ctx, now.Add(-m.opts.Period))
	if err != nil {
		return nil, fmt.Errorf("delivery stats: %w", err)
	}
	snap.Deliveries = DeliveryView{
		Period:    m.opts.Period.String(),
		Sent:      ds.Sent,
		Failed:    ds.Failed,
		Pending:   ds.Pending,
		ErrorRate: ds.ErrorRate(),
	}

	if m.opts.Circuits != nil {
		snap.Circuits = m.opts.Circuits.StatusAll(ctx, m.opts.Systems)
	}
	return snap, nil
}

// CheckAlerts evaluates the alert rules against a fresh snapshot.
func (m *Monitor) CheckAlerts(ctx context.Context) ([]Alert, error) {
	snap, err := m.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return Evaluate(snap, m.opts.Thresholds), nil
}

func (m *Monitor) Health(ctx context.Context) (*Health, error) {
	alerts, err := m.CheckAlerts(ctx)
	if err != nil {
		return nil, err
	}
	if alerts == nil {
		alerts = []Alert{}
	}
	return &Health{
		Status:    Grade(alerts),
		Alerts:    alerts,
		CheckedAt: m.now().UTC(),
	}, nil
}

func (m *Monitor) Thresholds() Thresholds {
	return m.opts.Thresholds
}
