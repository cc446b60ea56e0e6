// Package retry owns the retry queue and the dead-letter queue: it decides
// when a failed event is retried and when it is given up on.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/metrics"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

const defaultLease = 5 * time.Minute

// Executor re-runs routing for an event.
type Executor interface {
	Execute(ctx context.Context, eventID uuid.UUID) error
}

// SweepResult summarises one ProcessRetryQueue call.
type SweepResult struct {
	Claimed   int `json:"claimed"`
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
}

type Scheduler struct {
	queue       repository.RetryQueueRepository
	deadLetters repository.DeadLetterRepository
	events      repository.EventRepository
	executor    Executor
	policy      Policy
	lease       time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewScheduler(
	queue repository.RetryQueueRepository,
	deadLetters repository.DeadLetterRepository,
	events repository.EventRepository,
	policy Policy,
	logger *slog.Logger,
) *Scheduler {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = DefaultPolicy().MaxAttempts
	}
	return &Scheduler{
		queue:       queue,
		deadLetters: deadLetters,
		events:      events,
		policy:      policy,
		lease:       defaultLease,
		logger:      logger,
		now:         time.Now,
	}
}

// SetExecutor attaches the router. It is set after construction because
// the router itself reports failures back to the scheduler.
func (s *Scheduler) SetExecutor(executor Executor) {
	s.executor = executor
}

// WithClock replaces the time source.
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// WithLease sets how long a swept entry stays claimed.
func (s *Scheduler) WithLease(lease time.Duration) *Scheduler {
	if lease > 0 {
		s.lease = lease
	}
	return s
}

func (s *Scheduler) Policy() Policy {
	return s.policy
}

// RecordFailure counts a failed routing attempt. Once the retry budget is
// spent the entry is replaced by a dead letter and the event marked failed.
func (s *Scheduler) RecordFailure(ctx context.Context, event *domain.IntegrationEvent, reason string) error {
	entry, err := s.queue.IncrementAttempts(ctx, event.ID, s.policy.MaxAttempts, reason)
	if err != nil {
		return fmt.Errorf("increment attempts for event %s: %w", event.ID, err)
	}

	logger := s.logger.With(
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
		slog.Int("attempts", entry.Attempts),
	)

	if entry.Attempts >= entry.MaxAttempts {
		return s.deadLetter(ctx, event, entry, reason, logger)
	}

	next := s.now().Add(s.policy.Delay(entry.Attempts))
	if err := s.queue.Schedule(ctx, event.ID, next); err != nil {
		return fmt.Errorf("schedule retry for event %s: %w", event.ID, err)
	}

	metrics.RetriesScheduled.Inc()
	logger.Info("event scheduled for retry",
		slog.Time("next_retry_at", next),
		slog.String("error", reason),
	)
	return nil
}

func (s *Scheduler) deadLetter(ctx context.Context, event *domain.IntegrationEvent, entry *domain.RetryEntry, reason string, logger *slog.Logger) error {
	dl := &domain.DeadLetter{
		ID:        uuid.New(),
		EventID:   event.ID,
		EventType: event.EventType,
		Reason:    reason,
		Attempts:  entry.Attempts,
		CreatedAt: s.now().UTC(),
	}
	if err := s.deadLetters.Create(ctx, dl); err != nil {
		return fmt.Errorf("create dead letter for event %s: %w", event.ID, err)
	}
	if err := s.queue.Delete(ctx, event.ID); err != nil {
		return fmt.Errorf("remove retry entry for event %s: %w", event.ID, err)
	}
	if err := s.events.UpdateStatus(ctx, event.ID, domain.EventStatusFailed); err != nil {
		logger.Error("failed to mark dead-lettered event as failed", slog.String("error", err.Error()))
	}

	metrics.DeadLettered.WithLabelValues(event.EventType).Inc()
	logger.Warn("event moved to dead-letter queue", slog.String("error", reason))
	return nil
}

// RecordSuccess drops the event's retry entry, if any.
func (s *Scheduler) RecordSuccess(ctx context.Context, eventID uuid.UUID) error {
	if err := s.queue.Delete(ctx, eventID); err != nil {
		return fmt.Errorf("remove retry entry for event %s: %w", eventID, err)
	}
	return nil
}

// ProcessRetryQueue claims due entries and routes their events again.
// Claims are leased, so concurrent sweeps never pick the same entry.
func (s *Scheduler) ProcessRetryQueue(ctx context.Context, limit int) (SweepResult, error) {
	var result SweepResult
	if s.executor == nil {
		return result, errors.New("retry scheduler has no executor")
	}

	entries, err := s.queue.ClaimDue(ctx, s.now().UTC(), s.lease, limit)
	if err != nil {
		return result, fmt.Errorf("claim due retries: %w", err)
	}
	result.Claimed = len(entries)

	for _, entry := range entries {
		if ctx.Err() != nil {
			break
		}

		logger := s.logger.With(
			slog.String("event_id", entry.EventID.String()),
			slog.Int("attempts", entry.Attempts),
		)

		if err := s.events.UpdateStatus(ctx, entry.EventID, domain.EventStatusPending); err != nil {
			result.Errors++
			if errors.Is(err, domain.ErrEventNotFound) {
				logger.Error("retry entry references missing event, dropping it")
				_ = s.queue.Delete(ctx, entry.EventID)
				continue
			}
			logger.Error("failed to reset event for retry", slog.String("error", err.Error()))
			continue
		}

		if err := s.executor.Execute(ctx, entry.EventID); err != nil {
			result.Errors++
			logger.Error("retry execution failed", slog.String("error", err.Error()))
			continue
		}
		result.Processed++
	}

	if result.Claimed > 0 {
		s.logger.Info("retry sweep finished",
			slog.Int("claimed", result.Claimed),
			slog.Int("processed", result.Processed),
			slog.Int("errors", result.Errors),
		)
	}
	return result, nil
}

// Requeue makes a queued event due immediately.
func (s *Scheduler) Requeue(ctx context.Context, eventID uuid.UUID) error {
	if err := s.queue.MakeDue(ctx, eventID, s.now().UTC()); err != nil {
		return err
	}
	s.logger.Info("retry entry requeued by operator", slog.String("event_id", eventID.String()))
	return nil
}

// ReplayDeadLetter gives a dead-lettered event a fresh retry budget, due now.
func (s *Scheduler) ReplayDeadLetter(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	dl, err := s.deadLetters.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if dl.ReplayedAt != nil {
		return nil, domain.ErrDeadLetterReplayed
	}

	if err := s.queue.Enqueue(ctx, dl.EventID, s.policy.MaxAttempts, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("enqueue replay for event %s: %w", dl.EventID, err)
	}
	if err := s.events.UpdateStatus(ctx, dl.EventID, domain.EventStatusPending); err != nil {
		return nil, fmt.Errorf("reset event %s: %w", dl.EventID, err)
	}
	if err := s.deadLetters.MarkReplayed(ctx, dl.ID); err != nil {
		return nil, err
	}

	replayed := s.now().UTC()
	dl.ReplayedAt = &replayed
	s.logger.Info("dead letter replayed",
		slog.String("dead_letter_id", dl.ID.String()),
		slog.String("event_id", dl.EventID.String()),
	)
	return dl, nil
}
