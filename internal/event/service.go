// Package event implements event intake: idempotent persistence followed by
// a best-effort dispatch signal.
package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/metrics"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/queue"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

type Service struct {
	events     repository.EventRepository
	dispatcher queue.Dispatcher
	logger     *slog.Logger
	now        func() time.Time
}

func NewService(events repository.EventRepository, dispatcher queue.Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		events:     events,
		dispatcher: dispatcher,
		logger:     logger,
		now:        time.Now,
	}
}

// Process records an event and signals the router. When an event with the
// same (type, source, idempotency key) exists it is returned with
// created=false and nothing else happens.
func (s *Service) Process(ctx context.Context, eventType, sourceSystem string, payload map[string]any) (*domain.IntegrationEvent, bool, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	key := domain.ExtractIdempotencyKey(payload)

	if key != nil {
		existing, err := s.events.FindByIdempotencyKey(ctx, eventType, sourceSystem, *key)
		if err == nil {
			s.observe(eventType, sourceSystem, "duplicate")
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrEventNotFound) {
			s.observe(eventType, sourceSystem, "error")
			return nil, false, domain.ErrEventNotRecorded.WithError(err)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, false, domain.ErrBadRequest.WithError(fmt.Errorf("encode payload: %w", err))
	}

	now := s.now().UTC()
	evt := &domain.IntegrationEvent{
		ID:             uuid.New(),
		EventType:      eventType,
		SourceSystem:   sourceSystem,
		Payload:        body,
		IdempotencyKey: key,
		Status:         domain.EventStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	inserted, err := s.events.Insert(ctx, evt)
	if err != nil {
		s.observe(eventType, sourceSystem, "error")
		return nil, false, domain.ErrEventNotRecorded.WithError(err)
	}

	// A concurrent submission won the race on the idempotency index.
	if !inserted {
		if key == nil {
			return nil, false, domain.ErrEventNotRecorded.WithError(errors.New("insert skipped without idempotency key"))
		}
		existing, err := s.events.FindByIdempotencyKey(ctx, eventType, sourceSystem, *key)
		if err != nil {
			s.observe(eventType, sourceSystem, "error")
			return nil, false, domain.ErrEventNotRecorded.WithError(err)
		}
		s.observe(eventType, sourceSystem, "duplicate")
		return existing, false, nil
	}

	s.observe(eventType, sourceSystem, "created")
	s.logger.Info("event recorded",
		slog.String("event_id", evt.ID.String()),
		slog.String("event_type", eventType),
		slog.String("source_system", sourceSystem),
	)

	if err := s.dispatcher.Dispatch(ctx, evt.ID); err != nil {
		s.logger.Warn("dispatch signal failed, event left for polling",
			slog.String("event_id", evt.ID.String()),
			slog.String("error", err.Error()),
		)
	}

	return evt, true, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*domain.IntegrationEvent, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Service) observe(eventType, sourceSystem, outcome string) {
	metrics.EventsReceived.WithLabelValues(eventType, sourceSystem, outcome).Inc()
}
