// Package router fans events out to the endpoints of every system that
// subscribes to them.
package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/routing"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/webhook"
)

// MetaField carries hub metadata inside every outbound payload.
const MetaField = "_meta"

type Deliverer interface {
	Deliver(ctx context.Context, req webhook.Request) error
}

// FailureRecorder is the retry side of routing.
type FailureRecorder interface {
	RecordFailure(ctx context.Context, event *domain.IntegrationEvent, reason string) error
	RecordSuccess(ctx context.Context, eventID uuid.UUID) error
}

type Router struct {
	events      repository.EventRepository
	endpoints   repository.EndpointRepository
	deliveries  repository.DeliveryRepository
	table       *routing.Table
	deliverer   Deliverer
	retries     FailureRecorder
	concurrency int
	logger      *slog.Logger
	now         func() time.Time
}

type Options struct {
	Events      repository.EventRepository
	Endpoints   repository.EndpointRepository
	Deliveries  repository.DeliveryRepository
	Table       *routing.Table
	Deliverer   Deliverer
	Retries     FailureRecorder
	Concurrency int
	Logger      *slog.Logger
}

func New(opts Options) *Router {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 8
	}
	return &Router{
		events:      opts.Events,
		endpoints:   opts.Endpoints,
		deliveries:  opts.Deliveries,
		table:       opts.Table,
		deliverer:   opts.Deliverer,
		retries:     opts.Retries,
		concurrency: opts.Concurrency,
		logger:      opts.Logger,
		now:         time.Now,
	}
}

// Execute routes one event. Delivery and routing failures are handed to the
// retry scheduler and never returned; an error means the event could not be
// claimed or loaded at all.
func (r *Router) Execute(ctx context.Context, eventID uuid.UUID) error {
	claimed, err := r.events.Claim(ctx, eventID)
	if err != nil {
		return fmt.Errorf("claim event %s: %w", eventID, err)
	}
	if !claimed {
		r.logger.Debug("event not pending, skipping", slog.String("event_id", eventID.String()))
		return nil
	}

	event, err := r.events.GetByID(ctx, eventID)
	if err != nil {
		// Put it back so the poller can try again.
		_ = r.events.UpdateStatus(ctx, eventID, domain.EventStatusPending)
		return fmt.Errorf("load event %s: %w", eventID, err)
	}

	logger := r.logger.With(
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", event.EventType),
	)

	failures, err := r.route(ctx, event, logger)
	if err != nil {
		logger.Error("routing failed", slog.String("error", err.Error()))
		if updErr := r.events.UpdateStatus(ctx, event.ID, domain.EventStatusFailed); updErr != nil {
			logger.Error("failed to mark event failed", slog.String("error", updErr.Error()))
		}
		r.recordFailure(ctx, event, err.Error(), logger)
		return nil
	}

	if err := r.events.UpdateStatus(ctx, event.ID, domain.EventStatusDone); err != nil {
		logger.Error("failed to mark event done", slog.String("error", err.Error()))
	}

	if len(failures) > 0 {
		r.recordFailure(ctx, event, strings.Join(failures, "; "), logger)
		return nil
	}

	if err := r.retries.RecordSuccess(ctx, event.ID); err != nil {
		logger.Error("failed to clear retry entry", slog.String("error", err.Error()))
	}
	return nil
}

func (r *Router) recordFailure(ctx context.Context, event *domain.IntegrationEvent, reason string, logger *slog.Logger) {
	if err := r.retries.RecordFailure(ctx, event, reason); err != nil {
		logger.Error("failed to record routing failure", slog.String("error", err.Error()))
	}
}

// route delivers to every active endpoint of the target systems and
// returns one message per failed delivery.
func (r *Router) route(ctx context.Context, event *domain.IntegrationEvent, logger *slog.Logger) ([]string, error) {
	targets := r.targets(event)
	if len(targets) == 0 {
		logger.Debug("no targets for event type")
		return nil, nil
	}

	endpoints, err := r.endpoints.ListActiveBySystems(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		logger.Debug("no active endpoints for targets", slog.Any("targets", targets))
		return nil, nil
	}

	payload, err := event.PayloadMap()
	if err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	meta := map[string]any{
		"event_id":      event.ID.String(),
		"event_type":    event.EventType,
		"source_system": event.SourceSystem,
		"timestamp":     r.now().UTC().Format(time.RFC3339),
	}

	var (
		mu       sync.Mutex
		failures []string
	)
	fail := func(endpoint domain.WebhookEndpoint, err error) {
		mu.Lock()
		defer mu.Unlock()
		failures = append(failures, fmt.Sprintf("%s (%s): %v", endpoint.SystemName, endpoint.ID, err))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, endpoint := range endpoints {
		g.Go(func() error {
			delivery, err := r.deliveries.GetOrCreate(gctx, event.ID, endpoint.ID)
			if err != nil {
				fail(endpoint, fmt.Errorf("get delivery: %w", err))
				return nil
			}
			if delivery.Status == domain.DeliveryStatusSent {
				return nil
			}

			body := r.table.Transform(event.EventType, endpoint.SystemName, payload)
			body[MetaField] = meta

			err = r.deliverer.Deliver(gctx, webhook.Request{
				Delivery:  delivery,
				Endpoint:  endpoint,
				EventType: event.EventType,
				Payload:   body,
			})
			if err != nil {
				if !errors.Is(err, webhook.ErrCircuitOpen) {
					logger.Debug("delivery failed", slog.String("endpoint_id", endpoint.ID.String()))
				}
				fail(endpoint, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	slices.Sort(failures)
	return failures, nil
}

// targets resolves subscribed systems, never routing back to the source.
func (r *Router) targets(event *domain.IntegrationEvent) []string {
	systems := r.table.Targets(event.EventType)
	var out []string
	for _, s := range systems {
		if s != event.SourceSystem {
			out = append(out, s)
		}
	}
	return out
}
