// Package memory holds map-backed repositories. They back STORE_DRIVER=memory
// and the pipeline tests, and honour the same uniqueness rules as the
// Postgres schema.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

// NewStore returns a repository.Store whose repositories share nothing but
// live for the lifetime of the process.
func NewStore() *repository.Store {
	return &repository.Store{
		Events:      NewEventRepository(),
		Endpoints:   NewEndpointRepository(),
		Deliveries:  NewDeliveryRepository(),
		RetryQueue:  NewRetryQueueRepository(),
		DeadLetters: NewDeadLetterRepository(),
		SyncJobs:    NewSyncJobRepository(),
	}
}

type idempotencyKey struct {
	eventType, source, key string
}

type EventRepository struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*domain.IntegrationEvent
	index  map[idempotencyKey]uuid.UUID
}

func NewEventRepository() *EventRepository {
	return &EventRepository{
		events: make(map[uuid.UUID]*domain.IntegrationEvent),
		index:  make(map[idempotencyKey]uuid.UUID),
	}
}

func (r *EventRepository) Insert(_ context.Context, event *domain.IntegrationEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var k *idempotencyKey
	if event.IdempotencyKey != nil {
		k = &idempotencyKey{event.EventType, event.SourceSystem, *event.IdempotencyKey}
		if _, ok := r.index[*k]; ok {
			return false, nil
		}
	}

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Status == "" {
		event.Status = domain.EventStatusPending
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	event.UpdatedAt = event.CreatedAt

	cp := *event
	r.events[event.ID] = &cp
	if k != nil {
		r.index[*k] = event.ID
	}
	return true, nil
}

func (r *EventRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.IntegrationEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.events[id]
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *EventRepository) FindByIdempotencyKey(ctx context.Context, eventType, sourceSystem, key string) (*domain.IntegrationEvent, error) {
	r.mu.RLock()
	id, ok := r.index[idempotencyKey{eventType, sourceSystem, key}]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *EventRepository) Claim(_ context.Context, id uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok || e.Status != domain.EventStatusPending {
		return false, nil
	}
	e.Status = domain.EventStatusProcessing
	e.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *EventRepository) UpdateStatus(_ context.Context, id uuid.UUID, status domain.EventStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return domain.ErrEventNotFound
	}
	e.Status = status
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *EventRepository) ListPendingIDs(_ context.Context, limit int) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var pending []*domain.IntegrationEvent
	for _, e := range r.events {
		if e.Status == domain.EventStatusPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })

	ids := make([]uuid.UUID, 0, len(pending))
	for _, e := range pending {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, e.ID)
	}
	return ids, nil
}

func (r *EventRepository) ReleaseStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, e := range r.events {
		if e.Status == domain.EventStatusProcessing && e.UpdatedAt.Before(cutoff) {
			e.Status = domain.EventStatusPending
			e.UpdatedAt = time.Now().UTC()
			n++
		}
	}
	return n, nil
}

func (r *EventRepository) CountByStatus(_ context.Context) (map[domain.EventStatus]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[domain.EventStatus]int64)
	for _, e := range r.events {
		counts[e.Status]++
	}
	return counts, nil
}

type EndpointRepository struct {
	mu        sync.RWMutex
	endpoints map[uuid.UUID]*domain.WebhookEndpoint
}

func NewEndpointRepository() *EndpointRepository {
	return &EndpointRepository{endpoints: make(map[uuid.UUID]*domain.WebhookEndpoint)}
}

func (r *EndpointRepository) sorted(filter func(*domain.WebhookEndpoint) bool) []domain.WebhookEndpoint {
	out := make([]domain.WebhookEndpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		if filter(ep) {
			out = append(out, *ep)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SystemName != out[j].SystemName {
			return out[i].SystemName < out[j].SystemName
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *EndpointRepository) ListActiveBySystems(_ context.Context, systems []string) ([]domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(ep *domain.WebhookEndpoint) bool {
		return ep.Active && slices.Contains(systems, ep.SystemName)
	}), nil
}

func (r *EndpointRepository) List(_ context.Context) ([]domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.sorted(func(*domain.WebhookEndpoint) bool { return true }), nil
}

func (r *EndpointRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[id]
	if !ok {
		return nil, domain.ErrEndpointNotFound
	}
	cp := *ep
	return &cp, nil
}

func (r *EndpointRepository) conflicts(ep *domain.WebhookEndpoint) bool {
	for id, other := range r.endpoints {
		if id != ep.ID && other.SystemName == ep.SystemName && other.URL == ep.URL {
			return true
		}
	}
	return false
}

func (r *EndpointRepository) Create(_ context.Context, endpoint *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if endpoint.ID == uuid.Nil {
		endpoint.ID = uuid.New()
	}
	if r.conflicts(endpoint) {
		return domain.ErrEndpointExists
	}
	now := time.Now().UTC()
	endpoint.CreatedAt = now
	endpoint.UpdatedAt = now

	cp := *endpoint
	r.endpoints[endpoint.ID] = &cp
	return nil
}

func (r *EndpointRepository) Update(_ context.Context, endpoint *domain.WebhookEndpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.endpoints[endpoint.ID]
	if !ok {
		return domain.ErrEndpointNotFound
	}
	candidate := *existing
	candidate.URL = endpoint.URL
	candidate.Secret = endpoint.Secret
	candidate.Active = endpoint.Active
	if r.conflicts(&candidate) {
		return domain.ErrEndpointExists
	}
	candidate.UpdatedAt = time.Now().UTC()
	endpoint.UpdatedAt = candidate.UpdatedAt
	r.endpoints[endpoint.ID] = &candidate
	return nil
}
