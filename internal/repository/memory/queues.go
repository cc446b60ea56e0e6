package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

type deliveryKey struct {
	eventID, endpointID uuid.UUID
}

type DeliveryRepository struct {
	mu         sync.RWMutex
	deliveries map[uuid.UUID]*domain.WebhookDelivery
	byPair     map[deliveryKey]uuid.UUID
}

func NewDeliveryRepository() *DeliveryRepository {
	return &DeliveryRepository{
		deliveries: make(map[uuid.UUID]*domain.WebhookDelivery),
		byPair:     make(map[deliveryKey]uuid.UUID),
	}
}

func (r *DeliveryRepository) GetOrCreate(_ context.Context, eventID, endpointID uuid.UUID) (*domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := deliveryKey{eventID, endpointID}
	if id, ok := r.byPair[k]; ok {
		cp := *r.deliveries[id]
		return &cp, nil
	}

	now := time.Now().UTC()
	d := &domain.WebhookDelivery{
		ID:         uuid.New(),
		EventID:    eventID,
		EndpointID: endpointID,
		Status:     domain.DeliveryStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	r.deliveries[d.ID] = d
	r.byPair[k] = d.ID

	cp := *d
	return &cp, nil
}

func (r *DeliveryRepository) record(id uuid.UUID, status domain.DeliveryStatus, responseStatus *int, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.deliveries[id]
	if !ok {
		return domain.ErrDeliveryNotFound
	}
	now := time.Now().UTC()
	d.Status = status
	d.Attempts++
	d.ResponseStatus = responseStatus
	d.LastAttemptAt = &now
	d.LastError = nil
	if reason != "" {
		d.LastError = &reason
	}
	d.UpdatedAt = now
	return nil
}

func (r *DeliveryRepository) MarkSent(_ context.Context, id uuid.UUID, responseStatus int) error {
	return r.record(id, domain.DeliveryStatusSent, &responseStatus, "")
}

func (r *DeliveryRepository) MarkFailed(_ context.Context, id uuid.UUID, responseStatus *int, reason string) error {
	return r.record(id, domain.DeliveryStatusFailed, responseStatus, reason)
}

func (r *DeliveryRepository) ListByEvent(_ context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.WebhookDelivery
	for _, d := range r.deliveries {
		if d.EventID == eventID {
			out = append(out, *d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r *DeliveryRepository) Stats(_ context.Context, since time.Time) (domain.DeliveryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var stats domain.DeliveryStats
	for _, d := range r.deliveries {
		if d.UpdatedAt.Before(since) {
			continue
		}
		switch d.Status {
		case domain.DeliveryStatusSent:
			stats.Sent++
		case domain.DeliveryStatusFailed:
			stats.Failed++
		case domain.DeliveryStatusPending:
			stats.Pending++
		}
	}
	return stats, nil
}

type RetryQueueRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*domain.RetryEntry
}

func NewRetryQueueRepository() *RetryQueueRepository {
	return &RetryQueueRepository{entries: make(map[uuid.UUID]*domain.RetryEntry)}
}

func (r *RetryQueueRepository) Get(_ context.Context, eventID uuid.UUID) (*domain.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[eventID]
	if !ok {
		return nil, domain.ErrRetryEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *RetryQueueRepository) IncrementAttempts(_ context.Context, eventID uuid.UUID, maxAttempts int, reason string) (*domain.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	e, ok := r.entries[eventID]
	if !ok {
		e = &domain.RetryEntry{
			EventID:     eventID,
			MaxAttempts: maxAttempts,
			NextRetryAt: now,
			CreatedAt:   now,
		}
		r.entries[eventID] = e
	}
	if e.Attempts < e.MaxAttempts {
		e.Attempts++
	}
	e.LastError = reason
	e.ClaimedUntil = nil
	e.UpdatedAt = now

	cp := *e
	return &cp, nil
}

func (r *RetryQueueRepository) Schedule(_ context.Context, eventID uuid.UUID, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[eventID]
	if !ok {
		return domain.ErrRetryEntryNotFound
	}
	e.NextRetryAt = nextRetryAt
	e.ClaimedUntil = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RetryQueueRepository) Enqueue(_ context.Context, eventID uuid.UUID, maxAttempts int, nextRetryAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	e, ok := r.entries[eventID]
	if !ok {
		e = &domain.RetryEntry{EventID: eventID, CreatedAt: now}
		r.entries[eventID] = e
	}
	e.Attempts = 0
	e.MaxAttempts = maxAttempts
	e.NextRetryAt = nextRetryAt
	e.ClaimedUntil = nil
	e.UpdatedAt = now
	return nil
}

func (r *RetryQueueRepository) Delete(_ context.Context, eventID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, eventID)
	return nil
}

func (r *RetryQueueRepository) ClaimDue(_ context.Context, now time.Time, lease time.Duration, limit int) ([]domain.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*domain.RetryEntry
	for _, e := range r.entries {
		if e.NextRetryAt.After(now) {
			continue
		}
		if e.ClaimedUntil != nil && !e.ClaimedUntil.Before(now) {
			continue
		}
		due = append(due, e)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].NextRetryAt.Before(due[j].NextRetryAt) })

	until := now.Add(lease)
	var claimed []domain.RetryEntry
	for _, e := range due {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		e.ClaimedUntil = &until
		claimed = append(claimed, *e)
	}
	return claimed, nil
}

func (r *RetryQueueRepository) MakeDue(_ context.Context, eventID uuid.UUID, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[eventID]
	if !ok {
		return domain.ErrRetryEntryNotFound
	}
	e.NextRetryAt = now
	e.ClaimedUntil = nil
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *RetryQueueRepository) List(_ context.Context, limit int) ([]domain.RetryEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.RetryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextRetryAt.Before(out[j].NextRetryAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *RetryQueueRepository) Stats(_ context.Context) (domain.RetryQueueStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := domain.RetryQueueStats{Depth: int64(len(r.entries))}
	for _, e := range r.entries {
		if stats.OldestEntry == nil || e.CreatedAt.Before(*stats.OldestEntry) {
			t := e.CreatedAt
			stats.OldestEntry = &t
		}
	}
	return stats, nil
}

type DeadLetterRepository struct {
	mu      sync.RWMutex
	letters map[uuid.UUID]*domain.DeadLetter
}

func NewDeadLetterRepository() *DeadLetterRepository {
	return &DeadLetterRepository{letters: make(map[uuid.UUID]*domain.DeadLetter)}
}

func (r *DeadLetterRepository) Create(_ context.Context, dl *domain.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.letters {
		if existing.EventID == dl.EventID && existing.ReplayedAt == nil {
			return nil
		}
	}
	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}
	cp := *dl
	r.letters[dl.ID] = &cp
	return nil
}

func (r *DeadLetterRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	dl, ok := r.letters[id]
	if !ok {
		return nil, domain.ErrDeadLetterNotFound
	}
	cp := *dl
	return &cp, nil
}

func (r *DeadLetterRepository) List(_ context.Context, limit int) ([]domain.DeadLetter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.DeadLetter, 0, len(r.letters))
	for _, dl := range r.letters {
		out = append(out, *dl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DeadLetterRepository) MarkReplayed(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	dl, ok := r.letters[id]
	if !ok {
		return domain.ErrDeadLetterNotFound
	}
	if dl.ReplayedAt != nil {
		return domain.ErrDeadLetterReplayed
	}
	now := time.Now().UTC()
	dl.ReplayedAt = &now
	return nil
}

func (r *DeadLetterRepository) Stats(_ context.Context) (domain.DeadLetterStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := domain.DeadLetterStats{ByEventType: make(map[string]int64)}
	for _, dl := range r.letters {
		if dl.ReplayedAt != nil {
			continue
		}
		stats.Total++
		stats.ByEventType[dl.EventType]++
	}
	return stats, nil
}

type SyncJobRepository struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*domain.SyncJob
}

func NewSyncJobRepository() *SyncJobRepository {
	return &SyncJobRepository{jobs: make(map[uuid.UUID]*domain.SyncJob)}
}

func (r *SyncJobRepository) Create(_ context.Context, job *domain.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.SyncJobStatusQueued
	}
	job.CreatedAt = time.Now().UTC()
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *SyncJobRepository) Update(_ context.Context, job *domain.SyncJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	cp := *job
	cp.CreatedAt = existing.CreatedAt
	r.jobs[job.ID] = &cp
	return nil
}

func (r *SyncJobRepository) List(_ context.Context, jobType string, limit int) ([]domain.SyncJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SyncJob
	for _, j := range r.jobs {
		if jobType == "" || j.JobType == jobType {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
