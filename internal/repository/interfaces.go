package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

// EventRepository persists integration events and their idempotency index.
type EventRepository interface {
	// Insert stores the event unless one with the same idempotency triple
	// exists. It reports whether a row was written.
	Insert(ctx context.Context, event *domain.IntegrationEvent) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.IntegrationEvent, error)
	FindByIdempotencyKey(ctx context.Context, eventType, sourceSystem, key string) (*domain.IntegrationEvent, error)
	// Claim moves a pending event to processing. False means another worker owns it.
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus) error
	ListPendingIDs(ctx context.Context, limit int) ([]uuid.UUID, error)
	// ReleaseStale resets events stuck in processing since before cutoff.
	ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context) (map[domain.EventStatus]int64, error)
}

// EndpointRepository manages webhook endpoints. The pipeline only reads.
type EndpointRepository interface {
	ListActiveBySystems(ctx context.Context, systems []string) ([]domain.WebhookEndpoint, error)
	List(ctx context.Context) ([]domain.WebhookEndpoint, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error)
	Create(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	Update(ctx context.Context, endpoint *domain.WebhookEndpoint) error
}

// DeliveryRepository tracks one delivery per (event, endpoint).
type DeliveryRepository interface {
	GetOrCreate(ctx context.Context, eventID, endpointID uuid.UUID) (*domain.WebhookDelivery, error)
	MarkSent(ctx context.Context, id uuid.UUID, responseStatus int) error
	MarkFailed(ctx context.Context, id uuid.UUID, responseStatus *int, reason string) error
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error)
	Stats(ctx context.Context, since time.Time) (domain.DeliveryStats, error)
}

// RetryQueueRepository stores backoff state per event.
type RetryQueueRepository interface {
	Get(ctx context.Context, eventID uuid.UUID) (*domain.RetryEntry, error)
	// IncrementAttempts creates the entry with one attempt or bumps an
	// existing one, releasing any claim. It returns the updated entry.
	IncrementAttempts(ctx context.Context, eventID uuid.UUID, maxAttempts int, reason string) (*domain.RetryEntry, error)
	Schedule(ctx context.Context, eventID uuid.UUID, nextRetryAt time.Time) error
	// Enqueue (re)creates an entry with zero attempts due at nextRetryAt.
	Enqueue(ctx context.Context, eventID uuid.UUID, maxAttempts int, nextRetryAt time.Time) error
	Delete(ctx context.Context, eventID uuid.UUID) error
	// ClaimDue leases up to limit due entries until now+lease. An entry
	// is handed to at most one caller per lease.
	ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.RetryEntry, error)
	MakeDue(ctx context.Context, eventID uuid.UUID, now time.Time) error
	List(ctx context.Context, limit int) ([]domain.RetryEntry, error)
	Stats(ctx context.Context) (domain.RetryQueueStats, error)
}

// DeadLetterRepository is append-only apart from replay marking.
type DeadLetterRepository interface {
	// Create is a no-op when the event already has an unreplayed dead letter.
	Create(ctx context.Context, dl *domain.DeadLetter) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error)
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)
	MarkReplayed(ctx context.Context, id uuid.UUID) error
	Stats(ctx context.Context) (domain.DeadLetterStats, error)
}

// SyncJobRepository keeps the append-only sync run history.
type SyncJobRepository interface {
	Create(ctx context.Context, job *domain.SyncJob) error
	Update(ctx context.Context, job *domain.SyncJob) error
	List(ctx context.Context, jobType string, limit int) ([]domain.SyncJob, error)
}

// Store bundles the repositories the hub is built on.
type Store struct {
	Events      EventRepository
	Endpoints   EndpointRepository
	Deliveries  DeliveryRepository
	RetryQueue  RetryQueueRepository
	DeadLetters DeadLetterRepository
	SyncJobs    SyncJobRepository
}

// NewPostgresStore wires every repository to the same pool.
func NewPostgresStore(pool PgxPool) *Store {
	return &Store{
		Events:      NewEventRepository(pool),
		Endpoints:   NewEndpointRepository(pool),
		Deliveries:  NewDeliveryRepository(pool),
		RetryQueue:  NewRetryQueueRepository(pool),
		DeadLetters: NewDeadLetterRepository(pool),
		SyncJobs:    NewSyncJobRepository(pool),
	}
}
