package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

const eventColumns = `id, event_type, source_system, payload, idempotency_key, status, created_at, updated_at`

type EventRepo struct {
	pool PgxPool
}

func NewEventRepository(pool PgxPool) *EventRepo {
	return &EventRepo{pool: pool}
}

func scanEvent(row pgx.Row) (*domain.IntegrationEvent, error) {
	var e domain.IntegrationEvent
	err := row.Scan(
		&e.ID,
		&e.EventType,
		&e.SourceSystem,
		&e.Payload,
		&e.IdempotencyKey,
		&e.Status,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *EventRepo) Insert(ctx context.Context, event *domain.IntegrationEvent) (bool, error) {
	query := `
		INSERT INTO integration_events (id, event_type, source_system, payload, idempotency_key, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (event_type, source_system, idempotency_key) WHERE idempotency_key IS NOT NULL
		DO NOTHING
	`

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

	tag, err := r.pool.Exec(ctx, query,
		event.ID,
		event.EventType,
		event.SourceSystem,
		event.Payload,
		event.IdempotencyKey,
		event.Status,
		event.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.IntegrationEvent, error) {
	query := `SELECT ` + eventColumns + ` FROM integration_events WHERE id = $1`

	e, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event by id: %w", err)
	}
	return e, nil
}

func (r *EventRepo) FindByIdempotencyKey(ctx context.Context, eventType, sourceSystem, key string) (*domain.IntegrationEvent, error) {
	query := `
		SELECT ` + eventColumns + `
		FROM integration_events
		WHERE event_type = $1 AND source_system = $2 AND idempotency_key = $3
	`

	e, err := scanEvent(r.pool.QueryRow(ctx, query, eventType, sourceSystem, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find event by idempotency key: %w", err)
	}
	return e, nil
}

func (r *EventRepo) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	query := `
		UPDATE integration_events
		SET status = 'processing', updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("claim event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EventRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus) error {
	query := `UPDATE integration_events SET status = $2, updated_at = NOW() WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEventNotFound
	}
	return nil
}

func (r *EventRepo) ListPendingIDs(ctx context.Context, limit int) ([]uuid.UUID, error) {
	query := `
		SELECT id FROM integration_events
		WHERE status = 'pending'
		ORDER BY created_at
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending event: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *EventRepo) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE integration_events
		SET status = 'pending', updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("release stale events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *EventRepo) CountByStatus(ctx context.Context) (map[domain.EventStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM integration_events GROUP BY status`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count events by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.EventStatus]int64)
	for rows.Next() {
		var status domain.EventStatus
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan event count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
