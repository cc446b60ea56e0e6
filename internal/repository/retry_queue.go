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

const retryColumns = `event_id, attempts, max_attempts, next_retry_at, last_error, claimed_until, created_at, updated_at`

type RetryQueueRepo struct {
	pool PgxPool
}

func NewRetryQueueRepository(pool PgxPool) *RetryQueueRepo {
	return &RetryQueueRepo{pool: pool}
}

func scanRetryEntry(row pgx.Row) (*domain.RetryEntry, error) {
	var e domain.RetryEntry
	err := row.Scan(
		&e.EventID,
		&e.Attempts,
		&e.MaxAttempts,
		&e.NextRetryAt,
		&e.LastError,
		&e.ClaimedUntil,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *RetryQueueRepo) Get(ctx context.Context, eventID uuid.UUID) (*domain.RetryEntry, error) {
	query := `SELECT ` + retryColumns + ` FROM retry_queue WHERE event_id = $1`

	e, err := scanRetryEntry(r.pool.QueryRow(ctx, query, eventID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRetryEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get retry entry: %w", err)
	}
	return e, nil
}

func (r *RetryQueueRepo) IncrementAttempts(ctx context.Context, eventID uuid.UUID, maxAttempts int, reason string) (*domain.RetryEntry, error) {
	query := `
		INSERT INTO retry_queue (event_id, attempts, max_attempts, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, 1, $2, NOW(), $3, NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE
		SET attempts = LEAST(retry_queue.attempts + 1, retry_queue.max_attempts),
		    last_error = EXCLUDED.last_error,
		    claimed_until = NULL,
		    updated_at = NOW()
		RETURNING ` + retryColumns

	e, err := scanRetryEntry(r.pool.QueryRow(ctx, query, eventID, maxAttempts, reason))
	if err != nil {
		return nil, fmt.Errorf("increment retry attempts: %w", err)
	}
	return e, nil
}

func (r *RetryQueueRepo) Schedule(ctx context.Context, eventID uuid.UUID, nextRetryAt time.Time) error {
	query := `
		UPDATE retry_queue
		SET next_retry_at = $2, claimed_until = NULL, updated_at = NOW()
		WHERE event_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, eventID, nextRetryAt)
	if err != nil {
		return fmt.Errorf("schedule retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRetryEntryNotFound
	}
	return nil
}

func (r *RetryQueueRepo) Enqueue(ctx context.Context, eventID uuid.UUID, maxAttempts int, nextRetryAt time.Time) error {
	query := `
		INSERT INTO retry_queue (event_id, attempts, max_attempts, next_retry_at, last_error, created_at, updated_at)
		VALUES ($1, 0, $2, $3, '', NOW(), NOW())
		ON CONFLICT (event_id) DO UPDATE
		SET attempts = 0,
		    max_attempts = EXCLUDED.max_attempts,
		    next_retry_at = EXCLUDED.next_retry_at,
		    claimed_until = NULL,
		    updated_at = NOW()
	`

	if _, err := r.pool.Exec(ctx, query, eventID, maxAttempts, nextRetryAt); err != nil {
		return fmt.Errorf("enqueue retry: %w", err)
	}
	return nil
}

func (r *RetryQueueRepo) Delete(ctx context.Context, eventID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM retry_queue WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("delete retry entry: %w", err)
	}
	return nil
}

// ClaimDue leases due entries in one statement. SKIP LOCKED keeps concurrent
// sweeps from blocking on, or double-claiming, the same rows.
func (r *RetryQueueRepo) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.RetryEntry, error) {
	query := `
		UPDATE retry_queue
		SET claimed_until = $2, updated_at = NOW()
		WHERE event_id IN (
			SELECT event_id FROM retry_queue
			WHERE next_retry_at <= $1
			  AND (claimed_until IS NULL OR claimed_until < $1)
			ORDER BY next_retry_at
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + retryColumns

	rows, err := r.pool.Query(ctx, query, now, now.Add(lease), limit)
	if err != nil {
		return nil, fmt.Errorf("claim due retries: %w", err)
	}
	defer rows.Close()

	var entries []domain.RetryEntry
	for rows.Next() {
		e, err := scanRetryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retry entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *RetryQueueRepo) MakeDue(ctx context.Context, eventID uuid.UUID, now time.Time) error {
	query := `
		UPDATE retry_queue
		SET next_retry_at = $2, claimed_until = NULL, updated_at = NOW()
		WHERE event_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, eventID, now)
	if err != nil {
		return fmt.Errorf("requeue retry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRetryEntryNotFound
	}
	return nil
}

func (r *RetryQueueRepo) List(ctx context.Context, limit int) ([]domain.RetryEntry, error) {
	query := `SELECT ` + retryColumns + ` FROM retry_queue ORDER BY next_retry_at LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list retry queue: %w", err)
	}
	defer rows.Close()

	var entries []domain.RetryEntry
	for rows.Next() {
		e, err := scanRetryEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan retry entry: %w", err)
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

func (r *RetryQueueRepo) Stats(ctx context.Context) (domain.RetryQueueStats, error) {
	query := `SELECT COUNT(*), MIN(created_at) FROM retry_queue`

	var stats domain.RetryQueueStats
	if err := r.pool.QueryRow(ctx, query).Scan(&stats.Depth, &stats.OldestEntry); err != nil {
		return domain.RetryQueueStats{}, fmt.Errorf("retry queue stats: %w", err)
	}
	return stats, nil
}
