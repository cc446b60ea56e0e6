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

const deadLetterColumns = `id, event_id, event_type, reason, attempts, replayed_at, created_at`

type DeadLetterRepo struct {
	pool PgxPool
}

func NewDeadLetterRepository(pool PgxPool) *DeadLetterRepo {
	return &DeadLetterRepo{pool: pool}
}

func (r *DeadLetterRepo) Create(ctx context.Context, dl *domain.DeadLetter) error {
	query := `
		INSERT INTO dead_letters (id, event_id, event_type, reason, attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (event_id) WHERE replayed_at IS NULL DO NOTHING
	`

	if dl.ID == uuid.Nil {
		dl.ID = uuid.New()
	}
	if dl.CreatedAt.IsZero() {
		dl.CreatedAt = time.Now().UTC()
	}

	if _, err := r.pool.Exec(ctx, query,
		dl.ID,
		dl.EventID,
		dl.EventType,
		dl.Reason,
		dl.Attempts,
		dl.CreatedAt,
	); err != nil {
		return fmt.Errorf("create dead letter: %w", err)
	}
	return nil
}

func (r *DeadLetterRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE id = $1`

	var dl domain.DeadLetter
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&dl.ID,
		&dl.EventID,
		&dl.EventType,
		&dl.Reason,
		&dl.Attempts,
		&dl.ReplayedAt,
		&dl.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDeadLetterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return &dl, nil
}

func (r *DeadLetterRepo) List(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters ORDER BY created_at DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []domain.DeadLetter
	for rows.Next() {
		var dl domain.DeadLetter
		if err := rows.Scan(
			&dl.ID,
			&dl.EventID,
			&dl.EventType,
			&dl.Reason,
			&dl.Attempts,
			&dl.ReplayedAt,
			&dl.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letters = append(letters, dl)
	}
	return letters, rows.Err()
}

func (r *DeadLetterRepo) MarkReplayed(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE dead_letters SET replayed_at = NOW() WHERE id = $1 AND replayed_at IS NULL`

	tag, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("mark dead letter replayed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeadLetterReplayed
	}
	return nil
}

// Stats counts dead letters that have not been replayed.
func (r *DeadLetterRepo) Stats(ctx context.Context) (domain.DeadLetterStats, error) {
	query := `
		SELECT event_type, COUNT(*)
		FROM dead_letters
		WHERE replayed_at IS NULL
		GROUP BY event_type
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return domain.DeadLetterStats{}, fmt.Errorf("dead letter stats: %w", err)
	}
	defer rows.Close()

	stats := domain.DeadLetterStats{ByEventType: make(map[string]int64)}
	for rows.Next() {
		var eventType string
		var n int64
		if err := rows.Scan(&eventType, &n); err != nil {
			return domain.DeadLetterStats{}, fmt.Errorf("scan dead letter stats: %w", err)
		}
		stats.ByEventType[eventType] = n
		stats.Total += n
	}
	return stats, rows.Err()
}
