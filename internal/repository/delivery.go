package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

const deliveryColumns = `id, event_id, endpoint_id, status, attempts, response_status, last_attempt_at, last_error, created_at, updated_at`

type DeliveryRepo struct {
	pool PgxPool
}

func NewDeliveryRepository(pool PgxPool) *DeliveryRepo {
	return &DeliveryRepo{pool: pool}
}

// GetOrCreate returns the delivery for (event, endpoint), inserting a pending
// row on first use. The no-op update makes RETURNING yield the existing row.
func (r *DeliveryRepo) GetOrCreate(ctx context.Context, eventID, endpointID uuid.UUID) (*domain.WebhookDelivery, error) {
	query := `
		INSERT INTO webhook_deliveries (id, event_id, endpoint_id, status, attempts, created_at, updated_at)
		VALUES ($1, $2, $3, 'pending', 0, NOW(), NOW())
		ON CONFLICT (event_id, endpoint_id)
		DO UPDATE SET updated_at = webhook_deliveries.updated_at
		RETURNING ` + deliveryColumns

	var d domain.WebhookDelivery
	err := r.pool.QueryRow(ctx, query, uuid.New(), eventID, endpointID).Scan(
		&d.ID,
		&d.EventID,
		&d.EndpointID,
		&d.Status,
		&d.Attempts,
		&d.ResponseStatus,
		&d.LastAttemptAt,
		&d.LastError,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create delivery: %w", err)
	}
	return &d, nil
}

func (r *DeliveryRepo) MarkSent(ctx context.Context, id uuid.UUID, responseStatus int) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'sent',
		    attempts = attempts + 1,
		    response_status = $2,
		    last_attempt_at = NOW(),
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, responseStatus)
	if err != nil {
		return fmt.Errorf("mark delivery sent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

func (r *DeliveryRepo) MarkFailed(ctx context.Context, id uuid.UUID, responseStatus *int, reason string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'failed',
		    attempts = attempts + 1,
		    response_status = $2,
		    last_attempt_at = NOW(),
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, responseStatus, nullableString(reason))
	if err != nil {
		return fmt.Errorf("mark delivery failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDeliveryNotFound
	}
	return nil
}

func (r *DeliveryRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error) {
	query := `SELECT ` + deliveryColumns + ` FROM webhook_deliveries WHERE event_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var deliveries []domain.WebhookDelivery
	for rows.Next() {
		var d domain.WebhookDelivery
		if err := rows.Scan(
			&d.ID,
			&d.EventID,
			&d.EndpointID,
			&d.Status,
			&d.Attempts,
			&d.ResponseStatus,
			&d.LastAttemptAt,
			&d.LastError,
			&d.CreatedAt,
			&d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, rows.Err()
}

// Stats counts deliveries touched since the given time.
func (r *DeliveryRepo) Stats(ctx context.Context, since time.Time) (domain.DeliveryStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'sent'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending')
		FROM webhook_deliveries
		WHERE updated_at >= $1
	`

	var stats domain.DeliveryStats
	if err := r.pool.QueryRow(ctx, query, since).Scan(&stats.Sent, &stats.Failed, &stats.Pending); err != nil {
		return domain.DeliveryStats{}, fmt.Errorf("delivery stats: %w", err)
	}
	return stats, nil
}
