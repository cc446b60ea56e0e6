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

const endpointColumns = `id, system_name, url, secret, active, created_at, updated_at`

type EndpointRepo struct {
	pool PgxPool
}

func NewEndpointRepository(pool PgxPool) *EndpointRepo {
	return &EndpointRepo{pool: pool}
}

func (r *EndpointRepo) scanAll(rows pgx.Rows) ([]domain.WebhookEndpoint, error) {
	defer rows.Close()

	var endpoints []domain.WebhookEndpoint
	for rows.Next() {
		var ep domain.WebhookEndpoint
		if err := rows.Scan(
			&ep.ID,
			&ep.SystemName,
			&ep.URL,
			&ep.Secret,
			&ep.Active,
			&ep.CreatedAt,
			&ep.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		endpoints = append(endpoints, ep)
	}
	return endpoints, rows.Err()
}

func (r *EndpointRepo) ListActiveBySystems(ctx context.Context, systems []string) ([]domain.WebhookEndpoint, error) {
	if len(systems) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + endpointColumns + `
		FROM webhook_endpoints
		WHERE active = TRUE AND system_name = ANY($1)
		ORDER BY system_name, created_at
	`

	rows, err := r.pool.Query(ctx, query, systems)
	if err != nil {
		return nil, fmt.Errorf("list active endpoints: %w", err)
	}
	return r.scanAll(rows)
}

func (r *EndpointRepo) List(ctx context.Context) ([]domain.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints ORDER BY system_name, created_at`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	return r.scanAll(rows)
}

func (r *EndpointRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM webhook_endpoints WHERE id = $1`

	var ep domain.WebhookEndpoint
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&ep.ID,
		&ep.SystemName,
		&ep.URL,
		&ep.Secret,
		&ep.Active,
		&ep.CreatedAt,
		&ep.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrEndpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint by id: %w", err)
	}
	return &ep, nil
}

func (r *EndpointRepo) Create(ctx context.Context, endpoint *domain.WebhookEndpoint) error {
	query := `
		INSERT INTO webhook_endpoints (id, system_name, url, secret, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`

	if endpoint.ID == uuid.Nil {
		endpoint.ID = uuid.New()
	}
	now := time.Now().UTC()
	endpoint.CreatedAt = now
	endpoint.UpdatedAt = now

	_, err := r.pool.Exec(ctx, query,
		endpoint.ID,
		endpoint.SystemName,
		endpoint.URL,
		endpoint.Secret,
		endpoint.Active,
		now,
	)
	if isUniqueViolation(err) {
		return domain.ErrEndpointExists
	}
	if err != nil {
		return fmt.Errorf("create endpoint: %w", err)
	}
	return nil
}

func (r *EndpointRepo) Update(ctx context.Context, endpoint *domain.WebhookEndpoint) error {
	query := `
		UPDATE webhook_endpoints
		SET url = $2, secret = $3, active = $4, updated_at = $5
		WHERE id = $1
	`

	endpoint.UpdatedAt = time.Now().UTC()

	tag, err := r.pool.Exec(ctx, query,
		endpoint.ID,
		endpoint.URL,
		endpoint.Secret,
		endpoint.Active,
		endpoint.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return domain.ErrEndpointExists
	}
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrEndpointNotFound
	}
	return nil
}
