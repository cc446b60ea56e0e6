package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

type SyncJobRepo struct {
	pool PgxPool
}

func NewSyncJobRepository(pool PgxPool) *SyncJobRepo {
	return &SyncJobRepo{pool: pool}
}

func (r *SyncJobRepo) Create(ctx context.Context, job *domain.SyncJob) error {
	query := `
		INSERT INTO sync_jobs (id, job_type, status, created_at)
		VALUES ($1, $2, $3, $4)
	`

	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = domain.SyncJobStatusQueued
	}
	job.CreatedAt = time.Now().UTC()

	if _, err := r.pool.Exec(ctx, query, job.ID, job.JobType, job.Status, job.CreatedAt); err != nil {
		return fmt.Errorf("create sync job: %w", err)
	}
	return nil
}

func (r *SyncJobRepo) Update(ctx context.Context, job *domain.SyncJob) error {
	query := `
		UPDATE sync_jobs
		SET status = $2,
		    items_total = $3,
		    items_synced = $4,
		    items_failed = $5,
		    last_error = $6,
		    started_at = $7,
		    finished_at = $8
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		job.ID,
		job.Status,
		job.ItemsTotal,
		job.ItemsSynced,
		job.ItemsFailed,
		job.LastError,
		job.StartedAt,
		job.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("update sync job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update sync job: %w", domain.ErrNotFound)
	}
	return nil
}

// List returns the most recent runs, optionally filtered by job type.
func (r *SyncJobRepo) List(ctx context.Context, jobType string, limit int) ([]domain.SyncJob, error) {
	query := `
		SELECT id, job_type, status, items_total, items_synced, items_failed,
		       last_error, started_at, finished_at, created_at
		FROM sync_jobs
		WHERE ($1 = '' OR job_type = $1)
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, jobType, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.SyncJob
	for rows.Next() {
		var j domain.SyncJob
		if err := rows.Scan(
			&j.ID,
			&j.JobType,
			&j.Status,
			&j.ItemsTotal,
			&j.ItemsSynced,
			&j.ItemsFailed,
			&j.LastError,
			&j.StartedAt,
			&j.FinishedAt,
			&j.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan sync job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
