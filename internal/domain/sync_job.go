package domain

import (
	"time"

	"github.com/google/uuid"
)

type SyncJobStatus string

const (
	SyncJobStatusQueued  SyncJobStatus = "queued"
	SyncJobStatusRunning SyncJobStatus = "running"
	SyncJobStatusDone    SyncJobStatus = "done"
	SyncJobStatusFailed  SyncJobStatus = "failed"
)

// SyncJob is one run of a batch synchronisation between two systems.
type SyncJob struct {
	ID          uuid.UUID     `json:"id"`
	JobType     string        `json:"job_type"`
	Status      SyncJobStatus `json:"status"`
	ItemsTotal  int           `json:"items_total"`
	ItemsSynced int           `json:"items_synced"`
	ItemsFailed int           `json:"items_failed"`
	LastError   *string       `json:"last_error,omitempty"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	FinishedAt  *time.Time    `json:"finished_at,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
