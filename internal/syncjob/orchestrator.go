// Package syncjob runs batch synchronisations that pull pending work from
// one system and push it into another.
package syncjob

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/metrics"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

const (
	CompletedEventType = "sync.completed"
	HubSystem          = "integracoes"
)

// Emitter feeds events back into intake.
type Emitter interface {
	Process(ctx context.Context, eventType, sourceSystem string, payload map[string]any) (*domain.IntegrationEvent, bool, error)
}

type Orchestrator struct {
	jobs      repository.SyncJobRepository
	client    *Client
	emitter   Emitter
	defs      map[string]Definition
	batchSize int
	logger    *slog.Logger
	now       func() time.Time
}

func NewOrchestrator(jobs repository.SyncJobRepository, client *Client, emitter Emitter, defs []Definition, batchSize int, logger *slog.Logger) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 50
	}
	byType := make(map[string]Definition, len(defs))
	for _, d := range defs {
		byType[d.Type] = d
	}
	return &Orchestrator{
		jobs:      jobs,
		client:    client,
		emitter:   emitter,
		defs:      byType,
		batchSize: batchSize,
		logger:    logger,
		now:       time.Now,
	}
}

// Definitions lists configured jobs sorted by type.
func (o *Orchestrator) Definitions() []Definition {
	out := make([]Definition, 0, len(o.defs))
	for _, d := range o.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}

func (o *Orchestrator) History(ctx context.Context, jobType string, limit int) ([]domain.SyncJob, error) {
	return o.jobs.List(ctx, jobType, limit)
}

// Run executes one batch. Items confirmed before a failure stay synced.
// A fetch error or any item failure ends the job as failed; the returned
// error is reserved for problems recording the job itself.
func (o *Orchestrator) Run(ctx context.Context, jobType string) (*domain.SyncJob, error) {
	def, ok := o.defs[jobType]
	if !ok {
		return nil, domain.ErrUnknownSyncJob.WithError(fmt.Errorf("job type %q", jobType))
	}

	job := &domain.SyncJob{
		ID:        uuid.New(),
		JobType:   def.Type,
		Status:    domain.SyncJobStatusQueued,
		CreatedAt: o.now().UTC(),
	}
	if err := o.jobs.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("create sync job: %w", err)
	}

	logger := o.logger.With(
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", jobType),
	)

	started := o.now().UTC()
	job.Status = domain.SyncJobStatusRunning
	job.StartedAt = &started
	if err := o.jobs.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("start sync job: %w", err)
	}
	logger.Info("sync job started")

	o.execute(ctx, def, job, logger)

	finished := o.now().UTC()
	job.FinishedAt = &finished
	if err := o.jobs.Update(ctx, job); err != nil {
		return job, fmt.Errorf("finish sync job: %w", err)
	}
	metrics.SyncJobDuration.WithLabelValues(jobType).Observe(finished.Sub(started).Seconds())

	logger.Info("sync job finished",
		slog.String("status", string(job.Status)),
		slog.Int("items_total", job.ItemsTotal),
		slog.Int("items_synced", job.ItemsSynced),
		slog.Int("items_failed", job.ItemsFailed),
	)

	o.emit(ctx, job, logger)
	return job, nil
}

func (o *Orchestrator) execute(ctx context.Context, def Definition, job *domain.SyncJob, logger *slog.Logger) {
	items, err := o.client.FetchPending(ctx, def.Source, def.FetchPath, o.batchSize)
	if err != nil {
		msg := fmt.Sprintf("fetch pending from %s: %v", def.Source, err)
		job.Status = domain.SyncJobStatusFailed
		job.LastError = &msg
		logger.Error("sync fetch failed", slog.String("error", err.Error()))
		return
	}

	job.ItemsTotal = len(items)
	for _, item := range items {
		if err := o.syncItem(ctx, def, item); err != nil {
			job.ItemsFailed++
			msg := err.Error()
			job.LastError = &msg
			metrics.SyncItems.WithLabelValues(def.Type, "failed").Inc()
			logger.Warn("sync item failed", slog.String("error", msg))
			continue
		}
		job.ItemsSynced++
		metrics.SyncItems.WithLabelValues(def.Type, "synced").Inc()
	}

	job.Status = domain.SyncJobStatusDone
	if job.ItemsFailed > 0 {
		job.Status = domain.SyncJobStatusFailed
	}
}

func (o *Orchestrator) syncItem(ctx context.Context, def Definition, item map[string]any) error {
	id := itemID(item, def.IDField)
	if id == "" {
		return fmt.Errorf("item without %q field", def.IDField)
	}

	if err := o.client.Send(ctx, def.PushMethod, def.Target, expand(def.PushPath, id), item); err != nil {
		return fmt.Errorf("push item %s to %s: %w", id, def.Target, err)
	}

	confirm := map[string]any{"id": id, "synced_to": def.Target}
	if err := o.client.Send(ctx, http.MethodPost, def.Source, expand(def.ConfirmPath, id), confirm); err != nil {
		return fmt.Errorf("confirm item %s on %s: %w", id, def.Source, err)
	}
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, job *domain.SyncJob, logger *slog.Logger) {
	if o.emitter == nil {
		return
	}
	payload := map[string]any{
		domain.IdempotencyKeyField: job.ID.String(),
		"job_id":                   job.ID.String(),
		"job_type":                 job.JobType,
		"status":                   string(job.Status),
		"items_total":              job.ItemsTotal,
		"items_synced":             job.ItemsSynced,
		"items_failed":             job.ItemsFailed,
	}
	if _, _, err := o.emitter.Process(ctx, CompletedEventType, HubSystem, payload); err != nil {
		logger.Error("failed to emit sync.completed", slog.String("error", err.Error()))
	}
}

func itemID(item map[string]any, field string) string {
	if field == "" {
		field = "id"
	}
	switch v := item[field].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// expand fills {id} with the escaped item id so that ids containing
// reserved characters stay a single path segment.
func expand(path, id string) string {
	return strings.ReplaceAll(path, "{id}", url.PathEscape(id))
}
