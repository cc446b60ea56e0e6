package admin

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/syncjob"
)

type SyncService interface {
	Definitions() []syncjob.Definition
	History(ctx context.Context, jobType string, limit int) ([]domain.SyncJob, error)
	Run(ctx context.Context, jobType string) (*domain.SyncJob, error)
}

type SyncHandler struct {
	orchestrator SyncService
	logger       *slog.Logger
}

func NewSyncHandler(orchestrator SyncService, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// List returns the configured jobs and the most recent runs, optionally
// filtered by ?job_type=.
func (h *SyncHandler) List(c *fiber.Ctx) error {
	jobs, err := h.orchestrator.History(c.UserContext(), c.Query("job_type"), listLimit(c))
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	if jobs == nil {
		jobs = []domain.SyncJob{}
	}

	return c.JSON(fiber.Map{
		"definitions": h.orchestrator.Definitions(),
		"jobs":        jobs,
	})
}

// Run executes a sync job to completion before answering. A job that ran
// and failed is still a 200; its status says how it went.
func (h *SyncHandler) Run(c *fiber.Ctx) error {
	job, err := h.orchestrator.Run(c.UserContext(), utils.CopyString(c.Params("job_type")))
	if err != nil {
		return err
	}

	h.logger.Info("sync job run by operator",
		slog.String("job_id", job.ID.String()),
		slog.String("job_type", job.JobType),
		slog.String("status", string(job.Status)),
	)
	return c.JSON(job)
}
