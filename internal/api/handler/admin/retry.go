package admin

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/retry"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

type RetryService interface {
	ProcessRetryQueue(ctx context.Context, limit int) (retry.SweepResult, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
	ReplayDeadLetter(ctx context.Context, id uuid.UUID) (*domain.DeadLetter, error)
}

type RetryQueueReader interface {
	List(ctx context.Context, limit int) ([]domain.RetryEntry, error)
	Stats(ctx context.Context) (domain.RetryQueueStats, error)
}

type DeadLetterReader interface {
	List(ctx context.Context, limit int) ([]domain.DeadLetter, error)
	Stats(ctx context.Context) (domain.DeadLetterStats, error)
}

type RetryHandler struct {
	scheduler   RetryService
	queue       RetryQueueReader
	deadLetters DeadLetterReader
	logger      *slog.Logger
}

func NewRetryHandler(scheduler RetryService, queue RetryQueueReader, deadLetters DeadLetterReader, logger *slog.Logger) *RetryHandler {
	return &RetryHandler{
		scheduler:   scheduler,
		queue:       queue,
		deadLetters: deadLetters,
		logger:      logger,
	}
}

func listLimit(c *fiber.Ctx) int {
	limit := c.QueryInt("limit", defaultListLimit)
	if limit <= 0 {
		return defaultListLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}

func (h *RetryHandler) ListQueue(c *fiber.Ctx) error {
	entries, err := h.queue.List(c.UserContext(), listLimit(c))
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	stats, err := h.queue.Stats(c.UserContext())
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	if entries == nil {
		entries = []domain.RetryEntry{}
	}

	return c.JSON(fiber.Map{
		"entries": entries,
		"stats":   stats,
	})
}

// ProcessQueue runs one retry sweep synchronously.
func (h *RetryHandler) ProcessQueue(c *fiber.Ctx) error {
	result, err := h.scheduler.ProcessRetryQueue(c.UserContext(), listLimit(c))
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	return c.JSON(result)
}

func (h *RetryHandler) Requeue(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("event_id"))
	if err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	if err := h.scheduler.Requeue(c.UserContext(), id); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"event_id": id,
		"status":   "requeued",
	})
}

func (h *RetryHandler) ListDeadLetters(c *fiber.Ctx) error {
	letters, err := h.deadLetters.List(c.UserContext(), listLimit(c))
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	stats, err := h.deadLetters.Stats(c.UserContext())
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	if letters == nil {
		letters = []domain.DeadLetter{}
	}

	return c.JSON(fiber.Map{
		"dead_letters": letters,
		"stats":        stats,
	})
}

func (h *RetryHandler) Replay(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	dl, err := h.scheduler.ReplayDeadLetter(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(dl)
}
