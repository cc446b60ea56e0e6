package admin

import (
	"context"
	"log/slog"
	"slices"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

type CircuitService interface {
	Status(ctx context.Context, service string) breaker.Status
	StatusAll(ctx context.Context, services []string) []breaker.Status
	Reset(ctx context.Context, service string) error
}

type CircuitsHandler struct {
	breaker CircuitService
	systems []string
	logger  *slog.Logger
}

func NewCircuitsHandler(b CircuitService, systems []string, logger *slog.Logger) *CircuitsHandler {
	return &CircuitsHandler{
		breaker: b,
		systems: systems,
		logger:  logger,
	}
}

func (h *CircuitsHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"circuits": h.breaker.StatusAll(c.UserContext(), h.systems),
	})
}

func (h *CircuitsHandler) Reset(c *fiber.Ctx) error {
	service := utils.CopyString(strings.TrimSpace(c.Params("service")))
	if service == "" {
		return domain.ErrBadRequest
	}
	if len(h.systems) > 0 && !slices.Contains(h.systems, service) {
		return domain.ErrNotFound
	}

	if err := h.breaker.Reset(c.UserContext(), service); err != nil {
		return domain.ErrInternal.WithError(err)
	}

	h.logger.Info("circuit reset by operator", slog.String("system", service))

	return c.JSON(h.breaker.Status(c.UserContext(), service))
}
