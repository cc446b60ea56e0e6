// Package admin holds the operator endpoints under /v1/admin.
package admin

import (
	"context"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/monitor"
)

type MonitorService interface {
	Dashboard(ctx context.Context) (*monitor.Snapshot, error)
	CheckAlerts(ctx context.Context) ([]monitor.Alert, error)
	Health(ctx context.Context) (*monitor.Health, error)
}

type MonitorHandler struct {
	monitor MonitorService
	logger  *slog.Logger
}

func NewMonitorHandler(m MonitorService, logger *slog.Logger) *MonitorHandler {
	return &MonitorHandler{
		monitor: m,
		logger:  logger,
	}
}

func (h *MonitorHandler) Dashboard(c *fiber.Ctx) error {
	snap, err := h.monitor.Dashboard(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(snap)
}

func (h *MonitorHandler) Alerts(c *fiber.Ctx) error {
	alerts, err := h.monitor.CheckAlerts(c.UserContext())
	if err != nil {
		return err
	}
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	return c.JSON(fiber.Map{
		"alerts": alerts,
		"total":  len(alerts),
	})
}

// Health answers 503 only when the hub is critical.
func (h *MonitorHandler) Health(c *fiber.Ctx) error {
	health, err := h.monitor.Health(c.UserContext())
	if err != nil {
		return err
	}

	status := fiber.StatusOK
	if health.Status == monitor.HealthCritical {
		status = fiber.StatusServiceUnavailable
	}
	return c.Status(status).JSON(health)
}
