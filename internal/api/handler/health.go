package handler

import (
	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/database"
)

const Version = "1.0.0"

// QueueChecker reports whether the dispatch queue can accept signals.
type QueueChecker interface {
	Healthy() bool
}

type HealthHandler struct {
	db    database.Pinger
	queue QueueChecker
}

// NewHealthHandler builds the probe handler. A nil db or queue skips that
// check, which is what the memory store driver wants.
func NewHealthHandler(db database.Pinger, queue QueueChecker) *HealthHandler {
	return &HealthHandler{db: db, queue: queue}
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:  "ok",
		Version: Version,
	})
}

func (h *HealthHandler) Ready(c *fiber.Ctx) error {
	if h.db != nil {
		if err := database.HealthCheck(c.UserContext(), h.db); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
				Status: "unavailable",
				Error:  "database unreachable",
			})
		}
	}

	if h.queue != nil && !h.queue.Healthy() {
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{
			Status: "unavailable",
			Error:  "dispatch queue unavailable",
		})
	}

	return c.JSON(HealthResponse{
		Status: "ready",
	})
}
