package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/routing"
)

type RouteTable interface {
	Routes() []routing.Route
}

type RoutesHandler struct {
	table RouteTable
}

func NewRoutesHandler(table RouteTable) *RoutesHandler {
	return &RoutesHandler{table: table}
}

func (h *RoutesHandler) List(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"routes": h.table.Routes(),
	})
}
