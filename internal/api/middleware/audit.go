package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/audit"
)

// Audit records one admin action per request. targetParam names the route
// parameter that identifies what was acted on; it may be empty. Request
// values are copied since fiber recycles its buffers once the handler returns.
func Audit(auditor audit.Logger, action audit.Action, targetParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		err := c.Next()

		event := audit.Event{
			Action:    action,
			Method:    utils.CopyString(c.Method()),
			Path:      utils.CopyString(c.Path()),
			RequestID: utils.CopyString(requestID(c)),
			IPAddress: utils.CopyString(c.IP()),
			UserAgent: utils.CopyString(c.Get(fiber.HeaderUserAgent)),
		}
		if targetParam != "" {
			event.Target = utils.CopyString(c.Params(targetParam))
		}

		if err != nil {
			event.Error = err.Error()
			if herr := c.App().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
			err = nil
		}
		event.Status = c.Response().StatusCode()
		event.Success = event.Status < 400

		_ = auditor.Log(c.UserContext(), event)

		return err
	}
}
