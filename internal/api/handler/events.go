package handler

import (
	"context"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

// HeaderIdempotencyKey is an alternative to the idempotency_key payload field.
const HeaderIdempotencyKey = "Idempotency-Key"

// EventService is the intake side of the hub.
type EventService interface {
	Process(ctx context.Context, eventType, sourceSystem string, payload map[string]any) (*domain.IntegrationEvent, bool, error)
	Get(ctx context.Context, id uuid.UUID) (*domain.IntegrationEvent, error)
}

// DeliveryLister reads the per-endpoint outcome of an event.
type DeliveryLister interface {
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error)
}

type EventsHandler struct {
	service    EventService
	deliveries DeliveryLister
	logger     *slog.Logger
}

func NewEventsHandler(service EventService, deliveries DeliveryLister, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		service:    service,
		deliveries: deliveries,
		logger:     logger,
	}
}

type SubmitEventRequest struct {
	EventType    string         `json:"event_type" validate:"required,max=100"`
	SourceSystem string         `json:"source_system" validate:"required,max=50"`
	Payload      map[string]any `json:"payload"`
}

type SubmitEventResponse struct {
	ID        uuid.UUID          `json:"id"`
	Status    domain.EventStatus `json:"status"`
	Duplicate bool               `json:"duplicate"`
}

// Submit records an event. The response only says the hub has it; delivery
// outcome is never reported back to the producer.
func (h *EventsHandler) Submit(c *fiber.Ctx) error {
	var req SubmitEventRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	if req.Payload == nil {
		req.Payload = map[string]any{}
	}
	if key := strings.TrimSpace(c.Get(HeaderIdempotencyKey)); key != "" {
		if _, set := req.Payload[domain.IdempotencyKeyField]; !set {
			req.Payload[domain.IdempotencyKeyField] = utils.CopyString(key)
		}
	}

	evt, created, err := h.service.Process(c.UserContext(), req.EventType, req.SourceSystem, req.Payload)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusAccepted).JSON(SubmitEventResponse{
		ID:        evt.ID,
		Status:    evt.Status,
		Duplicate: !created,
	})
}

func (h *EventsHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	evt, err := h.service.Get(c.UserContext(), id)
	if err != nil {
		return err
	}

	return c.JSON(evt)
}

func (h *EventsHandler) Deliveries(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	if _, err := h.service.Get(c.UserContext(), id); err != nil {
		return err
	}

	deliveries, err := h.deliveries.ListByEvent(c.UserContext(), id)
	if err != nil {
		return err
	}
	if deliveries == nil {
		deliveries = []domain.WebhookDelivery{}
	}

	return c.JSON(fiber.Map{
		"event_id":   id,
		"deliveries": deliveries,
	})
}
