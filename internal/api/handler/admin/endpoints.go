package admin

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

type EndpointStore interface {
	List(ctx context.Context) ([]domain.WebhookEndpoint, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.WebhookEndpoint, error)
	Create(ctx context.Context, endpoint *domain.WebhookEndpoint) error
	Update(ctx context.Context, endpoint *domain.WebhookEndpoint) error
}

type EndpointsHandler struct {
	endpoints EndpointStore
	logger    *slog.Logger
}

func NewEndpointsHandler(endpoints EndpointStore, logger *slog.Logger) *EndpointsHandler {
	return &EndpointsHandler{
		endpoints: endpoints,
		logger:    logger,
	}
}

type CreateEndpointRequest struct {
	SystemName string `json:"system_name" validate:"required,max=50"`
	URL        string `json:"url" validate:"required,url,startswith=http,max=2048"`
	Secret     string `json:"secret" validate:"omitempty,min=16,max=255"`
	Active     *bool  `json:"active"`
}

type UpdateEndpointRequest struct {
	URL    *string `json:"url,omitempty" validate:"omitempty,url,startswith=http,max=2048"`
	Secret *string `json:"secret,omitempty" validate:"omitempty,min=16,max=255"`
	Active *bool   `json:"active,omitempty"`
}

func (h *EndpointsHandler) List(c *fiber.Ctx) error {
	endpoints, err := h.endpoints.List(c.UserContext())
	if err != nil {
		return domain.ErrInternal.WithError(err)
	}
	if endpoints == nil {
		endpoints = []domain.WebhookEndpoint{}
	}

	return c.JSON(fiber.Map{
		"endpoints": endpoints,
	})
}

// Create registers an endpoint. The signing secret is returned only here.
func (h *EndpointsHandler) Create(c *fiber.Ctx) error {
	var req CreateEndpointRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	secret := req.Secret
	if secret == "" {
		var err error
		if secret, err = generateSecret(32); err != nil {
			return domain.ErrInternal.WithError(err)
		}
	}

	ep := &domain.WebhookEndpoint{
		SystemName: strings.TrimSpace(req.SystemName),
		URL:        req.URL,
		Secret:     secret,
		Active:     req.Active == nil || *req.Active,
	}
	if err := h.endpoints.Create(c.UserContext(), ep); err != nil {
		return err
	}

	h.logger.Info("webhook endpoint registered",
		slog.String("endpoint_id", ep.ID.String()),
		slog.String("system", ep.SystemName),
	)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"endpoint": ep,
		"secret":   secret,
	})
}

func (h *EndpointsHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return domain.ErrBadRequest.WithError(err)
	}

	var req UpdateEndpointRequest
	if err := middleware.BindAndValidate(c, &req); err != nil {
		return err
	}

	ep, err := h.endpoints.GetByID(c.UserContext(), id)
	if err != nil {
		return err
	}
	if req.URL != nil {
		ep.URL = *req.URL
	}
	if req.Secret != nil {
		ep.Secret = *req.Secret
	}
	if req.Active != nil {
		ep.Active = *req.Active
	}

	if err := h.endpoints.Update(c.UserContext(), ep); err != nil {
		return err
	}

	h.logger.Info("webhook endpoint updated",
		slog.String("endpoint_id", ep.ID.String()),
		slog.String("system", ep.SystemName),
		slog.Bool("active", ep.Active),
	)

	return c.JSON(fiber.Map{
		"endpoint": ep,
	})
}

func generateSecret(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
