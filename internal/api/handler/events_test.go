package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/api/middleware"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

type MockEventService struct {
	mock.Mock
}

func (m *MockEventService) Process(ctx context.Context, eventType, sourceSystem string, payload map[string]any) (*domain.IntegrationEvent, bool, error) {
	args := m.Called(ctx, eventType, sourceSystem, payload)
	if args.Get(0) == nil {
		return nil, false, args.Error(2)
	}
	return args.Get(0).(*domain.IntegrationEvent), args.Bool(1), args.Error(2)
}

func (m *MockEventService) Get(ctx context.Context, id uuid.UUID) (*domain.IntegrationEvent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.IntegrationEvent), args.Error(1)
}

type MockDeliveryLister struct {
	mock.Mock
}

func (m *MockDeliveryLister) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]domain.WebhookDelivery, error) {
	args := m.Called(ctx, eventID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.WebhookDelivery), args.Error(1)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupEventsApp(service *MockEventService, deliveries *MockDeliveryLister) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(testLogger())})
	h := NewEventsHandler(service, deliveries, testLogger())
	app.Post("/v1/events", h.Submit)
	app.Get("/v1/events/:id", h.Get)
	app.Get("/v1/events/:id/deliveries", h.Deliveries)
	return app
}

func newEvent(status domain.EventStatus) *domain.IntegrationEvent {
	now := time.Now().UTC()
	return &domain.IntegrationEvent{
		ID:           uuid.New(),
		EventType:    "service.completed",
		SourceSystem: "operacao",
		Payload:      json.RawMessage(`{"service_id":42}`),
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestEventsHandler_Submit(t *testing.T) {
	t.Run("accepts a new event", func(t *testing.T) {
		service := new(MockEventService)
		evt := newEvent(domain.EventStatusPending)
		service.On("Process", mock.Anything, "service.completed", "operacao", map[string]any{"service_id": float64(42)}).
			Return(evt, true, nil)

		app := setupEventsApp(service, new(MockDeliveryLister))
		req := httptest.NewRequest("POST", "/v1/events",
			strings.NewReader(`{"event_type":"service.completed","source_system":"operacao","payload":{"service_id":42}}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		var body SubmitEventResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, evt.ID, body.ID)
		assert.Equal(t, domain.EventStatusPending, body.Status)
		assert.False(t, body.Duplicate)
		service.AssertExpectations(t)
	})

	t.Run("reports duplicates", func(t *testing.T) {
		service := new(MockEventService)
		evt := newEvent(domain.EventStatusDone)
		service.On("Process", mock.Anything, "service.completed", "operacao", mock.Anything).Return(evt, false, nil)

		app := setupEventsApp(service, new(MockDeliveryLister))
		req := httptest.NewRequest("POST", "/v1/events",
			strings.NewReader(`{"event_type":"service.completed","source_system":"operacao","payload":{"idempotency_key":"k1"}}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)

		var body SubmitEventResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.True(t, body.Duplicate)
		assert.Equal(t, evt.ID, body.ID)
	})

	t.Run("idempotency header fills the payload key", func(t *testing.T) {
		service := new(MockEventService)
		service.On("Process", mock.Anything, "lead.created", "site",
			map[string]any{"name": "Ana", "idempotency_key": "from-header"}).
			Return(newEvent(domain.EventStatusPending), true, nil)

		app := setupEventsApp(service, new(MockDeliveryLister))
		req := httptest.NewRequest("POST", "/v1/events",
			strings.NewReader(`{"event_type":"lead.created","source_system":"site","payload":{"name":"Ana"}}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderIdempotencyKey, "from-header")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
		service.AssertExpectations(t)
	})

	t.Run("payload key wins over header", func(t *testing.T) {
		service := new(MockEventService)
		service.On("Process", mock.Anything, "lead.created", "site",
			map[string]any{"idempotency_key": "from-payload"}).
			Return(newEvent(domain.EventStatusPending), true, nil)

		app := setupEventsApp(service, new(MockDeliveryLister))
		req := httptest.NewRequest("POST", "/v1/events",
			strings.NewReader(`{"event_type":"lead.created","source_system":"site","payload":{"idempotency_key":"from-payload"}}`))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderIdempotencyKey, "from-header")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusAccepted, resp.StatusCode)
		service.AssertExpectations(t)
	})

	t.Run("missing fields are rejected", func(t *testing.T) {
		service := new(MockEventService)
		app := setupEventsApp(service, new(MockDeliveryLister))

		req := httptest.NewRequest("POST", "/v1/events", strings.NewReader(`{"payload":{}}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnprocessableEntity, resp.StatusCode)
		service.AssertNotCalled(t, "Process", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("persistence failure is surfaced", func(t *testing.T) {
		service := new(MockEventService)
		service.On("Process", mock.Anything, "lead.created", "site", mock.Anything).
			Return(nil, false, domain.ErrEventNotRecorded.WithError(errors.New("db down")))

		app := setupEventsApp(service, new(MockDeliveryLister))
		req := httptest.NewRequest("POST", "/v1/events",
			strings.NewReader(`{"event_type":"lead.created","source_system":"site"}`))
		req.Header.Set("Content-Type", "application/json")

		resp, err := app.Test(req)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		var body map[string]map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "EVENT_NOT_RECORDED", body["error"]["code"])
	})
}

func TestEventsHandler_Get(t *testing.T) {
	service := new(MockEventService)
	evt := newEvent(domain.EventStatusDone)
	missing := uuid.New()
	service.On("Get", mock.Anything, evt.ID).Return(evt, nil)
	service.On("Get", mock.Anything, missing).Return(nil, domain.ErrEventNotFound)

	app := setupEventsApp(service, new(MockDeliveryLister))

	resp, err := app.Test(httptest.NewRequest("GET", "/v1/events/"+evt.ID.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var got domain.IntegrationEvent
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, evt.ID, got.ID)
	assert.JSONEq(t, `{"service_id":42}`, string(got.Payload))

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/events/"+missing.String(), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/v1/events/not-a-uuid", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestEventsHandler_Deliveries(t *testing.T) {
	service := new(MockEventService)
	deliveries := new(MockDeliveryLister)
	evt := newEvent(domain.EventStatusDone)
	code := 200
	service.On("Get", mock.Anything, evt.ID).Return(evt, nil)
	deliveries.On("ListByEvent", mock.Anything, evt.ID).Return([]domain.WebhookDelivery{
		{ID: uuid.New(), EventID: evt.ID, EndpointID: uuid.New(), Status: domain.DeliveryStatusSent, Attempts: 1, ResponseStatus: &code},
		{ID: uuid.New(), EventID: evt.ID, EndpointID: uuid.New(), Status: domain.DeliveryStatusFailed, Attempts: 3},
	}, nil)

	app := setupEventsApp(service, deliveries)
	resp, err := app.Test(httptest.NewRequest("GET", "/v1/events/"+evt.ID.String()+"/deliveries", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		EventID    uuid.UUID                `json:"event_id"`
		Deliveries []domain.WebhookDelivery `json:"deliveries"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, evt.ID, body.EventID)
	require.Len(t, body.Deliveries, 2)
	assert.Equal(t, domain.DeliveryStatusSent, body.Deliveries[0].Status)
}
