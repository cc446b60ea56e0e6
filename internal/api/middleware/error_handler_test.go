package middleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

type errorBody struct {
	Error struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Fields  map[string]string `json:"fields"`
	} `json:"error"`
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"app error", domain.ErrEventNotFound, 404, "EVENT_NOT_FOUND"},
		{"wrapped app error", fmt.Errorf("load: %w", domain.ErrDeadLetterNotFound), 404, "DEAD_LETTER_NOT_FOUND"},
		{"server side app error", domain.ErrEventNotRecorded.WithError(errors.New("db down")), 503, "EVENT_NOT_RECORDED"},
		{"fiber error", fiber.ErrMethodNotAllowed, 405, "HTTP_ERROR"},
		{"unknown error", errors.New("boom"), 500, "INTERNAL_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger())})
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var body errorBody
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

type sampleRequest struct {
	SystemName string `json:"system_name" validate:"required"`
	URL        string `json:"url" validate:"required,url"`
}

func TestBindAndValidate(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler(testLogger())})
	app.Post("/", func(c *fiber.Ctx) error {
		var req sampleRequest
		if err := BindAndValidate(c, &req); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusCreated)
	})

	send := func(body string) (*errorBody, int) {
		req := httptest.NewRequest("POST", "/", strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		if resp.StatusCode == fiber.StatusCreated {
			return nil, resp.StatusCode
		}
		var out errorBody
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		return &out, resp.StatusCode
	}

	_, status := send(`{"system_name":"crm","url":"http://crm:8000/hooks"}`)
	assert.Equal(t, fiber.StatusCreated, status)

	body, status := send(`{"url":"not a url"}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	assert.Equal(t, "is required", body.Error.Fields["system_name"])
	assert.Equal(t, "must be a valid url", body.Error.Fields["url"])

	body, status = send(`{`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "BAD_REQUEST", body.Error.Code)
}

func TestRecover(t *testing.T) {
	app := fiber.New()
	app.Use(Recover(testLogger()))
	app.Get("/", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}
