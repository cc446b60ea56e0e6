package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandler_Health(t *testing.T) {
	app := fiber.New()
	handler := NewHealthHandler(nil, nil)
	app.Get("/health", handler.Health)

	req := httptest.NewRequest("GET", "/health", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	body, _ := io.ReadAll(resp.Body)
	var result HealthResponse
	require.NoError(t, json.Unmarshal(body, &result))

	assert.Equal(t, "ok", result.Status)
	assert.NotEmpty(t, result.Version)
}

func TestHealthHandler_Ready(t *testing.T) {
	t.Run("no database configured", func(t *testing.T) {
		app := fiber.New()
		app.Get("/ready", NewHealthHandler(nil, nil).Ready)

		resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("database reachable", func(t *testing.T) {
		db, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer db.Close()
		db.ExpectPing()

		app := fiber.New()
		app.Get("/ready", NewHealthHandler(db, stubQueue(true)).Ready)

		resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		var result HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "ready", result.Status)
		assert.NoError(t, db.ExpectationsWereMet())
	})

	t.Run("database down", func(t *testing.T) {
		db, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer db.Close()
		db.ExpectPing().WillReturnError(errors.New("connection refused"))

		app := fiber.New()
		app.Get("/ready", NewHealthHandler(db, nil).Ready)

		resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		var result HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "unavailable", result.Status)
		assert.Equal(t, "database unreachable", result.Error)
	})

	t.Run("dispatch queue disconnected", func(t *testing.T) {
		db, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer db.Close()
		db.ExpectPing()

		app := fiber.New()
		app.Get("/ready", NewHealthHandler(db, stubQueue(false)).Ready)

		resp, err := app.Test(httptest.NewRequest("GET", "/ready", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

		var result HealthResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.Equal(t, "dispatch queue unavailable", result.Error)
		assert.NoError(t, db.ExpectationsWereMet())
	})
}

type stubQueue bool

func (q stubQueue) Healthy() bool { return bool(q) }
