package api

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/cache"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/database"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/event"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/monitor"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/queue"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository/memory"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/retry"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/router"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/routing"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/syncjob"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/webhook"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// hub is the whole service wired the way cmd/hub does it, minus workers:
// tests drive routing explicitly through pipeline.Execute.
type hub struct {
	api      *Router
	store    *repository.Store
	pipeline *router.Router
}

func newHub(t *testing.T, store *repository.Store, db database.Pinger, intakeLimit int) *hub {
	t.Helper()
	logger := testLogger()

	table, err := routing.Load("")
	require.NoError(t, err)

	q := queue.NewLocal(64, logger)
	t.Cleanup(func() { _ = q.Close() })

	b := breaker.New(breaker.NewMemoryStore(), breaker.DefaultConfig(), logger)
	scheduler := retry.NewScheduler(store.RetryQueue, store.DeadLetters, store.Events, retry.DefaultPolicy(), logger)
	pipeline := router.New(router.Options{
		Events:     store.Events,
		Endpoints:  store.Endpoints,
		Deliveries: store.Deliveries,
		Table:      table,
		Deliverer:  webhook.NewDeliverer(store.Deliveries, b, 5*time.Second, logger),
		Retries:    scheduler,
		Logger:     logger,
	})
	scheduler.SetExecutor(pipeline)

	events := event.NewService(store.Events, q, logger)
	systems := []string{"crm", "operacao", "financeiro"}

	deps := &Dependencies{
		Store:     store,
		Events:    events,
		Scheduler: scheduler,
		Breaker:   b,
		Monitor: monitor.New(monitor.Options{
			Events:      store.Events,
			RetryQueue:  store.RetryQueue,
			DeadLetters: store.DeadLetters,
			Deliveries:  store.Deliveries,
			Circuits:    b,
			Cache:       cache.NewMemoryCache(),
			Systems:     systems,
			Thresholds:  monitor.DefaultThresholds(),
			CacheTTL:    time.Second,
			Logger:      logger,
		}),
		Orchestrator: syncjob.NewOrchestrator(store.SyncJobs, syncjob.NewClient(nil, time.Second),
			events, syncjob.DefaultDefinitions(), 10, logger),
		Routes:          table,
		DB:              db,
		Queue:           q,
		Systems:         systems,
		IntakeRateLimit: intakeLimit,
	}

	r := NewRouter(logger, deps)
	r.Setup()
	t.Cleanup(func() { _ = r.Shutdown() })

	return &hub{api: r, store: store, pipeline: pipeline}
}

func (h *hub) call(t *testing.T, method, target, body string, headers ...string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := h.api.App().Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

// receiver records what a downstream system was sent.
type receiver struct {
	*httptest.Server
	mu     sync.Mutex
	bodies []map[string]any
	heads  []http.Header
}

func newReceiver(t *testing.T) *receiver {
	rc := &receiver{}
	rc.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		rc.mu.Lock()
		rc.bodies = append(rc.bodies, body)
		rc.heads = append(rc.heads, r.Header.Clone())
		rc.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(rc.Close)
	return rc
}

func (rc *receiver) received() []map[string]any {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]map[string]any(nil), rc.bodies...)
}

// exerciseHub runs the event lifecycle through the public API. It is shared
// by the memory and postgres variants.
func exerciseHub(t *testing.T, h *hub) {
	crm := newReceiver(t)
	financeiro := newReceiver(t)

	var endpointSecret string
	for system, rc := range map[string]*receiver{"crm": crm, "financeiro": financeiro} {
		resp, raw := h.call(t, "POST", "/v1/admin/endpoints",
			`{"system_name":"`+system+`","url":"`+rc.URL+`/webhooks"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))
		if system == "financeiro" {
			var created struct {
				Secret string `json:"secret"`
			}
			require.NoError(t, json.Unmarshal(raw, &created))
			endpointSecret = created.Secret
		}
	}

	body := `{"event_type":"service.completed","source_system":"operacao","payload":{"service_id":42,"client_id":7,"caregiver_id":3,"amount":180.5,"notes":"ok"}}`
	resp, raw := h.call(t, "POST", "/v1/events", body, "Idempotency-Key", "svc-42")
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(raw))

	var accepted struct {
		ID        uuid.UUID `json:"id"`
		Status    string    `json:"status"`
		Duplicate bool      `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(raw, &accepted))
	assert.Equal(t, "pending", accepted.Status)
	assert.False(t, accepted.Duplicate)

	// Same submission again: same event, nothing new to deliver.
	resp, raw = h.call(t, "POST", "/v1/events", body, "Idempotency-Key", "svc-42")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	var again struct {
		ID        uuid.UUID `json:"id"`
		Duplicate bool      `json:"duplicate"`
	}
	require.NoError(t, json.Unmarshal(raw, &again))
	assert.Equal(t, accepted.ID, again.ID)
	assert.True(t, again.Duplicate)

	require.NoError(t, h.pipeline.Execute(context.Background(), accepted.ID))
	require.NoError(t, h.pipeline.Execute(context.Background(), accepted.ID))

	require.Len(t, crm.received(), 1)
	require.Len(t, financeiro.received(), 1)
	meta, ok := financeiro.received()[0]["_meta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, accepted.ID.String(), meta["event_id"])
	assert.Equal(t, "operacao", meta["source_system"])
	assert.Equal(t, float64(42), financeiro.received()[0]["servico_id"])
	assert.Equal(t, float64(42), crm.received()[0]["service_id"])

	financeiro.mu.Lock()
	assert.NotEmpty(t, financeiro.heads[0].Get(webhook.HeaderSignature))
	financeiro.mu.Unlock()
	assert.NotEmpty(t, endpointSecret)

	resp, raw = h.call(t, "GET", "/v1/events/"+accepted.ID.String(), "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var evt domain.IntegrationEvent
	require.NoError(t, json.Unmarshal(raw, &evt))
	assert.Equal(t, domain.EventStatusDone, evt.Status)

	resp, raw = h.call(t, "GET", "/v1/events/"+accepted.ID.String()+"/deliveries", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var deliveries struct {
		Deliveries []domain.WebhookDelivery `json:"deliveries"`
	}
	require.NoError(t, json.Unmarshal(raw, &deliveries))
	require.Len(t, deliveries.Deliveries, 2)
	for _, d := range deliveries.Deliveries {
		assert.Equal(t, domain.DeliveryStatusSent, d.Status)
	}

	resp, raw = h.call(t, "GET", "/v1/admin/dashboard", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap monitor.Snapshot
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, int64(1), snap.Events.Done)
	assert.Equal(t, int64(2), snap.Deliveries.Sent)
	assert.Equal(t, int64(0), snap.RetryQueue.Depth)
}

func TestRouter_EventLifecycle(t *testing.T) {
	exerciseHub(t, newHub(t, memory.NewStore(), nil, 0))
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	h := newHub(t, memory.NewStore(), nil, 0)

	for _, path := range []string{"/health", "/ready", "/metrics", "/v1/admin/routes", "/v1/admin/circuits", "/v1/admin/health", "/v1/admin/sync-jobs"} {
		resp, raw := h.call(t, "GET", path, "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, "%s: %s", path, raw)
	}

	resp, raw := h.call(t, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), "go_goroutines")

	resp, _ = h.call(t, "GET", "/nonexistent", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = h.call(t, "GET", "/health", "")
	assert.NotEmpty(t, resp.Header.Get("X-Request-Id"))
}

func TestRouter_IntakeRateLimit(t *testing.T) {
	h := newHub(t, memory.NewStore(), nil, 2)

	body := `{"event_type":"lead.created","source_system":"site","payload":{}}`
	for i := 0; i < 2; i++ {
		resp, _ := h.call(t, "POST", "/v1/events", body, "X-Source-System", "site")
		assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	}
	resp, raw := h.call(t, "POST", "/v1/events", body, "X-Source-System", "site")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(raw), "RATE_LIMIT_EXCEEDED")

	// Admin and read paths are not limited.
	resp, _ = h.call(t, "GET", "/v1/admin/endpoints", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
