package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/cache"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type env struct {
	store   *repository.Store
	breaker *breaker.Breaker
	cache   *cache.MemoryCache
	monitor *Monitor
}

func newEnv(t *testing.T, th Thresholds, ttl time.Duration) *env {
	t.Helper()
	store := memory.NewStore()
	cb := breaker.New(breaker.NewMemoryStore(), breaker.Config{FailureThreshold: 2}, testLogger())
	c := cache.NewMemoryCache()
	m := New(Options{
		Events:      store.Events,
		RetryQueue:  store.RetryQueue,
		DeadLetters: store.DeadLetters,
		Deliveries:  store.Deliveries,
		Circuits:    cb,
		Cache:       c,
		Systems:     []string{"crm", "financeiro"},
		Thresholds:  th,
		Period:      time.Hour,
		CacheTTL:    ttl,
		Logger:      testLogger(),
	})
	return &env{store: store, breaker: cb, cache: c, monitor: m}
}

func (e *env) pending(t *testing.T, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := e.store.Events.Insert(context.Background(), &domain.IntegrationEvent{
			EventType:    "lead.created",
			SourceSystem: "site",
			Payload:      []byte(`{}`),
		})
		require.NoError(t, err)
	}
}

func TestMonitor_Snapshot(t *testing.T) {
	e := newEnv(t, DefaultThresholds(), 0)
	ctx := context.Background()

	e.pending(t, 3)

	sent, err := e.store.Deliveries.GetOrCreate(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, e.store.Deliveries.MarkSent(ctx, sent.ID, 200))
	failed, err := e.store.Deliveries.GetOrCreate(ctx, uuid.New(), uuid.New())
	require.NoError(t, err)
	require.NoError(t, e.store.Deliveries.MarkFailed(ctx, failed.ID, nil, "timeout"))

	_, err = e.store.RetryQueue.IncrementAttempts(ctx, uuid.New(), 5, "HTTP 500")
	require.NoError(t, err)
	require.NoError(t, e.store.DeadLetters.Create(ctx, &domain.DeadLetter{EventID: uuid.New(), EventType: "payment.received"}))

	snap, err := e.monitor.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(3), snap.Events.Pending)
	assert.Equal(t, int64(1), snap.RetryQueue.Depth)
	assert.Equal(t, int64(1), snap.DeadLetters.Total)
	assert.Equal(t, int64(1), snap.DeadLetters.ByEventType["payment.received"])
	assert.Equal(t, int64(1), snap.Deliveries.Sent)
	assert.Equal(t, int64(1), snap.Deliveries.Failed)
	assert.InDelta(t, 50.0, snap.Deliveries.ErrorRate, 0.001)
	require.Len(t, snap.Circuits, 2)
	assert.Equal(t, breaker.StateClosed, snap.Circuits[0].State)
}

func TestMonitor_DashboardIsCached(t *testing.T) {
	e := newEnv(t, DefaultThresholds(), time.Minute)
	ctx := context.Background()

	e.pending(t, 1)
	first, err := e.monitor.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), first.Events.Pending)

	e.pending(t, 4)
	second, err := e.monitor.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Events.Pending, "served from cache")

	require.NoError(t, e.cache.Delete(ctx, dashboardKey))
	third, err := e.monitor.Dashboard(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), third.Events.Pending)
}

func TestMonitor_HealthFollowsAlerts(t *testing.T) {
	th := Thresholds{PendingEvents: 2, RetryQueue: 50, DeadLetters: 10, ErrorRate: 10, CriticalMultiplier: 2}
	e := newEnv(t, th, 0)
	ctx := context.Background()

	h, err := e.monitor.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthHealthy, h.Status)
	assert.Empty(t, h.Alerts)

	e.pending(t, 3)
	h, err = e.monitor.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthDegraded, h.Status)

	e.pending(t, 2)
	h, err = e.monitor.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, HealthCritical, h.Status)
}

func TestMonitor_OpenCircuitAlert(t *testing.T) {
	e := newEnv(t, DefaultThresholds(), 0)
	ctx := context.Background()

	e.breaker.RecordFailure(ctx, "financeiro")
	e.breaker.RecordFailure(ctx, "financeiro")

	alerts, err := e.monitor.CheckAlerts(ctx)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertCircuitBreaker, alerts[0].Type)
	assert.Equal(t, "financeiro", alerts[0].Subject)
}

func TestNotifier_Cooldown(t *testing.T) {
	var calls atomic.Int32
	var last map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_ = json.NewDecoder(r.Body).Decode(&last)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Hour, cache.NewMemoryCache(), testLogger())
	alerts := []Alert{
		{Type: AlertRetryQueue, Level: LevelWarning, Message: "retry queue"},
		{Type: AlertCircuitBreaker, Level: LevelWarning, Subject: "crm"},
	}

	sent, err := n.Notify(context.Background(), alerts)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)

	sent, err = n.Notify(context.Background(), alerts)
	require.NoError(t, err)
	assert.Zero(t, sent)

	escalated := []Alert{{Type: AlertRetryQueue, Level: LevelCritical}}
	sent, err = n.Notify(context.Background(), escalated)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "alert.triggered", last["type"])
}

func TestNotifier_FailureReleasesCooldown(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
		}
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL, time.Hour, cache.NewMemoryCache(), testLogger())
	alerts := []Alert{{Type: AlertDeadLetter, Level: LevelWarning}}

	_, err := n.Notify(context.Background(), alerts)
	assert.Error(t, err)

	sent, err := n.Notify(context.Background(), alerts)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestNotifier_Disabled(t *testing.T) {
	n := NewNotifier("", time.Minute, cache.NewMemoryCache(), testLogger())
	sent, err := n.Notify(context.Background(), []Alert{{Type: AlertErrorRate}})
	require.NoError(t, err)
	assert.Zero(t, sent)
}
