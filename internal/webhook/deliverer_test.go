package webhook

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
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	deliveries *memory.DeliveryRepository
	breaker    *breaker.Breaker
	deliverer  *Deliverer
}

func newFixture(threshold int) *fixture {
	deliveries := memory.NewDeliveryRepository()
	cb := breaker.New(breaker.NewMemoryStore(), breaker.Config{
		FailureThreshold: threshold,
		SuccessThreshold: 2,
		Timeout:          time.Minute,
		FailureWindow:    5 * time.Minute,
	}, testLogger())
	return &fixture{
		deliveries: deliveries,
		breaker:    cb,
		deliverer:  NewDeliverer(deliveries, cb, 2*time.Second, testLogger()),
	}
}

func (f *fixture) request(t *testing.T, url, secret string) Request {
	t.Helper()
	endpoint := domain.WebhookEndpoint{
		ID:         uuid.New(),
		SystemName: "financeiro",
		URL:        url,
		Secret:     secret,
		Active:     true,
	}
	d, err := f.deliveries.GetOrCreate(context.Background(), uuid.New(), endpoint.ID)
	require.NoError(t, err)
	return Request{
		Delivery:  d,
		Endpoint:  endpoint,
		EventType: "service.completed",
		Payload:   map[string]any{"servico_id": "s-1", "horas": 4.0},
	}
}

func (f *fixture) stored(t *testing.T, req Request) domain.WebhookDelivery {
	t.Helper()
	list, err := f.deliveries.ListByEvent(context.Background(), req.Delivery.EventID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func TestDeliverer_Success(t *testing.T) {
	var gotHeaders http.Header
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		assert.True(t, Verify("s3cret", body, r.Header.Get(HeaderSignature)))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	f := newFixture(3)
	req := f.request(t, srv.URL, "s3cret")

	err := f.deliverer.Deliver(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "application/json", gotHeaders.Get("Content-Type"))
	assert.Equal(t, "service.completed", gotHeaders.Get(HeaderEvent))
	assert.Equal(t, req.Delivery.ID.String(), gotHeaders.Get(HeaderDelivery))
	assert.Equal(t, UserAgent, gotHeaders.Get("User-Agent"))
	assert.Equal(t, "s-1", gotBody["servico_id"])

	stored := f.stored(t, req)
	assert.Equal(t, domain.DeliveryStatusSent, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.ResponseStatus)
	assert.Equal(t, http.StatusAccepted, *stored.ResponseStatus)
}

func TestDeliverer_NoSecretNoSignature(t *testing.T) {
	var sig atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig.Store(r.Header.Get(HeaderSignature))
	}))
	defer srv.Close()

	f := newFixture(3)
	require.NoError(t, f.deliverer.Deliver(context.Background(), f.request(t, srv.URL, "")))
	assert.Equal(t, "", sig.Load())
}

func TestDeliverer_ServerErrorRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "database unavailable", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := newFixture(3)
	req := f.request(t, srv.URL, "")

	err := f.deliverer.Deliver(context.Background(), req)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "database unavailable")

	stored := f.stored(t, req)
	assert.Equal(t, domain.DeliveryStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "HTTP 500")

	status := f.breaker.Status(context.Background(), "financeiro")
	assert.Equal(t, int64(1), status.FailureCount)
}

func TestDeliverer_OpenCircuitSkipsNetwork(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	f := newFixture(2)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = f.deliverer.Deliver(ctx, f.request(t, srv.URL, ""))
	}
	require.True(t, f.breaker.IsOpen(ctx, "financeiro"))
	before := f.breaker.Status(ctx, "financeiro")

	req := f.request(t, srv.URL, "")
	err := f.deliverer.Deliver(ctx, req)

	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())

	stored := f.stored(t, req)
	assert.Equal(t, domain.DeliveryStatusFailed, stored.Status)
	assert.Equal(t, 1, stored.Attempts)

	after := f.breaker.Status(ctx, "financeiro")
	assert.Equal(t, before.FailureCount, after.FailureCount)
}

func TestDeliverer_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	f := newFixture(3)
	f.deliverer.WithClient(&http.Client{Timeout: 50 * time.Millisecond})
	req := f.request(t, srv.URL, "")

	err := f.deliverer.Deliver(context.Background(), req)
	require.Error(t, err)

	stored := f.stored(t, req)
	assert.Equal(t, domain.DeliveryStatusFailed, stored.Status)
	assert.Nil(t, stored.ResponseStatus)
}
