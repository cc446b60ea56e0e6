package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/queue"
)

func TestWorker_RoutesDispatchedAndPolledEvents(t *testing.T) {
	h := newHub(t, serviceRoutes)
	crm := newDownstream(t)
	h.endpoint(t, "crm", crm.URL)

	q := queue.NewLocal(8, testLogger())
	w := NewWorker(h.router, h.store.Events, q, 20*time.Millisecond, time.Minute, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	dispatched := h.event(t, "service.completed", "operacao", map[string]any{"n": 1})
	require.NoError(t, q.Dispatch(ctx, dispatched.ID))

	// Never signalled: only the poll can find it.
	polled := h.event(t, "service.completed", "operacao", map[string]any{"n": 2})

	assert.Eventually(t, func() bool {
		return h.status(t, dispatched.ID) == domain.EventStatusDone &&
			h.status(t, polled.ID) == domain.EventStatusDone
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), crm.calls.Load())

	w.Stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestWorker_ReleasesStaleProcessingEvents(t *testing.T) {
	h := newHub(t, serviceRoutes)
	crm := newDownstream(t)
	h.endpoint(t, "crm", crm.URL)

	evt := h.event(t, "service.completed", "operacao", map[string]any{})
	claimed, err := h.store.Events.Claim(context.Background(), evt.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	w := NewWorker(h.router, h.store.Events, nil, 20*time.Millisecond, time.Millisecond, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	assert.Eventually(t, func() bool {
		return h.status(t, evt.ID) == domain.EventStatusDone
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), crm.calls.Load())
}
