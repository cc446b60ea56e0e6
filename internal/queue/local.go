package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Local is an in-process buffered queue. Dispatch never blocks: when the
// buffer is full the signal is dropped and the router's poll picks the
// event up instead.
type Local struct {
	ch        chan uuid.UUID
	logger    *slog.Logger
	closed    chan struct{}
	closeOnce sync.Once
}

func NewLocal(size int, logger *slog.Logger) *Local {
	if size <= 0 {
		size = 1024
	}
	return &Local{
		ch:     make(chan uuid.UUID, size),
		logger: logger,
		closed: make(chan struct{}),
	}
}

func (q *Local) Dispatch(ctx context.Context, eventID uuid.UUID) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	select {
	case q.ch <- eventID:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Consume runs handler for each signal. Failed signals are not requeued;
// the event stays in the store for the poller.
func (q *Local) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.closed:
			return nil
		case id := <-q.ch:
			if err := handler(ctx, id); err != nil {
				q.logger.Warn("dispatch handler failed",
					slog.String("event_id", id.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// Len reports buffered signals.
func (q *Local) Len() int {
	return len(q.ch)
}

func (q *Local) Healthy() bool {
	select {
	case <-q.closed:
		return false
	default:
		return true
	}
}

func (q *Local) Close() error {
	q.closeOnce.Do(func() {
		close(q.closed)
	})
	return nil
}
