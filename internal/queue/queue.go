// Package queue carries dispatch signals from intake to the router.
//
// A signal only names an event id; the event itself is durable in the
// event store, so a lost signal is recovered by the router's poll.
package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrQueueFull   = errors.New("dispatch queue is full")
	ErrQueueClosed = errors.New("dispatch queue is closed")
)

// Dispatcher hands an event id to the routing workers.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventID uuid.UUID) error
}

// Handler processes one dispatched event. Returning an error asks the
// queue to redeliver the signal when the driver supports it.
type Handler func(ctx context.Context, eventID uuid.UUID) error

// Consumer delivers signals to a handler until ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, handler Handler) error
}

// Queue is implemented by every driver.
type Queue interface {
	Dispatcher
	Consumer
	Healthy() bool
	Close() error
}
