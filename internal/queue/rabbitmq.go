package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/metrics"
)

const confirmTimeout = 10 * time.Second

type dispatchMessage struct {
	EventID uuid.UUID `json:"event_id"`
}

// RabbitMQ publishes dispatch signals to a durable queue with publisher
// confirms and consumes them with manual acknowledgement.
type RabbitMQ struct {
	conn      *amqp.Connection
	pubCh     *amqp.Channel
	pubMu     sync.Mutex
	queue     string
	logger    *slog.Logger
	healthy   atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

// NewRabbitMQ dials the broker, declares the durable queue and enables
// publisher confirms on the publishing channel.
func NewRabbitMQ(url, queueName string, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}

	if _, err := ch.QueueDeclare(queueName, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	q := &RabbitMQ{
		conn:   conn,
		pubCh:  ch,
		queue:  queueName,
		logger: logger,
		done:   make(chan struct{}),
	}
	q.healthy.Store(true)
	metrics.QueueHealthy.Set(1)

	connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
	chanClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case err := <-connClosed:
			q.markUnhealthy("RabbitMQ connection closed", err)
		case err := <-chanClosed:
			q.markUnhealthy("RabbitMQ channel closed", err)
		case <-q.done:
		}
	}()

	logger.Info("connected to RabbitMQ", slog.String("queue", queueName))
	return q, nil
}

func (q *RabbitMQ) markUnhealthy(msg string, err *amqp.Error) {
	q.healthy.Store(false)
	metrics.QueueHealthy.Set(0)
	if err != nil {
		q.logger.Warn(msg, slog.String("error", err.Error()))
		return
	}
	q.logger.Warn(msg)
}

// Dispatch publishes a persistent message and waits for the broker ack.
func (q *RabbitMQ) Dispatch(ctx context.Context, eventID uuid.UUID) error {
	if !q.Healthy() {
		return ErrQueueClosed
	}

	body, err := json.Marshal(dispatchMessage{EventID: eventID})
	if err != nil {
		return fmt.Errorf("failed to encode dispatch message: %w", err)
	}

	q.pubMu.Lock()
	deferred, err := q.pubCh.PublishWithDeferredConfirmWithContext(
		ctx,
		"",
		q.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    eventID.String(),
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	q.pubMu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish dispatch message: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-deferred.Done():
		if !deferred.Acked() {
			return fmt.Errorf("broker nacked dispatch for event %s", eventID)
		}
		return nil
	case <-time.After(confirmTimeout):
		return fmt.Errorf("publisher confirm timeout for event %s", eventID)
	}
}

// Consume opens a dedicated channel with prefetch 1 and acks each message
// only after the handler succeeded. Malformed messages are dropped.
func (q *RabbitMQ) Consume(ctx context.Context, handler Handler) error {
	ch, err := q.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	q.logger.Info("dispatch consumer online", slog.String("queue", q.queue))

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("dispatch channel closed")
			}

			var msg dispatchMessage
			if err := json.Unmarshal(d.Body, &msg); err != nil || msg.EventID == uuid.Nil {
				q.logger.Error("dropping malformed dispatch message", slog.String("message_id", d.MessageId))
				_ = d.Nack(false, false)
				continue
			}

			if err := handler(ctx, msg.EventID); err != nil {
				q.logger.Warn("dispatch handler failed, requeueing",
					slog.String("event_id", msg.EventID.String()),
					slog.String("error", err.Error()),
				)
				_ = d.Nack(false, !d.Redelivered)
				continue
			}

			if err := d.Ack(false); err != nil {
				q.logger.Error("failed to ack dispatch message",
					slog.String("event_id", msg.EventID.String()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

func (q *RabbitMQ) Healthy() bool {
	return q.healthy.Load()
}

func (q *RabbitMQ) Close() error {
	q.closeOnce.Do(func() {
		q.logger.Info("closing RabbitMQ dispatch queue")
		close(q.done)
		q.healthy.Store(false)
		if q.pubCh != nil {
			q.pubCh.Close()
		}
		if q.conn != nil {
			q.conn.Close()
		}
	})
	return nil
}
