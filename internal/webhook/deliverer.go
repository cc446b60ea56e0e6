// Package webhook performs outbound deliveries of routed events to the
// endpoints registered for each downstream system.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/metrics"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/repository"
)

const (
	HeaderEvent     = "X-Hub-Event"
	HeaderDelivery  = "X-Hub-Delivery"
	HeaderSignature = "X-Hub-Signature"
	UserAgent       = "Carinho-Integracoes-Webhook/1.0"

	maxErrorBody = 512
)

// ErrCircuitOpen is returned without any network call when the target
// system's breaker rejects the delivery.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Gate is the circuit breaker surface the deliverer needs.
type Gate interface {
	CanExecute(ctx context.Context, service string) bool
	RecordSuccess(ctx context.Context, service string)
	RecordFailure(ctx context.Context, service string)
}

// StatusError reports a non-2xx answer from the endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Request is one delivery of one event to one endpoint.
type Request struct {
	Delivery  *domain.WebhookDelivery
	Endpoint  domain.WebhookEndpoint
	EventType string
	Payload   map[string]any
}

type Deliverer struct {
	deliveries repository.DeliveryRepository
	gate       Gate
	client     *http.Client
	logger     *slog.Logger
}

func NewDeliverer(deliveries repository.DeliveryRepository, gate Gate, timeout time.Duration, logger *slog.Logger) *Deliverer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Deliverer{
		deliveries: deliveries,
		gate:       gate,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// WithClient replaces the HTTP client, mainly for tests.
func (d *Deliverer) WithClient(client *http.Client) *Deliverer {
	d.client = client
	return d
}

// Deliver posts the payload and records the outcome on the delivery row and
// on the breaker. The returned error is nil only for a 2xx answer.
func (d *Deliverer) Deliver(ctx context.Context, req Request) error {
	system := req.Endpoint.SystemName
	logger := d.logger.With(
		slog.String("delivery_id", req.Delivery.ID.String()),
		slog.String("endpoint_id", req.Endpoint.ID.String()),
		slog.String("system", system),
	)

	if !d.gate.CanExecute(ctx, system) {
		logger.Warn("delivery short-circuited by open breaker")
		metrics.DeliveriesTotal.WithLabelValues(system, "circuit_open").Inc()
		if err := d.deliveries.MarkFailed(ctx, req.Delivery.ID, nil, ErrCircuitOpen.Error()); err != nil {
			logger.Error("failed to record short-circuited delivery", slog.String("error", err.Error()))
		}
		return ErrCircuitOpen
	}

	status, err := d.post(ctx, req)
	if err != nil {
		d.gate.RecordFailure(ctx, system)
		metrics.DeliveriesTotal.WithLabelValues(system, "failed").Inc()

		var code *int
		if status > 0 {
			code = &status
		}
		if markErr := d.deliveries.MarkFailed(ctx, req.Delivery.ID, code, err.Error()); markErr != nil {
			logger.Error("failed to record delivery failure", slog.String("error", markErr.Error()))
		}
		logger.Warn("webhook delivery failed",
			slog.Int("attempts", req.Delivery.Attempts+1),
			slog.String("error", err.Error()),
		)
		return err
	}

	d.gate.RecordSuccess(ctx, system)
	metrics.DeliveriesTotal.WithLabelValues(system, "sent").Inc()
	if err := d.deliveries.MarkSent(ctx, req.Delivery.ID, status); err != nil {
		logger.Error("failed to record delivery success", slog.String("error", err.Error()))
	}
	logger.Debug("webhook delivered", slog.Int("status", status))
	return nil
}

func (d *Deliverer) post(ctx context.Context, req Request) (int, error) {
	body, err := json.Marshal(req.Payload)
	if err != nil {
		return 0, fmt.Errorf("marshal payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set(HeaderEvent, req.EventType)
	httpReq.Header.Set(HeaderDelivery, req.Delivery.ID.String())
	if req.Endpoint.Secret != "" {
		httpReq.Header.Set(HeaderSignature, Sign(req.Endpoint.Secret, body))
	}

	start := time.Now()
	resp, err := d.client.Do(httpReq)
	metrics.DeliveryDuration.WithLabelValues(req.Endpoint.SystemName).Observe(time.Since(start).Seconds())
	if err != nil {
		return 0, fmt.Errorf("post %s: %w", req.Endpoint.URL, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}

	return resp.StatusCode, nil
}
