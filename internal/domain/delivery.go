package domain

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryStatusPending DeliveryStatus = "pending"
	DeliveryStatusSent    DeliveryStatus = "sent"
	DeliveryStatusFailed  DeliveryStatus = "failed"
)

// WebhookDelivery tracks the delivery of one event to one endpoint.
// There is at most one row per (event, endpoint).
type WebhookDelivery struct {
	ID             uuid.UUID      `json:"id"`
	EventID        uuid.UUID      `json:"event_id"`
	EndpointID     uuid.UUID      `json:"endpoint_id"`
	Status         DeliveryStatus `json:"status"`
	Attempts       int            `json:"attempts"`
	ResponseStatus *int           `json:"response_status,omitempty"`
	LastAttemptAt  *time.Time     `json:"last_attempt_at,omitempty"`
	LastError      *string        `json:"last_error,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// DeliveryStats counts delivery outcomes over a period.
type DeliveryStats struct {
	Sent    int64 `json:"sent"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}

// ErrorRate returns the failed share of finished deliveries as a percentage.
func (s DeliveryStats) ErrorRate() float64 {
	total := s.Sent + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Failed) / float64(total) * 100
}
