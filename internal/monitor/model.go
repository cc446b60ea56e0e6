package monitor

import (
	"time"

	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/breaker"
	"github.com/saturnino-fabrica-de-software/carinho-integracoes/internal/domain"
)

type Level string

const (
	LevelWarning  Level = "warning"
	LevelCritical Level = "critical"
)

type AlertType string

const (
	AlertPendingEvents  AlertType = "pending_events"
	AlertRetryQueue     AlertType = "retry_queue"
	AlertDeadLetter     AlertType = "dead_letter"
	AlertErrorRate      AlertType = "error_rate"
	AlertCircuitBreaker AlertType = "circuit_breaker"
)

type Alert struct {
	Type      AlertType `json:"type"`
	Level     Level     `json:"level"`
	Subject   string    `json:"subject,omitempty"`
	Message   string    `json:"message"`
	Value     float64   `json:"value"`
	Threshold float64   `json:"threshold"`
}

// Thresholds configures when each alert fires. An alert is a warning above
// its threshold and critical above threshold * CriticalMultiplier.
type Thresholds struct {
	PendingEvents      int64
	RetryQueue         int64
	DeadLetters        int64
	ErrorRate          float64
	CriticalMultiplier float64
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PendingEvents:      100,
		RetryQueue:         50,
		DeadLetters:        10,
		ErrorRate:          10,
		CriticalMultiplier: 2,
	}
}

type HealthStatus string

const (
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthCritical HealthStatus = "critical"
)

type Health struct {
	Status    HealthStatus `json:"status"`
	Alerts    []Alert      `json:"alerts"`
	CheckedAt time.Time    `json:"checked_at"`
}

type EventCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Done       int64 `json:"done"`
	Failed     int64 `json:"failed"`
}

type RetryQueueView struct {
	Depth            int64   `json:"depth"`
	OldestAgeSeconds float64 `json:"oldest_age_seconds"`
}

type DeliveryView struct {
	Period    string  `json:"period"`
	Sent      int64   `json:"sent"`
	Failed    int64   `json:"failed"`
	Pending   int64   `json:"pending"`
	ErrorRate float64 `json:"error_rate"`
}

// Snapshot is the dashboard: one read-only sample of every store.
type Snapshot struct {
	GeneratedAt time.Time              `json:"generated_at"`
	Events      EventCounts            `json:"events"`
	RetryQueue  RetryQueueView         `json:"retry_queue"`
	DeadLetters domain.DeadLetterStats `json:"dead_letters"`
	Deliveries  DeliveryView           `json:"deliveries"`
	Circuits    []breaker.Status       `json:"circuits"`
}
