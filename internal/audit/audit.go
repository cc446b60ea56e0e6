// Package audit records operator actions taken through the admin API.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Action names an operator intervention on the pipeline.
type Action string

const (
	ActionCircuitReset     Action = "CIRCUIT_RESET"
	ActionRetrySweep       Action = "RETRY_SWEEP"
	ActionRetryRequeue     Action = "RETRY_REQUEUE"
	ActionDeadLetterReplay Action = "DEAD_LETTER_REPLAY"
	ActionEndpointCreate   Action = "ENDPOINT_CREATE"
	ActionEndpointUpdate   Action = "ENDPOINT_UPDATE"
	ActionSyncRun          Action = "SYNC_RUN"
)

type Event struct {
	ID        uuid.UUID `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Target    string    `json:"target,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
}

type Logger interface {
	Log(ctx context.Context, event Event) error
}

// SlogLogger writes audit events to the process log under component=audit.
type SlogLogger struct {
	logger *slog.Logger
}

func NewSlogLogger(logger *slog.Logger) *SlogLogger {
	return &SlogLogger{
		logger: logger.With("component", "audit"),
	}
}

func (l *SlogLogger) Log(ctx context.Context, event Event) error {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		l.logger.ErrorContext(ctx, "failed to marshal audit event",
			slog.String("error", err.Error()),
			slog.String("action", string(event.Action)),
		)
		return err
	}

	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	l.logger.Log(ctx, level, "admin_action",
		slog.String("audit_id", event.ID.String()),
		slog.String("action", string(event.Action)),
		slog.String("target", event.Target),
		slog.Int("status", event.Status),
		slog.Bool("success", event.Success),
		slog.String("event_data", string(data)),
	)

	return nil
}

// NoOpLogger discards events.
type NoOpLogger struct{}

func (l *NoOpLogger) Log(_ context.Context, _ Event) error {
	return nil
}
