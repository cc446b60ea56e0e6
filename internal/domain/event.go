package domain

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

type EventStatus string

const (
	EventStatusPending    EventStatus = "pending"
	EventStatusProcessing EventStatus = "processing"
	EventStatusDone       EventStatus = "done"
	EventStatusFailed     EventStatus = "failed"
)

// IdempotencyKeyField is the payload field producers use to deduplicate submissions.
const IdempotencyKeyField = "idempotency_key"

// IntegrationEvent is an occurrence reported by one service that must reach every
// service interested in it. Rows are never deleted.
type IntegrationEvent struct {
	ID             uuid.UUID       `json:"id"`
	EventType      string          `json:"event_type"`
	SourceSystem   string          `json:"source_system"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey *string         `json:"idempotency_key,omitempty"`
	Status         EventStatus     `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PayloadMap decodes the payload as a JSON object. Non-object payloads are
// wrapped under a "data" key so that downstream transforms always see a map.
func (e *IntegrationEvent) PayloadMap() (map[string]any, error) {
	if len(e.Payload) == 0 {
		return map[string]any{}, nil
	}

	var raw any
	if err := json.Unmarshal(e.Payload, &raw); err != nil {
		return nil, err
	}

	if m, ok := raw.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"data": raw}, nil
}

// ExtractIdempotencyKey returns the caller supplied idempotency key, if any.
func ExtractIdempotencyKey(payload map[string]any) *string {
	v, ok := payload[IdempotencyKeyField]
	if !ok || v == nil {
		return nil
	}

	var key string
	switch k := v.(type) {
	case string:
		key = k
	case json.Number:
		key = k.String()
	case float64:
		key = strconv.FormatFloat(k, 'f', -1, 64)
	default:
		return nil
	}

	if key == "" {
		return nil
	}
	return &key
}
