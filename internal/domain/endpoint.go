package domain

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEndpoint is a downstream receiver registered for a system.
type WebhookEndpoint struct {
	ID         uuid.UUID `json:"id"`
	SystemName string    `json:"system_name"`
	URL        string    `json:"url"`
	Secret     string    `json:"-"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
