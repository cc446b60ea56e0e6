package domain

import (
	"time"

	"github.com/google/uuid"
)

// RetryEntry holds the backoff state of an event whose delivery failed.
// Attempts never exceeds MaxAttempts while the entry exists.
type RetryEntry struct {
	EventID      uuid.UUID  `json:"event_id"`
	Attempts     int        `json:"attempts"`
	MaxAttempts  int        `json:"max_attempts"`
	NextRetryAt  time.Time  `json:"next_retry_at"`
	LastError    string     `json:"last_error,omitempty"`
	ClaimedUntil *time.Time `json:"claimed_until,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// DeadLetter is the terminal record of an event that exhausted its retry budget.
type DeadLetter struct {
	ID         uuid.UUID  `json:"id"`
	EventID    uuid.UUID  `json:"event_id"`
	EventType  string     `json:"event_type"`
	Reason     string     `json:"reason"`
	Attempts   int        `json:"attempts"`
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// RetryQueueStats summarises the retry queue.
type RetryQueueStats struct {
	Depth       int64      `json:"depth"`
	OldestEntry *time.Time `json:"oldest_entry,omitempty"`
}

// DeadLetterStats summarises unreplayed dead letters.
type DeadLetterStats struct {
	Total       int64            `json:"total"`
	ByEventType map[string]int64 `json:"by_event_type"`
}
