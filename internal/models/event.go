package models

import "time"

// Event is one row of the transactional outbox. It is inserted in the
// same database transaction as the state change it describes, so a
// consumer tailing the feed never sees an event for a rolled-back
// write. Seq is the feed cursor.
type Event struct {
	Seq         int64      `json:"seq"`
	EntityType  string     `json:"entity_type"`
	EntityID    string     `json:"entity_id"`
	EventType   string     `json:"event_type"`
	NewState    string     `json:"new_state"`
	Payload     string     `json:"payload,omitempty"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   string     `json:"last_error,omitempty"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}
