package domain

import "time"

// JobLogEntry is one row per job state change (C12), keyed by MessageID.
// Written best-effort from the worker skeleton: a failure to persist this
// row never blocks job progress.
type JobLogEntry struct {
	ID             int64     `json:"id"`
	Service        string    `json:"service"`
	Queue          string    `json:"queue"`
	MessageID      string    `json:"message_id"`
	CorrelationID  string    `json:"correlation_id,omitempty"`
	IdempotencyKey string    `json:"idempotency_key,omitempty"`
	Action         string    `json:"action"`
	Status         string    `json:"status"`
	Attempts       int       `json:"attempts"`
	LastError      string    `json:"last_error,omitempty"`
	NextRetryAt    *time.Time `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
