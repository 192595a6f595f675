package domain

import "time"

// WebhookInboxEntry backs the subscription side's idempotent ingestion
// table (C13), unique on EventID. Purpose: replay/duplicate suppression
// for inbound payment events, including the deliberate dual-delivery path
// described in spec 4.11 (enqueue + best-effort synchronous POST).
type WebhookInboxEntry struct {
	ID           int64                  `json:"id"`
	EventID      string                 `json:"event_id"`
	Payload      map[string]interface{} `json:"payload"`
	Processed    bool                   `json:"processed"`
	ProcessedAt  *time.Time             `json:"processed_at,omitempty"`
	RetryCount   int                    `json:"retry_count"`
	ErrorMessage *string                `json:"error_message,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}
