package inbox

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// Disposition reports how Ingest wants the caller to respond: process the
// event, or short-circuit because it's already been handled.
type Disposition int

const (
	// Process means this is a new or previously-unprocessed event; the
	// caller must run its handler and then call MarkProcessed/MarkFailed.
	Process Disposition = iota
	// Duplicate means the event was already processed; the caller must
	// perform no further side effects.
	Duplicate
)

// Entry pairs a disposition with the inbox row it concerns.
type Entry struct {
	Disposition Disposition
	Row         *domain.WebhookInboxEntry
}

// Inbox implements the idempotent webhook ingestion table (C13): one row
// per event_id, enforcing "processed at most once" even under the dual
// delivery path (queued + best-effort synchronous POST) described in
// spec §9.
type Inbox struct {
	Store  ports.WebhookInboxRepository
	Logger ports.Logger
}

// NewInbox constructs an Inbox over its repository port.
func NewInbox(store ports.WebhookInboxRepository, logger ports.Logger) *Inbox {
	return &Inbox{Store: store, Logger: logger}
}

// Ingest implements §4.13: look up by event_id. If present and processed,
// return Duplicate with no side effects. If present and unprocessed,
// update the stored payload and fall through to Process. Otherwise insert
// a fresh unprocessed row and return Process.
func (i *Inbox) Ingest(ctx context.Context, eventID string, payload map[string]interface{}) (Entry, error) {
	existing, err := i.Store.GetByEventID(ctx, eventID)
	if err != nil {
		return Entry{}, fmt.Errorf("lookup inbox row for %s: %w", eventID, err)
	}

	if existing != nil {
		if existing.Processed {
			return Entry{Disposition: Duplicate, Row: existing}, nil
		}
		if err := i.Store.UpdatePayload(ctx, existing.ID, payload); err != nil {
			return Entry{}, fmt.Errorf("update inbox payload for %s: %w", eventID, err)
		}
		existing.Payload = payload
		return Entry{Disposition: Process, Row: existing}, nil
	}

	row, err := i.Store.Insert(ctx, eventID, payload)
	if err != nil {
		return Entry{}, fmt.Errorf("insert inbox row for %s: %w", eventID, err)
	}
	return Entry{Disposition: Process, Row: row}, nil
}

// MarkProcessed records successful handling of the inbox row.
func (i *Inbox) MarkProcessed(ctx context.Context, id int64) error {
	return i.Store.MarkProcessed(ctx, id, time.Now().UTC())
}

// MarkFailed bumps retry_count and records the handler's error. It does
// not set processed=true: the row remains eligible for another attempt on
// redelivery.
func (i *Inbox) MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string) error {
	return i.Store.MarkFailed(ctx, id, retryCount, errMsg)
}
