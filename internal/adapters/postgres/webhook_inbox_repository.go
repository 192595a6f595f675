package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// WebhookInboxRepository implements ports.WebhookInboxRepository against
// the webhook_inbox table, which carries a unique constraint on event_id.
type WebhookInboxRepository struct {
	pool *Pool
}

// NewWebhookInboxRepository constructs a WebhookInboxRepository.
func NewWebhookInboxRepository(pool *Pool) *WebhookInboxRepository {
	return &WebhookInboxRepository{pool: pool}
}

func (r *WebhookInboxRepository) GetByEventID(ctx context.Context, eventID string) (*domain.WebhookInboxEntry, error) {
	var entry domain.WebhookInboxEntry
	var payload []byte
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, event_id, payload, processed, processed_at, retry_count, error_message, created_at, updated_at
		FROM webhook_inbox
		WHERE event_id = $1`, eventID).
		Scan(&entry.ID, &entry.EventID, &payload, &entry.Processed, &entry.ProcessedAt,
			&entry.RetryCount, &entry.ErrorMessage, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get webhook inbox entry %s: %w", eventID, err)
	}
	payloadMap, err := unmarshalMetadata(payload)
	if err != nil {
		return nil, err
	}
	entry.Payload = payloadMap
	return &entry, nil
}

func (r *WebhookInboxRepository) Insert(ctx context.Context, eventID string, payload map[string]interface{}) (*domain.WebhookInboxEntry, error) {
	raw, err := marshalMetadata(payload)
	if err != nil {
		return nil, err
	}
	entry := &domain.WebhookInboxEntry{
		EventID: eventID,
		Payload: payload,
	}
	err = r.pool.Raw().QueryRow(ctx, `
		INSERT INTO webhook_inbox (event_id, payload, processed, retry_count, created_at, updated_at)
		VALUES ($1, $2, false, 0, now(), now())
		RETURNING id, processed, retry_count, created_at, updated_at`,
		eventID, raw,
	).Scan(&entry.ID, &entry.Processed, &entry.RetryCount, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert webhook inbox entry %s: %w", eventID, err)
	}
	return entry, nil
}

func (r *WebhookInboxRepository) UpdatePayload(ctx context.Context, id int64, payload map[string]interface{}) error {
	raw, err := marshalMetadata(payload)
	if err != nil {
		return err
	}
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE webhook_inbox SET payload = $2, updated_at = now() WHERE id = $1`, id, raw)
	if err != nil {
		return fmt.Errorf("update webhook inbox entry %d payload: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookInboxNotFound
	}
	return nil
}

func (r *WebhookInboxRepository) MarkProcessed(ctx context.Context, id int64, processedAt time.Time) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE webhook_inbox SET processed = true, processed_at = $2, updated_at = now() WHERE id = $1`,
		id, processedAt)
	if err != nil {
		return fmt.Errorf("mark webhook inbox entry %d processed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookInboxNotFound
	}
	return nil
}

func (r *WebhookInboxRepository) MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string) error {
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE webhook_inbox SET retry_count = $2, error_message = $3, updated_at = now() WHERE id = $1`,
		id, retryCount, nullText(errMsg))
	if err != nil {
		return fmt.Errorf("mark webhook inbox entry %d failed: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrWebhookInboxNotFound
	}
	return nil
}
