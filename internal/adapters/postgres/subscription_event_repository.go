package postgres

import (
	"context"
	"fmt"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// SubscriptionEventRepository implements ports.SubscriptionEventRepository:
// an append-only audit trail, never updated after insert.
type SubscriptionEventRepository struct {
	pool *Pool
}

// NewSubscriptionEventRepository constructs a SubscriptionEventRepository.
func NewSubscriptionEventRepository(pool *Pool) *SubscriptionEventRepository {
	return &SubscriptionEventRepository{pool: pool}
}

func (r *SubscriptionEventRepository) Append(ctx context.Context, ev *domain.SubscriptionEvent) error {
	metadata, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return err
	}
	err = r.pool.Raw().QueryRow(ctx, `
		INSERT INTO subscription_events
			(subscription_id, event_type, transaction_id, old_plan_id, new_plan_id, effective_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		ev.SubscriptionID, ev.EventType, ev.TransactionID, ev.OldPlanID, ev.NewPlanID, ev.EffectiveAt, metadata,
	).Scan(&ev.ID, &ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append subscription event for %s: %w", ev.SubscriptionID, err)
	}
	return nil
}
