package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// SubscriptionRepository implements ports.SubscriptionRepository against
// the subscriptions table directly via pgxpool — no generated query
// layer, hand-written SQL.
type SubscriptionRepository struct {
	pool *Pool
}

// NewSubscriptionRepository constructs a SubscriptionRepository.
func NewSubscriptionRepository(pool *Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

func (r *SubscriptionRepository) GetByID(ctx context.Context, id string) (*domain.Subscription, error) {
	row := r.pool.Raw().QueryRow(ctx, `
		SELECT id, user_id, plan_id, status, start_date, end_date, cancelled_at,
		       created_at, updated_at, metadata
		FROM subscriptions
		WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get subscription %s: %w", id, err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) Create(ctx context.Context, sub *domain.Subscription) error {
	metadata, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Raw().Exec(ctx, `
		INSERT INTO subscriptions (id, user_id, plan_id, status, start_date, end_date, cancelled_at, created_at, updated_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		sub.ID, sub.UserID, sub.PlanID, string(sub.Status), sub.StartDate, sub.EndDate,
		sub.CancelledAt, sub.CreatedAt, sub.UpdatedAt, metadata)
	if err != nil {
		return fmt.Errorf("create subscription %s: %w", sub.ID, err)
	}
	return nil
}

func (r *SubscriptionRepository) Update(ctx context.Context, sub *domain.Subscription) error {
	metadata, err := marshalMetadata(sub.Metadata)
	if err != nil {
		return err
	}
	tag, err := r.pool.Raw().Exec(ctx, `
		UPDATE subscriptions
		SET plan_id = $2, status = $3, end_date = $4, cancelled_at = $5, updated_at = $6, metadata = $7
		WHERE id = $1`,
		sub.ID, sub.PlanID, string(sub.Status), sub.EndDate, sub.CancelledAt, sub.UpdatedAt, metadata)
	if err != nil {
		return fmt.Errorf("update subscription %s: %w", sub.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSubscriptionNotFound
	}
	return nil
}

// rowScanner abstracts pgx.Row so the same scan logic serves QueryRow
// results regardless of which pool/tx produced them.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var status string
	var metadata []byte
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.PlanID, &status, &sub.StartDate, &sub.EndDate,
		&sub.CancelledAt, &sub.CreatedAt, &sub.UpdatedAt, &metadata); err != nil {
		return nil, err
	}
	sub.Status = domain.SubscriptionStatus(status)
	m, err := unmarshalMetadata(metadata)
	if err != nil {
		return nil, err
	}
	sub.Metadata = m
	return &sub, nil
}
