package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// UsageRepository implements ports.UsageRepository, the durable mirror the
// usage meter (C9) upserts into after a successful metered increment.
type UsageRepository struct {
	pool *Pool
}

// NewUsageRepository constructs a UsageRepository.
func NewUsageRepository(pool *Pool) *UsageRepository {
	return &UsageRepository{pool: pool}
}

func (r *UsageRepository) Upsert(ctx context.Context, userID int64, feature string, count int, resetAt time.Time) error {
	_, err := r.pool.Raw().Exec(ctx, `
		INSERT INTO user_usage (user_id, feature_name, usage_count, reset_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, now(), now())
		ON CONFLICT (user_id, feature_name)
		DO UPDATE SET usage_count = $3, reset_at = $4, updated_at = now()`,
		userID, feature, count, resetAt)
	if err != nil {
		return fmt.Errorf("upsert usage for user %d feature %s: %w", userID, feature, err)
	}
	return nil
}

func (r *UsageRepository) Get(ctx context.Context, userID int64, feature string) (*domain.UserUsage, error) {
	var u domain.UserUsage
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, user_id, feature_name, usage_count, reset_at, created_at, updated_at
		FROM user_usage
		WHERE user_id = $1 AND feature_name = $2`, userID, feature).
		Scan(&u.ID, &u.UserID, &u.Feature, &u.Count, &u.ResetAt, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get usage for user %d feature %s: %w", userID, feature, err)
	}
	return &u, nil
}
