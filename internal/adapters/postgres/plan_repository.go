package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// PlanRepository implements ports.PlanRepository.
type PlanRepository struct {
	pool *Pool
}

// NewPlanRepository constructs a PlanRepository.
func NewPlanRepository(pool *Pool) *PlanRepository {
	return &PlanRepository{pool: pool}
}

func (r *PlanRepository) GetByID(ctx context.Context, id int) (*domain.Plan, error) {
	var plan domain.Plan
	var cycle string
	var features []byte
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT id, name, price, currency, billing_cycle, features, active
		FROM plans
		WHERE id = $1`, id).
		Scan(&plan.ID, &plan.Name, &plan.Price, &plan.Currency, &cycle, &features, &plan.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrPlanNotFound
		}
		return nil, fmt.Errorf("get plan %d: %w", id, err)
	}
	plan.Cycle = domain.BillingCycle(cycle)
	if len(features) > 0 {
		if err := json.Unmarshal(features, &plan.Features); err != nil {
			return nil, fmt.Errorf("unmarshal plan %d features: %w", id, err)
		}
	}
	return &plan, nil
}

// ActivePlanForUser resolves the plan backing a user's current
// non-terminal subscription (status active or trial), the source of truth
// the usage meter (C9) reads feature limits from. Implements
// usage.SubscriptionPlanLookup directly so the meter needs no separate
// subscription lookup just to find a plan.
func (r *PlanRepository) ActivePlanForUser(ctx context.Context, userID int64) (*domain.Plan, error) {
	var plan domain.Plan
	var cycle string
	var features []byte
	err := r.pool.Raw().QueryRow(ctx, `
		SELECT p.id, p.name, p.price, p.currency, p.billing_cycle, p.features, p.active
		FROM subscriptions s
		JOIN plans p ON p.id = s.plan_id
		WHERE s.user_id = $1 AND s.status IN ('active', 'trial')
		ORDER BY s.created_at DESC
		LIMIT 1`, userID).
		Scan(&plan.ID, &plan.Name, &plan.Price, &plan.Currency, &cycle, &features, &plan.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("get active plan for user %d: %w", userID, err)
	}
	plan.Cycle = domain.BillingCycle(cycle)
	if len(features) > 0 {
		if err := json.Unmarshal(features, &plan.Features); err != nil {
			return nil, fmt.Errorf("unmarshal plan %d features: %w", plan.ID, err)
		}
	}
	return &plan, nil
}
