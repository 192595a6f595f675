package domain

import (
	"time"

	"github.com/kevin07696/billing-pipeline/pkg/timeutil"
)

// SubscriptionStatus represents the subscription state.
type SubscriptionStatus string

const (
	SubscriptionStatusPending   SubscriptionStatus = "pending"
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusTrial     SubscriptionStatus = "trial"
	SubscriptionStatusPastDue   SubscriptionStatus = "past_due"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusRevoked   SubscriptionStatus = "revoked"
)

// IsTerminal returns true for statuses a transition must never leave.
func (s SubscriptionStatus) IsTerminal() bool {
	return s == SubscriptionStatusCancelled || s == SubscriptionStatusRevoked
}

// BillingCycle is the plan's renewal cadence.
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// PlanFeatures is the feature bag carried on a Plan.
type PlanFeatures struct {
	Limits        map[string]int `json:"limits"`
	Trial         bool           `json:"trial,omitempty"`
	PeriodDays    int            `json:"period_days,omitempty"`
	RenewalPlanID *int           `json:"renewal_plan,omitempty"`
}

// Plan is a billable product tier.
type Plan struct {
	ID       int          `json:"id"`
	Name     string       `json:"name"`
	Price    string       `json:"price"` // decimal string; parsed at the edges
	Currency string       `json:"currency"`
	Cycle    BillingCycle `json:"billing_cycle"`
	Features PlanFeatures `json:"features"`
	Active   bool         `json:"active"`
}

// IsTrialPlan reports whether this plan grants a trial period before the
// first real charge.
func (p *Plan) IsTrialPlan() bool {
	return p.Features.Trial
}

// User is a billing account holder. Immutable except credentials once created.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// Subscription is a user's relationship to a plan over time.
type Subscription struct {
	ID          string                 `json:"id"` // UUID
	UserID      int64                  `json:"user_id"`
	PlanID      int                    `json:"plan_id"`
	Status      SubscriptionStatus     `json:"status"`
	StartDate   time.Time              `json:"start_date"`
	EndDate     time.Time              `json:"end_date"`
	CancelledAt *time.Time             `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// IsActive returns true if the subscription is currently billable.
func (s *Subscription) IsActive() bool {
	return s.Status == SubscriptionStatusActive || s.Status == SubscriptionStatusTrial
}

// IsTerminal returns true once the subscription can no longer transition.
func (s *Subscription) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// ExtendCycle pushes EndDate forward by one billing cycle. Yearly adds 365
// days, monthly adds 30 days — matches the cycle math this system has
// always used, not calendar-month arithmetic.
func (s *Subscription) ExtendCycle(cycle BillingCycle) {
	switch cycle {
	case BillingCycleYearly:
		s.EndDate = timeutil.ToUTC(s.EndDate.AddDate(0, 0, 365))
	default:
		s.EndDate = timeutil.ToUTC(s.EndDate.AddDate(0, 0, 30))
	}
}

// SubscriptionEvent is an append-only audit row.
type SubscriptionEvent struct {
	ID             int64                  `json:"id"`
	SubscriptionID string                 `json:"subscription_id"`
	EventType      string                 `json:"event_type"`
	TransactionID  *string                `json:"transaction_id,omitempty"`
	OldPlanID      *int                   `json:"old_plan_id,omitempty"`
	NewPlanID      *int                   `json:"new_plan_id,omitempty"`
	EffectiveAt    time.Time              `json:"effective_at"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
