package ports

import (
	"context"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// The repository ports below are deliberately narrow: one interface per
// aggregate, named by what a caller does with it rather than by the
// storage technology behind it. Postgres implementations live in
// internal/adapters/postgres; tests exercise these same interfaces
// against small in-memory fakes, the same "small interface at the port,
// fake behind it" shape this package already uses for PaymentGateway.

// SubscriptionRepository persists and resolves Subscription aggregates.
type SubscriptionRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Subscription, error)
	Create(ctx context.Context, sub *domain.Subscription) error
	Update(ctx context.Context, sub *domain.Subscription) error
}

// PlanRepository resolves billing plans by id.
type PlanRepository interface {
	GetByID(ctx context.Context, id int) (*domain.Plan, error)
}

// SubscriptionEventRepository appends to the audit trail (§3 invariant 1
// family: one row per transition, never mutated after insert).
type SubscriptionEventRepository interface {
	Append(ctx context.Context, ev *domain.SubscriptionEvent) error
}

// TransactionRepository persists payment attempts (C11).
type TransactionRepository interface {
	Create(ctx context.Context, tx *domain.Transaction) error
	GetByID(ctx context.Context, id string) (*domain.Transaction, error)
	UpdateStatus(ctx context.Context, id string, status domain.TransactionStatus, gatewayReference, errorMessage *string) error
}

// WebhookInboxRepository implements the idempotent ingestion table (C13).
type WebhookInboxRepository interface {
	// GetByEventID returns (nil, nil) when no row exists yet — this is not
	// an error condition, callers branch on the nil check.
	GetByEventID(ctx context.Context, eventID string) (*domain.WebhookInboxEntry, error)
	Insert(ctx context.Context, eventID string, payload map[string]interface{}) (*domain.WebhookInboxEntry, error)
	UpdatePayload(ctx context.Context, id int64, payload map[string]interface{}) error
	MarkProcessed(ctx context.Context, id int64, processedAt time.Time) error
	MarkFailed(ctx context.Context, id int64, retryCount int, errMsg string) error
}

// UsageRepository is the authoritative persistent mirror the usage meter
// (C9) upserts into after a successful metered increment.
type UsageRepository interface {
	Upsert(ctx context.Context, userID int64, feature string, count int, resetAt time.Time) error
	Get(ctx context.Context, userID int64, feature string) (*domain.UserUsage, error)
}

// JobLogRepository persists the durable job lifecycle audit (C12).
type JobLogRepository interface {
	Record(ctx context.Context, entry *domain.JobLogEntry) error
}
