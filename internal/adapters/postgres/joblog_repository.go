package postgres

import (
	"context"
	"fmt"

	"github.com/kevin07696/billing-pipeline/internal/domain"
)

// JobLogRepository implements ports.JobLogRepository, the durable half of
// the dual-write job event log (C12); the other half is the best-effort
// Redis tail in internal/joblog.
type JobLogRepository struct {
	pool *Pool
}

// NewJobLogRepository constructs a JobLogRepository.
func NewJobLogRepository(pool *Pool) *JobLogRepository {
	return &JobLogRepository{pool: pool}
}

func (r *JobLogRepository) Record(ctx context.Context, entry *domain.JobLogEntry) error {
	err := r.pool.Raw().QueryRow(ctx, `
		INSERT INTO job_logs
			(service, queue, message_id, correlation_id, idempotency_key, action, status,
			 attempts, last_error, next_retry_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING id, created_at, updated_at`,
		entry.Service, entry.Queue, entry.MessageID, nullText(entry.CorrelationID),
		nullText(entry.IdempotencyKey), entry.Action, entry.Status, entry.Attempts,
		nullText(entry.LastError), entry.NextRetryAt,
	).Scan(&entry.ID, &entry.CreatedAt, &entry.UpdatedAt)
	if err != nil {
		return fmt.Errorf("record job log entry for message %s: %w", entry.MessageID, err)
	}
	return nil
}
