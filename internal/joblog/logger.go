package joblog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	"github.com/kevin07696/billing-pipeline/internal/queue"
)

// tailKey is the Redis list job_logger.py pushes onto for cheap tailing.
const tailKey = "q:log:jobs"

// event is the compact shape pushed onto the Redis tail list; a looser,
// ephemeral cousin of the durable JobLogEntry row.
type event struct {
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Queue     string `json:"queue"`
	Action    string `json:"action"`
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// Logger implements the durable event log (C12) and satisfies
// queue.EventRecorder. Every Record call does two things: writes the
// durable JobLogEntry row, and best-effort LPUSHes a compact event onto
// q:log:jobs for operators tailing live activity. Neither side blocks job
// progress — persistence errors are logged, never returned as a cause for
// retry or dead-letter.
type Logger struct {
	Service string
	Store   ports.JobLogRepository
	Redis   *redis.Client
	Logging ports.Logger
}

// NewLogger constructs a job logger for one service name (the worker
// processes pass "payment-service" or "subscription-service"). Redis may be nil to skip the tail-list push.
func NewLogger(service string, store ports.JobLogRepository, redisClient *redis.Client, logger ports.Logger) *Logger {
	return &Logger{Service: service, Store: store, Redis: redisClient, Logging: logger}
}

// Record writes one JobLog row and, best-effort, pushes a compact event
// onto the tail list. Implements queue.EventRecorder.
func (l *Logger) Record(ctx context.Context, q string, env *queue.Envelope, status queue.JobStatus, lastErr error) error {
	lastErrMsg := ""
	if lastErr != nil {
		lastErrMsg = lastErr.Error()
	}

	entry := &domain.JobLogEntry{
		Service:        l.Service,
		Queue:          q,
		MessageID:      env.ID,
		CorrelationID:  env.CorrelationID,
		IdempotencyKey: env.IdempotencyKey,
		Action:         env.Action,
		Status:         string(status),
		Attempts:       env.Attempts,
		LastError:      lastErrMsg,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if l.Store != nil {
		if err := l.Store.Record(ctx, entry); err != nil && l.Logging != nil {
			l.Logging.Error("job log persist failed", ports.String("queue", q), ports.String("message_id", env.ID), ports.Err(err))
		}
	}

	l.pushTail(ctx, q, env, status, lastErrMsg)
	return nil
}

func (l *Logger) pushTail(ctx context.Context, q string, env *queue.Envelope, status queue.JobStatus, lastErrMsg string) {
	if l.Redis == nil {
		return
	}
	ev := event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Service:   l.Service,
		Queue:     q,
		Action:    env.Action,
		Status:    string(status),
		MessageID: env.ID,
		Attempts:  env.Attempts,
		LastError: lastErrMsg,
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := l.Redis.LPush(ctx, tailKey, raw).Err(); err != nil && l.Logging != nil {
		l.Logging.Warn("job log tail push failed", ports.Err(err))
	}
}
