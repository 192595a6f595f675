package queue

import (
	"context"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// Sweeper reconciles Q:processing with outstanding idempotency locks (C6).
// A processing entry whose lock has expired means its worker crashed
// between claim and ack; the sweeper recovers it by delaying a retry or
// dead-lettering, per policy. It never touches a live-locked message.
type Sweeper struct {
	Substrate *Substrate
	Lock      *Lock
	Recorder  EventRecorder
	Queues    []string
	Interval  time.Duration
	Logger    ports.Logger
}

// NewSweeper constructs a sweeper over the given queues.
func NewSweeper(substrate *Substrate, lock *Lock, recorder EventRecorder, queues []string, interval time.Duration, logger ports.Logger) *Sweeper {
	return &Sweeper{Substrate: substrate, Lock: lock, Recorder: recorder, Queues: queues, Interval: interval, Logger: logger}
}

// Tick scans every registered queue's processing list once and returns the
// count of orphans reclaimed per queue.
func (s *Sweeper) Tick(ctx context.Context) map[string]int {
	results := make(map[string]int, len(s.Queues))
	for _, q := range s.Queues {
		results[q] = s.sweepQueue(ctx, q)
	}
	return results
}

func (s *Sweeper) sweepQueue(ctx context.Context, q string) int {
	items, err := s.Substrate.ProcessingSnapshot(ctx, q)
	if err != nil {
		if s.Logger != nil {
			s.Logger.Error("sweep snapshot failed", ports.String("queue", q), ports.Err(err))
		}
		return 0
	}

	policy := PolicyFor(q)
	swept := 0
	for _, raw := range items {
		env, err := UnmarshalEnvelope(raw)
		if err != nil {
			continue
		}
		messageID, err := env.MessageID()
		if err != nil {
			continue
		}
		held, err := s.Lock.Exists(ctx, q, messageID)
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("sweep lock check failed", ports.String("queue", q), ports.Err(err))
			}
			continue
		}
		if held {
			continue
		}

		attempts := env.Attempts + 1
		if err := s.Substrate.RemoveFromProcessing(ctx, q, raw); err != nil {
			if s.Logger != nil {
				s.Logger.Error("sweep remove failed", ports.String("queue", q), ports.Err(err))
			}
			continue
		}

		ceiling := env.EffectiveMaxRetries(policy.MaxRetries)
		if attempts <= ceiling {
			clone := env.CloneWithAttempts(attempts)
			delay := policy.NextDelay(attempts)
			if err := s.Substrate.DelayEnqueue(ctx, q, clone, delay); err != nil && s.Logger != nil {
				s.Logger.Error("sweep requeue failed", ports.String("queue", q), ports.Err(err))
			}
			s.record(ctx, q, env, JobStatusRetry)
		} else {
			if err := s.Substrate.DeadLetter(ctx, q, raw); err != nil && s.Logger != nil {
				s.Logger.Error("sweep dead-letter failed", ports.String("queue", q), ports.Err(err))
			}
			s.record(ctx, q, env, JobStatusDead)
		}
		swept++
	}
	if swept > 0 && s.Logger != nil {
		s.Logger.Info("swept orphaned messages", ports.String("queue", q), ports.Int("count", swept))
	}
	return swept
}

func (s *Sweeper) record(ctx context.Context, q string, env *Envelope, status JobStatus) {
	if s.Recorder == nil {
		return
	}
	if err := s.Recorder.Record(ctx, q, env, status, nil); err != nil && s.Logger != nil {
		s.Logger.Warn("job log record failed", ports.String("queue", q))
	}
}

// Run ticks on Interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}
