package usage

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// Sweeper is the redesigned replacement for
// reset_expired_usage_schedule (see DESIGN.md): the original called
// redis.flushdb(), wiping the entire keyspace including live queues and
// locks. This scans only usage:* keys and deletes the ones whose stored
// reset_at has already passed, leaving everything else untouched. A key
// whose reset_at has passed is stale regardless of this sweep — the next
// CheckAndIncrement would reset it to zero anyway — so this is purely a
// memory-reclamation pass, not a correctness requirement.
type Sweeper struct {
	client   *redis.Client
	Interval time.Duration
	Logger   ports.Logger
}

// NewSweeper constructs a usage-key sweeper.
func NewSweeper(client *redis.Client, interval time.Duration, logger ports.Logger) *Sweeper {
	return &Sweeper{client: client, Interval: interval, Logger: logger}
}

// Tick scans usage:* once and deletes every key whose reset_at has passed.
// Returns the count deleted.
func (s *Sweeper) Tick(ctx context.Context) int {
	now := time.Now().UTC().Unix()
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "usage:*", 200).Result()
		if err != nil {
			if s.Logger != nil {
				s.Logger.Error("usage sweep scan failed", ports.Err(err))
			}
			return deleted
		}
		for _, key := range keys {
			resetAtStr, err := s.client.HGet(ctx, key, "reset_at").Result()
			if err != nil {
				continue
			}
			resetAt, err := strconv.ParseInt(resetAtStr, 10, 64)
			if err != nil {
				continue
			}
			if resetAt <= now {
				if err := s.client.Del(ctx, key).Err(); err == nil {
					deleted++
				}
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	if deleted > 0 && s.Logger != nil {
		s.Logger.Info("swept expired usage keys", ports.Int("count", deleted))
	}
	return deleted
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
