package usage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kevin07696/billing-pipeline/internal/domain"
	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// checkAndIncrementScript implements the atomic sequence in spec §4.9 as a
// single server-side Lua script so it is linearizable with respect to
// concurrent callers for the same key, per §5's "usage meter is the only
// component with strict linearizability requirements".
//
// KEYS[1] = usage:<user_id>:<feature>
// ARGV[1] = delta
// ARGV[2] = limit
// ARGV[3] = reset_at to store on a write (unix seconds)
// ARGV[4] = now (unix seconds)
// ARGV[5] = TTL seconds for the key
//
// Returns {allowed (0/1), count, limit}.
const checkAndIncrementScript = `
local count = tonumber(redis.call('HGET', KEYS[1], 'count')) or 0
local stored_reset_at = redis.call('HGET', KEYS[1], 'reset_at')
local now = tonumber(ARGV[4])

if stored_reset_at and stored_reset_at ~= false and tonumber(stored_reset_at) <= now then
  count = 0
end

local delta = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

if count + delta > limit then
  return {0, count, limit}
end

count = count + delta
redis.call('HSET', KEYS[1], 'count', count, 'reset_at', ARGV[3])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[5]))
return {1, count, limit}
`

// defaultKeyTTL matches spec §4.9's "write(count, reset_at) at key with
// 24h TTL".
const defaultKeyTTL = 24 * time.Hour

// SubscriptionPlanLookup resolves the plan backing a user's active
// subscription, the source of truth for feature limits (spec §4.9: "Limits
// are resolved from the user's active subscription's plan
// features.limits").
type SubscriptionPlanLookup interface {
	ActivePlanForUser(ctx context.Context, userID int64) (*domain.Plan, error)
}

// Meter implements the usage meter (C9): an atomic check-and-increment
// with monthly reset semantics, backed by a Redis Lua script and
// asynchronously mirrored into UsageRepository.
type Meter struct {
	client         *redis.Client
	script         *redis.Script
	plans          SubscriptionPlanLookup
	persist        ports.UsageRepository
	logger         ports.Logger
	persistTimeout time.Duration
}

// NewMeter constructs a Meter. persist may be nil in tests that only care
// about the allow/deny decision.
func NewMeter(client *redis.Client, plans SubscriptionPlanLookup, persist ports.UsageRepository, logger ports.Logger) *Meter {
	return &Meter{
		client:         client,
		script:         redis.NewScript(checkAndIncrementScript),
		plans:          plans,
		persist:        persist,
		logger:         logger,
		persistTimeout: 5 * time.Second,
	}
}

// Result is the allow/deny decision returned by CheckAndIncrement.
type Result struct {
	Allowed bool
	Count   int
	Limit   int
}

func usageKey(userID int64, feature string) string {
	return fmt.Sprintf("usage:%d:%s", userID, feature)
}

// NextResetAt is the first day of next calendar month at 00:00 UTC,
// relative to now, per spec §4.9.
func NextResetAt(now time.Time) time.Time {
	now = now.UTC()
	firstOfNextMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNextMonth
}

// CheckAndIncrement performs the atomic sequence of spec §4.9. The plan
// limit is resolved from the user's active subscription; a feature absent
// from the plan's limit map denies with domain.ErrFeatureUnavailable.
func (m *Meter) CheckAndIncrement(ctx context.Context, userID int64, feature string, delta int) (Result, error) {
	plan, err := m.plans.ActivePlanForUser(ctx, userID)
	if err != nil {
		return Result{}, fmt.Errorf("resolve active plan: %w", err)
	}
	limit, ok := plan.Features.Limits[feature]
	if !ok {
		return Result{}, domain.ErrFeatureUnavailable
	}

	now := time.Now().UTC()
	resetAt := NextResetAt(now)

	raw, err := m.script.Run(ctx, m.client, []string{usageKey(userID, feature)},
		delta, limit, resetAt.Unix(), now.Unix(), int64(defaultKeyTTL.Seconds()),
	).Result()
	if err != nil {
		return Result{}, fmt.Errorf("usage meter script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 3 {
		return Result{}, fmt.Errorf("usage meter script: unexpected result shape %v", raw)
	}
	allowed := toInt64(values[0]) == 1
	count := int(toInt64(values[1]))
	limitOut := int(toInt64(values[2]))

	result := Result{Allowed: allowed, Count: count, Limit: limitOut}
	if allowed {
		m.persistAsync(userID, feature, count, resetAt)
	}
	return result, nil
}

func toInt64(v interface{}) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case string:
		i, _ := strconv.ParseInt(n, 10, 64)
		return i
	default:
		return 0
	}
}

// persistAsync mirrors a successful increment into the database without
// blocking the caller; on deny, spec §4.9 requires no persistence at all.
func (m *Meter) persistAsync(userID int64, feature string, count int, resetAt time.Time) {
	if m.persist == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), m.persistTimeout)
		defer cancel()
		if err := m.persist.Upsert(ctx, userID, feature, count, resetAt); err != nil && m.logger != nil {
			m.logger.Error("usage persistence failed", ports.Err(err),
				ports.String("feature", feature))
		}
	}()
}

// GetUserUsage returns the live Redis-backed state for every feature key
// currently tracked for userID, scanning usage:<id>:* (supplemented
// feature: usage_service.py's get_user_usage).
func (m *Meter) GetUserUsage(ctx context.Context, userID int64) (map[string]Result, error) {
	pattern := fmt.Sprintf("usage:%d:*", userID)
	var cursor uint64
	out := make(map[string]Result)
	for {
		keys, next, err := m.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("scan usage keys: %w", err)
		}
		for _, key := range keys {
			feature := featureFromKey(key)
			res, err := m.getOne(ctx, key)
			if err != nil {
				continue
			}
			out[feature] = res
		}
		if next == 0 {
			break
		}
		cursor = next
	}
	return out, nil
}

// GetUserFeatureUsage returns the live count for a single feature.
func (m *Meter) GetUserFeatureUsage(ctx context.Context, userID int64, feature string) (Result, error) {
	return m.getOne(ctx, usageKey(userID, feature))
}

func (m *Meter) getOne(ctx context.Context, key string) (Result, error) {
	vals, err := m.client.HMGet(ctx, key, "count", "reset_at").Result()
	if err != nil {
		return Result{}, err
	}
	count := 0
	if vals[0] != nil {
		count, _ = strconv.Atoi(fmt.Sprint(vals[0]))
	}
	return Result{Count: count}, nil
}

// ResetUserUsage deletes the live counter for (userID, feature), forcing
// the next CheckAndIncrement to start from zero (usage_service.py's
// reset_user_usage).
func (m *Meter) ResetUserUsage(ctx context.Context, userID int64, feature string) error {
	if err := m.client.Del(ctx, usageKey(userID, feature)).Err(); err != nil {
		return fmt.Errorf("reset usage: %w", err)
	}
	return nil
}

func featureFromKey(key string) string {
	// usage:<user_id>:<feature> — feature may itself contain colons, so
	// split on the first two only.
	parts := []rune(key)
	count := 0
	for i, r := range parts {
		if r == ':' {
			count++
			if count == 2 {
				return string(parts[i+1:])
			}
		}
	}
	return key
}
