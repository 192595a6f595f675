package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	"github.com/kevin07696/billing-pipeline/internal/queue"
)

// SyncHandler reconciles the durable UserUsage row with the live Redis
// counter for one (user_id, feature_name) pair, for q:sub:usage_sync. The
// meter already mirrors every successful increment asynchronously; this
// exists for the cases the meter itself can't cover — a missed persist, a
// cold key that was never written but whose absence should still read as
// zero rather than "not found".
func SyncHandler(meter *Meter, persist ports.UsageRepository) queue.Handler {
	return func(ctx context.Context, env *queue.Envelope) queue.Result {
		userID, ok := toUserID(env.Payload["user_id"])
		if !ok {
			return queue.Fatal(fmt.Errorf("usage sync payload missing user_id"))
		}
		feature, _ := env.Payload["feature"].(string)
		if feature == "" {
			return queue.Fatal(fmt.Errorf("usage sync payload missing feature"))
		}

		result, err := meter.GetUserFeatureUsage(ctx, userID, feature)
		if err != nil {
			return queue.Retryable(err)
		}

		if err := persist.Upsert(ctx, userID, feature, result.Count, NextResetAt(time.Now().UTC())); err != nil {
			return queue.Retryable(err)
		}
		return queue.Success()
	}
}

func toUserID(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}
