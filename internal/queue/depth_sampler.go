package queue

import (
	"context"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
	"github.com/kevin07696/billing-pipeline/pkg/observability"
)

// DepthSampler periodically publishes each owned queue's active, delayed,
// processing and failed list lengths as Prometheus gauges. It runs
// alongside the pump and sweeper in every worker process.
type DepthSampler struct {
	Substrate *Substrate
	Queues    []string
	Interval  time.Duration
	Logger    ports.Logger
}

// NewDepthSampler constructs a depth sampler over the given queues.
func NewDepthSampler(substrate *Substrate, queues []string, interval time.Duration, logger ports.Logger) *DepthSampler {
	return &DepthSampler{Substrate: substrate, Queues: queues, Interval: interval, Logger: logger}
}

// Tick samples every registered queue once.
func (d *DepthSampler) Tick(ctx context.Context) {
	for _, q := range d.Queues {
		d.sample(ctx, q, "active", d.Substrate.LenActive)
		d.sample(ctx, q, "delayed", d.Substrate.LenDelayed)
		d.sample(ctx, q, "processing", d.Substrate.LenProcessing)
		d.sample(ctx, q, "failed", d.Substrate.LenFailed)
	}
}

func (d *DepthSampler) sample(ctx context.Context, q, state string, lenFn func(context.Context, string) (int64, error)) {
	n, err := lenFn(ctx, q)
	if err != nil {
		if d.Logger != nil {
			d.Logger.Error("queue depth sample failed", ports.String("queue", q), ports.String("state", state), ports.Err(err))
		}
		return
	}
	observability.SetQueueDepth(q, state, float64(n))
}

// Run ticks on Interval until ctx is cancelled.
func (d *DepthSampler) Run(ctx context.Context) {
	ticker := time.NewTicker(d.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Tick(ctx)
		}
	}
}
