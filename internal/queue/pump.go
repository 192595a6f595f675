package queue

import (
	"context"
	"time"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// Pump periodically promotes due delayed entries to their main queue
// (C5). PromoteDue is idempotent so overlapping invocations are tolerated
// by construction; the pump itself adds no additional locking.
type Pump struct {
	Substrate *Substrate
	Queues    []string
	Interval  time.Duration
	Logger    ports.Logger
}

// NewPump constructs a pump over the given queues with the given cadence.
func NewPump(substrate *Substrate, queues []string, interval time.Duration, logger ports.Logger) *Pump {
	return &Pump{Substrate: substrate, Queues: queues, Interval: interval, Logger: logger}
}

// Tick runs one promotion pass over every registered queue and returns the
// total count of messages moved.
func (p *Pump) Tick(ctx context.Context) int {
	total := 0
	for _, q := range p.Queues {
		moved, err := p.Substrate.PromoteDue(ctx, q)
		if err != nil {
			if p.Logger != nil {
				p.Logger.Error("promote due failed", ports.String("queue", q), ports.Err(err))
			}
			continue
		}
		if moved > 0 && p.Logger != nil {
			p.Logger.Info("promoted delayed messages", ports.String("queue", q), ports.Int("count", moved))
		}
		total += moved
	}
	return total
}

// Run ticks on Interval until ctx is cancelled.
func (p *Pump) Run(ctx context.Context) {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}
