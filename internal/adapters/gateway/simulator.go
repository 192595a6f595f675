// Package gateway implements the simulated PaymentGateway named in spec §6
// ("gateway simulation parameters: min/max delay ms, success rate, success
// card, fail card"). Real gateway integration is out of scope (spec §1
// treats PaymentGateway as an opaque external collaborator); this is the
// configurable stand-in the worker processes drive in its place.
package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kevin07696/billing-pipeline/internal/domain/ports"
)

// failCard is a fixed fail-card constant distinct from the configured
// success card, matching the original mock gateway's dedicated decline case.
const failCard = "0002"

var failureReasons = []string{"insufficient_funds", "card_declined", "expired_card", "invalid_cvv"}

// Config holds the simulation knobs from spec §6's environment variables.
type Config struct {
	SuccessCardLastFour string
	SuccessRate         float64
	MinDelay            time.Duration
	MaxDelay            time.Duration
}

// Simulator implements ports.PaymentGateway without a real network call: it
// sleeps a random duration in [MinDelay, MaxDelay] and then decides success
// or failure by card and configured success rate.
type Simulator struct {
	cfg Config
}

// NewSimulator constructs a Simulator.
func NewSimulator(cfg Config) *Simulator {
	return &Simulator{cfg: cfg}
}

func (s *Simulator) Charge(ctx context.Context, req ports.ChargeRequest) (ports.ChargeResult, error) {
	if err := s.simulateDelay(ctx, s.cfg.MinDelay, s.cfg.MaxDelay); err != nil {
		return ports.ChargeResult{}, err
	}

	ref := gatewayReference("gw")

	if req.CardLastFour == failCard {
		return ports.ChargeResult{
			GatewayReference: ref,
			Status:           ports.GatewayStatusFailed,
			Message:          "payment failed: card_declined",
			ErrorCode:        "card_declined",
		}, nil
	}

	if req.CardLastFour == s.cfg.SuccessCardLastFour || randomSuccess(s.cfg.SuccessRate) {
		return ports.ChargeResult{
			GatewayReference: ref,
			Status:           ports.GatewayStatusSuccess,
			Message:          "payment processed successfully",
		}, nil
	}

	code := failureReasons[randomIndex(len(failureReasons))]
	return ports.ChargeResult{
		GatewayReference: ref,
		Status:           ports.GatewayStatusFailed,
		Message:          fmt.Sprintf("payment failed: %s", code),
		ErrorCode:        code,
	}, nil
}

func (s *Simulator) Refund(ctx context.Context, transactionID string, amount decimal.Decimal, reason string) (ports.RefundResult, error) {
	if err := s.simulateDelay(ctx, s.cfg.MinDelay/2, s.cfg.MaxDelay); err != nil {
		return ports.RefundResult{}, err
	}
	return ports.RefundResult{
		GatewayReference: gatewayReference("rf"),
		Status:           ports.GatewayStatusSuccess,
		Message:          "refund initiated",
	}, nil
}

func (s *Simulator) simulateDelay(ctx context.Context, min, max time.Duration) error {
	if max <= 0 {
		return nil
	}
	if min > max {
		min = max
	}
	delay := min
	if span := max - min; span > 0 {
		delay += time.Duration(randomInt64(int64(span)))
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

func gatewayReference(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixMilli(), randomIndex(9000)+1000)
}

func randomSuccess(rate float64) bool {
	if rate <= 0 {
		return false
	}
	if rate >= 1 {
		return true
	}
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return false
	}
	return float64(n.Int64())/1_000_000 < rate
}

func randomIndex(n int) int {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func randomInt64(n int64) int64 {
	if n <= 0 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(n))
	if err != nil {
		return 0
	}
	return v.Int64()
}
