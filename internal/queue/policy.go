package queue

import (
	"math"
	"math/rand"
	"time"
)

// Policy is the 7-tuple governing retry and lease behavior for one queue.
type Policy struct {
	MaxRetries          int
	BaseDelay           time.Duration
	BackoffMultiplier   float64
	MaxDelay            time.Duration
	Jitter              time.Duration
	LockTTL             time.Duration
	VisibilityTimeout   time.Duration
}

// DefaultPolicy is applied to any queue without an explicit override.
var DefaultPolicy = Policy{
	MaxRetries:        5,
	BaseDelay:         60 * time.Second,
	BackoffMultiplier: 2.0,
	MaxDelay:          3600 * time.Second,
	Jitter:            10 * time.Second,
	LockTTL:           180 * time.Second,
	VisibilityTimeout: 300 * time.Second,
}

// shortLivedPolicy backs the refund-initiation and trial-payment queues,
// which need faster failure detection than the default payment queues.
var shortLivedPolicy = Policy{
	MaxRetries:        3,
	BaseDelay:         60 * time.Second,
	BackoffMultiplier: 2.0,
	MaxDelay:          600 * time.Second,
	Jitter:            5 * time.Second,
	LockTTL:           120 * time.Second,
	VisibilityTimeout: 240 * time.Second,
}

// Policies maps queue name to its policy. Queues absent from this map fall
// back to DefaultPolicy via PolicyFor.
var Policies = map[string]Policy{
	QueuePaySubscriptionUpdate: DefaultPolicy,
	QueuePayRefundInitiation:   shortLivedPolicy,
	QueueSubPaymentInitiation:  DefaultPolicy,
	QueueSubTrialPayment:       shortLivedPolicy,
	QueueSubPlanChange:         DefaultPolicy,
	QueueSubUsageSync:          DefaultPolicy,
}

// PolicyFor resolves the policy for queue name q, defaulting when no
// explicit entry exists.
func PolicyFor(q string) Policy {
	if p, ok := Policies[q]; ok {
		return p
	}
	return DefaultPolicy
}

// NextDelay computes the backoff for a given post-increment attempts
// count: delay = min(base * multiplier^attempts, max_delay) + uniform(0, jitter).
// Unlike pkg/resilience's symmetric ±jitter, this jitter is one-sided per
// the queue's retry contract: it only ever adds delay, never subtracts it,
// so a computed delay is never negative and never undershoots the backoff
// curve.
func (p Policy) NextDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.BackoffMultiplier, float64(attempts))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	jitter := time.Duration(0)
	if p.Jitter > 0 {
		jitter = time.Duration(rand.Int63n(int64(p.Jitter) + 1))
	}
	return time.Duration(delay) + jitter
}
