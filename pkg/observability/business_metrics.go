package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// jobOutcomesTotal counts every worker RunOnce disposition by queue, so
	// an operator can see which queue is unhealthy without grepping job_log.
	jobOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "job_outcomes_total",
		Help: "Total worker RunOnce dispositions by queue and outcome",
	}, []string{
		"queue",
		"outcome", // success, retry, failed, retry_lock_unavailable, claim_error, lock_error
	})

	// queueDepth reports the current size of a queue's Redis-backed lists,
	// sampled on a fixed interval by the owning process's depth sampler.
	queueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Number of messages currently in a queue state",
	}, []string{
		"queue",
		"state", // active, delayed, processing, failed
	})
)

// RecordJobOutcome increments the outcome counter for one worker RunOnce
// call. Callers skip "no_message" ticks to keep the series from being
// dominated by idle polling.
func RecordJobOutcome(queue, outcome string) {
	jobOutcomesTotal.WithLabelValues(queue, outcome).Inc()
}

// SetQueueDepth sets the depth gauge for one queue/state pair.
func SetQueueDepth(queue, state string, n float64) {
	queueDepth.WithLabelValues(queue, state).Set(n)
}
