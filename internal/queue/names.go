package queue

// Queue name constants, shared by both worker processes. Every base name Q
// implies four physical Redis keys: Q, Q:delayed, Q:processing, Q:failed.
const (
	QueuePaySubscriptionUpdate = "q:pay:subscription_update"
	QueuePayRefundInitiation   = "q:pay:refund_initiation"

	QueueSubPaymentInitiation = "q:sub:payment_initiation"
	QueueSubTrialPayment      = "q:sub:trial_payment"
	QueueSubPlanChange        = "q:sub:plan_change"
	QueueSubUsageSync         = "q:sub:usage_sync"
)

func delayedKey(q string) string    { return q + ":delayed" }
func processingKey(q string) string { return q + ":processing" }
func failedKey(q string) string     { return q + ":failed" }
func lockKey(q, messageID string) string {
	return "lock:" + q + ":" + messageID
}
