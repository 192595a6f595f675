package queue

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/kevin07696/billing-pipeline/pkg/encoding"
)

// Envelope is the single wire shape for every queue message. There is no
// enveloped/bare polymorphism: anything entering the substrate is wrapped
// here once, at the boundary, and handlers never see anything else.
type Envelope struct {
	ID             string                 `json:"id"`
	Action         string                 `json:"action"`
	CorrelationID  string                 `json:"correlation_id,omitempty"`
	IdempotencyKey string                 `json:"idempotency_key,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	Attempts       int                    `json:"attempts"`
	MaxAttempts    *int                   `json:"max_attempts,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
}

// NewEnvelope builds an envelope for first enqueue. id should be a
// producer-generated identifier (e.g. a UUID); CreatedAt is stamped by the
// caller so tests remain deterministic.
func NewEnvelope(id, action string, createdAt time.Time, payload map[string]interface{}) *Envelope {
	return &Envelope{
		ID:        id,
		Action:    action,
		CreatedAt: createdAt.UTC(),
		Attempts:  0,
		Payload:   payload,
	}
}

// WithIdempotencyKey sets the idempotency key and returns the envelope for
// chaining at construction time.
func (e *Envelope) WithIdempotencyKey(key string) *Envelope {
	e.IdempotencyKey = key
	return e
}

// WithCorrelationID sets the correlation id and returns the envelope for
// chaining at construction time.
func (e *Envelope) WithCorrelationID(id string) *Envelope {
	e.CorrelationID = id
	return e
}

// WithMaxAttempts overrides the effective retry ceiling for this message,
// taking precedence over the queue's policy default.
func (e *Envelope) WithMaxAttempts(n int) *Envelope {
	e.MaxAttempts = &n
	return e
}

// MessageID derives the stable id used for idempotency locks and
// message-identity comparisons. The envelope's own id wins; when absent, a
// deterministic SHA-256 content hash of the serialized envelope substitutes.
func (e *Envelope) MessageID() (string, error) {
	if e.ID != "" {
		return e.ID, nil
	}
	raw, err := encoding.EncodeJSON(e)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// Marshal serializes the envelope to the canonical queue wire form using a
// pooled buffer/encoder, since this runs on every Enqueue/DelayEnqueue call.
func (e *Envelope) Marshal() (string, error) {
	raw, err := encoding.EncodeJSON(e)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// UnmarshalEnvelope parses a queue wire-form string back into an Envelope.
func UnmarshalEnvelope(raw string) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// CloneWithAttempts returns a copy of the envelope with Attempts replaced.
// Used by the worker and sweeper to build the re-enqueued form without
// mutating the message still referenced by the caller.
func (e *Envelope) CloneWithAttempts(attempts int) *Envelope {
	clone := *e
	clone.Attempts = attempts
	return &clone
}

// EffectiveMaxRetries resolves the retry ceiling for this envelope: its own
// MaxAttempts overrides the policy's MaxRetries when set.
func (e *Envelope) EffectiveMaxRetries(policyMaxRetries int) int {
	if e.MaxAttempts != nil {
		return *e.MaxAttempts
	}
	return policyMaxRetries
}
