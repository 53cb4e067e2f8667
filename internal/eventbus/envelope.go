// Package eventbus defines the canonical event envelope and the
// Kafka-backed producer/consumer used by every service, grounded on the
// teacher's internal/infrastructure/messaging/kafka package and generalized
// from one fixed topic to the saga's full topic set (see topics.go).
package eventbus

import (
	"time"

	"github.com/google/uuid"
)

// Envelope is the canonical shape of every inter-service message, per
// spec.md §4.1.
type Envelope struct {
	EventID     string                 `json:"event_id"`
	EventType   string                 `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  string                 `json:"occurred_at"`
	TraceID     string                 `json:"trace_id"`
	Payload     map[string]interface{} `json:"payload"`
}

// NewEnvelope builds an envelope with a fresh event id and current
// timestamp, mirroring original_source's EventEnvelope defaults.
func NewEnvelope(eventType, aggregateID, traceID string, payload map[string]interface{}) Envelope {
	return Envelope{
		EventID:     uuid.NewString(),
		EventType:   eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC().Format(time.RFC3339Nano),
		TraceID:     traceID,
		Payload:     payload,
	}
}

// OccurredAtTime parses OccurredAt, falling back to the zero time on
// malformed input rather than failing the caller.
func (e Envelope) OccurredAtTime() time.Time {
	t, err := time.Parse(time.RFC3339Nano, e.OccurredAt)
	if err != nil {
		return time.Time{}
	}
	return t
}
