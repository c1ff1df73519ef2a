// Package event defines the envelope passed through the event bus and the
// accumulator aggregates use to collect events until a repository save
// flushes them.
package event

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Metadata carries delivery context alongside the payload.
type Metadata struct {
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id"`
	SourceID      string    `json:"source_id,omitempty"`
}

// OriginalFailure records the failed delivery a retried envelope originates
// from. Present only when IsRetry is true.
type OriginalFailure struct {
	HandlerID    string    `json:"handler_id"`
	ErrorMessage string    `json:"error_message"`
	FailedAt     time.Time `json:"failed_at"`
}

// Envelope is the unit of communication on the bus. Type and Data are set at
// creation and must not be mutated afterwards; ID is unique within the
// process lifetime.
type Envelope struct {
	ID              uuid.UUID        `json:"id"`
	Type            string           `json:"type"`
	Data            map[string]any   `json:"data"`
	Metadata        Metadata         `json:"metadata"`
	IsRetry         bool             `json:"is_retry"`
	OriginalFailure *OriginalFailure `json:"original_failure,omitempty"`
}

// NewEnvelope creates an envelope for a fresh (non-retry) event. The payload
// must include enough context (entity id, entity type, business fields) for a
// handler to act without further lookups.
func NewEnvelope(eventType string, data map[string]any) *Envelope {
	return &Envelope{
		ID:   uuid.New(),
		Type: eventType,
		Data: data,
		Metadata: Metadata{
			Timestamp:     time.Now().UTC(),
			CorrelationID: uuid.New().String(),
		},
	}
}

// NewRetryEnvelope creates a re-delivery envelope for an event recovered from
// the dead-letter queue. The correlation id is preserved from the original
// delivery so the retry can be traced back to it.
func NewRetryEnvelope(eventType string, data map[string]any, correlationID, sourceID string, failure OriginalFailure) *Envelope {
	return &Envelope{
		ID:   uuid.New(),
		Type: eventType,
		Data: data,
		Metadata: Metadata{
			Timestamp:     time.Now().UTC(),
			CorrelationID: correlationID,
			SourceID:      sourceID,
		},
		IsRetry:         true,
		OriginalFailure: &failure,
	}
}

// Recorder accumulates domain events on an aggregate. Embed it in an entity
// and call AddDomainEvent from state transitions; the repository save flushes
// the accumulated envelopes to the bus exactly once and clears them.
type Recorder struct {
	mu       sync.Mutex
	sourceID string
	events   []*Envelope
}

// SetEventSource sets the source id stamped on every recorded envelope,
// typically the aggregate's own id.
func (r *Recorder) SetEventSource(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sourceID = id
}

// AddDomainEvent records an event to be published on the next save.
func (r *Recorder) AddDomainEvent(eventType string, data map[string]any) {
	env := NewEnvelope(eventType, data)

	r.mu.Lock()
	defer r.mu.Unlock()
	env.Metadata.SourceID = r.sourceID
	r.events = append(r.events, env)
}

// DomainEvents returns a copy of the accumulated events in recording order.
func (r *Recorder) DomainEvents() []*Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Envelope, len(r.events))
	copy(out, r.events)
	return out
}

// ClearDomainEvents discards the accumulated events.
func (r *Recorder) ClearDomainEvents() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
