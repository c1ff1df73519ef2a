// Package dlq defines the persisted dead-letter entry for events whose
// handlers exhausted their retries, and the repository contract backing it.
package dlq

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lcastro/eventcore/internal/domain/event"
)

// Status is the lifecycle state of a dead-letter entry.
// pending → retrying → {resolved | failed}; failed → retrying is allowed.
// resolved is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusRetrying Status = "retrying"
	StatusResolved Status = "resolved"
	StatusFailed   Status = "failed"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRetrying, StatusResolved, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	transitions := map[Status][]Status{
		StatusPending:  {StatusRetrying},
		StatusRetrying: {StatusResolved, StatusFailed},
		StatusFailed:   {StatusRetrying},
		StatusResolved: {},
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Entry is the persisted record of a delivery that exhausted its retries.
// EventData is an independent copy of the originating envelope's payload.
type Entry struct {
	ID            uuid.UUID
	EventID       uuid.UUID
	EventName     string
	EventData     map[string]any
	HandlerID     string
	ErrorMessage  string
	ErrorStack    string
	RetryCount    int
	Status        Status
	CorrelationID string
	SourceID      string
	CreatedAt     time.Time
	LastRetryAt   *time.Time
}

// NewEntry builds a pending entry from a failed delivery. The payload is
// copied so the entry stays valid after the envelope is discarded.
func NewEntry(env *event.Envelope, handlerID string, handlerErr error) *Entry {
	data := make(map[string]any, len(env.Data))
	for k, v := range env.Data {
		data[k] = v
	}

	return &Entry{
		ID:            uuid.New(),
		EventID:       env.ID,
		EventName:     env.Type,
		EventData:     data,
		HandlerID:     handlerID,
		ErrorMessage:  handlerErr.Error(),
		ErrorStack:    fmt.Sprintf("%+v", handlerErr),
		RetryCount:    0,
		Status:        StatusPending,
		CorrelationID: env.Metadata.CorrelationID,
		SourceID:      env.Metadata.SourceID,
		CreatedAt:     time.Now().UTC(),
	}
}
