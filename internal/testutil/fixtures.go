package testutil

import (
	"errors"

	"github.com/lcastro/eventcore/internal/domain/dlq"
	"github.com/lcastro/eventcore/internal/domain/event"
)

// NewTestEnvelope builds an envelope with a minimal evaluation payload.
func NewTestEnvelope(eventType string) *event.Envelope {
	return event.NewEnvelope(eventType, map[string]any{
		"evaluation_id": "eval-test",
		"entity_type":   "evaluation",
		"user_id":       "user-test",
	})
}

// NewTestEntry builds a pending DLQ entry for the given handler.
func NewTestEntry(eventType, handlerID string) *dlq.Entry {
	return dlq.NewEntry(NewTestEnvelope(eventType), handlerID, errors.New("ECONNRESET"))
}
