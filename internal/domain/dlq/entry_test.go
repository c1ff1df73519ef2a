package dlq

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEntry(t *testing.T) {
	env := event.NewEnvelope("EVALUATION_COMPLETED", map[string]any{
		"evaluation_id": "eval-1",
		"entity_type":   "evaluation",
	})
	env.Metadata.SourceID = "eval-1"

	entry := NewEntry(env, "challenge-generation", errors.New("ECONNRESET"))

	require.NotNil(t, entry)
	assert.NotEqual(t, uuid.Nil, entry.ID)
	assert.Equal(t, env.ID, entry.EventID)
	assert.Equal(t, "EVALUATION_COMPLETED", entry.EventName)
	assert.Equal(t, env.Data, entry.EventData)
	assert.Equal(t, "challenge-generation", entry.HandlerID)
	assert.Equal(t, "ECONNRESET", entry.ErrorMessage)
	assert.Equal(t, 0, entry.RetryCount)
	assert.Equal(t, StatusPending, entry.Status)
	assert.Equal(t, env.Metadata.CorrelationID, entry.CorrelationID)
	assert.Equal(t, "eval-1", entry.SourceID)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Nil(t, entry.LastRetryAt)
}

func TestNewEntry_CopiesEventData(t *testing.T) {
	data := map[string]any{"evaluation_id": "eval-1"}
	env := event.NewEnvelope("EVALUATION_COMPLETED", data)

	entry := NewEntry(env, "h1", errors.New("boom"))
	data["evaluation_id"] = "mutated"

	assert.Equal(t, "eval-1", entry.EventData["evaluation_id"])
}

func TestStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusRetrying, true},
		{StatusPending, StatusResolved, false},
		{StatusPending, StatusFailed, false},
		{StatusRetrying, StatusResolved, true},
		{StatusRetrying, StatusFailed, true},
		{StatusRetrying, StatusPending, false},
		{StatusFailed, StatusRetrying, true},
		{StatusFailed, StatusResolved, false},
		{StatusResolved, StatusRetrying, false},
		{StatusResolved, StatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, StatusPending.Valid())
	assert.True(t, StatusRetrying.Valid())
	assert.True(t, StatusResolved.Valid())
	assert.True(t, StatusFailed.Valid())
	assert.False(t, Status("discarded").Valid())
}
