package event

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEnvelope(t *testing.T) {
	data := map[string]any{
		"evaluation_id": "eval-123",
		"entity_type":   "evaluation",
		"score":         87.5,
	}

	env := NewEnvelope("EVALUATION_COMPLETED", data)

	require.NotNil(t, env)
	assert.NotEqual(t, uuid.Nil, env.ID)
	assert.Equal(t, "EVALUATION_COMPLETED", env.Type)
	assert.Equal(t, data, env.Data)
	assert.NotEmpty(t, env.Metadata.CorrelationID)
	assert.False(t, env.Metadata.Timestamp.IsZero())
	assert.False(t, env.IsRetry)
	assert.Nil(t, env.OriginalFailure)
}

func TestNewEnvelope_UniqueIDs(t *testing.T) {
	a := NewEnvelope("EVALUATION_COMPLETED", nil)
	b := NewEnvelope("EVALUATION_COMPLETED", nil)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.Metadata.CorrelationID, b.Metadata.CorrelationID)
}

func TestNewRetryEnvelope(t *testing.T) {
	failedAt := time.Now().UTC().Add(-time.Hour)
	env := NewRetryEnvelope(
		"EVALUATION_COMPLETED",
		map[string]any{"evaluation_id": "eval-123"},
		"corr-1",
		"eval-123",
		OriginalFailure{HandlerID: "challenge-generation", ErrorMessage: "ECONNRESET", FailedAt: failedAt},
	)

	assert.True(t, env.IsRetry)
	assert.Equal(t, "corr-1", env.Metadata.CorrelationID)
	assert.Equal(t, "eval-123", env.Metadata.SourceID)
	require.NotNil(t, env.OriginalFailure)
	assert.Equal(t, "challenge-generation", env.OriginalFailure.HandlerID)
	assert.Equal(t, "ECONNRESET", env.OriginalFailure.ErrorMessage)
	assert.Equal(t, failedAt, env.OriginalFailure.FailedAt)
}

func TestRecorder_AccumulateAndClear(t *testing.T) {
	var r Recorder
	r.SetEventSource("eval-9")

	r.AddDomainEvent("EVALUATION_COMPLETED", map[string]any{"evaluation_id": "eval-9"})
	r.AddDomainEvent("EVALUATION_ARCHIVED", map[string]any{"evaluation_id": "eval-9"})

	events := r.DomainEvents()
	require.Len(t, events, 2)
	assert.Equal(t, "EVALUATION_COMPLETED", events[0].Type)
	assert.Equal(t, "EVALUATION_ARCHIVED", events[1].Type)
	assert.Equal(t, "eval-9", events[0].Metadata.SourceID)

	r.ClearDomainEvents()
	assert.Empty(t, r.DomainEvents())
}

func TestRecorder_DomainEventsReturnsCopy(t *testing.T) {
	var r Recorder
	r.AddDomainEvent("EVALUATION_COMPLETED", nil)

	events := r.DomainEvents()
	events[0] = nil

	require.Len(t, r.DomainEvents(), 1)
	assert.NotNil(t, r.DomainEvents()[0])
}

func TestRecorder_ConcurrentAdds(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.AddDomainEvent("EVALUATION_COMPLETED", nil)
		}()
	}
	wg.Wait()

	assert.Len(t, r.DomainEvents(), 50)
}
