package dlq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svc "github.com/lcastro/eventcore/internal/dlq"
	domaindlq "github.com/lcastro/eventcore/internal/domain/dlq"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/lcastro/eventcore/internal/eventbus"
	"github.com/lcastro/eventcore/internal/testutil"
	"github.com/lcastro/eventcore/pkg/retry"
)

func newTestService(repo domaindlq.Repository) *svc.Service {
	return svc.NewService(repo, zerolog.Nop(), svc.WithStorageRetry(retry.Options{
		MaxRetries:    1,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2.0,
	}))
}

func newFastBus() *eventbus.Bus {
	return eventbus.New(eventbus.WithRetryOptions(retry.Options{
		MaxRetries:    0,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2.0,
	}))
}

func TestStoreFailedEvent_RoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	env := event.NewEnvelope("EVALUATION_COMPLETED", map[string]any{
		"evaluation_id": "eval-1",
		"user_id":       "user-1",
	})

	stored := service.StoreFailedEvent(ctx, svc.FailedEvent{
		Event:     env,
		HandlerID: "challenge-generation",
		Err:       errors.New("ECONNRESET"),
	})
	require.NotNil(t, stored)
	assert.Equal(t, 0, stored.RetryCount)

	pending := domaindlq.StatusPending
	entries := service.GetFailedEvents(ctx, domaindlq.Filter{Status: &pending})
	require.Len(t, entries, 1)
	assert.Equal(t, "EVALUATION_COMPLETED", entries[0].EventName)
	assert.Equal(t, env.Data, entries[0].EventData)
	assert.Equal(t, "challenge-generation", entries[0].HandlerID)
	assert.Equal(t, "ECONNRESET", entries[0].ErrorMessage)
}

func TestStoreFailedEvent_StorageFailureReturnsNil(t *testing.T) {
	repo := testutil.NewMockDLQRepository()
	repo.InsertFunc = func(ctx context.Context, entry *domaindlq.Entry) error {
		return errors.New("insert rejected")
	}
	service := newTestService(repo)

	stored := service.StoreFailedEvent(context.Background(), svc.FailedEvent{
		Event:     testutil.NewTestEnvelope("EVALUATION_COMPLETED"),
		HandlerID: "h1",
		Err:       errors.New("boom"),
	})

	assert.Nil(t, stored)
}

func TestStoreFailedEvent_IncompleteInput(t *testing.T) {
	service := newTestService(testutil.NewMockDLQRepository())

	assert.Nil(t, service.StoreFailedEvent(context.Background(), svc.FailedEvent{HandlerID: "h1"}))
}

func TestGetFailedEvents_QueryFailureReturnsEmpty(t *testing.T) {
	repo := testutil.NewMockDLQRepository()
	repo.ListFunc = func(ctx context.Context, filter domaindlq.Filter) ([]*domaindlq.Entry, error) {
		return nil, errors.New("query rejected")
	}
	service := newTestService(repo)

	entries := service.GetFailedEvents(context.Background(), domaindlq.Filter{})

	require.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestRetryEvent_Resolves(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(ctx, entry))

	bus := newFastBus()
	var delivered *event.Envelope
	bus.SubscribeAs("challenge-generation", "EVALUATION_COMPLETED", func(ctx context.Context, env *event.Envelope) error {
		delivered = env
		return nil
	})

	ok := service.RetryEvent(ctx, entry.ID, bus)

	assert.True(t, ok)
	require.NotNil(t, delivered)
	assert.True(t, delivered.IsRetry)
	require.NotNil(t, delivered.OriginalFailure)
	assert.Equal(t, "challenge-generation", delivered.OriginalFailure.HandlerID)
	assert.Equal(t, "ECONNRESET", delivered.OriginalFailure.ErrorMessage)
	assert.Equal(t, entry.CorrelationID, delivered.Metadata.CorrelationID)

	updated, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domaindlq.StatusResolved, updated.Status)
	assert.Equal(t, 1, updated.RetryCount)
	assert.NotNil(t, updated.LastRetryAt)
}

func TestRetryEvent_FailsAgain(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(ctx, entry))

	bus := newFastBus()
	bus.SubscribeAs("challenge-generation", "EVALUATION_COMPLETED", func(ctx context.Context, env *event.Envelope) error {
		return errors.New("still broken")
	})

	ok := service.RetryEvent(ctx, entry.ID, bus)

	assert.False(t, ok)

	updated, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domaindlq.StatusFailed, updated.Status)
	assert.Equal(t, 1, updated.RetryCount, "retry count must increase by exactly 1")
	assert.Contains(t, updated.ErrorMessage, "still broken")
}

func TestRetryEvent_MissingEntry(t *testing.T) {
	service := newTestService(testutil.NewMockDLQRepository())

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "h1")
	assert.False(t, service.RetryEvent(context.Background(), entry.ID, newFastBus()))
}

func TestRetryEvent_OtherHandlerFailureDoesNotBlockResolution(t *testing.T) {
	// Only the originally failing handler decides the retry outcome.
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(ctx, entry))

	bus := newFastBus()
	bus.SubscribeAs("challenge-generation", "EVALUATION_COMPLETED", func(ctx context.Context, env *event.Envelope) error {
		return nil
	})
	bus.SubscribeAs("gamification", "EVALUATION_COMPLETED", func(ctx context.Context, env *event.Envelope) error {
		return errors.New("unrelated failure")
	})

	assert.True(t, service.RetryEvent(ctx, entry.ID, bus))

	updated, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domaindlq.StatusResolved, updated.Status)
}

func TestRetryEvent_ConcurrentClaim(t *testing.T) {
	// Two concurrent retries of the same entry: the compare-and-set claim
	// lets exactly one proceed.
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "h1")
	require.NoError(t, repo.Insert(ctx, entry))

	bus := newFastBus()
	bus.SubscribeAs("h1", "EVALUATION_COMPLETED", func(ctx context.Context, env *event.Envelope) error {
		time.Sleep(2 * time.Millisecond)
		return nil
	})

	results := make([]bool, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = service.RetryEvent(ctx, entry.ID, bus)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, ok := range results {
		if ok {
			succeeded++
		}
	}
	assert.Equal(t, 1, succeeded)
}

func TestRetryEvents_Bulk(t *testing.T) {
	// Three pending entries; the handler now rejects the second one with a
	// non-retryable error. Expect 2 resolved, 1 failed, no fail-fast.
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	var poisonID string
	for i := 0; i < 3; i++ {
		env := event.NewEnvelope("EVALUATION_COMPLETED", map[string]any{"n": i})
		entry := domaindlq.NewEntry(env, "h1", errors.New("ECONNRESET"))
		if i == 1 {
			poisonID = entry.ID.String()
		}
		require.NoError(t, repo.Insert(ctx, entry))
	}

	bus := newFastBus()
	bus.SubscribeAs("h1", "EVALUATION_COMPLETED", func(ctx context.Context, env *event.Envelope) error {
		if n, ok := env.Data["n"].(int); ok && n == 1 {
			return errors.New("ValidationError: malformed payload")
		}
		return nil
	})

	pending := domaindlq.StatusPending
	report := service.RetryEvents(ctx, domaindlq.Filter{Status: &pending}, bus)

	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 2, report.Successful)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Details, 3)

	for _, detail := range report.Details {
		if detail.EntryID.String() == poisonID {
			assert.False(t, detail.Succeeded)
			assert.Contains(t, detail.Error, "ValidationError")

			updated, err := repo.GetByID(ctx, detail.EntryID)
			require.NoError(t, err)
			assert.Equal(t, domaindlq.StatusFailed, updated.Status)
		}
	}
}

func TestResolveEntry(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "h1")
	require.NoError(t, repo.Insert(ctx, entry))

	assert.True(t, service.ResolveEntry(ctx, entry.ID))

	updated, err := repo.GetByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domaindlq.StatusResolved, updated.Status)

	missing := testutil.NewTestEntry("EVALUATION_COMPLETED", "h1")
	assert.False(t, service.ResolveEntry(ctx, missing.ID))
}

func TestDeleteEntry(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	service := newTestService(repo)

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "h1")
	require.NoError(t, repo.Insert(ctx, entry))

	assert.True(t, service.DeleteEntry(ctx, entry.ID))
	assert.False(t, service.DeleteEntry(ctx, entry.ID))
}
