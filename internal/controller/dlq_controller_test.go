package controller

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	svcdlq "github.com/lcastro/eventcore/internal/dlq"
	"github.com/lcastro/eventcore/internal/domain/dlq"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/lcastro/eventcore/internal/eventbus"
	"github.com/lcastro/eventcore/internal/testutil"
	"github.com/lcastro/eventcore/pkg/retry"
)

func fastRetryOptions() retry.Options {
	return retry.Options{
		MaxRetries:    0,
		InitialDelay:  time.Millisecond,
		MaxDelay:      2 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func newDLQTestRouter(t *testing.T, repo *testutil.MockDLQRepository, handler eventbus.Handler) *chi.Mux {
	t.Helper()

	service := svcdlq.NewService(repo, zerolog.Nop(), svcdlq.WithStorageRetry(fastRetryOptions()))
	bus := eventbus.New(eventbus.WithRetryOptions(fastRetryOptions()))
	if handler != nil {
		bus.SubscribeAs("challenge-generation", "EVALUATION_COMPLETED", handler)
	}

	h := NewDLQController(service, bus)

	r := chi.NewRouter()
	r.Get("/api/v1/dlq", h.List)
	r.Post("/api/v1/dlq/retry", h.RetryAll)
	r.Post("/api/v1/dlq/{id}/retry", h.Retry)
	r.Post("/api/v1/dlq/{id}/resolve", h.Resolve)
	r.Delete("/api/v1/dlq/{id}", h.Delete)
	return r
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestDLQController_List(t *testing.T) {
	repo := testutil.NewMockDLQRepository()
	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(context.Background(), entry))

	r := newDLQTestRouter(t, repo, nil)

	req := httptest.NewRequest("GET", "/api/v1/dlq?status=pending", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "success", resp.Status)

	entries, ok := resp.Data.([]any)
	require.True(t, ok)
	require.Len(t, entries, 1)
	first := entries[0].(map[string]any)
	assert.Equal(t, entry.ID.String(), first["id"])
	assert.Equal(t, "pending", first["status"])
}

func TestDLQController_List_InvalidStatus(t *testing.T) {
	r := newDLQTestRouter(t, testutil.NewMockDLQRepository(), nil)

	req := httptest.NewRequest("GET", "/api/v1/dlq?status=bogus", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "error", resp.Status)
	assert.Equal(t, "invalid_status", resp.Code)
}

func TestDLQController_Retry_Resolves(t *testing.T) {
	repo := testutil.NewMockDLQRepository()
	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(context.Background(), entry))

	r := newDLQTestRouter(t, repo, func(ctx context.Context, env *event.Envelope) error {
		return nil
	})

	req := httptest.NewRequest("POST", "/api/v1/dlq/"+entry.ID.String()+"/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "success", resp.Status)
}

func TestDLQController_Retry_FailsAgain(t *testing.T) {
	repo := testutil.NewMockDLQRepository()
	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(context.Background(), entry))

	r := newDLQTestRouter(t, repo, func(ctx context.Context, env *event.Envelope) error {
		return assert.AnError
	})

	req := httptest.NewRequest("POST", "/api/v1/dlq/"+entry.ID.String()+"/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "retry_failed", resp.Code)
}

func TestDLQController_Retry_InvalidID(t *testing.T) {
	r := newDLQTestRouter(t, testutil.NewMockDLQRepository(), nil)

	req := httptest.NewRequest("POST", "/api/v1/dlq/not-a-uuid/retry", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDLQController_RetryAll(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Insert(ctx, testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")))
	}

	r := newDLQTestRouter(t, repo, func(ctx context.Context, env *event.Envelope) error {
		return nil
	})

	req := httptest.NewRequest("POST", "/api/v1/dlq/retry", strings.NewReader(`{}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, "success", resp.Status)

	report := resp.Data.(map[string]any)
	assert.Equal(t, float64(3), report["total"])
	assert.Equal(t, float64(3), report["successful"])
	assert.Equal(t, float64(0), report["failed"])
}

func TestDLQController_RetryAll_FailedStatus(t *testing.T) {
	ctx := context.Background()
	repo := testutil.NewMockDLQRepository()

	failed := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(ctx, failed))
	require.NoError(t, repo.MarkFailed(ctx, failed.ID, "handler exploded"))

	pending := testutil.NewTestEntry("EVALUATION_COMPLETED", "challenge-generation")
	require.NoError(t, repo.Insert(ctx, pending))

	r := newDLQTestRouter(t, repo, func(ctx context.Context, env *event.Envelope) error {
		return nil
	})

	req := httptest.NewRequest("POST", "/api/v1/dlq/retry", strings.NewReader(`{"status":"failed"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.Equal(t, "success", resp.Status)

	report := resp.Data.(map[string]any)
	assert.Equal(t, float64(1), report["total"])
	assert.Equal(t, float64(1), report["successful"])

	resolved, err := repo.GetByID(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, dlq.StatusResolved, resolved.Status)

	// The pending entry was outside the filter and stays untouched.
	untouched, err := repo.GetByID(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, dlq.StatusPending, untouched.Status)
}

func TestDLQController_RetryAll_InvalidStatus(t *testing.T) {
	r := newDLQTestRouter(t, testutil.NewMockDLQRepository(), nil)

	req := httptest.NewRequest("POST", "/api/v1/dlq/retry", strings.NewReader(`{"status":"published"}`))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := decodeResponse(t, w)
	assert.Equal(t, "invalid_status", resp.Code)
}

func TestDLQController_Resolve_NotFound(t *testing.T) {
	r := newDLQTestRouter(t, testutil.NewMockDLQRepository(), nil)

	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "h1")
	req := httptest.NewRequest("POST", "/api/v1/dlq/"+entry.ID.String()+"/resolve", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDLQController_Delete(t *testing.T) {
	repo := testutil.NewMockDLQRepository()
	entry := testutil.NewTestEntry("EVALUATION_COMPLETED", "h1")
	require.NoError(t, repo.Insert(context.Background(), entry))

	r := newDLQTestRouter(t, repo, nil)

	req := httptest.NewRequest("DELETE", "/api/v1/dlq/"+entry.ID.String(), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// Second delete misses.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/api/v1/dlq/"+entry.ID.String(), nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
