package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lcastro/eventcore/internal/domain/dlq"
	domainErrors "github.com/lcastro/eventcore/internal/domain/errors"
	"github.com/lcastro/eventcore/internal/domain/evaluation"
)

// --- DLQ Repository Mock ---

// MockDLQRepository is an in-memory implementation of dlq.Repository with the
// same compare-and-set claim semantics as the Postgres repository.
type MockDLQRepository struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*dlq.Entry

	InsertFunc       func(ctx context.Context, entry *dlq.Entry) error
	GetByIDFunc      func(ctx context.Context, id uuid.UUID) (*dlq.Entry, error)
	ListFunc         func(ctx context.Context, filter dlq.Filter) ([]*dlq.Entry, error)
	ClaimRetryFunc   func(ctx context.Context, id uuid.UUID, at time.Time) (*dlq.Entry, error)
	MarkResolvedFunc func(ctx context.Context, id uuid.UUID) error
	MarkFailedFunc   func(ctx context.Context, id uuid.UUID, errorMessage string) error
	DeleteFunc       func(ctx context.Context, id uuid.UUID) (bool, error)
}

func NewMockDLQRepository() *MockDLQRepository {
	return &MockDLQRepository{
		entries: make(map[uuid.UUID]*dlq.Entry),
	}
}

func (m *MockDLQRepository) Insert(ctx context.Context, entry *dlq.Entry) error {
	if m.InsertFunc != nil {
		return m.InsertFunc(ctx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.ID] = &cp
	return nil
}

func (m *MockDLQRepository) GetByID(ctx context.Context, id uuid.UUID) (*dlq.Entry, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, domainErrors.ErrEntryNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *MockDLQRepository) List(ctx context.Context, filter dlq.Filter) ([]*dlq.Entry, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*dlq.Entry
	for _, e := range m.entries {
		if filter.Status != nil && e.Status != *filter.Status {
			continue
		}
		if filter.EventName != nil && e.EventName != *filter.EventName {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MockDLQRepository) ClaimRetry(ctx context.Context, id uuid.UUID, at time.Time) (*dlq.Entry, error) {
	if m.ClaimRetryFunc != nil {
		return m.ClaimRetryFunc(ctx, id, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return nil, domainErrors.ErrEntryNotFound
	}
	if e.Status != dlq.StatusPending && e.Status != dlq.StatusFailed {
		return nil, domainErrors.ErrEntryAlreadyClaimed
	}
	e.Status = dlq.StatusRetrying
	e.RetryCount++
	e.LastRetryAt = &at
	cp := *e
	return &cp, nil
}

func (m *MockDLQRepository) MarkResolved(ctx context.Context, id uuid.UUID) error {
	if m.MarkResolvedFunc != nil {
		return m.MarkResolvedFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domainErrors.ErrEntryNotFound
	}
	e.Status = dlq.StatusResolved
	return nil
}

func (m *MockDLQRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	if m.MarkFailedFunc != nil {
		return m.MarkFailedFunc(ctx, id, errorMessage)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return domainErrors.ErrEntryNotFound
	}
	e.Status = dlq.StatusFailed
	e.ErrorMessage = errorMessage
	return nil
}

func (m *MockDLQRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	if m.DeleteFunc != nil {
		return m.DeleteFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return false, nil
	}
	delete(m.entries, id)
	return true, nil
}

// --- Evaluation Repository Mock ---

// MockEvaluationRepository stores evaluations in memory. The event-flush
// behavior of the real repository's Save is not reproduced here; use case
// tests wire the bus themselves.
type MockEvaluationRepository struct {
	mu          sync.Mutex
	evaluations map[uuid.UUID]*evaluation.Evaluation

	CreateFunc  func(ctx context.Context, e *evaluation.Evaluation) error
	GetByIDFunc func(ctx context.Context, id uuid.UUID) (*evaluation.Evaluation, error)
	SaveFunc    func(ctx context.Context, e *evaluation.Evaluation) error
}

func NewMockEvaluationRepository() *MockEvaluationRepository {
	return &MockEvaluationRepository{
		evaluations: make(map[uuid.UUID]*evaluation.Evaluation),
	}
}

func (m *MockEvaluationRepository) Create(ctx context.Context, e *evaluation.Evaluation) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.ID] = e
	return nil
}

func (m *MockEvaluationRepository) GetByID(ctx context.Context, id uuid.UUID) (*evaluation.Evaluation, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.evaluations[id]
	if !ok {
		return nil, domainErrors.ErrEvaluationNotFound
	}
	return e, nil
}

func (m *MockEvaluationRepository) Save(ctx context.Context, e *evaluation.Evaluation) error {
	if m.SaveFunc != nil {
		return m.SaveFunc(ctx, e)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations[e.ID] = e
	e.ClearDomainEvents()
	return nil
}
