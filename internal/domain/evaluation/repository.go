package evaluation

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create persists a new evaluation.
	Create(ctx context.Context, e *Evaluation) error

	// GetByID returns the evaluation or errors.ErrEvaluationNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Evaluation, error)

	// Save persists the current state, publishes the accumulated domain
	// events exactly once, and clears them.
	Save(ctx context.Context, e *Evaluation) error
}
