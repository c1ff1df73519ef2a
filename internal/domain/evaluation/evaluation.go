// Package evaluation holds the personality-evaluation aggregate. It is the
// event-producing side of the delivery pipeline: state transitions record
// domain events which the repository save flushes to the bus.
package evaluation

import (
	"time"

	"github.com/google/uuid"
	"github.com/lcastro/eventcore/internal/domain/errors"
	"github.com/lcastro/eventcore/internal/domain/event"
)

// Event type tags emitted by this aggregate.
const (
	EventCompleted = "EVALUATION_COMPLETED"
	EventArchived  = "EVALUATION_ARCHIVED"
)

// Status represents the evaluation lifecycle state.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// Evaluation is a user's personality assessment run.
type Evaluation struct {
	event.Recorder

	ID          uuid.UUID
	UserID      string
	TraitScores map[string]float64
	Status      Status
	Version     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// New creates an in-progress evaluation for the given user.
func New(userID string) (*Evaluation, error) {
	if userID == "" {
		return nil, errors.NewValidationError("user_id", "required")
	}

	now := time.Now().UTC()
	e := &Evaluation{
		ID:          uuid.New(),
		UserID:      userID,
		TraitScores: make(map[string]float64),
		Status:      StatusInProgress,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.SetEventSource(e.ID.String())
	return e, nil
}

// RecordScore stores a trait score in the 0-100 range.
func (e *Evaluation) RecordScore(trait string, score float64) error {
	if e.Status != StatusInProgress {
		return errors.ErrInvalidStateTransition
	}
	if trait == "" {
		return errors.NewValidationError("trait", "required")
	}
	if score < 0 || score > 100 {
		return errors.NewValidationError("score", "must be between 0 and 100")
	}
	e.TraitScores[trait] = score
	e.UpdatedAt = time.Now().UTC()
	return nil
}

// CanTransitionTo checks whether the evaluation may move to the given status.
func (e *Evaluation) CanTransitionTo(next Status) bool {
	transitions := map[Status][]Status{
		StatusInProgress: {StatusCompleted},
		StatusCompleted:  {StatusArchived},
		StatusArchived:   {},
	}
	for _, allowed := range transitions[e.Status] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Complete finishes the evaluation and records EVALUATION_COMPLETED. The
// payload carries everything a handler needs so it can act without loading
// the entity back.
func (e *Evaluation) Complete() error {
	if !e.CanTransitionTo(StatusCompleted) {
		return errors.ErrInvalidStateTransition
	}
	if len(e.TraitScores) == 0 {
		return errors.NewValidationError("trait_scores", "at least one score required to complete")
	}

	now := time.Now().UTC()
	e.Status = StatusCompleted
	e.CompletedAt = &now
	e.UpdatedAt = now

	scores := make(map[string]any, len(e.TraitScores))
	for trait, score := range e.TraitScores {
		scores[trait] = score
	}
	e.AddDomainEvent(EventCompleted, map[string]any{
		"evaluation_id": e.ID.String(),
		"entity_type":   "evaluation",
		"user_id":       e.UserID,
		"trait_scores":  scores,
		"completed_at":  now.Format(time.RFC3339),
	})
	return nil
}

// Archive retires a completed evaluation and records EVALUATION_ARCHIVED.
func (e *Evaluation) Archive() error {
	if !e.CanTransitionTo(StatusArchived) {
		return errors.ErrInvalidStateTransition
	}

	e.Status = StatusArchived
	e.UpdatedAt = time.Now().UTC()

	e.AddDomainEvent(EventArchived, map[string]any{
		"evaluation_id": e.ID.String(),
		"entity_type":   "evaluation",
		"user_id":       e.UserID,
	})
	return nil
}
