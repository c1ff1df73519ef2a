package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	svcdlq "github.com/lcastro/eventcore/internal/dlq"
	"github.com/lcastro/eventcore/internal/domain/dlq"
	"github.com/lcastro/eventcore/internal/domain/evaluation"
	domainErrors "github.com/lcastro/eventcore/internal/domain/errors"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/lcastro/eventcore/internal/eventbus"
)

// EventPublisher dispatches the domain events flushed on save.
type EventPublisher interface {
	Publish(ctx context.Context, env *event.Envelope) *eventbus.DispatchResult
}

// FailureSink receives handler failures surfaced by a flush.
type FailureSink interface {
	StoreFailedEvent(ctx context.Context, failed svcdlq.FailedEvent) *dlq.Entry
}

// EvaluationRepository persists evaluations and flushes their recorded domain
// events to the bus once the row is durably written.
type EvaluationRepository struct {
	txm         *TxManager
	bus         EventPublisher
	deadLetters FailureSink
}

func NewEvaluationRepository(pool *pgxpool.Pool, bus EventPublisher, deadLetters FailureSink) *EvaluationRepository {
	return &EvaluationRepository{
		txm:         NewTxManager(pool),
		bus:         bus,
		deadLetters: deadLetters,
	}
}

func (r *EvaluationRepository) db(ctx context.Context) DBTX {
	return r.txm.Conn(ctx)
}

func (r *EvaluationRepository) Create(ctx context.Context, e *evaluation.Evaluation) error {
	scores, err := json.Marshal(e.TraitScores)
	if err != nil {
		return fmt.Errorf("marshal trait scores: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO evaluations (id, user_id, trait_scores, status, version, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.UserID, scores, string(e.Status), e.Version, e.CreatedAt, e.UpdatedAt, e.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (r *EvaluationRepository) GetByID(ctx context.Context, id uuid.UUID) (*evaluation.Evaluation, error) {
	e := &evaluation.Evaluation{}
	var scores []byte
	var status string
	err := r.db(ctx).QueryRow(ctx,
		`SELECT id, user_id, trait_scores, status, version, created_at, updated_at, completed_at
		 FROM evaluations WHERE id = $1`, id,
	).Scan(&e.ID, &e.UserID, &scores, &status, &e.Version, &e.CreatedAt, &e.UpdatedAt, &e.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEvaluationNotFound
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	e.Status = evaluation.Status(status)
	e.TraitScores = make(map[string]float64)
	if len(scores) > 0 {
		if err := json.Unmarshal(scores, &e.TraitScores); err != nil {
			return nil, fmt.Errorf("unmarshal trait scores: %w", err)
		}
	}
	e.SetEventSource(e.ID.String())
	return e, nil
}

// Save writes the row with an optimistic version check, then publishes the
// accumulated domain events. Events are taken off the aggregate before
// publishing, so a second Save cannot dispatch them again.
func (r *EvaluationRepository) Save(ctx context.Context, e *evaluation.Evaluation) error {
	err := r.txm.WithTransaction(ctx, func(txCtx context.Context) error {
		scores, err := json.Marshal(e.TraitScores)
		if err != nil {
			return fmt.Errorf("marshal trait scores: %w", err)
		}
		tag, err := r.db(txCtx).Exec(txCtx,
			`UPDATE evaluations
			 SET trait_scores = $3, status = $4, version = version + 1, updated_at = $5, completed_at = $6
			 WHERE id = $1 AND version = $2`,
			e.ID, e.Version, scores, string(e.Status), e.UpdatedAt, e.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("update evaluation: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return r.classifySaveMiss(txCtx, e.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.Version++

	r.flushEvents(ctx, e)
	return nil
}

// classifySaveMiss tells a deleted row apart from one a concurrent writer
// already bumped past the caller's version.
func (r *EvaluationRepository) classifySaveMiss(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM evaluations WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check evaluation: %w", err)
	}
	if exists {
		return domainErrors.ErrVersionConflict
	}
	return domainErrors.ErrEvaluationNotFound
}

// flushEvents publishes the aggregate's accumulated events and hands failed
// handler results to the dead letter sink. The events are taken off the
// aggregate before publishing, so a second flush dispatches nothing.
func (r *EvaluationRepository) flushEvents(ctx context.Context, e *evaluation.Evaluation) {
	events := e.DomainEvents()
	e.ClearDomainEvents()
	for _, env := range events {
		result := r.bus.Publish(ctx, env)
		if r.deadLetters == nil {
			continue
		}
		for _, hr := range result.Failed() {
			// The save already succeeded; failed deliveries go to the
			// dead letter queue instead of failing the call.
			r.deadLetters.StoreFailedEvent(ctx, svcdlq.FailedEvent{
				Event:     env,
				HandlerID: hr.HandlerID,
				Err:       hr.Err,
			})
		}
	}
}
