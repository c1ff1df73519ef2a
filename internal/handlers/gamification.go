package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	domainErrors "github.com/lcastro/eventcore/internal/domain/errors"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/lcastro/eventcore/internal/eventbus"
)

// Points awarded for finishing an evaluation.
const pointsEvaluationCompleted = 50

const reasonEvaluationCompleted = "evaluation_completed"

// PointsStore records point awards. Awards are idempotent per
// (user, reason, reference), so re-delivered events do not double-award.
type PointsStore interface {
	AwardPoints(ctx context.Context, userID, reason, referenceID string, points int) error
}

// GamificationHandler awards points when a user completes an evaluation.
type GamificationHandler struct {
	points PointsStore
	logger zerolog.Logger
}

func NewGamificationHandler(points PointsStore, logger zerolog.Logger) *GamificationHandler {
	return &GamificationHandler{points: points, logger: logger}
}

func (h *GamificationHandler) Handle(ctx context.Context, env *event.Envelope) error {
	userID, ok := env.Data["user_id"].(string)
	if !ok || userID == "" {
		return domainErrors.NewValidationError("user_id", "missing from event payload")
	}
	evaluationID, ok := env.Data["evaluation_id"].(string)
	if !ok || evaluationID == "" {
		return domainErrors.NewValidationError("evaluation_id", "missing from event payload")
	}

	err := h.points.AwardPoints(ctx, userID, reasonEvaluationCompleted, evaluationID, pointsEvaluationCompleted)
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}

	h.logger.Info().
		Str("event_id", env.ID.String()).
		Str("user_id", userID).
		Str("evaluation_id", evaluationID).
		Int("points", pointsEvaluationCompleted).
		Msg("Awarded evaluation completion points")
	return nil
}

// Register subscribes the handler under its stable id.
func (h *GamificationHandler) Register(bus *eventbus.Bus, eventType string) {
	bus.SubscribeAs(HandlerGamification, eventType, h.Handle)
}
