package handlers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	domainErrors "github.com/lcastro/eventcore/internal/domain/errors"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/lcastro/eventcore/internal/eventbus"
)

// Stable subscriber ids. Dead letter entries reference these, so renaming one
// orphans any stored failures for it.
const (
	HandlerChallengeGeneration = "challenge-generation"
	HandlerGamification        = "gamification"
)

// ChallengeStore receives generated challenges.
type ChallengeStore interface {
	SaveChallenge(ctx context.Context, ch *Challenge) error
}

// ChallengeGenerationHandler turns a completed evaluation into an
// AI-generated growth challenge.
type ChallengeGenerationHandler struct {
	llm    LLMClient
	store  ChallengeStore
	logger zerolog.Logger
}

func NewChallengeGenerationHandler(llm LLMClient, store ChallengeStore, logger zerolog.Logger) *ChallengeGenerationHandler {
	return &ChallengeGenerationHandler{llm: llm, store: store, logger: logger}
}

// Handle is the bus subscriber. Malformed payloads fail without retry; LLM
// and storage errors surface as-is so the retry classifier can sort them.
func (h *ChallengeGenerationHandler) Handle(ctx context.Context, env *event.Envelope) error {
	userID, ok := env.Data["user_id"].(string)
	if !ok || userID == "" {
		return domainErrors.NewValidationError("user_id", "missing from event payload")
	}

	req := ChallengeRequest{
		UserID:      userID,
		TraitScores: traitScores(env.Data["trait_scores"]),
	}

	challenge, err := h.llm.GenerateChallenge(ctx, req)
	if err != nil {
		return fmt.Errorf("generate challenge: %w", err)
	}

	if err := h.store.SaveChallenge(ctx, challenge); err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}

	h.logger.Info().
		Str("event_id", env.ID.String()).
		Str("user_id", userID).
		Str("challenge_id", challenge.ID).
		Bool("is_retry", env.IsRetry).
		Msg("Generated challenge from completed evaluation")
	return nil
}

// Register subscribes the handler under its stable id.
func (h *ChallengeGenerationHandler) Register(bus *eventbus.Bus, eventType string) {
	bus.SubscribeAs(HandlerChallengeGeneration, eventType, h.Handle)
}

// traitScores tolerates both the in-process map[string]float64 payload and
// the map[string]any shape the DLQ round-trips through JSON.
func traitScores(raw any) map[string]float64 {
	scores := make(map[string]float64)
	switch v := raw.(type) {
	case map[string]float64:
		for trait, score := range v {
			scores[trait] = score
		}
	case map[string]any:
		for trait, val := range v {
			if score, ok := val.(float64); ok {
				scores[trait] = score
			}
		}
	}
	return scores
}
