// Package handlers contains the event subscribers shipped with the delivery
// pipeline: challenge generation off completed evaluations and gamification
// point awards.
package handlers

import (
	"context"
)

// ChallengeRequest describes the generation prompt built from an evaluation.
type ChallengeRequest struct {
	UserID      string
	TraitScores map[string]float64
}

// Challenge is a generated personal-growth challenge.
type Challenge struct {
	ID          string
	UserID      string
	Title       string
	Description string
}

// LLMClient generates challenges from evaluation results. The production
// client lives outside this repo; MockLLMClient stands in for tests and local
// runs.
type LLMClient interface {
	// Name returns the client name.
	Name() string
	// GenerateChallenge produces a challenge for the given request.
	GenerateChallenge(ctx context.Context, req ChallengeRequest) (*Challenge, error)
}
