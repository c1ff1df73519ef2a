package handlers

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

type MockLLMClient struct {
	name        string
	failureRate float64 // 0.0 to 1.0
	latency     time.Duration
	timeoutRate float64 // 0.0 to 1.0
}

type MockLLMOption func(*MockLLMClient)

func WithFailureRate(rate float64) MockLLMOption {
	return func(c *MockLLMClient) { c.failureRate = rate }
}

func WithLatency(d time.Duration) MockLLMOption {
	return func(c *MockLLMClient) { c.latency = d }
}

func WithTimeoutRate(rate float64) MockLLMOption {
	return func(c *MockLLMClient) { c.timeoutRate = rate }
}

func NewMockLLMClient(name string, opts ...MockLLMOption) *MockLLMClient {
	c := &MockLLMClient{
		name:        name,
		failureRate: 0.0,
		latency:     100 * time.Millisecond,
		timeoutRate: 0.0,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *MockLLMClient) Name() string { return c.name }

func (c *MockLLMClient) GenerateChallenge(ctx context.Context, req ChallengeRequest) (*Challenge, error) {
	// Simulate latency
	select {
	case <-time.After(c.latency):
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	// Simulate timeout
	if rand.Float64() < c.timeoutRate {
		return nil, fmt.Errorf("%s: i/o timeout generating challenge", c.name)
	}

	// Simulate failure
	if rand.Float64() < c.failureRate {
		return nil, fmt.Errorf("%s: simulated generation failure for user %s", c.name, req.UserID)
	}

	dominant := dominantTrait(req.TraitScores)
	return &Challenge{
		ID:          fmt.Sprintf("%s_chl_%s", c.name, uuid.New().String()[:8]),
		UserID:      req.UserID,
		Title:       fmt.Sprintf("Grow your %s", dominant),
		Description: fmt.Sprintf("A week-long challenge built around your strongest trait, %s.", dominant),
	}, nil
}

func dominantTrait(scores map[string]float64) string {
	best := "balance"
	bestScore := -1.0
	for trait, score := range scores {
		if score > bestScore || (score == bestScore && trait < best) {
			best = trait
			bestScore = score
		}
	}
	return best
}
