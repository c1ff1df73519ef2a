package handlers

import (
	"context"
	"sync"
)

// MemoryChallengeStore keeps generated challenges in memory. It backs local
// runs and tests; durable challenge storage belongs to the challenges
// service, not this pipeline.
type MemoryChallengeStore struct {
	mu         sync.Mutex
	challenges []*Challenge
}

func NewMemoryChallengeStore() *MemoryChallengeStore {
	return &MemoryChallengeStore{}
}

func (s *MemoryChallengeStore) SaveChallenge(ctx context.Context, ch *Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges = append(s.challenges, ch)
	return nil
}

// Challenges returns a snapshot of the stored challenges.
func (s *MemoryChallengeStore) Challenges() []*Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Challenge, len(s.challenges))
	copy(out, s.challenges)
	return out
}
