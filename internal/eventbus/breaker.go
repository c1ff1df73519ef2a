package eventbus

import (
	"context"
	"time"

	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/sony/gobreaker/v2"
)

// WithBreaker wraps a handler in a circuit breaker. When the wrapped
// handler's downstream (e.g. the challenge LLM) is persistently failing, the
// breaker opens and deliveries fail fast instead of burning the full retry
// budget on every event; the failures still flow to the dead-letter queue
// and can be replayed once the downstream recovers.
func WithBreaker(name string, h Handler) Handler {
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        name,
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
	})

	return func(ctx context.Context, env *event.Envelope) error {
		_, err := cb.Execute(func() (struct{}, error) {
			return struct{}{}, h(ctx, env)
		})
		return err
	}
}
