// Package eventbus implements the in-process publish/subscribe dispatcher.
// Handlers register against event-type strings; publishing invokes all
// matching handlers concurrently, isolating each handler's failure from its
// siblings and from the publisher.
package eventbus

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/lcastro/eventcore/internal/infrastructure/observability"
	"github.com/lcastro/eventcore/pkg/retry"
	"github.com/rs/zerolog"
)

// Handler processes a single event delivery. Returning an error marks the
// delivery failed; it is retried per the bus's retry budget before being
// reported in the DispatchResult.
type Handler func(ctx context.Context, env *event.Envelope) error

// HandlerResult reports the outcome of one handler's delivery, after its
// retry budget.
type HandlerResult struct {
	HandlerID string
	Attempts  int
	Err       error
}

// Succeeded reports whether the handler processed the event.
func (r HandlerResult) Succeeded() bool { return r.Err == nil }

// DispatchResult reports, per handler, the outcome of a single publish.
// Failures are data here, not errors: the publisher decides whether any
// individual failure is escalated to the dead-letter queue.
type DispatchResult struct {
	EventID   uuid.UUID
	EventType string
	// Handlers holds one result per subscribed handler, in registration
	// order regardless of completion order.
	Handlers []HandlerResult
}

// Failed returns the results of handlers that did not succeed.
func (d *DispatchResult) Failed() []HandlerResult {
	var failed []HandlerResult
	for _, r := range d.Handlers {
		if !r.Succeeded() {
			failed = append(failed, r)
		}
	}
	return failed
}

// FailureFor returns the failed result for the given handler id, or nil if
// that handler succeeded or was not subscribed.
func (d *DispatchResult) FailureFor(handlerID string) *HandlerResult {
	for i := range d.Handlers {
		if d.Handlers[i].HandlerID == handlerID && !d.Handlers[i].Succeeded() {
			return &d.Handlers[i]
		}
	}
	return nil
}

// TypeMetrics are the running counters kept per event type.
type TypeMetrics struct {
	Published        uint64
	HandlerSuccesses uint64
	HandlerFailures  uint64
}

type subscription struct {
	id        string
	eventType string
	handler   Handler
}

// Bus is the in-process event dispatcher. The zero value is not usable;
// construct with New.
type Bus struct {
	mu    sync.Mutex
	subs  map[string][]*subscription
	types map[string]string // handlerID -> eventType
	gates map[string]*sync.Mutex

	metricsMu sync.Mutex
	counters  map[string]*TypeMetrics

	retryOpts retry.Options
	logger    zerolog.Logger
	prom      *observability.Metrics
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Bus) { b.logger = logger }
}

// WithRetryOptions sets the per-handler retry budget used on delivery
// failures. The Context field is overwritten per invocation.
func WithRetryOptions(opts retry.Options) Option {
	return func(b *Bus) { b.retryOpts = opts }
}

// WithMetrics mirrors the per-type counters to prometheus.
func WithMetrics(m *observability.Metrics) Option {
	return func(b *Bus) { b.prom = m }
}

// New creates an event bus. By default handlers get the standard retry
// budget and logging is disabled.
func New(opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[string][]*subscription),
		types:     make(map[string]string),
		gates:     make(map[string]*sync.Mutex),
		counters:  make(map[string]*TypeMetrics),
		retryOpts: retry.DefaultOptions("handler"),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a handler for the given event type under a generated
// id and returns that id, usable for Unsubscribe and for DLQ attribution.
func (b *Bus) Subscribe(eventType string, handler Handler) string {
	return b.SubscribeAs(uuid.New().String(), eventType, handler)
}

// SubscribeAs registers a handler under a caller-supplied id. A stable id
// lets dead-letter entries name the subscriber that failed across restarts.
// Re-registering an existing id replaces the previous registration.
func (b *Bus) SubscribeAs(handlerID, eventType string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.types[handlerID]; ok {
		b.removeLocked(handlerID, prev)
	}
	b.subs[eventType] = append(b.subs[eventType], &subscription{
		id:        handlerID,
		eventType: eventType,
		handler:   handler,
	})
	b.types[handlerID] = eventType
	return handlerID
}

// Unsubscribe removes exactly the registration with the given id. Calling it
// for an unknown id is a no-op.
func (b *Bus) Unsubscribe(handlerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	eventType, ok := b.types[handlerID]
	if !ok {
		return
	}
	b.removeLocked(handlerID, eventType)
}

func (b *Bus) removeLocked(handlerID, eventType string) {
	subs := b.subs[eventType]
	for i, sub := range subs {
		if sub.id == handlerID {
			b.subs[eventType] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	delete(b.types, handlerID)
}

// Publish delivers the envelope to every handler subscribed to its type and
// returns after all handlers (and their retries) have settled. Handlers run
// concurrently with each other; a per-type gate serializes distinct Publish
// calls for the same type so their relative order is preserved. Publish
// never fails because a handler failed.
func (b *Bus) Publish(ctx context.Context, env *event.Envelope) *DispatchResult {
	gate := b.gate(env.Type)
	gate.Lock()
	defer gate.Unlock()

	b.mu.Lock()
	subs := make([]*subscription, len(b.subs[env.Type]))
	copy(subs, b.subs[env.Type])
	b.mu.Unlock()

	b.countPublished(env.Type)

	result := &DispatchResult{
		EventID:   env.ID,
		EventType: env.Type,
		Handlers:  make([]HandlerResult, len(subs)),
	}
	if len(subs) == 0 {
		b.logger.Debug().
			Str("event_id", env.ID.String()).
			Str("event_type", env.Type).
			Msg("No subscribers for event")
		return result
	}

	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub *subscription) {
			defer wg.Done()
			result.Handlers[i] = b.invoke(ctx, sub, env)
		}(i, sub)
	}
	wg.Wait()

	for _, r := range result.Handlers {
		if r.Succeeded() {
			b.countOutcome(env.Type, true)
		} else {
			b.countOutcome(env.Type, false)
			b.logger.Warn().
				Str("event_id", env.ID.String()).
				Str("event_type", env.Type).
				Str("handler_id", r.HandlerID).
				Int("attempts", r.Attempts).
				Err(r.Err).
				Msg("Handler failed after retries")
		}
	}
	return result
}

// invoke runs one handler with its retry budget, converting panics into
// errors so a misbehaving subscriber cannot take down the dispatcher.
func (b *Bus) invoke(ctx context.Context, sub *subscription, env *event.Envelope) HandlerResult {
	opts := b.retryOpts
	opts.Context = fmt.Sprintf("handler %s for %s", sub.id, env.Type)

	attempts := 0
	err := retry.Do(ctx, opts, func() error {
		attempts++
		return callHandler(ctx, sub.handler, env)
	})
	return HandlerResult{HandlerID: sub.id, Attempts: attempts, Err: err}
}

func callHandler(ctx context.Context, h Handler, env *event.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, env)
}

func (b *Bus) gate(eventType string) *sync.Mutex {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.gates[eventType]
	if !ok {
		g = &sync.Mutex{}
		b.gates[eventType] = g
	}
	return g
}

func (b *Bus) countPublished(eventType string) {
	b.metricsMu.Lock()
	b.typeCounters(eventType).Published++
	b.metricsMu.Unlock()

	if b.prom != nil {
		b.prom.EventsPublished.WithLabelValues(eventType).Inc()
	}
}

func (b *Bus) countOutcome(eventType string, success bool) {
	b.metricsMu.Lock()
	if success {
		b.typeCounters(eventType).HandlerSuccesses++
	} else {
		b.typeCounters(eventType).HandlerFailures++
	}
	b.metricsMu.Unlock()

	if b.prom != nil {
		status := "success"
		if !success {
			status = "failure"
		}
		b.prom.HandlerDeliveries.WithLabelValues(eventType, status).Inc()
	}
}

// typeCounters must be called with metricsMu held.
func (b *Bus) typeCounters(eventType string) *TypeMetrics {
	m, ok := b.counters[eventType]
	if !ok {
		m = &TypeMetrics{}
		b.counters[eventType] = m
	}
	return m
}

// Metrics returns a snapshot of the per-type counters.
func (b *Bus) Metrics() map[string]TypeMetrics {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	out := make(map[string]TypeMetrics, len(b.counters))
	for eventType, m := range b.counters {
		out[eventType] = *m
	}
	return out
}

// ResetMetrics clears the per-type counters. The prometheus mirrors are
// cumulative and are not reset.
func (b *Bus) ResetMetrics() {
	b.metricsMu.Lock()
	defer b.metricsMu.Unlock()
	b.counters = make(map[string]*TypeMetrics)
}
