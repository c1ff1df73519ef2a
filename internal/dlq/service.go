// Package dlq implements the dead-letter queue service: durable bookkeeping
// for deliveries that exhausted their retries, plus operator-driven recovery.
//
// Every method catches its own storage errors and degrades to a safe return
// value. The DLQ is the fallback path for the delivery pipeline; it must
// never become a second point of cascading failure.
package dlq

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	domaindlq "github.com/lcastro/eventcore/internal/domain/dlq"
	domainErrors "github.com/lcastro/eventcore/internal/domain/errors"
	"github.com/lcastro/eventcore/internal/domain/event"
	"github.com/lcastro/eventcore/internal/eventbus"
	"github.com/lcastro/eventcore/internal/infrastructure/observability"
	"github.com/lcastro/eventcore/pkg/retry"
	"github.com/rs/zerolog"
)

// Publisher is the re-delivery target for retried entries.
type Publisher interface {
	Publish(ctx context.Context, env *event.Envelope) *eventbus.DispatchResult
}

// storageRetryPatterns marks transient Postgres failures retryable on the
// DLQ's own reads and writes.
var storageRetryPatterns = []string{
	"deadlock detected",
	"too many connections",
	"the database system is starting up",
	"connection reset",
	"connection refused",
}

// Service provides DLQ operations over a Repository.
type Service struct {
	repo       domaindlq.Repository
	logger     zerolog.Logger
	storageTpl retry.Options
	prom       *observability.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithStorageRetry overrides the retry budget for the service's own storage
// calls.
func WithStorageRetry(opts retry.Options) Option {
	return func(s *Service) { s.storageTpl = opts }
}

// WithMetrics records DLQ counters to prometheus.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.prom = m }
}

// NewService creates a DLQ service backed by the given repository.
func NewService(repo domaindlq.Repository, logger zerolog.Logger, opts ...Option) *Service {
	tpl := retry.DefaultOptions("dlq storage")
	tpl.RetryableErrors = storageRetryPatterns

	s := &Service{
		repo:       repo,
		logger:     logger,
		storageTpl: tpl,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) storageOpts(operation string) retry.Options {
	opts := s.storageTpl
	opts.Context = operation
	return opts
}

// FailedEvent describes a delivery that exhausted its handler retries.
type FailedEvent struct {
	Event     *event.Envelope
	HandlerID string
	Err       error
}

// StoreFailedEvent persists a pending entry for the failed delivery. Storing
// the failure is best-effort: a nil return means the write itself failed and
// was logged, never an error thrown back into the caller's critical path.
func (s *Service) StoreFailedEvent(ctx context.Context, failed FailedEvent) *domaindlq.Entry {
	if failed.Event == nil || failed.Err == nil {
		s.logger.Warn().Str("handler_id", failed.HandlerID).Msg("Ignoring incomplete failed event")
		return nil
	}

	entry := domaindlq.NewEntry(failed.Event, failed.HandlerID, failed.Err)
	err := retry.Do(ctx, s.storageOpts("dlq insert"), func() error {
		return s.repo.Insert(ctx, entry)
	})
	if err != nil {
		s.logger.Error().
			Err(err).
			Str("event_id", failed.Event.ID.String()).
			Str("event_type", failed.Event.Type).
			Str("handler_id", failed.HandlerID).
			Msg("Failed to store dead letter entry")
		return nil
	}

	if s.prom != nil {
		s.prom.DLQEntriesStored.Inc()
	}
	s.logger.Info().
		Str("entry_id", entry.ID.String()).
		Str("event_id", entry.EventID.String()).
		Str("event_type", entry.EventName).
		Str("handler_id", entry.HandlerID).
		Msg("Stored dead letter entry")
	return entry
}

// GetFailedEvents returns entries matching the filter, newest first. A query
// failure is logged and returns an empty list.
func (s *Service) GetFailedEvents(ctx context.Context, filter domaindlq.Filter) []*domaindlq.Entry {
	entries, err := retry.DoWithResult(ctx, s.storageOpts("dlq list"), func() ([]*domaindlq.Entry, error) {
		return s.repo.List(ctx, filter)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to query dead letter entries")
		return []*domaindlq.Entry{}
	}
	if entries == nil {
		entries = []*domaindlq.Entry{}
	}
	return entries
}

// RetryEvent claims the entry, re-publishes its event through the bus with
// IsRetry set, and records the outcome. Returns true only when the original
// failing handler processed the re-delivery successfully.
func (s *Service) RetryEvent(ctx context.Context, entryID uuid.UUID, bus Publisher) bool {
	ok, _ := s.retryEntry(ctx, entryID, bus)
	return ok
}

func (s *Service) retryEntry(ctx context.Context, entryID uuid.UUID, bus Publisher) (bool, string) {
	entry, err := s.repo.ClaimRetry(ctx, entryID, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, domainErrors.ErrEntryNotFound):
			s.logger.Warn().Str("entry_id", entryID.String()).Msg("Dead letter entry not found for retry")
		case errors.Is(err, domainErrors.ErrEntryAlreadyClaimed):
			s.logger.Info().Str("entry_id", entryID.String()).Msg("Dead letter entry already claimed, skipping")
		default:
			s.logger.Error().Err(err).Str("entry_id", entryID.String()).Msg("Failed to claim dead letter entry")
		}
		return false, err.Error()
	}

	env := event.NewRetryEnvelope(
		entry.EventName,
		entry.EventData,
		entry.CorrelationID,
		entry.SourceID,
		event.OriginalFailure{
			HandlerID:    entry.HandlerID,
			ErrorMessage: entry.ErrorMessage,
			FailedAt:     entry.CreatedAt,
		},
	)

	result := bus.Publish(ctx, env)

	if failure := result.FailureFor(entry.HandlerID); failure != nil {
		if err := s.repo.MarkFailed(ctx, entryID, failure.Err.Error()); err != nil {
			s.logger.Error().Err(err).Str("entry_id", entryID.String()).Msg("Failed to record renewed failure")
		}
		if s.prom != nil {
			s.prom.DLQRetries.WithLabelValues("failed").Inc()
		}
		s.logger.Warn().
			Str("entry_id", entryID.String()).
			Str("event_type", entry.EventName).
			Str("handler_id", entry.HandlerID).
			Err(failure.Err).
			Msg("Dead letter retry failed again")
		return false, failure.Err.Error()
	}

	if err := s.repo.MarkResolved(ctx, entryID); err != nil {
		// The re-delivery succeeded; only the bookkeeping write failed.
		s.logger.Error().Err(err).Str("entry_id", entryID.String()).Msg("Failed to mark entry resolved")
	}
	if s.prom != nil {
		s.prom.DLQRetries.WithLabelValues("resolved").Inc()
	}
	s.logger.Info().
		Str("entry_id", entryID.String()).
		Str("event_type", entry.EventName).
		Msg("Dead letter entry resolved")
	return true, ""
}

// RetryDetail reports the outcome of one entry in a bulk retry.
type RetryDetail struct {
	EntryID   uuid.UUID `json:"entry_id"`
	EventName string    `json:"event_name"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
}

// RetryReport aggregates a bulk retry.
type RetryReport struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Details    []RetryDetail `json:"details"`
}

// RetryEvents applies RetryEvent to every entry matching the filter. A
// single bad entry is reported in Details without blocking the rest.
func (s *Service) RetryEvents(ctx context.Context, filter domaindlq.Filter, bus Publisher) *RetryReport {
	entries := s.GetFailedEvents(ctx, filter)

	report := &RetryReport{
		Total:   len(entries),
		Details: make([]RetryDetail, 0, len(entries)),
	}
	for _, entry := range entries {
		ok, errMsg := s.retryEntry(ctx, entry.ID, bus)
		detail := RetryDetail{
			EntryID:   entry.ID,
			EventName: entry.EventName,
			Succeeded: ok,
		}
		if ok {
			report.Successful++
		} else {
			report.Failed++
			detail.Error = errMsg
		}
		report.Details = append(report.Details, detail)
	}
	return report
}

// ResolveEntry force-marks an entry resolved without retrying, for cases an
// operator handled manually.
func (s *Service) ResolveEntry(ctx context.Context, entryID uuid.UUID) bool {
	err := retry.Do(ctx, s.storageOpts("dlq resolve"), func() error {
		return s.repo.MarkResolved(ctx, entryID)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("entry_id", entryID.String()).Msg("Failed to resolve dead letter entry")
		return false
	}
	return true
}

// DeleteEntry permanently removes an entry.
func (s *Service) DeleteEntry(ctx context.Context, entryID uuid.UUID) bool {
	deleted, err := retry.DoWithResult(ctx, s.storageOpts("dlq delete"), func() (bool, error) {
		return s.repo.Delete(ctx, entryID)
	})
	if err != nil {
		s.logger.Error().Err(err).Str("entry_id", entryID.String()).Msg("Failed to delete dead letter entry")
		return false
	}
	if !deleted {
		s.logger.Warn().Str("entry_id", entryID.String()).Msg("Dead letter entry not found for delete")
	}
	return deleted
}
