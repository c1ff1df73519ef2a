package dlq

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Filter narrows List queries. Zero-value fields are ignored.
type Filter struct {
	Status    *Status
	EventName *string
	Limit     int
	Offset    int
}

type Repository interface {
	// Insert persists a new entry.
	Insert(ctx context.Context, entry *Entry) error

	// GetByID returns the entry or errors.ErrEntryNotFound.
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, filter Filter) ([]*Entry, error)

	// ClaimRetry atomically transitions a pending or failed entry to
	// retrying, incrementing retry_count and stamping last_retry_at. Returns
	// the claimed entry, errors.ErrEntryNotFound if absent, or
	// errors.ErrEntryAlreadyClaimed if another caller holds it or the entry
	// is terminal. The compare-and-set prevents two concurrent retries from
	// both claiming the same entry.
	ClaimRetry(ctx context.Context, id uuid.UUID, at time.Time) (*Entry, error)

	// MarkResolved force-marks the entry resolved.
	MarkResolved(ctx context.Context, id uuid.UUID) error

	// MarkFailed records a renewed failure after a retry attempt.
	MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error

	// Delete permanently removes the entry. Returns false if absent.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
