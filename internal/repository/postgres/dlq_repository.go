package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lcastro/eventcore/internal/domain/dlq"
	domainErrors "github.com/lcastro/eventcore/internal/domain/errors"
)

const defaultListLimit = 50

const dlqColumns = `id, event_id, event_name, event_data, handler_id, error_message, error_stack,
	        retry_count, status, correlation_id, source_id, created_at, last_retry_at`

// DLQRepository persists dead letter entries in the event_dead_letter_queue table.
type DLQRepository struct {
	txm *TxManager
}

func NewDLQRepository(pool *pgxpool.Pool) *DLQRepository {
	return &DLQRepository{txm: NewTxManager(pool)}
}

func (r *DLQRepository) db(ctx context.Context) DBTX {
	return r.txm.Conn(ctx)
}

func (r *DLQRepository) Insert(ctx context.Context, entry *dlq.Entry) error {
	data, err := json.Marshal(entry.EventData)
	if err != nil {
		return fmt.Errorf("marshal event data: %w", err)
	}
	_, err = r.db(ctx).Exec(ctx,
		`INSERT INTO event_dead_letter_queue
		        (id, event_id, event_name, event_data, handler_id, error_message, error_stack,
		         retry_count, status, correlation_id, source_id, created_at, last_retry_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		entry.ID, entry.EventID, entry.EventName, data, entry.HandlerID,
		entry.ErrorMessage, entry.ErrorStack, entry.RetryCount, string(entry.Status),
		entry.CorrelationID, entry.SourceID, entry.CreatedAt, entry.LastRetryAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter entry: %w", err)
	}
	return nil
}

func (r *DLQRepository) GetByID(ctx context.Context, id uuid.UUID) (*dlq.Entry, error) {
	row := r.db(ctx).QueryRow(ctx,
		`SELECT `+dlqColumns+`
		 FROM event_dead_letter_queue WHERE id = $1`, id,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domainErrors.ErrEntryNotFound
		}
		return nil, fmt.Errorf("get dead letter entry: %w", err)
	}
	return entry, nil
}

func (r *DLQRepository) List(ctx context.Context, filter dlq.Filter) ([]*dlq.Entry, error) {
	query := `SELECT ` + dlqColumns + ` FROM event_dead_letter_queue`
	var conditions []string
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.EventName != nil {
		args = append(args, *filter.EventName)
		conditions = append(conditions, fmt.Sprintf("event_name = $%d", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letter entries: %w", err)
	}
	defer rows.Close()

	var entries []*dlq.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dead letter entry: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// ClaimRetry atomically moves a pending or failed entry to retrying. The
// status guard in the WHERE clause is what prevents two callers from
// processing the same entry.
func (r *DLQRepository) ClaimRetry(ctx context.Context, id uuid.UUID, at time.Time) (*dlq.Entry, error) {
	row := r.db(ctx).QueryRow(ctx,
		`UPDATE event_dead_letter_queue
		 SET status = 'retrying', retry_count = retry_count + 1, last_retry_at = $2
		 WHERE id = $1 AND status IN ('pending', 'failed')
		 RETURNING `+dlqColumns, id, at,
	)
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, r.classifyClaimMiss(ctx, id)
		}
		return nil, fmt.Errorf("claim dead letter entry: %w", err)
	}
	return entry, nil
}

// classifyClaimMiss tells a missing entry apart from one another caller holds.
func (r *DLQRepository) classifyClaimMiss(ctx context.Context, id uuid.UUID) error {
	var exists bool
	err := r.db(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM event_dead_letter_queue WHERE id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check dead letter entry: %w", err)
	}
	if exists {
		return domainErrors.ErrEntryAlreadyClaimed
	}
	return domainErrors.ErrEntryNotFound
}

func (r *DLQRepository) MarkResolved(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE event_dead_letter_queue SET status = 'resolved' WHERE id = $1`, id,
	)
	if err != nil {
		return fmt.Errorf("mark dead letter entry resolved: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrEntryNotFound
	}
	return nil
}

func (r *DLQRepository) MarkFailed(ctx context.Context, id uuid.UUID, errorMessage string) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE event_dead_letter_queue SET status = 'failed', error_message = $2 WHERE id = $1`,
		id, errorMessage,
	)
	if err != nil {
		return fmt.Errorf("mark dead letter entry failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrEntryNotFound
	}
	return nil
}

func (r *DLQRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`DELETE FROM event_dead_letter_queue WHERE id = $1`, id,
	)
	if err != nil {
		return false, fmt.Errorf("delete dead letter entry: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CountByStatus reports queue depth per status, for the gauge exported by the
// sweep worker.
func (r *DLQRepository) CountByStatus(ctx context.Context) (map[dlq.Status]int, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT status, COUNT(*) FROM event_dead_letter_queue GROUP BY status`,
	)
	if err != nil {
		return nil, fmt.Errorf("count dead letter entries: %w", err)
	}
	defer rows.Close()

	counts := make(map[dlq.Status]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan dead letter count: %w", err)
		}
		counts[dlq.Status(status)] = count
	}
	return counts, rows.Err()
}

func scanEntry(row pgx.Row) (*dlq.Entry, error) {
	e := &dlq.Entry{}
	var data []byte
	var status string
	err := row.Scan(&e.ID, &e.EventID, &e.EventName, &data, &e.HandlerID,
		&e.ErrorMessage, &e.ErrorStack, &e.RetryCount, &status,
		&e.CorrelationID, &e.SourceID, &e.CreatedAt, &e.LastRetryAt)
	if err != nil {
		return nil, err
	}
	e.Status = dlq.Status(status)
	if len(data) > 0 {
		e.EventData = make(map[string]any)
		if err := json.Unmarshal(data, &e.EventData); err != nil {
			return nil, fmt.Errorf("unmarshal event data: %w", err)
		}
	}
	return e, nil
}
