package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PointsRepository records gamification point awards.
type PointsRepository struct {
	txm *TxManager
}

func NewPointsRepository(pool *pgxpool.Pool) *PointsRepository {
	return &PointsRepository{txm: NewTxManager(pool)}
}

func (r *PointsRepository) db(ctx context.Context) DBTX {
	return r.txm.Conn(ctx)
}

// AwardPoints inserts one award row. The (user_id, reason, reference_id)
// unique constraint makes the award idempotent across re-deliveries.
func (r *PointsRepository) AwardPoints(ctx context.Context, userID, reason, referenceID string, points int) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO gamification_points (id, user_id, reason, reference_id, points, awarded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, reason, reference_id) DO NOTHING`,
		uuid.New(), userID, reason, referenceID, points, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	return nil
}

// TotalPoints sums a user's awarded points.
func (r *PointsRepository) TotalPoints(ctx context.Context, userID string) (int, error) {
	var total int
	err := r.db(ctx).QueryRow(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM gamification_points WHERE user_id = $1`, userID,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total points: %w", err)
	}
	return total, nil
}
