package stats

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-reservation/internal/models"
)

// DB handles stats database operations
type DB struct {
	Bun *bun.DB
}

func NewDB(db *bun.DB) *DB {
	return &DB{Bun: db}
}

// UserStats counts the user's bookings in one statement so every figure is
// computed against the same day and the same snapshot. Completed bookings
// count as past alongside confirmed ones whose journey day is over.
func (d *DB) UserStats(ctx context.Context, userID string, today models.Date) (models.UserStats, error) {
	var s models.UserStats
	err := d.Bun.NewSelect().
		TableExpr("bookings").
		ColumnExpr("COUNT(*)").
		ColumnExpr("COALESCE(SUM(CASE WHEN status = ? AND journey_date >= ? THEN 1 ELSE 0 END), 0)", models.StatusConfirmed, today).
		ColumnExpr("COALESCE(SUM(CASE WHEN status = ? OR (status = ? AND journey_date < ?) THEN 1 ELSE 0 END), 0)",
			models.StatusCompleted, models.StatusConfirmed, today).
		ColumnExpr("COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0)", models.StatusCancelled).
		Where("user_id = ?", userID).
		Scan(ctx, &s.Total, &s.Active, &s.Past, &s.Cancelled)
	if err != nil {
		return models.UserStats{}, fmt.Errorf("aggregate bookings for %s: %w", userID, err)
	}
	return s, nil
}
