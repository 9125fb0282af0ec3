package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository resolves the scorecard inputs that live outside the aggregate
// tables. Quality averages come from the quality reader, not from here.
type Repository interface {
	OpenDisputes(ctx context.Context, db *gorm.DB, projectID snowflake.ID, from, to time.Time) (map[string]int64, error)
}

type repo struct{}

func Provide() Repository {
	return &repo{}
}

type partnerCount struct {
	Partner string `gorm:"column:partner"`
	Total   int64  `gorm:"column:total"`
}

func (r *repo) OpenDisputes(ctx context.Context, db *gorm.DB, projectID snowflake.ID, from, to time.Time) (map[string]int64, error) {
	query := `SELECT partner, COUNT(1) AS total
	          FROM alerts
	          WHERE partner IS NOT NULL
	            AND status != 'resolved'
	            AND last_detected_at >= ?
	            AND last_detected_at < ?`
	args := []any{from, to}
	if projectID != 0 {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY partner"

	var rows []partnerCount
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Partner] = row.Total
	}
	return out, nil
}
