package quality

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// FileScore is one scored file from the sibling quality subsystem.
type FileScore struct {
	FileID    snowflake.ID `gorm:"column:file_id"`
	ProjectID snowflake.ID `gorm:"column:project_id"`
	FileName  string       `gorm:"column:name"`
	Score     float64      `gorm:"column:score"`
}

// Reader exposes the sibling quality subsystem's file scores. Scores are
// 0-100; files the subsystem never scored are simply absent.
type Reader interface {
	// PartnerAverages averages scores over every file contributing
	// aggregates to each partner inside the window, both bounds inclusive.
	PartnerAverages(ctx context.Context, projectID snowflake.ID, from, to time.Time) (map[string]float64, error)

	// LowScores lists files uploaded since the given time whose score fell
	// below the threshold.
	LowScores(ctx context.Context, projectID snowflake.ID, threshold float64, since time.Time) ([]FileScore, error)
}

type reader struct {
	db *gorm.DB
}

func New(db *gorm.DB) Reader {
	return &reader{db: db}
}

type partnerAverage struct {
	Partner string  `gorm:"column:partner"`
	Score   float64 `gorm:"column:score"`
}

func (r *reader) PartnerAverages(ctx context.Context, projectID snowflake.ID, from, to time.Time) (map[string]float64, error) {
	query := `SELECT a.partner, AVG(q.score) AS score
	          FROM (
	              SELECT DISTINCT partner, file_id
	              FROM daily_partner_aggregates
	              WHERE day >= ? AND day <= ?`
	args := []any{from, to}
	if projectID != 0 {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += `
	          ) a
	          JOIN file_quality_scores q ON q.file_id = a.file_id
	          WHERE q.score IS NOT NULL
	          GROUP BY a.partner`

	var rows []partnerAverage
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[string]float64, len(rows))
	for _, row := range rows {
		out[row.Partner] = row.Score
	}
	return out, nil
}

func (r *reader) LowScores(ctx context.Context, projectID snowflake.ID, threshold float64, since time.Time) ([]FileScore, error) {
	query := `SELECT q.file_id, f.project_id, f.name, q.score
	          FROM file_quality_scores q
	          JOIN files f ON f.id = q.file_id
	          WHERE q.score IS NOT NULL
	            AND q.score < ?
	            AND f.uploaded_at >= ?`
	args := []any{threshold, since}
	if projectID != 0 {
		query += " AND f.project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY q.score ASC"

	var rows []FileScore
	if err := r.db.WithContext(ctx).Raw(query, args...).Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

var Module = fx.Module("quality",
	fx.Provide(New),
)
