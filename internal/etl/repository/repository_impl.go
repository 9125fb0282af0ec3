package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() etldomain.Repository {
	return &repo{}
}

func (r *repo) DeleteForFile(ctx context.Context, tx *gorm.DB, fileID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`DELETE FROM daily_partner_aggregates WHERE file_id = ?`,
		fileID,
	).Error
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, agg *etldomain.DailyPartnerAggregate) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO daily_partner_aggregates
		 (id, file_id, project_id, day, partner, country, row_count,
		  traffic_total, revenue_total, cost_total, expected_total, actual_total, usage_total)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		agg.ID,
		agg.FileID,
		agg.ProjectID,
		agg.Day,
		agg.Partner,
		agg.Country,
		agg.RowCount,
		agg.TrafficTotal,
		agg.RevenueTotal,
		agg.CostTotal,
		agg.ExpectedTotal,
		agg.ActualTotal,
		agg.UsageTotal,
	).Error
}

func (r *repo) UpsertFileMetrics(ctx context.Context, tx *gorm.DB, m *etldomain.FileMetrics) error {
	return tx.WithContext(ctx).Exec(
		`INSERT INTO file_metrics
		 (file_id, project_id, row_count, revenue_total, usage_total, traffic_total,
		  cost_total, expected_total, actual_total, resolved_columns, computed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (file_id)
		 DO UPDATE SET project_id = EXCLUDED.project_id,
		               row_count = EXCLUDED.row_count,
		               revenue_total = EXCLUDED.revenue_total,
		               usage_total = EXCLUDED.usage_total,
		               traffic_total = EXCLUDED.traffic_total,
		               cost_total = EXCLUDED.cost_total,
		               expected_total = EXCLUDED.expected_total,
		               actual_total = EXCLUDED.actual_total,
		               resolved_columns = EXCLUDED.resolved_columns,
		               computed_at = EXCLUDED.computed_at`,
		m.FileID,
		m.ProjectID,
		m.RowCount,
		m.RevenueTotal,
		m.UsageTotal,
		m.TrafficTotal,
		m.CostTotal,
		m.ExpectedTotal,
		m.ActualTotal,
		m.ResolvedColumns,
		m.ComputedAt,
	).Error
}

func (r *repo) AggregatesForFile(ctx context.Context, db *gorm.DB, fileID snowflake.ID) ([]etldomain.DailyPartnerAggregate, error) {
	var aggs []etldomain.DailyPartnerAggregate
	err := db.WithContext(ctx).Raw(
		`SELECT id, file_id, project_id, day, partner, country, row_count,
		        traffic_total, revenue_total, cost_total, expected_total, actual_total, usage_total
		 FROM daily_partner_aggregates
		 WHERE file_id = ?
		 ORDER BY day ASC, partner ASC, country ASC`,
		fileID,
	).Scan(&aggs).Error
	if err != nil {
		return nil, err
	}
	return aggs, nil
}

func (r *repo) StaleFileIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error) {
	if limit <= 0 {
		limit = 10
	}
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT f.id
		 FROM files f
		 LEFT JOIN file_metrics fm ON fm.file_id = f.id
		 WHERE fm.file_id IS NULL OR fm.computed_at < f.uploaded_at
		 ORDER BY f.uploaded_at ASC
		 LIMIT ?`,
		limit,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) DailySeries(ctx context.Context, db *gorm.DB, f etldomain.SeriesFilter) ([]etldomain.DailyObservation, error) {
	query := `SELECT day,
	                 SUM(row_count) AS row_count,
	                 SUM(traffic_total) AS traffic_total,
	                 SUM(revenue_total) AS revenue_total,
	                 SUM(cost_total) AS cost_total,
	                 SUM(expected_total) AS expected_total,
	                 SUM(actual_total) AS actual_total,
	                 SUM(usage_total) AS usage_total
	          FROM daily_partner_aggregates
	          WHERE 1=1`
	args := []any{}
	query, args = applySeriesFilter(query, args, f)
	query += " GROUP BY day ORDER BY day ASC"

	var out []etldomain.DailyObservation
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) ActiveProjects(ctx context.Context, db *gorm.DB, since time.Time) ([]snowflake.ID, error) {
	var ids []snowflake.ID
	err := db.WithContext(ctx).Raw(
		`SELECT DISTINCT project_id
		 FROM daily_partner_aggregates
		 WHERE day >= ?
		 ORDER BY project_id ASC`,
		since,
	).Scan(&ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *repo) ActivePartners(ctx context.Context, db *gorm.DB, projectID snowflake.ID, since time.Time) ([]etldomain.PartnerKey, error) {
	query := `SELECT DISTINCT project_id, partner
	          FROM daily_partner_aggregates
	          WHERE day >= ?`
	args := []any{since}
	if projectID != 0 {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " ORDER BY project_id ASC, partner ASC"

	var out []etldomain.PartnerKey
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) PartnerDaily(ctx context.Context, db *gorm.DB, projectID snowflake.ID, partner string, from, to time.Time) ([]etldomain.DailyObservation, error) {
	var out []etldomain.DailyObservation
	err := db.WithContext(ctx).Raw(
		`SELECT day,
		        SUM(row_count) AS row_count,
		        SUM(traffic_total) AS traffic_total,
		        SUM(revenue_total) AS revenue_total,
		        SUM(cost_total) AS cost_total,
		        SUM(expected_total) AS expected_total,
		        SUM(actual_total) AS actual_total,
		        SUM(usage_total) AS usage_total
		 FROM daily_partner_aggregates
		 WHERE project_id = ? AND partner = ? AND day >= ? AND day <= ?
		 GROUP BY day
		 ORDER BY day ASC`,
		projectID,
		partner,
		from,
		to,
	).Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) PartnerTotals(ctx context.Context, db *gorm.DB, projectID snowflake.ID, from, to time.Time) ([]etldomain.PartnerTotals, error) {
	query := `SELECT partner,
	                 SUM(revenue_total) AS revenue_total,
	                 SUM(usage_total) AS usage_total,
	                 SUM(row_count) AS row_count,
	                 COUNT(DISTINCT file_id) AS file_count
	          FROM daily_partner_aggregates
	          WHERE day >= ? AND day <= ?`
	args := []any{from, to}
	if projectID != 0 {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY partner ORDER BY partner ASC"

	var out []etldomain.PartnerTotals
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) PartnerDailyBreakdown(ctx context.Context, db *gorm.DB, projectID snowflake.ID, from, to time.Time) ([]etldomain.PartnerDay, error) {
	query := `SELECT partner, day,
	                 SUM(revenue_total) AS revenue_total,
	                 SUM(usage_total) AS usage_total,
	                 SUM(row_count) AS row_count
	          FROM daily_partner_aggregates
	          WHERE day >= ? AND day <= ?`
	args := []any{from, to}
	if projectID != 0 {
		query += " AND project_id = ?"
		args = append(args, projectID)
	}
	query += " GROUP BY partner, day ORDER BY partner ASC, day ASC"

	var out []etldomain.PartnerDay
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repo) Leakage(ctx context.Context, db *gorm.DB, f etldomain.SeriesFilter) ([]etldomain.LeakageRow, error) {
	query := `SELECT partner, country,
	                 SUM(expected_total) AS expected_total,
	                 SUM(actual_total) AS actual_total
	          FROM daily_partner_aggregates
	          WHERE 1=1`
	args := []any{}
	query, args = applySeriesFilter(query, args, f)
	query += ` GROUP BY partner, country
	           ORDER BY ABS(SUM(expected_total) - SUM(actual_total)) DESC`

	var out []etldomain.LeakageRow
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func applySeriesFilter(query string, args []any, f etldomain.SeriesFilter) (string, []any) {
	if f.ProjectID != 0 {
		query += " AND project_id = ?"
		args = append(args, f.ProjectID)
	}
	if f.Partner != "" {
		query += " AND partner = ?"
		args = append(args, f.Partner)
	}
	if f.Country != "" {
		query += " AND country = ?"
		args = append(args, f.Country)
	}
	if !f.From.IsZero() {
		query += " AND day >= ?"
		args = append(args, f.From)
	}
	if !f.To.IsZero() {
		query += " AND day <= ?"
		args = append(args, f.To)
	}
	return query, args
}
