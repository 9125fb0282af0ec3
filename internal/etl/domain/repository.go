package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository owns all reads and writes of daily_partner_aggregates and
// file_metrics. Write methods take the caller's transaction handle so the
// delete/insert/upsert triple for one file commits atomically.
type Repository interface {
	DeleteForFile(ctx context.Context, tx *gorm.DB, fileID snowflake.ID) error
	Insert(ctx context.Context, tx *gorm.DB, agg *DailyPartnerAggregate) error
	UpsertFileMetrics(ctx context.Context, tx *gorm.DB, metrics *FileMetrics) error

	AggregatesForFile(ctx context.Context, db *gorm.DB, fileID snowflake.ID) ([]DailyPartnerAggregate, error)
	// StaleFileIDs lists files whose metrics are missing or predate the upload.
	StaleFileIDs(ctx context.Context, db *gorm.DB, limit int) ([]snowflake.ID, error)

	DailySeries(ctx context.Context, db *gorm.DB, f SeriesFilter) ([]DailyObservation, error)
	// ActiveProjects lists projects with at least one aggregate since the
	// given day.
	ActiveProjects(ctx context.Context, db *gorm.DB, since time.Time) ([]snowflake.ID, error)
	ActivePartners(ctx context.Context, db *gorm.DB, projectID snowflake.ID, since time.Time) ([]PartnerKey, error)
	PartnerDaily(ctx context.Context, db *gorm.DB, projectID snowflake.ID, partner string, from, to time.Time) ([]DailyObservation, error)
	PartnerTotals(ctx context.Context, db *gorm.DB, projectID snowflake.ID, from, to time.Time) ([]PartnerTotals, error)
	PartnerDailyBreakdown(ctx context.Context, db *gorm.DB, projectID snowflake.ID, from, to time.Time) ([]PartnerDay, error)
	Leakage(ctx context.Context, db *gorm.DB, f SeriesFilter) ([]LeakageRow, error)
}
