package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/clock"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"github.com/corridorlabs/roamsight/internal/resolver"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const processTimeout = 5 * time.Minute

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  etldomain.Repository
	Rows  rowstore.Store
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      etldomain.Repository
	rows      rowstore.Store
	coalescer *coalescer
}

func New(p Params) etldomain.Service {
	s := &Service{
		db:    p.DB,
		log:   p.Log.Named("etl.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
		rows:  p.Rows,
	}
	s.coalescer = newCoalescer(s.runBatch)
	return s
}

// Trigger coalesces file-ready events into at most one in-flight run.
func (s *Service) Trigger(fileIDs ...snowflake.ID) {
	s.coalescer.Trigger(fileIDs...)
}

func (s *Service) runBatch(fileIDs []snowflake.ID) {
	ctx, cancel := context.WithTimeout(context.Background(), processTimeout)
	defer cancel()

	for _, id := range fileIDs {
		if err := s.ProcessFile(ctx, id); err != nil {
			s.log.Warn("file aggregation failed",
				zap.String("file_id", id.String()),
				zap.Error(err),
			)
		}
	}
}

// bucketKey orders aggregates deterministically across recomputes.
type bucketKey struct {
	Day     string
	Partner string
	Country string
}

// ProcessFile transforms one file's rows into a replacement aggregate set and
// file metrics inside a single transaction.
func (s *Service) ProcessFile(ctx context.Context, fileID snowflake.ID) error {
	file, err := s.rows.GetFile(ctx, fileID)
	if err != nil {
		return err
	}

	columns, err := s.rows.ColumnNames(ctx, fileID)
	if err != nil {
		return err
	}

	sample, err := s.rows.SampleRows(ctx, fileID, resolver.SampleLimit)
	if err != nil {
		return err
	}
	fields := resolver.Resolve(columns, sample)
	if fields.Revenue == "" {
		s.log.Debug("no revenue column detected",
			zap.String("file_id", fileID.String()),
			zap.String("file", file.Name),
		)
	}

	fallbackDay := resolver.Day(file.UploadedAt)
	buckets := make(map[bucketKey]*etldomain.DailyPartnerAggregate)
	metrics := &etldomain.FileMetrics{
		FileID:    fileID,
		ProjectID: file.ProjectID,
	}

	err = s.rows.ScanRows(ctx, fileID, func(batch []resolver.Row) error {
		for _, row := range batch {
			s.accumulate(buckets, metrics, fields, row, file, fallbackDay)
		}
		return nil
	})
	if err != nil {
		return err
	}

	resolved, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	metrics.ResolvedColumns = resolved
	metrics.ComputedAt = s.clock.Now()

	keys := make([]bucketKey, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Day != keys[j].Day {
			return keys[i].Day < keys[j].Day
		}
		if keys[i].Partner != keys[j].Partner {
			return keys[i].Partner < keys[j].Partner
		}
		return keys[i].Country < keys[j].Country
	})

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.DeleteForFile(ctx, tx, fileID); err != nil {
			return err
		}
		for _, k := range keys {
			agg := buckets[k]
			agg.ID = s.genID.Generate()
			if err := s.repo.Insert(ctx, tx, agg); err != nil {
				return err
			}
		}
		return s.repo.UpsertFileMetrics(ctx, tx, metrics)
	})
}

func (s *Service) accumulate(
	buckets map[bucketKey]*etldomain.DailyPartnerAggregate,
	metrics *etldomain.FileMetrics,
	fields resolver.Fields,
	row resolver.Row,
	file *rowstore.File,
	fallbackDay time.Time,
) {
	day := fallbackDay
	if fields.Date != "" {
		if parsed, ok := resolver.ParseDate(row[fields.Date]); ok {
			day = resolver.Day(parsed)
		}
	}

	partner := labelValue(row[fields.Partner], etldomain.UnknownPartner)
	country := labelValue(row[fields.Country], etldomain.UnknownCountry)

	key := bucketKey{Day: day.Format(time.DateOnly), Partner: partner, Country: country}
	agg, ok := buckets[key]
	if !ok {
		agg = &etldomain.DailyPartnerAggregate{
			FileID:    file.ID,
			ProjectID: file.ProjectID,
			Day:       day,
			Partner:   partner,
			Country:   country,
		}
		buckets[key] = agg
	}

	agg.RowCount++
	metrics.RowCount++

	// Nulls and non-numeric values are skipped, not treated as zero.
	addMetric(fields.Traffic, row, &agg.TrafficTotal, &metrics.TrafficTotal)
	addMetric(fields.Revenue, row, &agg.RevenueTotal, &metrics.RevenueTotal)
	addMetric(fields.Cost, row, &agg.CostTotal, &metrics.CostTotal)
	addMetric(fields.Expected, row, &agg.ExpectedTotal, &metrics.ExpectedTotal)
	addMetric(fields.Actual, row, &agg.ActualTotal, &metrics.ActualTotal)
	addMetric(fields.Usage, row, &agg.UsageTotal, &metrics.UsageTotal)
}

func addMetric(column string, row resolver.Row, targets ...*float64) {
	if column == "" {
		return
	}
	value, ok := resolver.NumericValue(row[column])
	if !ok {
		return
	}
	for _, t := range targets {
		*t += value
	}
}

func labelValue(v any, fallback string) string {
	switch typed := v.(type) {
	case string:
		if trimmed := strings.TrimSpace(typed); trimmed != "" {
			return trimmed
		}
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(typed, 10)
	}
	return fallback
}

// Backfill reprocesses a bounded batch of files whose metrics are missing or
// stale. Per-file failures are joined and do not halt the batch.
func (s *Service) Backfill(ctx context.Context, limit int) (int, error) {
	ids, err := s.repo.StaleFileIDs(ctx, s.db, limit)
	if err != nil {
		return 0, err
	}

	processed := 0
	var jobErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return processed, errors.Join(jobErr, ctx.Err())
		}
		if err := s.ProcessFile(ctx, id); err != nil {
			jobErr = errors.Join(jobErr, err)
			s.log.Warn("backfill aggregation failed",
				zap.String("file_id", id.String()),
				zap.Error(err),
			)
			continue
		}
		processed++
	}
	return processed, jobErr
}
