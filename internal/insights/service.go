package insights

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/corridorlabs/roamsight/internal/cache"
	"github.com/corridorlabs/roamsight/internal/config"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"github.com/corridorlabs/roamsight/internal/resolver"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	cacheTTL      = 30 * time.Second
	cacheCapacity = 512

	DefaultHorizon = 7
	MaxHorizon     = 90
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Detection *config.DetectionConfigHolder
	EtlRepo   etldomain.Repository
	Rows      rowstore.Store
}

// Service answers the read-side insight queries. Heavy aggregations are
// cached by their full filter set with a short TTL; staleness inside that
// window is accepted.
type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	detection *config.DetectionConfigHolder
	etlRepo   etldomain.Repository
	rows      rowstore.Store

	dailyCache   *cache.ReadThrough[[]DailyPoint]
	leakageCache *cache.ReadThrough[[]LeakageItem]
}

func New(p Params) *Service {
	return &Service{
		db:           p.DB,
		log:          p.Log.Named("insights"),
		detection:    p.Detection,
		etlRepo:      p.EtlRepo,
		rows:         p.Rows,
		dailyCache:   cache.NewReadThrough[[]DailyPoint](cacheTTL, cacheCapacity),
		leakageCache: cache.NewReadThrough[[]LeakageItem](cacheTTL, cacheCapacity),
	}
}

func cacheKey(prefix string, q Query) string {
	return cache.Key(
		prefix,
		strconv.FormatInt(int64(q.ProjectID), 10),
		q.Partner,
		q.Country,
		q.From.Format(time.DateOnly),
		q.To.Format(time.DateOnly),
	)
}

// Daily returns summed metrics per day inside the query window.
func (s *Service) Daily(ctx context.Context, q Query) ([]DailyPoint, error) {
	return s.dailyCache.Do(cacheKey("daily", q), func() ([]DailyPoint, error) {
		return s.daily(ctx, q)
	})
}

func (s *Service) daily(ctx context.Context, q Query) ([]DailyPoint, error) {
	series, err := s.etlRepo.DailySeries(ctx, s.db, etldomain.SeriesFilter{
		ProjectID: q.ProjectID,
		Partner:   q.Partner,
		Country:   q.Country,
		From:      q.From,
		To:        q.To,
	})
	if err != nil {
		s.log.Warn("aggregate query failed, scanning raw rows", zap.Error(err))
		series, err = s.scanSeries(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("insights: daily series: %w", err)
		}
	}

	points := make([]DailyPoint, 0, len(series))
	for _, obs := range series {
		points = append(points, DailyPoint{
			Day:      obs.Day.UTC().Format(time.DateOnly),
			RowCount: obs.RowCount,
			Traffic:  round2(obs.TrafficTotal),
			Revenue:  round2(obs.RevenueTotal),
			Cost:     round2(obs.CostTotal),
			Expected: round2(obs.ExpectedTotal),
			Actual:   round2(obs.ActualTotal),
			Usage:    round2(obs.UsageTotal),
		})
	}
	return points, nil
}

// Forecast projects a metric horizon days past the window's last day using
// a least-squares trend over the observed series.
func (s *Service) Forecast(ctx context.Context, q Query, metric string, horizon int) (*Forecast, error) {
	if horizon <= 0 {
		horizon = DefaultHorizon
	}
	if horizon > MaxHorizon {
		horizon = MaxHorizon
	}
	if metric == "" {
		metric = MetricRevenue
	}
	pick, err := metricPicker(metric)
	if err != nil {
		return nil, err
	}

	points, err := s.Daily(ctx, q)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		values = append(values, pick(p))
	}

	lastDay := q.To
	if len(points) > 0 {
		if d, parseErr := time.Parse(time.DateOnly, points[len(points)-1].Day); parseErr == nil {
			lastDay = d
		}
	}

	projected := extrapolate(values, horizon)
	out := make([]ForecastPoint, 0, horizon)
	for i, v := range projected {
		out = append(out, ForecastPoint{
			Day:   lastDay.AddDate(0, 0, i+1).Format(time.DateOnly),
			Value: round2(v),
		})
	}
	return &Forecast{Metric: metric, Points: out}, nil
}

// Anomalies flags days whose metric deviates from the window mean beyond
// the configured z-score threshold.
func (s *Service) Anomalies(ctx context.Context, q Query, metric string) ([]AnomalyPoint, error) {
	pick, err := metricPicker(metric)
	if err != nil {
		return nil, err
	}

	points, err := s.Daily(ctx, q)
	if err != nil {
		return nil, err
	}

	values := make([]float64, 0, len(points))
	for _, p := range points {
		values = append(values, pick(p))
	}

	threshold := s.detection.Get().ZScoreThreshold
	scores := zScores(values)
	out := make([]AnomalyPoint, 0)
	for i, z := range scores {
		if math.Abs(z) < threshold {
			continue
		}
		out = append(out, AnomalyPoint{
			Day:    points[i].Day,
			Value:  round2(values[i]),
			ZScore: round1(z),
		})
	}
	return out, nil
}

// Leakage ranks corridors by the absolute gap between expected and actual
// charges.
func (s *Service) Leakage(ctx context.Context, q Query) ([]LeakageItem, error) {
	return s.leakageCache.Do(cacheKey("leakage", q), func() ([]LeakageItem, error) {
		rows, err := s.etlRepo.Leakage(ctx, s.db, etldomain.SeriesFilter{
			ProjectID: q.ProjectID,
			Partner:   q.Partner,
			Country:   q.Country,
			From:      q.From,
			To:        q.To,
		})
		if err != nil {
			return nil, fmt.Errorf("insights: leakage: %w", err)
		}

		out := make([]LeakageItem, 0, len(rows))
		for _, row := range rows {
			diff := row.ExpectedTotal - row.ActualTotal
			var pct float64
			if row.ExpectedTotal != 0 {
				pct = diff / row.ExpectedTotal * 100
			}
			out = append(out, LeakageItem{
				Partner:  row.Partner,
				Country:  row.Country,
				Expected: round2(row.ExpectedTotal),
				Actual:   round2(row.ActualTotal),
				Diff:     round2(diff),
				DiffPct:  round1(pct),
			})
		}
		return out, nil
	})
}

// scanSeries recomputes the daily series straight from raw file rows. It is
// the slow path used when the aggregate tables cannot be queried.
func (s *Service) scanSeries(ctx context.Context, q Query) ([]etldomain.DailyObservation, error) {
	files, err := s.rows.FilesInWindow(ctx, q.ProjectID, q.From, q.To)
	if err != nil {
		return nil, err
	}

	byDay := make(map[string]*etldomain.DailyObservation)
	for _, file := range files {
		if err := s.scanFile(ctx, q, file, byDay); err != nil {
			return nil, err
		}
	}

	days := make([]string, 0, len(byDay))
	for day := range byDay {
		days = append(days, day)
	}
	sort.Strings(days)

	out := make([]etldomain.DailyObservation, 0, len(days))
	for _, day := range days {
		out = append(out, *byDay[day])
	}
	return out, nil
}

func (s *Service) scanFile(ctx context.Context, q Query, file rowstore.File, byDay map[string]*etldomain.DailyObservation) error {
	columns, err := s.rows.ColumnNames(ctx, file.ID)
	if err != nil {
		return err
	}
	sample, err := s.rows.SampleRows(ctx, file.ID, resolver.SampleLimit)
	if err != nil {
		return err
	}
	fields := resolver.Resolve(columns, sample)
	fallbackDay := resolver.Day(file.UploadedAt)

	return s.rows.ScanRows(ctx, file.ID, func(batch []resolver.Row) error {
		for _, row := range batch {
			if !matchesLabel(row, fields.Partner, q.Partner, etldomain.UnknownPartner) {
				continue
			}
			if !matchesLabel(row, fields.Country, q.Country, etldomain.UnknownCountry) {
				continue
			}

			day := fallbackDay
			if fields.Date != "" {
				if t, ok := resolver.ParseDate(row[fields.Date]); ok {
					day = resolver.Day(t)
				}
			}
			if day.Before(q.From) || day.After(q.To) {
				continue
			}

			key := day.Format(time.DateOnly)
			obs := byDay[key]
			if obs == nil {
				obs = &etldomain.DailyObservation{Day: day}
				byDay[key] = obs
			}
			obs.RowCount++
			addMetric(&obs.TrafficTotal, row, fields.Traffic)
			addMetric(&obs.RevenueTotal, row, fields.Revenue)
			addMetric(&obs.CostTotal, row, fields.Cost)
			addMetric(&obs.ExpectedTotal, row, fields.Expected)
			addMetric(&obs.ActualTotal, row, fields.Actual)
			addMetric(&obs.UsageTotal, row, fields.Usage)
		}
		return nil
	})
}

func matchesLabel(row resolver.Row, column, want, unknown string) bool {
	if want == "" {
		return true
	}
	got := unknown
	if column != "" {
		if v, ok := row[column].(string); ok && strings.TrimSpace(v) != "" {
			got = strings.TrimSpace(v)
		}
	}
	return strings.EqualFold(got, want)
}

func addMetric(total *float64, row resolver.Row, column string) {
	if column == "" {
		return
	}
	if v, ok := resolver.NumericValue(row[column]); ok {
		*total += v
	}
}

func metricPicker(metric string) (func(DailyPoint) float64, error) {
	switch metric {
	case MetricRevenue, "":
		return func(p DailyPoint) float64 { return p.Revenue }, nil
	case MetricTraffic:
		return func(p DailyPoint) float64 { return p.Traffic }, nil
	case MetricUsage:
		return func(p DailyPoint) float64 { return p.Usage }, nil
	case MetricCost:
		return func(p DailyPoint) float64 { return p.Cost }, nil
	case MetricRows:
		return func(p DailyPoint) float64 { return float64(p.RowCount) }, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, metric)
	}
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round1(v float64) float64 { return math.Round(v*10) / 10 }

var Module = fx.Module("insights",
	fx.Provide(New),
)
