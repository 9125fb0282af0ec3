package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/internal/cache"
	"github.com/corridorlabs/roamsight/internal/clock"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"github.com/corridorlabs/roamsight/internal/quality"
	"github.com/corridorlabs/roamsight/internal/resolver"
	"github.com/corridorlabs/roamsight/internal/rowstore"
	scorecarddomain "github.com/corridorlabs/roamsight/internal/scorecard/domain"
	"github.com/corridorlabs/roamsight/internal/scorecard/repository"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	cacheTTL      = 30 * time.Second
	cacheCapacity = 256

	// delaySampleLimit bounds how many rows per file feed the payment-delay
	// averages. The delay signal is coarse; a prefix sample is enough.
	delaySampleLimit = 500
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	Clock   clock.Clock
	EtlRepo etldomain.Repository
	Repo    repository.Repository
	Quality quality.Reader
	Rows    rowstore.Store
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	clock   clock.Clock
	etlRepo etldomain.Repository
	repo    repository.Repository
	quality quality.Reader
	rows    rowstore.Store
	cache   *cache.ReadThrough[scorecarddomain.Result]
}

func New(p Params) *Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("scorecard"),
		clock:   p.Clock,
		etlRepo: p.EtlRepo,
		repo:    p.Repo,
		quality: p.Quality,
		rows:    p.Rows,
		cache:   cache.NewReadThrough[scorecarddomain.Result](cacheTTL, cacheCapacity),
	}
}

// Compose builds the ranked partner scorecard for a trailing month window.
// Results are cached by the full filter set; staleness is bounded by the
// cache TTL.
func (s *Service) Compose(ctx context.Context, q scorecarddomain.Query) (scorecarddomain.Result, error) {
	q.Months = scorecarddomain.ClampMonths(q.Months)
	q.Page = q.Page.Normalize()

	key := cache.Key(
		"scorecard",
		strconv.FormatInt(int64(q.ProjectID), 10),
		strconv.Itoa(q.Months),
		strconv.FormatFloat(q.MinScore, 'f', -1, 64),
		q.Name,
		q.SortBy,
		strconv.FormatBool(q.SortDesc),
		strconv.Itoa(q.Page.Page),
		strconv.Itoa(q.Page.PageSize),
	)
	return s.cache.Do(key, func() (scorecarddomain.Result, error) {
		return s.compose(ctx, q)
	})
}

func (s *Service) compose(ctx context.Context, q scorecarddomain.Query) (scorecarddomain.Result, error) {
	to := s.clock.Now()
	from := to.AddDate(0, -q.Months, 0)

	totals, err := s.etlRepo.PartnerTotals(ctx, s.db, q.ProjectID, from, to)
	if err != nil {
		return scorecarddomain.Result{}, fmt.Errorf("scorecard: partner totals: %w", err)
	}
	if len(totals) == 0 {
		return scorecarddomain.Result{
			Rows:     []scorecarddomain.Row{},
			PageInfo: pagination.BuildPageInfo(0, q.Page),
		}, nil
	}

	disputes, err := s.repo.OpenDisputes(ctx, s.db, q.ProjectID, from, to)
	if err != nil {
		return scorecarddomain.Result{}, fmt.Errorf("scorecard: open disputes: %w", err)
	}
	qualityScores, err := s.quality.PartnerAverages(ctx, q.ProjectID, from, to)
	if err != nil {
		return scorecarddomain.Result{}, fmt.Errorf("scorecard: partner quality: %w", err)
	}
	trends, err := s.monthlyTrends(ctx, q.ProjectID, from, to)
	if err != nil {
		return scorecarddomain.Result{}, fmt.Errorf("scorecard: trends: %w", err)
	}
	delays := s.partnerDelays(ctx, q.ProjectID, from, to)

	var maxRevenue, maxUsage float64
	for _, t := range totals {
		maxRevenue = math.Max(maxRevenue, t.RevenueTotal)
		maxUsage = math.Max(maxUsage, t.UsageTotal)
	}

	rows := make([]scorecarddomain.Row, 0, len(totals))
	for _, t := range totals {
		var qscore *float64
		if v, ok := qualityScores[t.Partner]; ok {
			rounded := math.Round(v*10) / 10
			qscore = &rounded
		}
		disputeCount := disputes[t.Partner]
		delayDays := math.Round(delays[t.Partner]*10) / 10

		score := scorecarddomain.ComposeScore(
			t.RevenueTotal, t.UsageTotal, maxRevenue, maxUsage,
			qscore, disputeCount, delayDays,
		)
		rows = append(rows, scorecarddomain.Row{
			Partner:      t.Partner,
			Revenue:      round2(t.RevenueTotal),
			Usage:        round2(t.UsageTotal),
			RowCount:     t.RowCount,
			FileCount:    t.FileCount,
			QualityScore: qscore,
			Disputes:     disputeCount,
			DelayDays:    delayDays,
			Score:        score,
			Risk:         scorecarddomain.Assess(score, disputeCount, delayDays),
			Trend:        trends[t.Partner],
		})
	}

	rows = filterRows(rows, q)
	sortRows(rows, q.SortBy, q.SortDesc)

	total := int64(len(rows))
	start := q.Page.Offset()
	if start > len(rows) {
		start = len(rows)
	}
	end := start + q.Page.PageSize
	if end > len(rows) {
		end = len(rows)
	}

	return scorecarddomain.Result{
		Rows:     rows[start:end],
		PageInfo: pagination.BuildPageInfo(total, q.Page),
	}, nil
}

// partnerDelays averages the payment-delay column per partner across the
// window's files. The column is optional; a file where the resolver finds no
// delay or partner column contributes nothing, and resolution failures only
// degrade the penalty back to zero.
func (s *Service) partnerDelays(ctx context.Context, projectID snowflake.ID, from, to time.Time) map[string]float64 {
	files, err := s.rows.FilesInWindow(ctx, projectID, from, to)
	if err != nil {
		s.log.Warn("delay resolution skipped", zap.Error(err))
		return nil
	}

	type acc struct {
		sum   float64
		count int64
	}
	totals := make(map[string]*acc)
	for _, file := range files {
		var columns []string
		if len(file.Columns) > 0 {
			if err := json.Unmarshal(file.Columns, &columns); err != nil {
				continue
			}
		}
		if len(columns) == 0 {
			continue
		}
		sample, err := s.rows.SampleRows(ctx, file.ID, delaySampleLimit)
		if err != nil || len(sample) == 0 {
			continue
		}
		fields := resolver.Resolve(columns, sample)
		if fields.Delay == "" || fields.Partner == "" {
			continue
		}
		for _, row := range sample {
			partner, ok := row[fields.Partner].(string)
			if !ok || partner == "" {
				continue
			}
			v, ok := resolver.NumericValue(row[fields.Delay])
			if !ok || v < 0 {
				continue
			}
			a := totals[partner]
			if a == nil {
				a = &acc{}
				totals[partner] = a
			}
			a.sum += v
			a.count++
		}
	}

	out := make(map[string]float64, len(totals))
	for partner, a := range totals {
		out[partner] = a.sum / float64(a.count)
	}
	return out
}

// monthlyTrends buckets per-day partner slices into calendar months.
// Bucketing happens here rather than in SQL to stay dialect-neutral.
func (s *Service) monthlyTrends(ctx context.Context, projectID snowflake.ID, from, to time.Time) (map[string][]scorecarddomain.TrendPoint, error) {
	days, err := s.etlRepo.PartnerDailyBreakdown(ctx, s.db, projectID, from, to)
	if err != nil {
		return nil, err
	}

	type bucket struct {
		revenue float64
		usage   float64
	}
	months := make(map[string]map[string]*bucket)
	for _, day := range days {
		month := day.Day.UTC().Format("2006-01")
		if months[day.Partner] == nil {
			months[day.Partner] = make(map[string]*bucket)
		}
		b := months[day.Partner][month]
		if b == nil {
			b = &bucket{}
			months[day.Partner][month] = b
		}
		b.revenue += day.RevenueTotal
		b.usage += day.UsageTotal
	}

	out := make(map[string][]scorecarddomain.TrendPoint, len(months))
	for partner, byMonth := range months {
		keys := make([]string, 0, len(byMonth))
		for month := range byMonth {
			keys = append(keys, month)
		}
		sort.Strings(keys)

		points := make([]scorecarddomain.TrendPoint, 0, len(keys))
		for _, month := range keys {
			b := byMonth[month]
			points = append(points, scorecarddomain.TrendPoint{
				Month:   month,
				Revenue: round2(b.revenue),
				Usage:   round2(b.usage),
			})
		}
		out[partner] = points
	}
	return out, nil
}

func filterRows(rows []scorecarddomain.Row, q scorecarddomain.Query) []scorecarddomain.Row {
	if q.MinScore == 0 && q.Name == "" {
		return rows
	}
	needle := strings.ToLower(q.Name)
	out := rows[:0]
	for _, row := range rows {
		if row.Score < q.MinScore {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(row.Partner), needle) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func sortRows(rows []scorecarddomain.Row, sortBy string, desc bool) {
	key := func(r scorecarddomain.Row) float64 {
		switch sortBy {
		case "revenue":
			return r.Revenue
		case "usage":
			return r.Usage
		case "quality":
			if r.QualityScore == nil {
				return -1
			}
			return *r.QualityScore
		case "disputes":
			return float64(r.Disputes)
		case "delay":
			return r.DelayDays
		default:
			return r.Score
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]

		var less bool
		var equal bool
		if sortBy == "partner" {
			less = a.Partner < b.Partner
			equal = a.Partner == b.Partner
		} else {
			ka, kb := key(a), key(b)
			less = ka < kb
			equal = ka == kb
		}
		if !equal {
			if desc {
				return !less
			}
			return less
		}

		// Stable tie-break: score, then revenue, then partner name.
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.Partner < b.Partner
	})
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

var Module = fx.Module("scorecard",
	fx.Provide(
		repository.Provide,
		New,
	),
)
