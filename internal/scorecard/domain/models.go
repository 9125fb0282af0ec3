package domain

import (
	"math"

	"github.com/bwmarrin/snowflake"
	"github.com/corridorlabs/roamsight/pkg/db/pagination"
)

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

const (
	DefaultMonths = 6
	MinMonths     = 3
	MaxMonths     = 24

	// Partners without a quality score are treated as middling rather
	// than penalized for missing data.
	neutralQuality = 60
)

type TrendPoint struct {
	Month   string  `json:"month"`
	Revenue float64 `json:"revenue"`
	Usage   float64 `json:"usage"`
}

type Row struct {
	Partner      string       `json:"partner"`
	Revenue      float64      `json:"revenue"`
	Usage        float64      `json:"usage"`
	RowCount     int64        `json:"row_count"`
	FileCount    int64        `json:"file_count"`
	QualityScore *float64     `json:"quality_score"`
	Disputes     int64        `json:"disputes"`
	DelayDays    float64      `json:"delay_days"`
	Score        float64      `json:"score"`
	Risk         RiskLevel    `json:"risk"`
	Trend        []TrendPoint `json:"trend"`
}

type Query struct {
	ProjectID snowflake.ID
	Months    int
	MinScore  float64
	Name      string
	SortBy    string
	SortDesc  bool
	Page      pagination.Pagination
}

type Result struct {
	Rows     []Row               `json:"rows"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

// ClampMonths bounds the trailing window, defaulting when unset.
func ClampMonths(months int) int {
	if months == 0 {
		return DefaultMonths
	}
	if months < MinMonths {
		return MinMonths
	}
	if months > MaxMonths {
		return MaxMonths
	}
	return months
}

// ComposeScore computes the composite partner score. Revenue and usage are
// normalized against the best partner in the same window; quality defaults
// to a neutral value when the subsystem never scored the partner's files.
func ComposeScore(revenue, usage, maxRevenue, maxUsage float64, quality *float64, disputes int64, delayDays float64) float64 {
	score := 25.0
	if maxRevenue > 0 {
		score += 30 * (revenue / maxRevenue)
	}
	if maxUsage > 0 {
		score += 20 * (usage / maxUsage)
	}

	q := float64(neutralQuality)
	if quality != nil {
		q = *quality
	}
	score += 25 * (q / 100)

	score -= math.Min(18, 2.5*float64(disputes))
	score -= DelayPenalty(delayDays)

	score = math.Max(0, math.Min(100, score))
	return math.Round(score*10) / 10
}

// DelayPenalty converts an average payment delay into score points. The
// penalty saturates so chronic late payers are not driven to zero on delay
// alone.
func DelayPenalty(delayDays float64) float64 {
	if delayDays <= 0 {
		return 0
	}
	return math.Min(15, 0.5*delayDays)
}

// Assess maps a composed score and its inputs onto a risk level.
func Assess(score float64, disputes int64, delayDays float64) RiskLevel {
	switch {
	case score < 50 || disputes >= 5 || delayDays >= 30:
		return RiskHigh
	case score < 70 || disputes >= 2 || delayDays >= 15:
		return RiskMedium
	default:
		return RiskLow
	}
}
