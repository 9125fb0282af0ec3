package insights

import (
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var ErrUnknownMetric = errors.New("insights: unknown metric")

// Metric names accepted by the forecast and anomaly queries.
const (
	MetricRevenue = "revenue"
	MetricTraffic = "traffic"
	MetricUsage   = "usage"
	MetricCost    = "cost"
	MetricRows    = "row_count"
)

type Query struct {
	ProjectID snowflake.ID
	Partner   string
	Country   string
	From      time.Time
	To        time.Time
}

type DailyPoint struct {
	Day      string  `json:"day"`
	RowCount int64   `json:"row_count"`
	Traffic  float64 `json:"traffic"`
	Revenue  float64 `json:"revenue"`
	Cost     float64 `json:"cost"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Usage    float64 `json:"usage"`
}

type ForecastPoint struct {
	Day   string  `json:"day"`
	Value float64 `json:"value"`
}

type Forecast struct {
	Metric string          `json:"metric"`
	Points []ForecastPoint `json:"points"`
}

type AnomalyPoint struct {
	Day    string  `json:"day"`
	Value  float64 `json:"value"`
	ZScore float64 `json:"z_score"`
}

type LeakageItem struct {
	Partner  string  `json:"partner"`
	Country  string  `json:"country"`
	Expected float64 `json:"expected"`
	Actual   float64 `json:"actual"`
	Diff     float64 `json:"diff"`
	DiffPct  float64 `json:"diff_pct"`
}
