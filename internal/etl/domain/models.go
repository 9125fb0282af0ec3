package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Labels applied when a row has no resolvable partner or country value.
const (
	UnknownPartner = "Unknown Partner"
	UnknownCountry = "Unknown Country"
)

// DailyPartnerAggregate is one day of one partner/country corridor inside one
// file. The set for a file is replaced wholesale on every recompute.
type DailyPartnerAggregate struct {
	ID            snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	FileID        snowflake.ID `json:"file_id" gorm:"column:file_id"`
	ProjectID     snowflake.ID `json:"project_id" gorm:"column:project_id"`
	Day           time.Time    `json:"day" gorm:"column:day"`
	Partner       string       `json:"partner" gorm:"column:partner"`
	Country       string       `json:"country" gorm:"column:country"`
	RowCount      int64        `json:"row_count" gorm:"column:row_count"`
	TrafficTotal  float64      `json:"traffic_total" gorm:"column:traffic_total"`
	RevenueTotal  float64      `json:"revenue_total" gorm:"column:revenue_total"`
	CostTotal     float64      `json:"cost_total" gorm:"column:cost_total"`
	ExpectedTotal float64      `json:"expected_total" gorm:"column:expected_total"`
	ActualTotal   float64      `json:"actual_total" gorm:"column:actual_total"`
	UsageTotal    float64      `json:"usage_total" gorm:"column:usage_total"`
}

func (DailyPartnerAggregate) TableName() string { return "daily_partner_aggregates" }

// FileMetrics summarizes one file, 1:1 and upserted on recompute.
type FileMetrics struct {
	FileID          snowflake.ID   `json:"file_id" gorm:"column:file_id;primaryKey"`
	ProjectID       snowflake.ID   `json:"project_id" gorm:"column:project_id"`
	RowCount        int64          `json:"row_count" gorm:"column:row_count"`
	RevenueTotal    float64        `json:"revenue_total" gorm:"column:revenue_total"`
	UsageTotal      float64        `json:"usage_total" gorm:"column:usage_total"`
	TrafficTotal    float64        `json:"traffic_total" gorm:"column:traffic_total"`
	CostTotal       float64        `json:"cost_total" gorm:"column:cost_total"`
	ExpectedTotal   float64        `json:"expected_total" gorm:"column:expected_total"`
	ActualTotal     float64        `json:"actual_total" gorm:"column:actual_total"`
	ResolvedColumns datatypes.JSON `json:"resolved_columns" gorm:"column:resolved_columns"`
	ComputedAt      time.Time      `json:"computed_at" gorm:"column:computed_at"`
}

func (FileMetrics) TableName() string { return "file_metrics" }

// DailyObservation is a summed view of aggregates for one calendar day.
type DailyObservation struct {
	Day           time.Time `json:"day" gorm:"column:day"`
	RowCount      int64     `json:"row_count" gorm:"column:row_count"`
	TrafficTotal  float64   `json:"traffic_total" gorm:"column:traffic_total"`
	RevenueTotal  float64   `json:"revenue_total" gorm:"column:revenue_total"`
	CostTotal     float64   `json:"cost_total" gorm:"column:cost_total"`
	ExpectedTotal float64   `json:"expected_total" gorm:"column:expected_total"`
	ActualTotal   float64   `json:"actual_total" gorm:"column:actual_total"`
	UsageTotal    float64   `json:"usage_total" gorm:"column:usage_total"`
}

// PartnerKey identifies one monitored (project, partner) pair.
type PartnerKey struct {
	ProjectID snowflake.ID `gorm:"column:project_id"`
	Partner   string       `gorm:"column:partner"`
}

// PartnerTotals sums a partner's activity over a trailing window.
type PartnerTotals struct {
	Partner      string  `gorm:"column:partner"`
	RevenueTotal float64 `gorm:"column:revenue_total"`
	UsageTotal   float64 `gorm:"column:usage_total"`
	RowCount     int64   `gorm:"column:row_count"`
	FileCount    int64   `gorm:"column:file_count"`
}

// PartnerDay is a per-partner per-day slice used for trend bucketing.
type PartnerDay struct {
	Partner      string    `gorm:"column:partner"`
	Day          time.Time `gorm:"column:day"`
	RevenueTotal float64   `gorm:"column:revenue_total"`
	UsageTotal   float64   `gorm:"column:usage_total"`
	RowCount     int64     `gorm:"column:row_count"`
}

// LeakageRow sums expected versus actual charges for one corridor.
type LeakageRow struct {
	Partner       string  `gorm:"column:partner"`
	Country       string  `gorm:"column:country"`
	ExpectedTotal float64 `gorm:"column:expected_total"`
	ActualTotal   float64 `gorm:"column:actual_total"`
}

// SeriesFilter scopes aggregate reads. Zero values mean "any".
type SeriesFilter struct {
	ProjectID snowflake.ID
	Partner   string
	Country   string
	From      time.Time
	To        time.Time
}
