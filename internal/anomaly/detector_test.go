package anomaly

import (
	"testing"
	"time"

	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	"github.com/corridorlabs/roamsight/internal/config"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(offset int) time.Time {
	return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func revenueSeries(revenues ...float64) []etldomain.DailyObservation {
	series := make([]etldomain.DailyObservation, len(revenues))
	for i, r := range revenues {
		series[i] = etldomain.DailyObservation{
			Day:          day(i),
			RowCount:     50,
			RevenueTotal: r,
		}
	}
	return series
}

func findingOfType(findings []Finding, alertType string) *Finding {
	for i := range findings {
		if findings[i].Type == alertType {
			return &findings[i]
		}
	}
	return nil
}

func TestDynamicThresholdClamps(t *testing.T) {
	tc := config.ThresholdConfig{Base: 0.5, Max: 0.9, VolatilityMultiplier: 0.5}

	// Zero volatility keeps the base.
	assert.InDelta(t, 0.5, DynamicThreshold(tc, 100, 0), 1e-9)

	// CV 0.4 widens by 0.2.
	assert.InDelta(t, 0.7, DynamicThreshold(tc, 100, 40), 1e-9)

	// Extreme volatility clamps at max.
	assert.InDelta(t, 0.9, DynamicThreshold(tc, 100, 500), 1e-9)

	// Threshold never drops below base.
	assert.InDelta(t, 0.5, DynamicThreshold(tc, 0, 0), 1e-9)
}

func TestDynamicThresholdMonotonicInVolatility(t *testing.T) {
	tc := config.ThresholdConfig{Base: 0.5, Max: 0.9, VolatilityMultiplier: 0.5}
	prev := 0.0
	for stddev := 0.0; stddev <= 100; stddev += 5 {
		got := DynamicThreshold(tc, 100, stddev)
		assert.GreaterOrEqual(t, got, prev)
		prev = got
	}
}

func TestRevenueDropFiresOnStableBaseline(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	// Four stable days at 100, current at 40: drop ratio 0.6 against a
	// dynamic threshold of 0.5.
	findings := Evaluate(cfg, revenueSeries(100, 100, 100, 100, 40))
	f := findingOfType(findings, alertdomain.TypeRevenueDrop)
	require.NotNil(t, f)
	assert.Equal(t, alertdomain.SeverityMedium, f.Severity)
	assert.InDelta(t, 0.6, f.Ratio, 1e-9)
	assert.InDelta(t, 0.5, f.Threshold, 1e-9)
	assert.InDelta(t, 100, f.Baseline, 1e-9)
}

func TestRevenueDropEscalatesToHigh(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	// Drop ratio 0.9 exceeds threshold + 0.25.
	findings := Evaluate(cfg, revenueSeries(100, 100, 100, 100, 10))
	f := findingOfType(findings, alertdomain.TypeRevenueDrop)
	require.NotNil(t, f)
	assert.Equal(t, alertdomain.SeverityHigh, f.Severity)
}

func TestRevenueDropSkipsThinHistory(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	findings := Evaluate(cfg, revenueSeries(100, 100, 100, 40))
	assert.Nil(t, findingOfType(findings, alertdomain.TypeRevenueDrop))
}

func TestRevenueDropSkipsLowBaseline(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	// Baseline mean 5 is under the minimum-baseline-revenue floor.
	findings := Evaluate(cfg, revenueSeries(5, 5, 5, 5, 1))
	assert.Nil(t, findingOfType(findings, alertdomain.TypeRevenueDrop))
}

func TestVolatileBaselineNeedsDeeperDrop(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	// Volatile baseline: mean 100, stddev ~75, CV widens the threshold
	// past the 0.6 drop that fires on a stable series.
	findings := Evaluate(cfg, revenueSeries(20, 180, 30, 170, 40))
	assert.Nil(t, findingOfType(findings, alertdomain.TypeRevenueDrop))
}

func TestSparseCurrentDaySkipsAllChecks(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	series := revenueSeries(100, 100, 100, 100, 0)
	series[len(series)-1].RowCount = 2
	assert.Empty(t, Evaluate(cfg, series))
}

func TestTrafficSpikeFires(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	series := make([]etldomain.DailyObservation, 0, 5)
	for i, traffic := range []float64{50, 50, 50, 50, 160} {
		series = append(series, etldomain.DailyObservation{
			Day:          day(i),
			RowCount:     50,
			TrafficTotal: traffic,
		})
	}

	// Spike ratio 2.2 against base threshold 1.0.
	findings := Evaluate(cfg, series)
	f := findingOfType(findings, alertdomain.TypeTrafficSpike)
	require.NotNil(t, f)
	assert.Equal(t, alertdomain.SeverityHigh, f.Severity)
	assert.InDelta(t, 2.2, f.Ratio, 1e-9)
}

func TestOutlierPrefersTrafficAndSkipsZeroStddev(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	// Identical baseline values: stddev zero, outlier check must skip even
	// though the current day is wildly different.
	series := make([]etldomain.DailyObservation, 0, 6)
	for i, traffic := range []float64{50, 50, 50, 50, 50, 900} {
		series = append(series, etldomain.DailyObservation{
			Day:          day(i),
			RowCount:     50,
			TrafficTotal: traffic,
		})
	}
	assert.Nil(t, findingOfType(Evaluate(cfg, series), alertdomain.TypeMetricOutlier))
}

func TestOutlierFallsBackToRowCount(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	// No traffic or revenue anywhere: row count is the representative
	// metric. Baseline alternates 40/60 (mean 50, stddev 10); current 120
	// z-scores at 7.
	counts := []int64{40, 60, 40, 60, 40, 60, 120}
	series := make([]etldomain.DailyObservation, 0, len(counts))
	for i, c := range counts {
		series = append(series, etldomain.DailyObservation{Day: day(i), RowCount: c})
	}

	f := findingOfType(Evaluate(cfg, series), alertdomain.TypeMetricOutlier)
	require.NotNil(t, f)
	assert.Equal(t, "row_count", f.Metric)
	assert.Equal(t, alertdomain.SeverityHigh, f.Severity)
}

func TestBaselineWindowTruncates(t *testing.T) {
	cfg := config.DefaultDetectionConfig()

	// Old catastrophic days beyond the 7-observation window must not
	// contaminate the baseline.
	findings := Evaluate(cfg, revenueSeries(1, 1, 1, 100, 100, 100, 100, 100, 100, 100, 100))
	assert.Nil(t, findingOfType(findings, alertdomain.TypeRevenueDrop))
}
