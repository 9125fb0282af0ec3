package anomaly

import (
	"fmt"
	"math"
	"time"

	alertdomain "github.com/corridorlabs/roamsight/internal/alert/domain"
	"github.com/corridorlabs/roamsight/internal/config"
	etldomain "github.com/corridorlabs/roamsight/internal/etl/domain"
)

// Finding is one firing check before it is handed to the alert lifecycle.
type Finding struct {
	Type     string
	Severity alertdomain.Severity
	Metric   string
	Day      time.Time
	Current  float64
	Baseline float64
	// Ratio is the drop or spike ratio, or the z-score for outliers.
	Ratio     float64
	Threshold float64
}

// DynamicThreshold widens a base threshold with the baseline's coefficient
// of variation and clamps the result to [base, max]. Volatile partners get
// more slack before a check fires.
func DynamicThreshold(tc config.ThresholdConfig, mean, stddev float64) float64 {
	threshold := tc.Base
	if mean > 0 {
		threshold += (stddev / mean) * tc.VolatilityMultiplier
	}
	return math.Min(math.Max(threshold, tc.Base), tc.Max)
}

// Evaluate runs all checks on one partner's observation series, ordered by
// day ascending. The last observation is the current day; the trailing
// window before it is the baseline.
func Evaluate(cfg config.DetectionConfig, series []etldomain.DailyObservation) []Finding {
	if len(series) < 2 {
		return nil
	}

	current := series[len(series)-1]
	if current.RowCount < int64(cfg.MinDailyRows) {
		return nil
	}

	history := series[:len(series)-1]
	if len(history) > cfg.BaselineWindow {
		history = history[len(history)-cfg.BaselineWindow:]
	}

	var findings []Finding
	if f := evaluateRevenueDrop(cfg, history, current); f != nil {
		findings = append(findings, *f)
	}
	if f := evaluateTrafficSpike(cfg, history, current); f != nil {
		findings = append(findings, *f)
	}
	if f := evaluateOutlier(cfg, history, current); f != nil {
		findings = append(findings, *f)
	}
	return findings
}

func evaluateRevenueDrop(cfg config.DetectionConfig, history []etldomain.DailyObservation, current etldomain.DailyObservation) *Finding {
	baseline := make([]float64, 0, len(history))
	for _, obs := range history {
		if obs.RevenueTotal > 0 {
			baseline = append(baseline, obs.RevenueTotal)
		}
	}
	if len(baseline) < cfg.MinHistoryPoints {
		return nil
	}

	mean, stddev := meanStddev(baseline)
	if mean < cfg.MinBaselineRevenue {
		return nil
	}

	dropRatio := (mean - current.RevenueTotal) / mean
	threshold := DynamicThreshold(cfg.RevenueDrop, mean, stddev)
	if dropRatio < threshold {
		return nil
	}

	severity := alertdomain.SeverityMedium
	if dropRatio > math.Min(threshold+0.25, 0.98) {
		severity = alertdomain.SeverityHigh
	}
	return &Finding{
		Type:      alertdomain.TypeRevenueDrop,
		Severity:  severity,
		Metric:    "revenue",
		Day:       current.Day,
		Current:   current.RevenueTotal,
		Baseline:  mean,
		Ratio:     dropRatio,
		Threshold: threshold,
	}
}

func evaluateTrafficSpike(cfg config.DetectionConfig, history []etldomain.DailyObservation, current etldomain.DailyObservation) *Finding {
	baseline := make([]float64, 0, len(history))
	for _, obs := range history {
		if obs.TrafficTotal > 0 {
			baseline = append(baseline, obs.TrafficTotal)
		}
	}
	if len(baseline) < cfg.MinHistoryPoints {
		return nil
	}

	mean, stddev := meanStddev(baseline)
	if mean <= 0 {
		return nil
	}

	spikeRatio := (current.TrafficTotal - mean) / mean
	threshold := DynamicThreshold(cfg.TrafficSpike, mean, stddev)
	if spikeRatio < threshold {
		return nil
	}

	severity := alertdomain.SeverityMedium
	if spikeRatio > threshold+0.5 {
		severity = alertdomain.SeverityHigh
	}
	return &Finding{
		Type:      alertdomain.TypeTrafficSpike,
		Severity:  severity,
		Metric:    "traffic",
		Day:       current.Day,
		Current:   current.TrafficTotal,
		Baseline:  mean,
		Ratio:     spikeRatio,
		Threshold: threshold,
	}
}

// evaluateOutlier z-scores whichever representative metric has signal,
// preferring traffic, then revenue, then row count.
func evaluateOutlier(cfg config.DetectionConfig, history []etldomain.DailyObservation, current etldomain.DailyObservation) *Finding {
	metric, pick := chooseMetric(history)
	if metric == "" {
		return nil
	}

	baseline := make([]float64, 0, len(history))
	for _, obs := range history {
		baseline = append(baseline, pick(obs))
	}
	if len(baseline) < cfg.MinHistoryPoints {
		return nil
	}

	mean, stddev := meanStddev(baseline)
	if stddev == 0 {
		return nil
	}

	zScore := math.Abs(pick(current)-mean) / stddev
	if zScore < cfg.ZScoreThreshold {
		return nil
	}

	severity := alertdomain.SeverityMedium
	if zScore >= cfg.ZScoreHighThreshold {
		severity = alertdomain.SeverityHigh
	}
	return &Finding{
		Type:      alertdomain.TypeMetricOutlier,
		Severity:  severity,
		Metric:    metric,
		Day:       current.Day,
		Current:   pick(current),
		Baseline:  mean,
		Ratio:     zScore,
		Threshold: cfg.ZScoreThreshold,
	}
}

func chooseMetric(history []etldomain.DailyObservation) (string, func(etldomain.DailyObservation) float64) {
	anyPositive := func(pick func(etldomain.DailyObservation) float64) bool {
		for _, obs := range history {
			if pick(obs) > 0 {
				return true
			}
		}
		return false
	}

	traffic := func(o etldomain.DailyObservation) float64 { return o.TrafficTotal }
	revenue := func(o etldomain.DailyObservation) float64 { return o.RevenueTotal }
	rows := func(o etldomain.DailyObservation) float64 { return float64(o.RowCount) }

	switch {
	case anyPositive(traffic):
		return "traffic", traffic
	case anyPositive(revenue):
		return "revenue", revenue
	case anyPositive(rows):
		return "row_count", rows
	}
	return "", nil
}

func meanStddev(sample []float64) (float64, float64) {
	if len(sample) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range sample {
		sum += v
	}
	mean := sum / float64(len(sample))

	var sq float64
	for _, v := range sample {
		sq += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(sq / float64(len(sample)))
}

func (f Finding) describe(partner string) (title, message string) {
	day := f.Day.UTC().Format(time.DateOnly)
	switch f.Type {
	case alertdomain.TypeRevenueDrop:
		title = fmt.Sprintf("Revenue drop for %s", partner)
		message = fmt.Sprintf(
			"Revenue for %s on %s fell to %.2f, a %.0f%% drop against the %.2f baseline (threshold %.0f%%)",
			partner, day, f.Current, f.Ratio*100, f.Baseline, f.Threshold*100,
		)
	case alertdomain.TypeTrafficSpike:
		title = fmt.Sprintf("Traffic spike for %s", partner)
		message = fmt.Sprintf(
			"Traffic for %s on %s rose to %.2f, %.0f%% above the %.2f baseline (threshold %.0f%%)",
			partner, day, f.Current, f.Ratio*100, f.Baseline, f.Threshold*100,
		)
	case alertdomain.TypeMetricOutlier:
		title = fmt.Sprintf("Unusual %s for %s", f.Metric, partner)
		message = fmt.Sprintf(
			"The %s metric for %s on %s was %.2f against a %.2f baseline (z-score %.1f)",
			f.Metric, partner, day, f.Current, f.Baseline, f.Ratio,
		)
	}
	return title, message
}
