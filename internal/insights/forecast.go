package insights

import "math"

// fitLine fits y = intercept + slope*x by ordinary least squares over the
// sample indexed 0..n-1. A sample of one yields a flat line.
func fitLine(values []float64) (slope, intercept float64) {
	n := float64(len(values))
	if n == 0 {
		return 0, 0
	}
	if n == 1 {
		return 0, values[0]
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range values {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}

	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

// extrapolate projects the fitted line horizon steps past the sample,
// flooring at zero since every engine metric is non-negative.
func extrapolate(values []float64, horizon int) []float64 {
	slope, intercept := fitLine(values)
	out := make([]float64, 0, horizon)
	for i := 0; i < horizon; i++ {
		x := float64(len(values) + i)
		out = append(out, math.Max(0, intercept+slope*x))
	}
	return out
}

// zScores computes each point's deviation from the sample mean in stddev
// units. A flat sample has no outliers.
func zScores(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	stddev := math.Sqrt(sq / float64(len(values)))

	out := make([]float64, len(values))
	if stddev == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - mean) / stddev
	}
	return out
}
