package insights

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFitLineRecoversPerfectTrend(t *testing.T) {
	slope, intercept := fitLine([]float64{10, 12, 14, 16})
	assert.InDelta(t, 2, slope, 1e-9)
	assert.InDelta(t, 10, intercept, 1e-9)
}

func TestFitLineFlatSeries(t *testing.T) {
	slope, intercept := fitLine([]float64{5, 5, 5})
	assert.InDelta(t, 0, slope, 1e-9)
	assert.InDelta(t, 5, intercept, 1e-9)
}

func TestFitLineDegenerateSamples(t *testing.T) {
	slope, intercept := fitLine(nil)
	assert.Zero(t, slope)
	assert.Zero(t, intercept)

	slope, intercept = fitLine([]float64{42})
	assert.Zero(t, slope)
	assert.InDelta(t, 42, intercept, 1e-9)
}

func TestExtrapolateContinuesTrend(t *testing.T) {
	out := extrapolate([]float64{10, 12, 14, 16}, 3)
	assert.InDelta(t, 18, out[0], 1e-9)
	assert.InDelta(t, 20, out[1], 1e-9)
	assert.InDelta(t, 22, out[2], 1e-9)
}

func TestExtrapolateFloorsAtZero(t *testing.T) {
	out := extrapolate([]float64{30, 20, 10}, 3)
	assert.InDelta(t, 0, out[2], 1e-9)
	for _, v := range out {
		assert.GreaterOrEqual(t, v, 0.0)
	}
}

func TestZScoresFlatSampleHasNoOutliers(t *testing.T) {
	for _, z := range zScores([]float64{7, 7, 7, 7}) {
		assert.Zero(t, z)
	}
}

func TestZScoresFlagsSpike(t *testing.T) {
	scores := zScores([]float64{10, 10, 10, 10, 10, 10, 10, 10, 10, 60})
	last := scores[len(scores)-1]
	assert.Greater(t, last, 2.5)
	for _, z := range scores[:len(scores)-1] {
		assert.Less(t, z, 0.0)
	}
}
