package anomaly

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluate_StableSeriesScoresLow(t *testing.T) {
	values := []float64{50000, 50200, 49800, 50100, 49900, 50050, 50000}
	stats := Evaluate(values, 12)

	assert.InDelta(t, 50000, stats.Mean, 100)
	assert.Less(t, math.Abs(stats.ZScore), 2.0)
	assert.Less(t, math.Abs(stats.CUSUM), 5.0)
}

func TestEvaluate_SpikeScoresHigh(t *testing.T) {
	// Six stable points, then a point well past three sigmas.
	values := []float64{50000, 50200, 49800, 50100, 49900, 50050, 58000}
	stats := Evaluate(values, 12)

	assert.Greater(t, stats.ZScore, 3.0)
}

func TestEvaluate_NegativeSpike(t *testing.T) {
	values := []float64{50000, 50200, 49800, 50100, 49900, 50050, 42000}
	stats := Evaluate(values, 12)

	assert.Less(t, stats.ZScore, -3.0)
}

func TestEvaluate_SustainedDriftRaisesCUSUM(t *testing.T) {
	// Each point creeps upward; no single step spikes, but the drift
	// accumulates.
	values := []float64{50000, 50500, 51000, 51500, 52000, 52500, 53000, 53500, 54000}
	stats := Evaluate(values, 4)

	assert.Greater(t, math.Abs(stats.CUSUM), math.Abs(stats.ZScore),
		"drift registers in CUSUM more than in the single-point Z-score")
}

func TestEvaluate_LongStationarySeriesStaysQuiet(t *testing.T) {
	// Forty points of bounded noise around a steady level. The one-sided
	// recursions reset between small deviations, so nothing accumulates
	// no matter how long the series runs.
	values := make([]float64, 40)
	for i := range values {
		if i%2 == 0 {
			values[i] = 50010
		} else {
			values[i] = 49990
		}
	}
	stats := Evaluate(values, 12)

	assert.Less(t, math.Abs(stats.ZScore), 2.0)
	assert.Less(t, math.Abs(stats.CUSUM), 2.0)
}

func TestEvaluate_OldOutlierOutsideWindowDoesNotLinger(t *testing.T) {
	// A single ancient outlier followed by a calm stretch. It falls
	// outside both the trailing window and the CUSUM segment, so the
	// latest point scores near zero on both statistics.
	values := []float64{50000, 90000, 50010, 49990, 50010, 49990, 50010, 49990, 50000}
	stats := Evaluate(values, 6)

	assert.Less(t, math.Abs(stats.ZScore), 1.0)
	assert.Less(t, math.Abs(stats.CUSUM), 1.0)
}

func TestEvaluate_FlatSeriesWithSpike(t *testing.T) {
	values := []float64{100, 100, 100, 100, 100, 100, 250}
	stats := Evaluate(values, 12)

	assert.Equal(t, flatSeriesZ, stats.ZScore)
	assert.Equal(t, 0.0, stats.StdDev)
}

func TestEvaluate_FlatSeriesNoChange(t *testing.T) {
	values := []float64{100, 100, 100, 100, 100, 100, 100}
	stats := Evaluate(values, 12)

	assert.Equal(t, 0.0, stats.ZScore)
	assert.Equal(t, 0.0, stats.CUSUM)
}

func TestEvaluate_WindowLimitsHistory(t *testing.T) {
	// Old outliers fall outside the trailing window.
	values := []float64{90000, 10000, 50000, 50100, 49900, 50050, 50000, 49950, 50020}
	stats := Evaluate(values, 5)

	assert.InDelta(t, 50000, stats.Mean, 200)
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 0.001)
	assert.InDelta(t, 2.138, std, 0.001)

	mean, std = meanStd(nil)
	assert.Equal(t, 0.0, mean)
	assert.Equal(t, 0.0, std)

	mean, std = meanStd([]float64{7})
	assert.Equal(t, 7.0, mean)
	assert.Equal(t, 0.0, std)
}
