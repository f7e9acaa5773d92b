// Package anomaly runs the batch detection pass over validated metric
// series, computing Z-score and CUSUM statistics and persisting flags.
package anomaly

import "math"

// Stats holds the statistics computed for the most recent point of a
// metric series.
type Stats struct {
	Mean   float64
	StdDev float64
	ZScore float64
	CUSUM  float64
}

// flatSeriesZ stands in for an undefined Z-score when the trailing
// window has zero variance but the latest point departs from it. Large
// enough to exceed any sane threshold.
const flatSeriesZ = 10.0

// cusumSlack is the allowance k in the one-sided CUSUM recursions,
// in standard-deviation units. Deviations smaller than the slack decay
// the accumulator back toward zero, so random noise does not build up.
const cusumSlack = 0.5

// Evaluate computes statistics for a series ordered oldest first. The
// mean and standard deviation cover the trailing window preceding the
// latest point and ZScore measures the latest point against them. CUSUM
// runs the standard one-sided recursions C+ = max(0, C+ + z - k) and
// C- = max(0, C- - z - k) over the window plus the latest point, and
// reports the larger side with its sign, so a sustained drift registers
// even when no single point spikes while a stable series stays at zero.
func Evaluate(values []float64, window int) Stats {
	latest := values[len(values)-1]
	hist := values[:len(values)-1]
	if window > 0 && len(hist) > window {
		hist = hist[len(hist)-window:]
	}

	mean, std := meanStd(hist)

	var z float64
	switch {
	case std > 0:
		z = (latest - mean) / std
	case latest != mean:
		z = math.Copysign(flatSeriesZ, latest-mean)
	}

	var cusum float64
	if std > 0 {
		var cPlus, cMinus float64
		for _, x := range values[len(values)-1-len(hist):] {
			zi := (x - mean) / std
			cPlus = math.Max(0, cPlus+zi-cusumSlack)
			cMinus = math.Max(0, cMinus-zi-cusumSlack)
		}
		if cPlus >= cMinus {
			cusum = cPlus
		} else {
			cusum = -cMinus
		}
	}

	return Stats{Mean: mean, StdDev: std, ZScore: z, CUSUM: cusum}
}

// meanStd returns the mean and sample standard deviation.
func meanStd(xs []float64) (float64, float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return mean, math.Sqrt(ss / float64(len(xs)-1))
}
