package forecast

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat"
)

// Holt double exponential smoothing with a damped trend. Used whenever the
// series is too short or too flat to justify training the sequence model.
const (
	holtAlpha   = 0.5
	holtBeta    = 0.3
	holtDamping = 0.8
)

// holtForecast extrapolates the series over the horizon with a damped linear
// trend. Predictions are floored at zero. Deterministic.
func holtForecast(series []float64, horizon int) []float64 {
	out := make([]float64, horizon)
	if len(series) == 0 {
		return out
	}
	if len(series) == 1 {
		for i := range out {
			out[i] = math.Max(0, series[0])
		}
		return out
	}

	level := series[0]
	trend := series[1] - series[0]
	for t := 1; t < len(series); t++ {
		prevLevel := level
		level = holtAlpha*series[t] + (1-holtAlpha)*(prevLevel+holtDamping*trend)
		trend = holtBeta*(level-prevLevel) + (1-holtBeta)*holtDamping*trend
	}

	damp := 0.0
	for h := 1; h <= horizon; h++ {
		damp += math.Pow(holtDamping, float64(h))
		out[h-1] = math.Max(0, level+damp*trend)
	}
	return out
}

// noisyAverageForecast projects the trailing-week average forward with small
// seeded noise, used when fewer than three days of history exist. The noise
// source is deterministic so identical input yields an identical forecast.
func noisyAverageForecast(series []float64, horizon int, rng *rand.Rand) []float64 {
	out := make([]float64, horizon)
	if len(series) == 0 {
		return out
	}
	tail := series
	if len(tail) > 7 {
		tail = tail[len(tail)-7:]
	}
	avg := stat.Mean(tail, nil)
	std := 0.0
	if len(tail) > 1 {
		std = stat.StdDev(tail, nil)
	}
	if std < avg*0.1 {
		std = avg * 0.1
	}
	for i := range out {
		out[i] = math.Max(0, avg+rng.NormFloat64()*std*0.3)
	}
	return out
}
