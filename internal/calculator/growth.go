package calculator

import "math"

// Growth bounds: a market cannot shrink more than 95% in one step, nor more
// than triple. Calibration values preserved for payload compatibility.
const (
	GrowthFloor = -0.95
	GrowthCeil  = 2.0
)

const seasonalAmplitude = 0.015

// SafeGrowth computes (current-prev)/prev, treating a missing or non-positive
// prior period as zero growth rather than an error.
func SafeGrowth(current, prev float64) float64 {
	if prev <= 0 {
		return 0
	}
	return (current - prev) / prev
}

// Seasonal returns the fixed sinusoidal seasonal component for a month.
func Seasonal(month int) float64 {
	return seasonalAmplitude * math.Sin(2*math.Pi*float64(month)/12.0)
}

// ClampGrowth bounds a predicted growth rate to [GrowthFloor, GrowthCeil].
func ClampGrowth(v float64) float64 {
	return math.Max(GrowthFloor, math.Min(GrowthCeil, v))
}

// BlendStep advances one recursive forecast step: previous momentum weighted
// against trend plus seasonal oscillation plus the active shock.
func BlendStep(prev, trend, seasonal, shock float64) float64 {
	return ClampGrowth(0.55*prev + 0.45*(trend+seasonal+shock))
}

// MonthInRange reports whether month falls in the inclusive [start, end]
// range, with wrap-around semantics when start > end (e.g. Nov..Feb).
func MonthInRange(month, start, end int) bool {
	if start <= end {
		return start <= month && month <= end
	}
	return month >= start || month <= end
}
