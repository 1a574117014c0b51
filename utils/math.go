// Package utils contains small helpers shared across the drivetrain packages.
package utils

import (
	"math"
)

// DegToRad converts degrees to radians.
func DegToRad(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// RadToDeg converts radians to degrees.
func RadToDeg(radians float64) float64 {
	return radians * 180 / math.Pi
}

// Clamp limits v to the closed interval [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// InputModulus wraps input into the range [lo, hi). Used for continuous
// quantities like headings where lo and hi are the same physical point.
func InputModulus(input, lo, hi float64) float64 {
	span := hi - lo
	if span <= 0 {
		return input
	}
	n := math.Floor((input - lo) / span)
	return input - n*span
}

// AngleModulus wraps an angle in radians into [-pi, pi).
func AngleModulus(radians float64) float64 {
	return InputModulus(radians, -math.Pi, math.Pi)
}

// IsFinite reports whether v is neither NaN nor infinite.
func IsFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
