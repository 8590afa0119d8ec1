package graph

import "math"

// SqrtScale maps a value domain [0, Max] onto a radius range with a square
// root curve, so node area rather than radius tracks value.
type SqrtScale struct {
	Max       float64
	RadiusMin float64
	RadiusMax float64
}

// NewSqrtScale creates a scale over [0, max].
func NewSqrtScale(max, radiusMin, radiusMax float64) SqrtScale {
	return SqrtScale{Max: max, RadiusMin: radiusMin, RadiusMax: radiusMax}
}

// Radius returns the clamped radius for v. Values outside the domain clamp
// to the range ends; a zero or invalid domain maps everything to RadiusMin.
func (s SqrtScale) Radius(v float64) float64 {
	if s.Max <= 0 || math.IsNaN(v) || v <= 0 {
		return s.RadiusMin
	}
	if v >= s.Max {
		return s.RadiusMax
	}
	t := math.Sqrt(v) / math.Sqrt(s.Max)
	return s.RadiusMin + t*(s.RadiusMax-s.RadiusMin)
}
