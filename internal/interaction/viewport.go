package interaction

import "token-graph-lab/internal/domain"

// Point is a screen-space coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Transform maps world coordinates to screen: screen = world*K + (X, Y).
type Transform struct {
	X float64 `json:"translateX"`
	Y float64 `json:"translateY"`
	K float64 `json:"scale"`
}

// Identity is the initial transform.
var Identity = Transform{K: 1}

// Apply converts a world position to screen space.
func (t Transform) Apply(p domain.Position) Point {
	return Point{X: p.X*t.K + t.X, Y: p.Y*t.K + t.Y}
}

// Invert converts a screen point to world space.
func (t Transform) Invert(p Point) domain.Position {
	return domain.Position{X: (p.X - t.X) / t.K, Y: (p.Y - t.Y) / t.K}
}

// Bounds is an axis-aligned world-space rectangle.
type Bounds struct {
	X1, Y1, X2, Y2 float64
}

// Bounds returns the world-space rectangle visible in a w x h viewport.
func (t Transform) Bounds(w, h float64) Bounds {
	return Bounds{
		X1: -t.X / t.K,
		Y1: -t.Y / t.K,
		X2: (w - t.X) / t.K,
		Y2: (h - t.Y) / t.K,
	}
}

// Contains reports whether p lies inside b, edges included.
func (b Bounds) Contains(p domain.Position) bool {
	return p.X >= b.X1 && p.X <= b.X2 && p.Y >= b.Y1 && p.Y <= b.Y2
}

// Expand grows b by margin on every side, for circles that straddle an edge.
func (b Bounds) Expand(margin float64) Bounds {
	return Bounds{X1: b.X1 - margin, Y1: b.Y1 - margin, X2: b.X2 + margin, Y2: b.Y2 + margin}
}
