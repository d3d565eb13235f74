// Package l1geom owns Layer 1 (Geometry) of the overlay data model.
//
// All coordinates are normalised to the frame: origin at the top-left
// corner, X grows to the right, Y grows downwards, and a full frame spans
// [0,1] on both axes. Boxes are stored as origin + width/height.
//
// Dependency rule: L1 depends on nothing else in internal/overlay.
package l1geom

import "math"

// Point is a 2D position or vector in normalised frame units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p + q.
func (p Point) Add(q Point) Point { return Point{X: p.X + q.X, Y: p.Y + q.Y} }

// Sub returns p - q.
func (p Point) Sub(q Point) Point { return Point{X: p.X - q.X, Y: p.Y - q.Y} }

// Scale returns p * k.
func (p Point) Scale(k float64) Point { return Point{X: p.X * k, Y: p.Y * k} }

// Norm returns the Euclidean length of p.
func (p Point) Norm() float64 { return math.Hypot(p.X, p.Y) }

// Size is a width/height pair in normalised frame units.
type Size struct {
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Rect is an axis-aligned box: top-left origin plus width and height.
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// RectFromCenter builds a Rect centred on c with size s.
func RectFromCenter(c Point, s Size) Rect {
	return Rect{X: c.X - s.W/2, Y: c.Y - s.H/2, W: s.W, H: s.H}
}

// Center returns the centre point of r.
func (r Rect) Center() Point {
	return Point{X: r.X + r.W/2, Y: r.Y + r.H/2}
}

// Size returns the width/height of r.
func (r Rect) Size() Size { return Size{W: r.W, H: r.H} }

// Area returns W*H.
func (r Rect) Area() float64 { return r.W * r.H }

// Translate moves r by d without changing its size.
func (r Rect) Translate(d Point) Rect {
	return Rect{X: r.X + d.X, Y: r.Y + d.Y, W: r.W, H: r.H}
}

// IsFinite reports whether every component of r is a finite number.
func (r Rect) IsFinite() bool {
	return isFinite(r.X) && isFinite(r.Y) && isFinite(r.W) && isFinite(r.H)
}

// IsValid reports whether r is finite and has strictly positive width and height.
func (r Rect) IsValid() bool {
	return r.IsFinite() && r.W > 0 && r.H > 0
}

// Intersect returns the overlapping region of a and b. The result has
// zero width or height when the boxes do not overlap.
func Intersect(a, b Rect) Rect {
	x1 := math.Max(a.X, b.X)
	y1 := math.Max(a.Y, b.Y)
	x2 := math.Min(a.X+a.W, b.X+b.W)
	y2 := math.Min(a.Y+a.H, b.Y+b.H)
	if x2 <= x1 || y2 <= y1 {
		return Rect{X: x1, Y: y1}
	}
	return Rect{X: x1, Y: y1, W: x2 - x1, H: y2 - y1}
}

// IoU returns the intersection-over-union of a and b in [0,1].
// Degenerate inputs (zero union) yield 0.
func IoU(a, b Rect) float64 {
	inter := Intersect(a, b).Area()
	union := a.Area() + b.Area() - inter
	if union <= 0 || !isFinite(union) {
		return 0
	}
	iou := inter / union
	if iou < 0 {
		return 0
	}
	if iou > 1 {
		return 1
	}
	return iou
}

// CenterDistance returns the Euclidean distance between the centres of a and b.
func CenterDistance(a, b Rect) float64 {
	return a.Center().Sub(b.Center()).Norm()
}

// Clamp01 limits v to [0,1].
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// IsFinite reports whether v is neither NaN nor ±Inf.
func IsFinite(v float64) bool { return isFinite(v) }
