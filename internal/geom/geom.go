// Package geom provides the logical/physical coordinate model.
//
// Logical coordinates are scale-independent; physical coordinates are pixels
// on an output. The fractional-scale protocol has N/120 precision, so logical
// to physical conversions must round once, at the end, to avoid subpixel
// drift.
package geom

import "math"

// Point is a position in some coordinate space
type Point struct {
	X, Y int
}

// Size is a width/height pair
type Size struct {
	W, H int
}

// Rect is an axis-aligned rectangle. Containment is half-open:
// [X, X+W) x [Y, Y+H).
type Rect struct {
	X, Y, W, H int
}

func (p Point) Add(o Point) Point {
	return Point{p.X + o.X, p.Y + o.Y}
}

func (p Point) Sub(o Point) Point {
	return Point{p.X - o.X, p.Y - o.Y}
}

func (s Size) Empty() bool {
	return s.W <= 0 || s.H <= 0
}

// NewRect builds a Rect from origin and size
func NewRect(loc Point, size Size) Rect {
	return Rect{loc.X, loc.Y, size.W, size.H}
}

func (r Rect) Loc() Point {
	return Point{r.X, r.Y}
}

func (r Rect) Size() Size {
	return Size{r.W, r.H}
}

func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Contains reports whether the point is inside the rectangle using the
// half-open convention: a point exactly on the right or bottom edge is
// outside.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X < r.X+r.W && p.Y >= r.Y && p.Y < r.Y+r.H
}

// Overlaps reports whether two rectangles share any area
func (r Rect) Overlaps(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// Intersect returns the overlapping region, or an empty Rect
func (r Rect) Intersect(o Rect) Rect {
	x1 := max(r.X, o.X)
	y1 := max(r.Y, o.Y)
	x2 := min(r.X+r.W, o.X+o.W)
	y2 := min(r.Y+r.H, o.Y+o.H)
	if x2 <= x1 || y2 <= y1 {
		return Rect{}
	}
	return Rect{x1, y1, x2 - x1, y2 - y1}
}

// Union returns the smallest rectangle covering both. An empty rectangle
// does not contribute.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	x1 := min(r.X, o.X)
	y1 := min(r.Y, o.Y)
	x2 := max(r.X+r.W, o.X+o.W)
	y2 := max(r.Y+r.H, o.Y+o.H)
	return Rect{x1, y1, x2 - x1, y2 - y1}
}

// Translate moves the rectangle by the given offset
func (r Rect) Translate(d Point) Rect {
	return Rect{r.X + d.X, r.Y + d.Y, r.W, r.H}
}

// ToPhysicalPreciseRound converts a logical coordinate to physical pixels,
// rounding to the nearest integer.
func ToPhysicalPreciseRound(scale float64, logical int) int {
	return int(math.Round(float64(logical) * scale))
}

// PointToPhysical converts a logical point to physical pixels
func PointToPhysical(scale float64, p Point) Point {
	return Point{
		X: ToPhysicalPreciseRound(scale, p.X),
		Y: ToPhysicalPreciseRound(scale, p.Y),
	}
}

// RectToPhysical converts a logical rectangle to physical pixels
func RectToPhysical(scale float64, r Rect) Rect {
	return Rect{
		X: ToPhysicalPreciseRound(scale, r.X),
		Y: ToPhysicalPreciseRound(scale, r.Y),
		W: ToPhysicalPreciseRound(scale, r.W),
		H: ToPhysicalPreciseRound(scale, r.H),
	}
}

// RoundLogicalInPhysical rounds a logical value so it aligns to a physical
// pixel boundary at the given scale, staying in logical space.
func RoundLogicalInPhysical(scale, logical float64) float64 {
	return math.Round(logical*scale) / scale
}

// Transform is an output rotation/flip, matching the wl_output transform
// codes.
type Transform int

const (
	TransformNormal Transform = iota
	Transform90
	Transform180
	Transform270
	TransformFlipped
	TransformFlipped90
	TransformFlipped180
	TransformFlipped270
)

// TransformSize returns the size after applying the transform: 90/270
// degree rotations swap width and height.
func (t Transform) TransformSize(s Size) Size {
	switch t {
	case Transform90, Transform270, TransformFlipped90, TransformFlipped270:
		return Size{W: s.H, H: s.W}
	default:
		return s
	}
}
