package nodegraph

import "math"

// Point is a position in graph coordinates.
type Point struct {
	X, Y float64
}

// Add returns the point translated by dx, dy.
func (p Point) Add(dx, dy float64) Point { return Point{p.X + dx, p.Y + dy} }

// Sub returns the component-wise difference p - q.
func (p Point) Sub(q Point) Point { return Point{p.X - q.X, p.Y - q.Y} }

// Manhattan returns |x| + |y|, the taxicab magnitude of the point read as a
// displacement vector.
func (p Point) Manhattan() float64 { return math.Abs(p.X) + math.Abs(p.Y) }

// Rect is an axis-aligned rectangle in graph coordinates. Top is the smaller
// Y value (screen convention, Y grows downward).
type Rect struct {
	Left, Top     float64
	Width, Height float64
}

// Right returns the right edge coordinate.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the bottom edge coordinate.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// Center returns the rectangle's center point.
func (r Rect) Center() Point { return Point{r.Left + r.Width/2, r.Top + r.Height/2} }

// Area returns width times height.
func (r Rect) Area() float64 { return r.Width * r.Height }

// Contains reports whether p lies inside the rectangle (edges inclusive).
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Left && p.X <= r.Right() && p.Y >= r.Top && p.Y <= r.Bottom()
}

// Intersects reports whether the two rectangles overlap.
func (r Rect) Intersects(o Rect) bool {
	return r.Left <= o.Right() && o.Left <= r.Right() &&
		r.Top <= o.Bottom() && o.Top <= r.Bottom()
}

// ContainsRect reports whether o lies entirely inside r.
func (r Rect) ContainsRect(o Rect) bool {
	return o.Left >= r.Left && o.Right() <= r.Right() &&
		o.Top >= r.Top && o.Bottom() <= r.Bottom()
}

// Union returns the smallest rectangle covering both r and o.
func (r Rect) Union(o Rect) Rect {
	left := math.Min(r.Left, o.Left)
	top := math.Min(r.Top, o.Top)
	right := math.Max(r.Right(), o.Right())
	bottom := math.Max(r.Bottom(), o.Bottom())
	return Rect{Left: left, Top: top, Width: right - left, Height: bottom - top}
}

// Inflate grows the rectangle by the given amount on each side.
// Negative values shrink it.
func (r Rect) Inflate(left, top, right, bottom float64) Rect {
	return Rect{
		Left:   r.Left - left,
		Top:    r.Top - top,
		Width:  r.Width + left + right,
		Height: r.Height + top + bottom,
	}
}

// Translate returns the rectangle shifted by dx, dy.
func (r Rect) Translate(dx, dy float64) Rect {
	return Rect{Left: r.Left + dx, Top: r.Top + dy, Width: r.Width, Height: r.Height}
}

// Normalized returns the rectangle with non-negative width and height,
// flipping edges as needed. Marquee drags produce denormalized rects when
// the pointer moves up or left of its origin.
func (r Rect) Normalized() Rect {
	if r.Width < 0 {
		r.Left += r.Width
		r.Width = -r.Width
	}
	if r.Height < 0 {
		r.Top += r.Height
		r.Height = -r.Height
	}
	return r
}

// Transform maps graph coordinates to screen pixels.
type Transform struct {
	OffsetX, OffsetY float64
	Scale            float64
}

// ToGraph converts a screen-space point into graph coordinates.
func (t Transform) ToGraph(p Point) Point {
	s := t.Scale
	if s == 0 {
		s = 1
	}
	return Point{(p.X - t.OffsetX) / s, (p.Y - t.OffsetY) / s}
}

// ToScreen converts a graph-space point into screen pixels.
func (t Transform) ToScreen(p Point) Point {
	s := t.Scale
	if s == 0 {
		s = 1
	}
	return Point{p.X*s + t.OffsetX, p.Y*s + t.OffsetY}
}
