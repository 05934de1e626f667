// package common contains plain types and helpers shared across the coverage engine. They are not interface-wrapped structs,
// just plain values that express commonly used data-types.
package common

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Rect2 is an axis-aligned rectangle on the ground (XZ) plane, expressed as a center and half-extents.
// X maps to world X and Y maps to world Z.
type Rect2 struct {
	// Center is the midpoint of the rectangle.
	Center mgl32.Vec2
	// HalfExtents is half the width and half the depth of the rectangle. Both components are expected to be >= 0.
	HalfExtents mgl32.Vec2
}

// NewRect2 creates a Rect2 from its center and full size.
//
// Parameters:
//   - center: the midpoint of the rectangle
//   - size: the full width and depth of the rectangle
//
// Returns:
//   - Rect2: the rectangle
func NewRect2(center, size mgl32.Vec2) Rect2 {
	return Rect2{Center: center, HalfExtents: size.Mul(0.5)}
}

// NewRect2FromMinMax creates a Rect2 spanning the two corners.
//
// Parameters:
//   - lo: the minimum corner
//   - hi: the maximum corner
//
// Returns:
//   - Rect2: the rectangle
func NewRect2FromMinMax(lo, hi mgl32.Vec2) Rect2 {
	return Rect2{
		Center:      lo.Add(hi).Mul(0.5),
		HalfExtents: hi.Sub(lo).Mul(0.5),
	}
}

// Min returns the minimum corner.
func (r Rect2) Min() mgl32.Vec2 {
	return r.Center.Sub(r.HalfExtents)
}

// Max returns the maximum corner.
func (r Rect2) Max() mgl32.Vec2 {
	return r.Center.Add(r.HalfExtents)
}

// Size returns the full width and depth.
func (r Rect2) Size() mgl32.Vec2 {
	return r.HalfExtents.Mul(2)
}

// Area returns width * depth.
func (r Rect2) Area() float32 {
	s := r.Size()
	return s.X() * s.Y()
}

// MaxHalfExtent returns the larger of the two half-extents.
func (r Rect2) MaxHalfExtent() float32 {
	return max(r.HalfExtents.X(), r.HalfExtents.Y())
}

// Contains reports whether p lies inside or on the border of the rectangle.
func (r Rect2) Contains(p mgl32.Vec2) bool {
	lo, hi := r.Min(), r.Max()
	return p.X() >= lo.X() && p.X() <= hi.X() && p.Y() >= lo.Y() && p.Y() <= hi.Y()
}

// Quadrants splits the rectangle into four equal children that tile it exactly.
// The order is (-x,-y), (+x,-y), (-x,+y), (+x,+y).
//
// Returns:
//   - [4]Rect2: the four quadrants
func (r Rect2) Quadrants() [4]Rect2 {
	h := r.HalfExtents.Mul(0.5)
	cx, cy := r.Center.X(), r.Center.Y()
	return [4]Rect2{
		{Center: mgl32.Vec2{cx - h.X(), cy - h.Y()}, HalfExtents: h},
		{Center: mgl32.Vec2{cx + h.X(), cy - h.Y()}, HalfExtents: h},
		{Center: mgl32.Vec2{cx - h.X(), cy + h.Y()}, HalfExtents: h},
		{Center: mgl32.Vec2{cx + h.X(), cy + h.Y()}, HalfExtents: h},
	}
}

// ChebyshevDistance returns the Chebyshev (L-infinity) distance from p to the rectangle.
// Points inside the rectangle are at distance 0.
//
// Parameters:
//   - p: the point to measure from
//
// Returns:
//   - float32: max(dx, dy) where dx and dy are the per-axis gaps outside the rectangle
func (r Rect2) ChebyshevDistance(p mgl32.Vec2) float32 {
	d := p.Sub(r.Center)
	dx := max(abs32(d.X())-r.HalfExtents.X(), 0)
	dy := max(abs32(d.Y())-r.HalfExtents.Y(), 0)
	return max(dx, dy)
}

// Normalize maps p into the rectangle's [0, 1] UV space. Points outside map outside [0, 1].
func (r Rect2) Normalize(p mgl32.Vec2) mgl32.Vec2 {
	lo := r.Min()
	s := r.Size()
	var u, v float32
	if s.X() > 0 {
		u = (p.X() - lo.X()) / s.X()
	}
	if s.Y() > 0 {
		v = (p.Y() - lo.Y()) / s.Y()
	}
	return mgl32.Vec2{u, v}
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
