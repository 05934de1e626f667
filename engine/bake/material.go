package bake

import (
	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/go-gl/mathgl/mgl32"
)

// DepthSource is the overhead depth buffer captured by an external top-down camera.
// It reports the height of the highest occluder above a ground position.
type DepthSource interface {
	// OccluderHeight returns the world height of the highest occluder at (x, z).
	//
	// Returns:
	//   - float32: the occluder height
	//   - bool: false when the position is outside the captured area
	OccluderHeight(x, z float32) (float32, bool)
}

// HeightField is a DepthSource backed by a row-major grid of occluder heights.
type HeightField struct {
	// Bounds is the world XZ area the grid covers.
	Bounds common.Rect2
	// Width and Height are the grid dimensions.
	Width, Height int
	// Heights holds Width*Height occluder heights, rows along Z.
	Heights []float32
}

// NewHeightField creates a height field with every texel set to floor.
func NewHeightField(bounds common.Rect2, width, height int, floor float32) *HeightField {
	h := &HeightField{
		Bounds:  bounds,
		Width:   width,
		Height:  height,
		Heights: make([]float32, width*height),
	}
	for i := range h.Heights {
		h.Heights[i] = floor
	}
	return h
}

// Set writes the occluder height of texel (x, y).
func (h *HeightField) Set(x, y int, height float32) {
	if x < 0 || y < 0 || x >= h.Width || y >= h.Height {
		return
	}
	h.Heights[y*h.Width+x] = height
}

func (h *HeightField) OccluderHeight(x, z float32) (float32, bool) {
	if h == nil || h.Width <= 0 || h.Height <= 0 || !h.Bounds.Contains(mgl32.Vec2{x, z}) {
		return 0, false
	}
	uv := h.Bounds.Normalize(mgl32.Vec2{x, z})
	tx := min(int(uv.X()*float32(h.Width)), h.Width-1)
	ty := min(int(uv.Y()*float32(h.Height)), h.Height-1)
	return h.Heights[ty*h.Width+tx], true
}

var _ DepthSource = &HeightField{}

// Material is the bake material: it decides how exposed a surface point is to falling coverage.
type Material struct {
	// Depth is the overhead depth buffer. A nil source leaves every point fully exposed.
	Depth DepthSource
	// Bias lifts the surface before the occlusion test to avoid self-occlusion.
	Bias float32
	// Softness is the height gap over which exposure fades from 1 to 0 under an occluder.
	Softness float32
}

// Exposure returns how exposed world point p is, in [0, 1].
func (m Material) Exposure(p mgl32.Vec3) float32 {
	if m.Depth == nil {
		return 1
	}
	occluder, ok := m.Depth.OccluderHeight(p.X(), p.Z())
	if !ok {
		return 1
	}
	gap := occluder - (p.Y() + m.Bias)
	if gap <= 0 {
		return 1
	}
	if m.Softness <= 0 {
		return 0
	}
	return common.Clamp01(1 - gap/m.Softness)
}
