package dispatcher

import (
	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/go-gl/mathgl/mgl32"
)

// KernelParams are the per-level values the sample kernel reads. They are refreshed every tick.
type KernelParams struct {
	// CoverageIntensity scales sampled mask values into coverage depth.
	CoverageIntensity float32
	// Footprint maps world positions into the clip volume of the top-down footprint camera.
	// Samples outside the volume get no coverage.
	Footprint mgl32.Mat4
}

// FootprintMatrix returns the orthographic view-projection of a camera looking straight down on area.
//
// Parameters:
//   - area: the world XZ area the footprint covers
//   - ceiling: the world height of the camera
//   - depth: how far below the camera the volume reaches
//
// Returns:
//   - mgl32.Mat4: the view-projection matrix
func FootprintMatrix(area common.Rect2, ceiling, depth float32) mgl32.Mat4 {
	c := area.Center
	eye := mgl32.Vec3{c.X(), ceiling, c.Y()}
	target := mgl32.Vec3{c.X(), ceiling - 1, c.Y()}
	view := mgl32.LookAtV(eye, target, mgl32.Vec3{0, 0, -1})

	h := area.HalfExtents
	proj := mgl32.Ortho(-h.X(), h.X(), -h.Y(), h.Y(), 0, depth)
	return proj.Mul4(view)
}

// footprintWeight is 1 when w falls inside the footprint volume and 0 otherwise.
func footprintWeight(footprint mgl32.Mat4, w mgl32.Vec3) float32 {
	if common.NewFrustum(footprint).Contains(w) {
		return 1
	}
	return 0
}

// sampleRecord runs the sample kernel on one record. It matches cs_main in sample.wgsl.
func sampleRecord(in registry.Record, masks *bake.MaskArray, params KernelParams) registry.Record {
	out := in
	out.CoverageDepth = 0
	if masks == nil || !in.OnSurface() || int(in.SurfaceIndex) >= masks.Layers() {
		out.SurfaceIndex = registry.NoSurface
		return out
	}

	u := common.Clamp01(in.UV.X())
	v := common.Clamp01(in.UV.Y())
	value := masks.Sample(int(in.SurfaceIndex), u, v)
	out.CoverageDepth = max(value*params.CoverageIntensity*footprintWeight(params.Footprint, in.W), 0)
	return out
}
