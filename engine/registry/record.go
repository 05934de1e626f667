package registry

import "github.com/go-gl/mathgl/mgl32"

// NoSurface is the SurfaceIndex of a record that is not resting on a registered surface.
const NoSurface int32 = -1

// EntityID identifies a tracked dynamic entity.
type EntityID uint64

// Record is one entity's sample slot. The field order matches the 32-byte record the compute kernel reads and writes.
type Record struct {
	// W is the world position of the entity's contact point.
	W mgl32.Vec3
	// SurfaceIndex is the index of the surface under the entity, or NoSurface.
	SurfaceIndex int32
	// UV is the surface-mask coordinate of the contact point.
	UV mgl32.Vec2
	// CoverageDepth is the accumulated coverage under the entity, >= 0.
	CoverageDepth float32
}

// SentinelRecord returns the record of an entity touching no registered surface.
func SentinelRecord() Record {
	return Record{SurfaceIndex: NoSurface}
}

// OnSurface reports whether the record refers to a registered surface.
func (r Record) OnSurface() bool {
	return r.SurfaceIndex >= 0
}
