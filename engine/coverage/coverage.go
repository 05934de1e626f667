// package coverage answers gameplay queries about the coverage under tracked entities and feeds contact
// results into the sample registry.
package coverage

import (
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/go-gl/mathgl/mgl32"
)

// ValidityPredicate reports whether a contact reported for an entity should be sampled,
// for example whether the entity is still standing rather than airborne.
type ValidityPredicate func(e registry.EntityID, hitPoint mgl32.Vec3) bool

// SurfaceResolver maps processed-surface handles to dense surface indices. *surface.Set implements it.
type SurfaceResolver interface {
	SurfaceIndex(h surface.Handle) (int32, bool)
}

// facade is the implementation of the Facade interface.
type facade struct {
	registry registry.Registry
	surfaces SurfaceResolver
	valid    ValidityPredicate
}

// Facade is the gameplay-facing view of the sample pipeline. Queries read the latest completed readback;
// updates write the next dispatch's input. It must be used from the simulation loop.
type Facade interface {
	// Track starts sampling an entity.
	//
	// Parameters:
	//   - e: the entity
	//
	// Returns:
	//   - bool: false when every slot is in use
	Track(e registry.EntityID) bool

	// Untrack stops sampling an entity and frees its slot.
	Untrack(e registry.EntityID) bool

	// IsOnRegisteredSurface reports whether the latest sample put the entity on a registered surface.
	// Untracked entities report false.
	IsOnRegisteredSurface(e registry.EntityID) bool

	// CoverageDepthAt returns the latest coverage depth under the entity, 0 when untracked.
	CoverageDepthAt(e registry.EntityID) float32

	// Sample returns the entity's latest output record.
	//
	// Returns:
	//   - registry.Record: the record, the sentinel when untracked
	//   - bool: whether the entity is tracked
	Sample(e registry.EntityID) (registry.Record, bool)

	// UpdateEntitySample records a contact for the next dispatch. The input record is written only when the
	// validity predicate passes and hit resolves to a registered surface; otherwise it is reset to the sentinel.
	// Untracked entities are ignored.
	//
	// Parameters:
	//   - e: the entity
	//   - hitPoint: the world contact point
	//   - uv: the surface-mask coordinate of the contact
	//   - hit: the handle of the processed surface that was hit, surface.NilHandle for none
	//
	// Returns:
	//   - bool: whether a surface sample was written
	UpdateEntitySample(e registry.EntityID, hitPoint mgl32.Vec3, uv mgl32.Vec2, hit surface.Handle) bool
}

var _ Facade = &facade{}

// NewFacade creates a Facade over reg resolving hits against surfaces.
//
// Parameters:
//   - reg: the registry owning the sample slots
//   - surfaces: the surface index resolver of the current level
//   - options: variadic list of FacadeBuilderOption functions to configure the facade
//
// Returns:
//   - Facade: the facade
func NewFacade(reg registry.Registry, surfaces SurfaceResolver, options ...FacadeBuilderOption) Facade {
	f := &facade{
		registry: reg,
		surfaces: surfaces,
		valid:    func(registry.EntityID, mgl32.Vec3) bool { return true },
	}
	for _, opt := range options {
		opt(f)
	}
	return f
}

func (f *facade) Track(e registry.EntityID) bool {
	_, ok := f.registry.Acquire(e)
	return ok
}

func (f *facade) Untrack(e registry.EntityID) bool {
	return f.registry.Release(e)
}

func (f *facade) Sample(e registry.EntityID) (registry.Record, bool) {
	slot, ok := f.registry.Slot(e)
	if !ok {
		return registry.SentinelRecord(), false
	}
	return f.registry.Output()[slot], true
}

func (f *facade) IsOnRegisteredSurface(e registry.EntityID) bool {
	r, ok := f.Sample(e)
	return ok && r.OnSurface()
}

func (f *facade) CoverageDepthAt(e registry.EntityID) float32 {
	r, ok := f.Sample(e)
	if !ok {
		return 0
	}
	return max(r.CoverageDepth, 0)
}

func (f *facade) UpdateEntitySample(e registry.EntityID, hitPoint mgl32.Vec3, uv mgl32.Vec2, hit surface.Handle) bool {
	slot, ok := f.registry.Slot(e)
	if !ok {
		return false
	}

	index, known := int32(registry.NoSurface), false
	if f.surfaces != nil && !hit.IsNil() {
		index, known = f.surfaces.SurfaceIndex(hit)
	}
	if !known || !f.valid(e, hitPoint) {
		f.registry.ResetInput(slot)
		return false
	}

	f.registry.SetInput(slot, registry.Record{
		W:            hitPoint,
		SurfaceIndex: index,
		UV:           uv,
	})
	return true
}
