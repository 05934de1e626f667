package surface

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SurfaceIndexParam is the overlay material parameter that carries the surface index to the coverage shader.
const SurfaceIndexParam = "_SurfaceIndex"

// Handle identifies a processed surface's geometry. The zero Handle refers to no surface.
type Handle uuid.UUID

// NilHandle is the handle of no surface.
var NilHandle = Handle(uuid.Nil)

// NewHandle returns a new random handle.
func NewHandle() Handle {
	return Handle(uuid.New())
}

// IsNil reports whether h refers to no surface.
func (h Handle) IsNil() bool {
	return h == NilHandle
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// OverlayMaterial is the coverage material applied to a surface's overlay copy.
type OverlayMaterial struct {
	// Name is the material name.
	Name string
	// SurfaceIndex is the mask slice the coverage shader samples for this surface.
	SurfaceIndex int32
}

// Params returns the material's shader parameters.
func (m OverlayMaterial) Params() map[string]float32 {
	return map[string]float32{SurfaceIndexParam: float32(m.SurfaceIndex)}
}

// Overlay is the renderable duplicate of a surface that draws the coverage layer.
type Overlay struct {
	Mesh     *Mesh
	Material OverlayMaterial
	// Layer is the render layer mask the overlay draws on.
	Layer uint32
}

// Surface is a processed ground surface registered for coverage.
type Surface struct {
	// Handle identifies the processed geometry; contact queries report it.
	Handle Handle
	// Index is the dense surface index, equal to the surface's mask slice.
	Index int32
	// Name is the source candidate's name.
	Name string
	// Kind is the source candidate's kind.
	Kind Kind
	// Mesh is the processed render geometry.
	Mesh *Mesh
	// Collision is the mirrored collision geometry, nil when collision mirroring is off or the source had none.
	Collision *Mesh
	// Layer is the source render layer mask with the overlay layer removed.
	Layer uint32
	// Overlay is the coverage overlay.
	Overlay Overlay

	invalid atomic.Bool
}

// Valid reports whether the surface's geometry still exists.
func (s *Surface) Valid() bool {
	return s != nil && !s.invalid.Load() && s.Mesh.Renderable()
}

// Set is the ordered collection of surfaces produced by one build.
// Surfaces are ordered by Index and indices are dense from 0.
type Set struct {
	mu       sync.RWMutex
	surfaces []*Surface
	byHandle map[Handle]*Surface
}

// NewSet creates a set from surfaces, assigning dense indices in slice order.
//
// Parameters:
//   - surfaces: the surfaces in index order
//
// Returns:
//   - *Set: the set
func NewSet(surfaces []*Surface) *Set {
	s := &Set{
		surfaces: surfaces,
		byHandle: make(map[Handle]*Surface, len(surfaces)),
	}
	for i, surf := range surfaces {
		surf.Index = int32(i)
		surf.Overlay.Material.SurfaceIndex = int32(i)
		s.byHandle[surf.Handle] = surf
	}
	return s
}

// Len returns the number of surfaces, valid or not.
func (s *Set) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.surfaces)
}

// Surfaces returns the surfaces in index order.
func (s *Set) Surfaces() []*Surface {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Surface(nil), s.surfaces...)
}

// At returns the surface with the given index.
func (s *Set) At(index int) (*Surface, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.surfaces) {
		return nil, false
	}
	return s.surfaces[index], true
}

// Lookup returns the surface with the given handle.
func (s *Set) Lookup(h Handle) (*Surface, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	surf, ok := s.byHandle[h]
	return surf, ok
}

// SurfaceIndex resolves a handle to its surface index. Unknown and invalidated surfaces do not resolve.
//
// Parameters:
//   - h: the handle reported by contact detection
//
// Returns:
//   - int32: the surface index
//   - bool: whether the handle resolved
func (s *Set) SurfaceIndex(h Handle) (int32, bool) {
	surf, ok := s.Lookup(h)
	if !ok || !surf.Valid() {
		return -1, false
	}
	return surf.Index, true
}

// Invalidate marks the surface's geometry as destroyed. Its index stays reserved.
//
// Parameters:
//   - h: the handle of the destroyed surface
//
// Returns:
//   - bool: whether the handle was known
func (s *Set) Invalidate(h Handle) bool {
	surf, ok := s.Lookup(h)
	if !ok {
		return false
	}
	surf.invalid.Store(true)
	return true
}
