package surface

import (
	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	defaultRefinePasses    = 6
	defaultSmoothingFactor = 0.5
)

// PostProcess configures the geometry processing applied to every candidate mesh.
type PostProcess struct {
	// TargetEdgeLength is the longest edge allowed after refinement. Refinement is disabled when <= 0.
	TargetEdgeLength float32
	// MaxRefinePasses caps the number of refinement passes.
	MaxRefinePasses int
	// SmoothingIterations is the number of Laplacian smoothing passes.
	SmoothingIterations int
	// SmoothingFactor is the fraction of the way each vertex moves towards its neighbour average per pass.
	SmoothingFactor float32
	// HoleMode selects hole carving or hole filling for terrain holes.
	HoleMode HoleMode
	// MirrorCollision replaces the source collision with a copy of the processed mesh.
	MirrorCollision bool
}

// Apply runs refinement then smoothing on m in place and rebuilds its normals.
//
// Parameters:
//   - m: the mesh to process
func (p PostProcess) Apply(m *Mesh) {
	if p.TargetEdgeLength > 0 {
		passes := p.MaxRefinePasses
		if passes <= 0 {
			passes = defaultRefinePasses
		}
		Refine(m, p.TargetEdgeLength, passes)
	}
	if p.SmoothingIterations > 0 {
		factor := p.SmoothingFactor
		if factor <= 0 {
			factor = defaultSmoothingFactor
		}
		Smooth(m, p.SmoothingIterations, factor)
	}
	m.RecalculateNormals()
}

// Refine splits triangles whose edges are longer than targetEdge until no edge exceeds it or the pass limit is hit.
// Long edges are split at their midpoints and shared between neighbouring triangles, so the result has no
// T-junctions introduced by refinement.
//
// Parameters:
//   - m: the mesh to refine in place
//   - targetEdge: the longest edge allowed, in world units
//   - maxPasses: the maximum number of refinement passes
//
// Returns:
//   - int: the number of passes that split at least one edge
func Refine(m *Mesh, targetEdge float32, maxPasses int) int {
	limit := targetEdge * targetEdge
	passes := 0
	for passes < maxPasses {
		mids := make(map[edgeKey]uint32)
		split := func(a, b uint32) (uint32, bool) {
			k := newEdgeKey(a, b)
			if idx, ok := mids[k]; ok {
				return idx, true
			}
			if m.Vertices[a].Position.Sub(m.Vertices[b].Position).LenSqr() <= limit {
				return 0, false
			}
			idx := uint32(len(m.Vertices))
			m.Vertices = append(m.Vertices, midpoint(m.Vertices[a], m.Vertices[b]))
			mids[k] = idx
			return idx, true
		}

		// First collect every long edge so both triangles sharing it see the same midpoint.
		for t := 0; t < m.TriangleCount(); t++ {
			a, b, c := m.Indices[t*3], m.Indices[t*3+1], m.Indices[t*3+2]
			split(a, b)
			split(b, c)
			split(c, a)
		}
		if len(mids) == 0 {
			break
		}

		out := make([]uint32, 0, len(m.Indices)*2)
		for t := 0; t < m.TriangleCount(); t++ {
			a, b, c := m.Indices[t*3], m.Indices[t*3+1], m.Indices[t*3+2]
			ab, sAB := mids[newEdgeKey(a, b)]
			bc, sBC := mids[newEdgeKey(b, c)]
			ca, sCA := mids[newEdgeKey(c, a)]
			out = appendSplit(out, a, b, c, ab, bc, ca, sAB, sBC, sCA)
		}
		m.Indices = out
		passes++
	}
	return passes
}

// appendSplit appends the triangles replacing (a, b, c) given which of its edges were split.
// Winding is preserved.
func appendSplit(out []uint32, a, b, c, ab, bc, ca uint32, sAB, sBC, sCA bool) []uint32 {
	switch {
	case sAB && sBC && sCA:
		return append(out,
			a, ab, ca,
			ab, b, bc,
			ca, bc, c,
			ab, bc, ca,
		)
	case sAB && sBC:
		return append(out, ab, b, bc, a, ab, bc, a, bc, c)
	case sBC && sCA:
		return append(out, bc, c, ca, b, bc, ca, b, ca, a)
	case sCA && sAB:
		return append(out, ca, a, ab, c, ca, ab, c, ab, b)
	case sAB:
		return append(out, a, ab, c, ab, b, c)
	case sBC:
		return append(out, b, bc, a, bc, c, a)
	case sCA:
		return append(out, c, ca, b, ca, a, b)
	default:
		return append(out, a, b, c)
	}
}

// Smooth applies Laplacian smoothing to vertex heights. Each pass moves every vertex height a fraction of the way
// towards the average height of its edge neighbours. X and Z are left untouched so the surface footprint is kept.
//
// Parameters:
//   - m: the mesh to smooth in place
//   - iterations: the number of passes
//   - factor: the blend towards the neighbour average, clamped to [0, 1]
func Smooth(m *Mesh, iterations int, factor float32) {
	factor = common.Clamp01(factor)
	neighbours := make([][]uint32, len(m.Vertices))
	seen := make(map[edgeKey]struct{}, len(m.Indices))
	link := func(a, b uint32) {
		k := newEdgeKey(a, b)
		if _, ok := seen[k]; ok {
			return
		}
		seen[k] = struct{}{}
		neighbours[a] = append(neighbours[a], b)
		neighbours[b] = append(neighbours[b], a)
	}
	for t := 0; t < m.TriangleCount(); t++ {
		a, b, c := m.Indices[t*3], m.Indices[t*3+1], m.Indices[t*3+2]
		link(a, b)
		link(b, c)
		link(c, a)
	}

	heights := make([]float32, len(m.Vertices))
	for range iterations {
		for i, v := range m.Vertices {
			heights[i] = v.Position.Y()
		}
		for i := range m.Vertices {
			n := neighbours[i]
			if len(n) == 0 {
				continue
			}
			var sum float32
			for _, j := range n {
				sum += heights[j]
			}
			avg := sum / float32(len(n))
			m.Vertices[i].Position[1] = common.Lerp(heights[i], avg, factor)
		}
	}
}

// ReplaceUVs overwrites vertex UVs with a top-down planar projection normalized to the mesh's XZ bounds.
//
// Parameters:
//   - m: the mesh to update in place
func ReplaceUVs(m *Mesh) {
	lo, hi := m.Bounds()
	rect := common.NewRect2FromMinMax(mgl32.Vec2{lo.X(), lo.Z()}, mgl32.Vec2{hi.X(), hi.Z()})
	for i, v := range m.Vertices {
		m.Vertices[i].UV = rect.Normalize(mgl32.Vec2{v.Position.X(), v.Position.Z()})
	}
}
