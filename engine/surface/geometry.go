package surface

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Vertex is a single mesh vertex.
type Vertex struct {
	Position mgl32.Vec3
	Normal   mgl32.Vec3
	UV       mgl32.Vec2
}

// Mesh is an indexed triangle list. Every three consecutive indices form one triangle
// wound counter-clockwise when viewed from above.
type Mesh struct {
	Vertices []Vertex
	Indices  []uint32
}

// Clone returns a deep copy of the mesh.
func (m *Mesh) Clone() *Mesh {
	if m == nil {
		return nil
	}
	return &Mesh{
		Vertices: append([]Vertex(nil), m.Vertices...),
		Indices:  append([]uint32(nil), m.Indices...),
	}
}

// TriangleCount returns the number of triangles in the mesh.
func (m *Mesh) TriangleCount() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

// Renderable reports whether the mesh holds at least one well-formed triangle.
func (m *Mesh) Renderable() bool {
	if m == nil || len(m.Indices) < 3 || len(m.Indices)%3 != 0 {
		return false
	}
	n := uint32(len(m.Vertices))
	for _, idx := range m.Indices {
		if idx >= n {
			return false
		}
	}
	return true
}

// Bounds returns the axis-aligned bounding box of the mesh vertices.
//
// Returns:
//   - mgl32.Vec3: the minimum corner
//   - mgl32.Vec3: the maximum corner
func (m *Mesh) Bounds() (mgl32.Vec3, mgl32.Vec3) {
	if m == nil || len(m.Vertices) == 0 {
		return mgl32.Vec3{}, mgl32.Vec3{}
	}
	lo := m.Vertices[0].Position
	hi := lo
	for _, v := range m.Vertices[1:] {
		for i := 0; i < 3; i++ {
			lo[i] = min(lo[i], v.Position[i])
			hi[i] = max(hi[i], v.Position[i])
		}
	}
	return lo, hi
}

// Triangle returns the three vertices of triangle t.
func (m *Mesh) Triangle(t int) (Vertex, Vertex, Vertex) {
	return m.Vertices[m.Indices[t*3]], m.Vertices[m.Indices[t*3+1]], m.Vertices[m.Indices[t*3+2]]
}

// RecalculateNormals rebuilds vertex normals as the area-weighted average of adjacent face normals.
func (m *Mesh) RecalculateNormals() {
	normals := make([]mgl32.Vec3, len(m.Vertices))
	for t := 0; t < m.TriangleCount(); t++ {
		ia, ib, ic := m.Indices[t*3], m.Indices[t*3+1], m.Indices[t*3+2]
		a, b, c := m.Vertices[ia].Position, m.Vertices[ib].Position, m.Vertices[ic].Position
		// Cross product length is twice the triangle area, which weights the average.
		n := b.Sub(a).Cross(c.Sub(a))
		normals[ia] = normals[ia].Add(n)
		normals[ib] = normals[ib].Add(n)
		normals[ic] = normals[ic].Add(n)
	}
	for i := range m.Vertices {
		if normals[i].LenSqr() > 0 {
			m.Vertices[i].Normal = normals[i].Normalize()
		} else {
			m.Vertices[i].Normal = mgl32.Vec3{0, 1, 0}
		}
	}
}

// edgeKey identifies an undirected edge between two vertex indices.
type edgeKey struct {
	a, b uint32
}

func newEdgeKey(a, b uint32) edgeKey {
	if a > b {
		a, b = b, a
	}
	return edgeKey{a: a, b: b}
}

func midpoint(a, b Vertex) Vertex {
	return Vertex{
		Position: a.Position.Add(b.Position).Mul(0.5),
		Normal:   a.Normal.Add(b.Normal).Mul(0.5),
		UV:       a.UV.Add(b.UV).Mul(0.5),
	}
}
