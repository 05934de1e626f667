package surface

import (
	"cmp"
	"math"
	"slices"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/mesher"
	"github.com/aquilax/go-perlin"
	"github.com/go-gl/mathgl/mgl32"
)

// HoleMode selects how terrain holes are treated when a heightmap is meshed.
type HoleMode int

const (
	// HoleCarve removes triangles that fall inside terrain holes.
	HoleCarve HoleMode = iota
	// HoleFill ignores holes and meshes straight over them.
	HoleFill
)

// Heightmap is a square grid of height samples covering an area of the ground plane.
type Heightmap struct {
	// Bounds is the world XZ area covered by the grid.
	Bounds common.Rect2
	// Resolution is the number of samples per side.
	Resolution int
	// Heights holds Resolution*Resolution world-space heights, row-major with rows along Z.
	Heights []float32
	// Holes optionally marks (Resolution-1)^2 grid quads as holes, row-major with rows along Z.
	Holes []bool
}

// Valid reports whether the heightmap has enough samples to produce a mesh.
func (h *Heightmap) Valid() bool {
	return h != nil && h.Resolution >= 2 && len(h.Heights) >= h.Resolution*h.Resolution &&
		h.Bounds.HalfExtents.X() > 0 && h.Bounds.HalfExtents.Y() > 0
}

func (h *Heightmap) texel(x, z float32) (float32, float32) {
	uv := h.Bounds.Normalize(mgl32.Vec2{x, z})
	n := float32(h.Resolution - 1)
	return uv.X() * n, uv.Y() * n
}

// HeightAt returns the bilinearly interpolated terrain height at world position (x, z).
// Positions outside the bounds are clamped to the border.
func (h *Heightmap) HeightAt(x, z float32) float32 {
	tx, tz := h.texel(x, z)
	return common.Bilinear(h.Heights, h.Resolution, h.Resolution, tx, tz)
}

// HoleAt reports whether world position (x, z) lies inside a hole quad.
func (h *Heightmap) HoleAt(x, z float32) bool {
	quads := h.Resolution - 1
	if len(h.Holes) < quads*quads {
		return false
	}
	tx, tz := h.texel(x, z)
	qx := min(max(int(tx), 0), quads-1)
	qz := min(max(int(tz), 0), quads-1)
	return h.Holes[qz*quads+qx]
}

// Triangulate converts the heightmap into a triangle mesh whose density follows the adaptive mesher's leaves.
// Each leaf becomes a quad of two triangles with heights sampled at the leaf corners. A leaf whose edges carry
// corners of smaller neighbours is fanned from its center through those corners instead, so the mesh has no
// T-junction cracks. Corners shared between leaves are shared vertices.
//
// Parameters:
//   - m: the mesher used to subdivide the heightmap bounds
//   - params: the mesher parameters, with the playable area as region of interest
//   - holes: how terrain holes are treated
//
// Returns:
//   - *Mesh: the terrain mesh, or nil when every leaf was carved away
func (h *Heightmap) Triangulate(m mesher.Mesher, params mesher.Params, holes HoleMode) *Mesh {
	var leaves []*mesher.Cell
	for _, leaf := range m.Build(h.Bounds, params) {
		if holes == HoleCarve && h.HoleAt(leaf.Bounds.Center.X(), leaf.Bounds.Center.Y()) {
			continue
		}
		leaves = append(leaves, leaf)
	}
	if len(leaves) == 0 {
		return nil
	}

	mesh := &Mesh{}
	lookup := make(map[[2]int64]uint32, len(leaves)*2)
	vertex := func(x, z float32) uint32 {
		key := [2]int64{quantize(x), quantize(z)}
		if idx, ok := lookup[key]; ok {
			return idx
		}
		idx := uint32(len(mesh.Vertices))
		mesh.Vertices = append(mesh.Vertices, Vertex{
			Position: mgl32.Vec3{x, h.HeightAt(x, z), z},
			Normal:   mgl32.Vec3{0, 1, 0},
			UV:       h.Bounds.Normalize(mgl32.Vec2{x, z}),
		})
		lookup[key] = idx
		return idx
	}

	// Corner columns and rows: every corner indexed by its quantized x and by its quantized z.
	columns := make(map[int64][]uint32)
	rows := make(map[int64][]uint32)
	for _, leaf := range leaves {
		lo, hi := leaf.Bounds.Min(), leaf.Bounds.Max()
		for _, c := range [4]mgl32.Vec2{{lo.X(), lo.Y()}, {hi.X(), lo.Y()}, {lo.X(), hi.Y()}, {hi.X(), hi.Y()}} {
			key := [2]int64{quantize(c.X()), quantize(c.Y())}
			if _, ok := lookup[key]; ok {
				continue
			}
			idx := vertex(c.X(), c.Y())
			columns[key[0]] = append(columns[key[0]], idx)
			rows[key[1]] = append(rows[key[1]], idx)
		}
	}

	// between returns the corners strictly inside the open segment (from, to) of a line, ordered from -> to.
	between := func(line []uint32, along func(Vertex) float32, from, to float32) []uint32 {
		lo, hi := min(from, to), max(from, to)
		var out []uint32
		for _, idx := range line {
			if v := along(mesh.Vertices[idx]); quantize(v) > quantize(lo) && quantize(v) < quantize(hi) {
				out = append(out, idx)
			}
		}
		slices.SortFunc(out, func(a, b uint32) int {
			d := along(mesh.Vertices[a]) - along(mesh.Vertices[b])
			if from > to {
				d = -d
			}
			return cmp.Compare(d, 0)
		})
		return out
	}
	alongX := func(v Vertex) float32 { return v.Position.X() }
	alongZ := func(v Vertex) float32 { return v.Position.Z() }

	for _, leaf := range leaves {
		lo, hi := leaf.Bounds.Min(), leaf.Bounds.Max()
		c00 := vertex(lo.X(), lo.Y())
		c10 := vertex(hi.X(), lo.Y())
		c01 := vertex(lo.X(), hi.Y())
		c11 := vertex(hi.X(), hi.Y())

		// Boundary walk: left edge up Z, top edge along +X, right edge down Z, bottom edge along -X.
		ring := []uint32{c00}
		ring = append(ring, between(columns[quantize(lo.X())], alongZ, lo.Y(), hi.Y())...)
		ring = append(ring, c01)
		ring = append(ring, between(rows[quantize(hi.Y())], alongX, lo.X(), hi.X())...)
		ring = append(ring, c11)
		ring = append(ring, between(columns[quantize(hi.X())], alongZ, hi.Y(), lo.Y())...)
		ring = append(ring, c10)
		ring = append(ring, between(rows[quantize(lo.Y())], alongX, hi.X(), lo.X())...)

		if len(ring) == 4 {
			mesh.Indices = append(mesh.Indices,
				c00, c01, c11,
				c00, c11, c10,
			)
			continue
		}
		center := vertex(leaf.Bounds.Center.X(), leaf.Bounds.Center.Y())
		for i := range ring {
			mesh.Indices = append(mesh.Indices, center, ring[i], ring[(i+1)%len(ring)])
		}
	}

	mesh.RecalculateNormals()
	return mesh
}

// NoiseHeightmap generates a Perlin-noise heightmap, used for procedural terrain candidates.
//
// Parameters:
//   - bounds: the world XZ area covered
//   - resolution: the number of samples per side, at least 2
//   - amplitude: the peak height in world units
//   - frequency: noise cycles per world unit
//   - seed: the noise seed
//
// Returns:
//   - *Heightmap: the generated heightmap
func NoiseHeightmap(bounds common.Rect2, resolution int, amplitude, frequency float32, seed int64) *Heightmap {
	resolution = max(resolution, 2)
	noise := perlin.NewPerlin(2, 2, 3, seed)

	h := &Heightmap{
		Bounds:     bounds,
		Resolution: resolution,
		Heights:    make([]float32, resolution*resolution),
	}
	lo := bounds.Min()
	size := bounds.Size()
	step := float32(resolution - 1)
	for z := 0; z < resolution; z++ {
		for x := 0; x < resolution; x++ {
			wx := lo.X() + size.X()*float32(x)/step
			wz := lo.Y() + size.Y()*float32(z)/step
			n := noise.Noise2D(float64(wx*frequency), float64(wz*frequency))
			h.Heights[z*resolution+x] = amplitude * float32(math.Max(-1, math.Min(1, n)))
		}
	}
	return h
}

// quantize snaps a coordinate to a fixed grid so leaf corners computed from different cells weld together.
func quantize(v float32) int64 {
	return int64(math.Round(float64(v) * 1e4))
}
