package surface

import (
	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/mesher"
)

// Kind classifies where a candidate's geometry comes from.
type Kind int

const (
	// KindMesh is an explicit triangle mesh placed in the level.
	KindMesh Kind = iota
	// KindHeightmap is a heightmap terrain that is meshed adaptively.
	KindHeightmap
)

// String returns the lowercase name of the kind, used as a log tag and metric label.
func (k Kind) String() string {
	switch k {
	case KindMesh:
		return "mesh"
	case KindHeightmap:
		return "heightmap"
	default:
		return "unknown"
	}
}

// Candidate is a piece of level geometry that may become a ground surface.
// The set of implementations is closed: MeshCandidate and HeightmapCandidate.
type Candidate interface {
	// Name identifies the candidate in logs.
	Name() string

	// Kind reports whether the candidate is terrain-derived or mesh-derived.
	Kind() Kind

	// RenderLayer returns the render layer mask of the source object.
	RenderLayer() uint32

	// HasCollision reports whether the source object carries collision that should mirror the processed mesh.
	HasCollision() bool

	// geometry produces the candidate's raw triangle mesh. A nil mesh means the candidate has nothing renderable.
	geometry(env geometryEnv) *Mesh
}

// geometryEnv carries what candidates need to produce geometry.
type geometryEnv struct {
	mesher mesher.Mesher
	params mesher.Params
	post   PostProcess
}

// MeshCandidate is an explicit mesh object in the level.
type MeshCandidate struct {
	// ID is the name of the source object.
	ID string
	// Mesh is the source geometry. It is never mutated by the builder.
	Mesh *Mesh
	// Layer is the render layer mask of the source object.
	Layer uint32
	// BrokenUVs marks assets whose authored UVs are unusable for mask lookups; they get a planar projection.
	BrokenUVs bool
	// Collider marks objects whose collision should be replaced by the processed mesh.
	Collider bool
}

func (c *MeshCandidate) Name() string        { return c.ID }
func (c *MeshCandidate) Kind() Kind          { return KindMesh }
func (c *MeshCandidate) RenderLayer() uint32 { return c.Layer }
func (c *MeshCandidate) HasCollision() bool  { return c.Collider }

func (c *MeshCandidate) geometry(env geometryEnv) *Mesh {
	if !c.Mesh.Renderable() {
		return nil
	}
	m := c.Mesh.Clone()
	if c.BrokenUVs {
		ReplaceUVs(m)
	}
	return m
}

// HeightmapCandidate is a heightmap terrain in the level.
type HeightmapCandidate struct {
	// ID is the name of the source terrain.
	ID string
	// Heights is the terrain height data.
	Heights *Heightmap
	// Layer is the render layer mask of the terrain.
	Layer uint32
	// Collider marks terrains whose collision should be replaced by the processed mesh.
	Collider bool
}

func (c *HeightmapCandidate) Name() string        { return c.ID }
func (c *HeightmapCandidate) Kind() Kind          { return KindHeightmap }
func (c *HeightmapCandidate) RenderLayer() uint32 { return c.Layer }
func (c *HeightmapCandidate) HasCollision() bool  { return c.Collider }

func (c *HeightmapCandidate) geometry(env geometryEnv) *Mesh {
	if !c.Heights.Valid() {
		return nil
	}
	return c.Heights.Triangulate(env.mesher, env.params, env.post.HoleMode)
}

var (
	_ Candidate = &MeshCandidate{}
	_ Candidate = &HeightmapCandidate{}
)

// terrainParams returns mesher parameters for a heightmap, using the playable area as region of interest.
func terrainParams(playable common.Rect2, cfg BuildConfig) mesher.Params {
	return mesher.Params{
		RegionOfInterest: playable,
		BaseCellSize:     cfg.BaseCellSize,
		MaxCellSize:      cfg.MaxCellSize,
		FalloffSpeed:     cfg.FalloffSpeed,
		MaxDistance:      cfg.MaxDistance,
	}
}
