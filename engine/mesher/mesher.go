package mesher

import (
	"github.com/Carmen-Shannon/oxy-coverage/common"
)

const (
	defaultGridStep = 1
	defaultMaxDepth = 16
)

// Params controls how finely a region is subdivided around a region of interest.
type Params struct {
	// RegionOfInterest is the area that is meshed at BaseCellSize, usually the playable area.
	RegionOfInterest common.Rect2
	// BaseCellSize is the permitted cell size, in grid steps, inside and touching the region of interest.
	BaseCellSize float32
	// MaxCellSize is the permitted cell size, in grid steps, once the falloff saturates.
	MaxCellSize float32
	// FalloffSpeed scales how quickly the permitted size grows with distance.
	FalloffSpeed float32
	// MaxDistance is the distance over which the falloff is normalized.
	MaxDistance float32
}

// Stats describes the shape of the last subdivision pass.
type Stats struct {
	Leaves   int
	MaxDepth int
	// Capped counts leaves that stopped splitting because of the depth cap or the minimum cell size
	// while still exceeding their permitted size.
	Capped int
}

// mesher is the implementation of the Mesher interface.
type mesher struct {
	gridStep    float32
	minCellSize float32
	maxDepth    int
	stats       Stats
}

// Mesher builds distance-adaptive quadtrees: fine cells inside a region of interest and
// progressively coarser cells further away from it.
type Mesher interface {
	// Subdivide recursively splits cell until every leaf footprint fits the cell size permitted at its distance
	// from the region of interest. The cell tree is mutated in place.
	//
	// Parameters:
	//   - cell: the cell to subdivide, usually a fresh root from NewCell
	//   - params: the region of interest and falloff parameters
	Subdivide(cell *Cell, params Params)

	// Build creates a root cell over bounds, subdivides it and returns its leaves.
	//
	// Parameters:
	//   - bounds: the area to cover
	//   - params: the region of interest and falloff parameters
	//
	// Returns:
	//   - []*Cell: the leaves, which tile bounds exactly
	Build(bounds common.Rect2, params Params) []*Cell

	// PermittedCellSize returns the cell size, in grid steps, allowed for cell.
	//
	// Parameters:
	//   - cell: the cell to evaluate
	//   - params: the region of interest and falloff parameters
	//
	// Returns:
	//   - float32: the permitted size, never below 1
	PermittedCellSize(cell *Cell, params Params) float32

	// GridStep returns the world-space length of one unit of cell size.
	GridStep() float32

	// Stats returns the statistics of the last Subdivide or Build call.
	Stats() Stats
}

var _ Mesher = &mesher{}

// NewMesher creates a new Mesher with the provided options.
//
// Parameters:
//   - options: variadic list of MesherBuilderOption functions to configure the mesher
//
// Returns:
//   - Mesher: the configured mesher
func NewMesher(options ...MesherBuilderOption) Mesher {
	m := &mesher{
		gridStep: defaultGridStep,
		maxDepth: defaultMaxDepth,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.minCellSize <= 0 {
		m.minCellSize = m.gridStep
	}
	return m
}

func (m *mesher) GridStep() float32 {
	return m.gridStep
}

func (m *mesher) Stats() Stats {
	return m.stats
}

func (m *mesher) PermittedCellSize(cell *Cell, params Params) float32 {
	half := cell.Bounds.MaxHalfExtent()
	d := params.RegionOfInterest.ChebyshevDistance(cell.Bounds.Center)

	size := params.BaseCellSize
	if d > half {
		var t float32
		if params.MaxDistance > 0 {
			t = common.Clamp01(params.FalloffSpeed * (d - half) / params.MaxDistance)
		} else {
			t = 1
		}
		size = common.Lerp(params.BaseCellSize, params.MaxCellSize, t)
	}
	return max(size, 1)
}

func (m *mesher) Subdivide(cell *Cell, params Params) {
	m.stats = Stats{}
	m.subdivide(cell, params)
}

func (m *mesher) Build(bounds common.Rect2, params Params) []*Cell {
	root := NewCell(bounds)
	m.Subdivide(root, params)
	return root.LeafNodes()
}

func (m *mesher) subdivide(cell *Cell, params Params) {
	if !cell.IsLeaf() {
		for _, child := range cell.Children {
			m.subdivide(child, params)
		}
		return
	}

	limit := m.PermittedCellSize(cell, params) * m.gridStep
	size := cell.Bounds.Size()
	if size.X() <= limit && size.Y() <= limit {
		m.leaf(cell, false)
		return
	}

	half := size.Mul(0.5)
	if cell.Depth >= m.maxDepth || max(half.X(), half.Y()) < m.minCellSize {
		m.leaf(cell, true)
		return
	}

	cell.split()
	for _, child := range cell.Children {
		m.subdivide(child, params)
	}
}

func (m *mesher) leaf(cell *Cell, capped bool) {
	m.stats.Leaves++
	m.stats.MaxDepth = max(m.stats.MaxDepth, cell.Depth)
	if capped {
		m.stats.Capped++
	}
}
