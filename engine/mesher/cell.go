package mesher

import "github.com/Carmen-Shannon/oxy-coverage/common"

// Cell is a node of the adaptive quadtree built over the ground plane.
// A cell is either a leaf or has exactly four children that tile it exactly.
// Cells only live for the duration of a meshing pass.
type Cell struct {
	// Bounds is the footprint of the cell on the XZ plane.
	Bounds common.Rect2
	// Depth is the number of subdivisions between this cell and the root.
	Depth int
	// Children is nil for a leaf, otherwise it holds the four quadrants in common.Rect2.Quadrants order.
	Children []*Cell
}

// NewCell creates a root leaf cell covering bounds.
func NewCell(bounds common.Rect2) *Cell {
	return &Cell{Bounds: bounds}
}

// IsLeaf reports whether the cell has no children.
func (c *Cell) IsLeaf() bool {
	return len(c.Children) == 0
}

func (c *Cell) split() {
	quads := c.Bounds.Quadrants()
	c.Children = make([]*Cell, len(quads))
	for i, q := range quads {
		c.Children[i] = &Cell{Bounds: q, Depth: c.Depth + 1}
	}
}

// LeafNodes returns every leaf under c in depth-first order. A leaf cell returns itself.
//
// Returns:
//   - []*Cell: the leaves
func (c *Cell) LeafNodes() []*Cell {
	var leaves []*Cell
	stack := []*Cell{c}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n.IsLeaf() {
			leaves = append(leaves, n)
			continue
		}
		for i := len(n.Children) - 1; i >= 0; i-- {
			stack = append(stack, n.Children[i])
		}
	}
	return leaves
}
