package mesher

// MesherBuilderOption is a function that configures a Mesher instance during construction.
type MesherBuilderOption func(*mesher)

// WithGridStep is an option builder that sets the world-space length of one unit of cell size.
// A permitted cell size of 4 with a grid step of 0.5 allows leaves up to 2 world units wide.
//
// Parameters:
//   - step: the grid step, ignored when <= 0
//
// Returns:
//   - MesherBuilderOption: a function that applies the grid step option to a mesher
func WithGridStep(step float32) MesherBuilderOption {
	return func(m *mesher) {
		if step > 0 {
			m.gridStep = step
		}
	}
}

// WithMinCellSize is an option builder that sets the smallest world-space footprint a cell may be split to.
// Defaults to the grid step.
//
// Parameters:
//   - size: the minimum leaf footprint, ignored when <= 0
//
// Returns:
//   - MesherBuilderOption: a function that applies the minimum cell size option to a mesher
func WithMinCellSize(size float32) MesherBuilderOption {
	return func(m *mesher) {
		if size > 0 {
			m.minCellSize = size
		}
	}
}

// WithMaxDepth is an option builder that caps the recursion depth of a subdivision pass.
//
// Parameters:
//   - depth: the maximum depth, ignored when <= 0
//
// Returns:
//   - MesherBuilderOption: a function that applies the depth cap option to a mesher
func WithMaxDepth(depth int) MesherBuilderOption {
	return func(m *mesher) {
		if depth > 0 {
			m.maxDepth = depth
		}
	}
}
