package mesher

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func playableParams() Params {
	return Params{
		RegionOfInterest: common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{10, 10}),
		BaseCellSize:     1,
		MaxCellSize:      8,
		FalloffSpeed:     1,
		MaxDistance:      50,
	}
}

func TestMesherBuild(t *testing.T) {
	m := NewMesher()
	params := playableParams()
	root := common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{64, 64})

	leaves := m.Build(root, params)
	require.NotEmpty(t, leaves)
	require.Equal(t, len(leaves), m.Stats().Leaves)
	require.Zero(t, m.Stats().Capped)

	t.Run("leaves tile the root exactly", func(t *testing.T) {
		var area float32
		for _, l := range leaves {
			area += l.Bounds.Area()
			require.True(t, root.Contains(l.Bounds.Min()))
			require.True(t, root.Contains(l.Bounds.Max()))
		}
		require.InDelta(t, root.Area(), area, 1e-3)

		// Every sample point strictly inside the root lands in exactly one leaf.
		for x := float32(-31.75); x < 32; x += 1.5 {
			for z := float32(-31.75); z < 32; z += 1.5 {
				p := mgl32.Vec2{x, z}
				hits := 0
				for _, l := range leaves {
					lo, hi := l.Bounds.Min(), l.Bounds.Max()
					if p.X() > lo.X() && p.X() < hi.X() && p.Y() > lo.Y() && p.Y() < hi.Y() {
						hits++
					}
				}
				require.Equal(t, 1, hits, "point %v", p)
			}
		}
	})

	t.Run("leaves respect their permitted size", func(t *testing.T) {
		for _, l := range leaves {
			limit := m.PermittedCellSize(l, params) * m.GridStep()
			size := l.Bounds.Size()
			require.LessOrEqual(t, size.X(), limit)
			require.LessOrEqual(t, size.Y(), limit)
		}
	})

	t.Run("region of interest is meshed at base size", func(t *testing.T) {
		roi := params.RegionOfInterest
		inside := 0
		for _, l := range leaves {
			if roi.Contains(l.Bounds.Min()) && roi.Contains(l.Bounds.Max()) {
				inside++
				require.Equal(t, float32(1), l.Bounds.Size().X())
			}
		}
		require.Positive(t, inside)
	})

	t.Run("cells coarsen towards the edges", func(t *testing.T) {
		var largest float32
		for _, l := range leaves {
			largest = max(largest, l.Bounds.Size().X())
		}
		require.Greater(t, largest, float32(1))
		require.LessOrEqual(t, largest, float32(8))
	})
}

func TestMesherPermittedCellSize(t *testing.T) {
	m := NewMesher()
	params := playableParams()

	inside := NewCell(common.NewRect2(mgl32.Vec2{1, 1}, mgl32.Vec2{2, 2}))
	require.Equal(t, float32(1), m.PermittedCellSize(inside, params))

	far := NewCell(common.NewRect2(mgl32.Vec2{500, 0}, mgl32.Vec2{2, 2}))
	require.Equal(t, float32(8), m.PermittedCellSize(far, params))

	params.BaseCellSize = 0
	require.Equal(t, float32(1), m.PermittedCellSize(inside, params))
}

func TestMesherDepthCap(t *testing.T) {
	m := NewMesher(WithMaxDepth(2))
	root := NewCell(common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{64, 64}))

	m.Subdivide(root, playableParams())
	leaves := root.LeafNodes()
	require.Len(t, leaves, 16)
	require.Equal(t, 2, m.Stats().MaxDepth)
	require.Positive(t, m.Stats().Capped)
}

func TestMesherGridStep(t *testing.T) {
	m := NewMesher(WithGridStep(2))
	leaves := m.Build(common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{16, 16}), playableParams())
	for _, l := range leaves {
		require.GreaterOrEqual(t, l.Bounds.Size().X(), float32(2))
	}
}

func TestCellLeafNodes(t *testing.T) {
	c := NewCell(common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{4, 4}))
	require.True(t, c.IsLeaf())
	require.Equal(t, []*Cell{c}, c.LeafNodes())

	c.split()
	c.Children[3].split()
	require.False(t, c.IsLeaf())
	require.Len(t, c.LeafNodes(), 7)
}
