package common

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func TestRect2Quadrants(t *testing.T) {
	r := NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{64, 64})
	var area float32
	for _, q := range r.Quadrants() {
		require.Equal(t, mgl32.Vec2{16, 16}, q.HalfExtents)
		require.True(t, r.Contains(q.Min()))
		require.True(t, r.Contains(q.Max()))
		area += q.Area()
	}
	require.InDelta(t, r.Area(), area, 1e-4)
}

func TestRect2ChebyshevDistance(t *testing.T) {
	r := NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{10, 10})

	require.Equal(t, float32(0), r.ChebyshevDistance(mgl32.Vec2{1, -2}))
	require.Equal(t, float32(0), r.ChebyshevDistance(mgl32.Vec2{5, 5}))
	require.InDelta(t, 7, r.ChebyshevDistance(mgl32.Vec2{12, 0}), 1e-6)
	require.InDelta(t, 10, r.ChebyshevDistance(mgl32.Vec2{8, -15}), 1e-6)
}

func TestRect2Normalize(t *testing.T) {
	r := NewRect2FromMinMax(mgl32.Vec2{-4, 0}, mgl32.Vec2{4, 2})
	require.Equal(t, mgl32.Vec2{0, 0}, r.Normalize(mgl32.Vec2{-4, 0}))
	require.Equal(t, mgl32.Vec2{0.5, 0.5}, r.Normalize(mgl32.Vec2{0, 1}))
	require.Equal(t, mgl32.Vec2{1, 1}, r.Normalize(mgl32.Vec2{4, 2}))
}

func TestBilinear(t *testing.T) {
	grid := []float32{
		0, 1,
		2, 3,
	}
	require.Equal(t, float32(0), Bilinear(grid, 2, 2, 0, 0))
	require.Equal(t, float32(3), Bilinear(grid, 2, 2, 1, 1))
	require.InDelta(t, 1.5, Bilinear(grid, 2, 2, 0.5, 0.5), 1e-6)
	require.Equal(t, float32(3), Bilinear(grid, 2, 2, 9, 9))
	require.Equal(t, float32(0), Bilinear(nil, 0, 0, 0, 0))
}

func TestSliceToBytes(t *testing.T) {
	require.Nil(t, SliceToBytes([]float32{}))
	b := SliceToBytes([]float32{1, 2})
	require.Len(t, b, 8)
	require.Equal(t, []float32{1, 2}, BytesToFloat32s(b))
}

func TestFrustumContains(t *testing.T) {
	f := NewFrustum(mgl32.Ortho(-2, 2, -1, 1, 0, 10))

	require.True(t, f.Contains(mgl32.Vec3{0, 0, -5}))
	require.True(t, f.Contains(mgl32.Vec3{1.9, 0.9, -0.1}))
	require.False(t, f.Contains(mgl32.Vec3{2.1, 0, -5}))
	require.False(t, f.Contains(mgl32.Vec3{0, -1.1, -5}))
	require.False(t, f.Contains(mgl32.Vec3{0, 0, 1}))
	require.False(t, f.Contains(mgl32.Vec3{0, 0, -11}))
	require.InDelta(t, 1, f.Planes[FrustumLeft].Normal.Len(), 1e-5)
}
