package bake

import (
	"context"
	"testing"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func uvQuad(size float32) *surface.Mesh {
	return &surface.Mesh{
		Vertices: []surface.Vertex{
			{Position: mgl32.Vec3{0, 0, 0}, UV: mgl32.Vec2{0, 0}},
			{Position: mgl32.Vec3{0, 0, size}, UV: mgl32.Vec2{0, 1}},
			{Position: mgl32.Vec3{size, 0, size}, UV: mgl32.Vec2{1, 1}},
			{Position: mgl32.Vec3{size, 0, 0}, UV: mgl32.Vec2{1, 0}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

func testSet(n int) *surface.Set {
	surfaces := make([]*surface.Surface, n)
	for i := range surfaces {
		surfaces[i] = &surface.Surface{
			Handle: surface.NewHandle(),
			Name:   "quad",
			Mesh:   uvQuad(float32(i + 1)),
		}
	}
	return surface.NewSet(surfaces)
}

func sum(values []float32) float32 {
	var s float32
	for _, v := range values {
		s += v
	}
	return s
}

func TestBakeMasksSkipsInvalidatedSurface(t *testing.T) {
	set := testSet(3)
	set.Invalidate(set.Surfaces()[2].Handle)

	p := NewPipeline(NewCPUBackend())
	defer p.Release()

	task, err := p.BakeMasks(set.Surfaces(), Material{}, 256)
	require.NoError(t, err)

	require.False(t, task.Step())
	require.False(t, task.Step())
	require.True(t, task.Step())
	require.True(t, task.Done())

	done, total := task.Progress()
	require.Equal(t, 3, done)
	require.Equal(t, 3, total)

	masks := task.Masks()
	require.True(t, masks.Immutable())
	require.Equal(t, 3, masks.Layers())
	require.Equal(t, 256, masks.Resolution())

	require.Greater(t, sum(masks.Slice(0)), float32(0))
	require.Greater(t, sum(masks.Slice(1)), float32(0))
	require.Zero(t, sum(masks.Slice(2)))

	require.InDelta(t, 1, masks.Sample(0, 0.5, 0.5), 1e-4)
	require.Zero(t, masks.Sample(2, 0.5, 0.5))

	// Stepping a finished task is a no-op.
	require.True(t, task.Step())
}

func TestBakeMasksWithoutSurfaces(t *testing.T) {
	p := NewPipeline(NewCPUBackend())

	task, err := p.BakeMasks(nil, Material{}, 64)
	require.Error(t, err)
	require.Nil(t, task)
	require.True(t, errors.IsType(err, ErrTypeMisconfigured))
}

func TestBakeMasksInvalidResolution(t *testing.T) {
	p := NewPipeline(NewCPUBackend())

	_, err := p.BakeMasks(testSet(1).Surfaces(), Material{}, 0)
	require.Error(t, err)
	require.True(t, errors.IsType(err, ErrTypeMisconfigured))
}

func TestTaskRestart(t *testing.T) {
	p := NewPipeline(NewCPUBackend(), WithBlurRadius(1))
	task, err := p.BakeMasks(testSet(2).Surfaces(), Material{}, 64)
	require.NoError(t, err)

	require.NoError(t, task.Run(context.Background()))
	first := task.Masks()
	require.True(t, first.Immutable())

	task.Restart()
	require.False(t, task.Done())
	done, _ := task.Progress()
	require.Zero(t, done)
	require.NotSame(t, first, task.Masks())
	require.False(t, task.Masks().Immutable())
	require.Zero(t, sum(task.Masks().Slice(0)))

	require.NoError(t, task.Run(context.Background()))
	require.Equal(t, first.Slice(1), task.Masks().Slice(1))
}

func TestTaskRunCanceled(t *testing.T) {
	p := NewPipeline(NewCPUBackend())
	task, err := p.BakeMasks(testSet(2).Surfaces(), Material{}, 64)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = task.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, task.Done())
}

func TestBakeMasksMipLevels(t *testing.T) {
	p := NewPipeline(NewCPUBackend(), WithMipLevels(3), WithBlurRadius(0))
	task, err := p.BakeMasks(testSet(1).Surfaces(), Material{}, 64)
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	masks := task.Masks()
	require.Equal(t, 3, masks.Levels())
	require.Len(t, masks.SliceLevel(0, 1), 32*32)
	require.Len(t, masks.SliceLevel(0, 2), 16*16)
	for _, v := range masks.SliceLevel(0, 2) {
		require.InDelta(t, 1, v, 1e-3)
	}
}

func TestMaterialExposure(t *testing.T) {
	field := NewHeightField(common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{10, 10}), 10, 10, -100)
	field.Set(5, 5, 2)

	tests := []struct {
		name     string
		material Material
		point    mgl32.Vec3
		expected float32
	}{
		{
			name:     "no depth source",
			material: Material{},
			point:    mgl32.Vec3{0.5, 0, 0.5},
			expected: 1,
		},
		{
			name:     "outside the captured area",
			material: Material{Depth: field, Softness: 1},
			point:    mgl32.Vec3{50, 0, 50},
			expected: 1,
		},
		{
			name:     "open sky",
			material: Material{Depth: field, Softness: 1},
			point:    mgl32.Vec3{-4.5, 0, -4.5},
			expected: 1,
		},
		{
			name:     "fully occluded",
			material: Material{Depth: field, Softness: 1},
			point:    mgl32.Vec3{0.5, 0, 0.5},
			expected: 0,
		},
		{
			name:     "soft edge",
			material: Material{Depth: field, Softness: 4},
			point:    mgl32.Vec3{0.5, 0, 0.5},
			expected: 0.5,
		},
		{
			name:     "bias lifts above the occluder",
			material: Material{Depth: field, Bias: 3},
			point:    mgl32.Vec3{0.5, 0, 0.5},
			expected: 1,
		},
		{
			name:     "hard shadow",
			material: Material{Depth: field},
			point:    mgl32.Vec3{0.5, 1, 0.5},
			expected: 0,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.InDelta(t, test.expected, test.material.Exposure(test.point), 1e-5)
		})
	}
}

func TestBakeOccludedSurface(t *testing.T) {
	field := NewHeightField(common.NewRect2FromMinMax(mgl32.Vec2{0, 0}, mgl32.Vec2{1, 1}), 2, 2, -100)
	field.Set(0, 0, 10)

	p := NewPipeline(NewCPUBackend(), WithBlurRadius(0))
	task, err := p.BakeMasks(testSet(1).Surfaces(), Material{Depth: field}, 64)
	require.NoError(t, err)
	require.NoError(t, task.Run(context.Background()))

	masks := task.Masks()
	require.InDelta(t, 0, masks.Sample(0, 0.2, 0.2), 1e-5)
	require.InDelta(t, 1, masks.Sample(0, 0.8, 0.8), 1e-5)
}

func TestGaussianKernel(t *testing.T) {
	for _, radius := range []int{0, 1, 4, 9} {
		k := GaussianKernel(radius, 0)
		require.Len(t, k, 2*radius+1)
		require.InDelta(t, 1, sum(k), 1e-5)
		require.Equal(t, k[0], k[len(k)-1])
		require.GreaterOrEqual(t, k[radius], k[0])
	}
	require.Equal(t, []float32{1}, GaussianKernel(-3, 0))
}

func TestBlurPassPreservesConstant(t *testing.T) {
	const size = 8
	src := make([]float32, size*size)
	for i := range src {
		src[i] = 0.75
	}
	dst := make([]float32, size*size)
	blurPass(dst, src, size, GaussianKernel(3, 0), true)
	for _, v := range dst {
		require.InDelta(t, 0.75, v, 1e-5)
	}
}

func TestMaskArrayWrites(t *testing.T) {
	m := NewMaskArray(4, 2)

	err := m.SetSlice(2, make([]float32, 16))
	require.True(t, errors.IsType(err, ErrTypeMaskWrite))

	err = m.SetSlice(0, make([]float32, 3))
	require.True(t, errors.IsType(err, ErrTypeMaskWrite))

	data := make([]float32, 16)
	data[5] = 1
	require.NoError(t, m.SetSlice(1, data))
	require.Equal(t, data, m.Slice(1))
	require.Len(t, m.Data(), 32)
	require.Equal(t, float32(1), m.Data()[16+5])

	require.NoError(t, m.ClearSlice(1))
	require.Zero(t, sum(m.Slice(1)))

	m.MarkImmutable()
	require.True(t, errors.IsType(m.SetSlice(0, data), ErrTypeMaskWrite))
	require.True(t, errors.IsType(m.ClearSlice(0), ErrTypeMaskWrite))
	require.True(t, errors.IsType(m.GenerateMipmaps(2), ErrTypeMaskWrite))
	require.Nil(t, m.Slice(5))
	require.Zero(t, m.Sample(9, 0.5, 0.5))
}

func TestGPUUniformLayout(t *testing.T) {
	u := GPUBakeUniform{Bias: 1, HasDepth: 1}
	require.Equal(t, 48, u.Size())
	require.Len(t, u.Marshal(), 48)

	b := GPUBlurUniform{Resolution: 64, Radius: 2, Horizontal: 1}
	require.Len(t, b.Marshal(), 16)

	require.Len(t, marshalBakeVertices(uvQuad(1)), 4*bakeVertexStride)
	require.NotEmpty(t, BakeMaskSource)
	require.NotEmpty(t, BlurSource)
}

func TestWGPUBackendRejectsUnalignedResolution(t *testing.T) {
	b := NewWGPUBackend(nil)
	err := b.Configure(100, GaussianKernel(1, 0))
	require.True(t, errors.IsType(err, ErrTypeMisconfigured))
	require.True(t, errors.IsType(b.Clear(), ErrTypeMisconfigured))
}
