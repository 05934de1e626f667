package level

import (
	"context"
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/config"
	"github.com/Carmen-Shannon/oxy-coverage/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Bake.Resolution = 32
	cfg.Bake.BlurRadius = 1
	cfg.Bake.MipLevels = 2
	cfg.Sampling.Capacity = 4
	cfg.Surface.Workers = 2
	cfg.Surface.TargetEdgeLength = 0
	cfg.Surface.SmoothingIterations = 0
	return cfg
}

func testCandidates() []surface.Candidate {
	return []surface.Candidate{
		&surface.HeightmapCandidate{
			ID:      "terrain",
			Heights: surface.NoiseHeightmap(common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{16, 16}), 9, 1, 0.2, 7),
			Layer:   1,
		},
		&surface.MeshCandidate{
			ID: "ledge",
			Mesh: &surface.Mesh{
				Vertices: []surface.Vertex{
					{Position: mgl32.Vec3{0, 2, 0}},
					{Position: mgl32.Vec3{0, 2, 4}},
					{Position: mgl32.Vec3{4, 2, 4}},
					{Position: mgl32.Vec3{4, 2, 0}},
				},
				Indices: []uint32{0, 1, 2, 0, 2, 3},
			},
			BrokenUVs: true,
			Layer:     1,
		},
		&surface.MeshCandidate{ID: "decal"},
	}
}

func TestLevelLoadBakeAndSample(t *testing.T) {
	l := New(testConfig())
	defer l.Close()

	playable := common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{8, 8})
	require.NoError(t, l.Load(context.Background(), testCandidates(), playable))
	require.Equal(t, 2, l.Surfaces().Len())
	require.False(t, l.Baked())

	require.False(t, l.StepBake())
	require.True(t, l.StepBake())
	require.True(t, l.Baked())
	require.True(t, l.StepBake())

	masks := l.Masks()
	require.True(t, masks.Immutable())
	require.Equal(t, 2, masks.Layers())
	require.Equal(t, 2, masks.Levels())

	const entity registry.EntityID = 11
	f := l.Coverage()
	require.True(t, f.Track(entity))

	ledge := l.Surfaces().Surfaces()[1]
	require.True(t, f.UpdateEntitySample(entity, mgl32.Vec3{2, 2, 2}, mgl32.Vec2{0.5, 0.5}, ledge.Handle))

	require.Eventually(t, func() bool {
		l.Tick(10 * time.Millisecond)
		return f.IsOnRegisteredSurface(entity)
	}, time.Second, time.Millisecond)
	require.InDelta(t, 1, f.CoverageDepthAt(entity), 1e-4)
}

func TestLevelTickSteps(t *testing.T) {
	l := New(testConfig())
	defer l.Close()

	require.NoError(t, l.Load(context.Background(), testCandidates(), common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{8, 8})))

	l.Tick(time.Millisecond)
	require.False(t, l.Baked())
	require.Zero(t, l.Dispatcher().Dispatches())

	l.Tick(time.Millisecond)
	require.True(t, l.Baked())
	require.Equal(t, 1, l.Dispatcher().Dispatches())
	require.Equal(t, dispatcher.Dispatching, l.Dispatcher().State())
}

func TestLevelWithoutSurfaces(t *testing.T) {
	l := New(testConfig())
	defer l.Close()

	require.NoError(t, l.Load(context.Background(), []surface.Candidate{&surface.MeshCandidate{ID: "empty"}}, common.Rect2{}))
	require.Zero(t, l.Surfaces().Len())
	require.Nil(t, l.Masks())
	require.False(t, l.StepBake())

	l.Tick(time.Millisecond)
	require.Zero(t, l.Dispatcher().Dispatches())
	require.False(t, l.Coverage().IsOnRegisteredSurface(1))
}

func TestLevelLoadCanceled(t *testing.T) {
	l := New(testConfig())
	defer l.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, l.Load(ctx, testCandidates(), common.Rect2{}))
	require.Zero(t, l.Surfaces().Len())
}

func TestLevelReloadResetsInputs(t *testing.T) {
	l := New(testConfig())
	defer l.Close()

	playable := common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{8, 8})
	require.NoError(t, l.Load(context.Background(), testCandidates(), playable))

	f := l.Coverage()
	require.True(t, f.Track(3))
	stale := l.Surfaces().Surfaces()[0].Handle
	require.True(t, f.UpdateEntitySample(3, mgl32.Vec3{}, mgl32.Vec2{}, stale))

	require.NoError(t, l.Load(context.Background(), testCandidates(), playable))
	require.False(t, l.Baked())

	r, ok := l.Coverage().Sample(3)
	require.True(t, ok)
	require.Equal(t, registry.SentinelRecord(), r)
	require.False(t, l.Coverage().UpdateEntitySample(3, mgl32.Vec3{}, mgl32.Vec2{}, stale))
	require.True(t, l.Coverage().UpdateEntitySample(3, mgl32.Vec3{}, mgl32.Vec2{}, l.Surfaces().Surfaces()[0].Handle))
}

// heldDevice completes readbacks only when the test releases them.
type heldDevice struct {
	pending chan dispatcher.ReadbackResult
}

func (d *heldDevice) SetParams(dispatcher.KernelParams) {}
func (d *heldDevice) BindMasks(*bake.MaskArray) error   { return nil }
func (d *heldDevice) Poll()                             {}
func (d *heldDevice) Release()                          {}
func (d *heldDevice) Dispatch([]registry.Record) (<-chan dispatcher.ReadbackResult, error) {
	d.pending = make(chan dispatcher.ReadbackResult, 1)
	return d.pending, nil
}

func TestLevelReloadResetsOutputs(t *testing.T) {
	cfg := testConfig()
	dev := &heldDevice{}
	l := New(cfg, WithSampleDevice(dev))
	defer l.Close()

	playable := common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{8, 8})
	require.NoError(t, l.Load(context.Background(), testCandidates(), playable))
	for !l.StepBake() {
	}

	const entity registry.EntityID = 3
	f := l.Coverage()
	require.True(t, f.Track(entity))
	require.True(t, f.UpdateEntitySample(entity, mgl32.Vec3{1, 2, 1}, mgl32.Vec2{0.5, 0.5}, l.Surfaces().Surfaces()[0].Handle))

	readback := func(depth float32) dispatcher.ReadbackResult {
		out := make([]registry.Record, cfg.Sampling.Capacity)
		for i := range out {
			out[i] = registry.Record{SurfaceIndex: 0, CoverageDepth: depth}
		}
		return dispatcher.ReadbackResult{Records: out}
	}

	l.Tick(time.Millisecond)
	require.Equal(t, dispatcher.Dispatching, l.Dispatcher().State())
	dev.pending <- readback(1)
	l.Tick(time.Millisecond)
	require.True(t, f.IsOnRegisteredSurface(entity))
	require.Equal(t, float32(1), f.CoverageDepthAt(entity))
	require.Equal(t, dispatcher.Dispatching, l.Dispatcher().State())

	require.NoError(t, l.Load(context.Background(), nil, playable))
	require.Zero(t, l.Surfaces().Len())
	r, ok := l.Coverage().Sample(entity)
	require.True(t, ok)
	require.Equal(t, registry.SentinelRecord(), r)

	// The round-trip started on the old level completes after the reload.
	dev.pending <- readback(1)
	l.Tick(time.Millisecond)
	require.Equal(t, dispatcher.Idle, l.Dispatcher().State())
	require.False(t, l.Coverage().IsOnRegisteredSurface(entity))
	require.Zero(t, l.Coverage().CoverageDepthAt(entity))
}

func TestLevelDepthSource(t *testing.T) {
	field := bake.NewHeightField(common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{64, 64}), 4, 4, 100)
	l := New(testConfig(), WithDepthSource(field))
	defer l.Close()

	require.NoError(t, l.Load(context.Background(), testCandidates(), common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{8, 8})))
	for !l.StepBake() {
	}
	for _, v := range l.Masks().Slice(1) {
		require.Zero(t, v)
	}
}

func TestCoverageIntensityRamp(t *testing.T) {
	l := New(testConfig())
	defer l.Close()
	require.Equal(t, float32(1), l.CoverageIntensity())

	l.SetCoverageIntensity(3, 100*time.Millisecond)
	l.Tick(50 * time.Millisecond)
	require.InDelta(t, 2, l.CoverageIntensity(), 1e-5)
	l.Tick(100 * time.Millisecond)
	require.Equal(t, float32(3), l.CoverageIntensity())

	l.SetCoverageIntensity(0.5, 0)
	require.Equal(t, float32(0.5), l.CoverageIntensity())
}
