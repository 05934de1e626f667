package dispatcher

import (
	"testing"
	"time"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// manualDevice completes round-trips only when the test says so.
type manualDevice struct {
	params     []KernelParams
	masks      *bake.MaskArray
	dispatched [][]registry.Record
	pending    chan ReadbackResult
	released   bool
}

func (d *manualDevice) SetParams(params KernelParams) {
	d.params = append(d.params, params)
}

func (d *manualDevice) BindMasks(masks *bake.MaskArray) error {
	d.masks = masks
	return nil
}

func (d *manualDevice) Dispatch(input []registry.Record) (<-chan ReadbackResult, error) {
	d.dispatched = append(d.dispatched, append([]registry.Record(nil), input...))
	d.pending = make(chan ReadbackResult, 1)
	return d.pending, nil
}

func (d *manualDevice) Poll() {}

func (d *manualDevice) Release() {
	d.released = true
}

func (d *manualDevice) complete(res ReadbackResult) {
	d.pending <- res
}

func testMasks(t *testing.T, layers int, value float32) *bake.MaskArray {
	m := bake.NewMaskArray(4, layers)
	data := make([]float32, 16)
	for i := range data {
		data[i] = value
	}
	for i := 0; i < layers; i++ {
		require.NoError(t, m.SetSlice(i, data))
	}
	m.MarkImmutable()
	return m
}

func testParams() KernelParams {
	area := common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{100, 100})
	return KernelParams{
		CoverageIntensity: 2,
		Footprint:         FootprintMatrix(area, 50, 100),
	}
}

func TestDispatcherSingleInFlight(t *testing.T) {
	reg := registry.NewRegistry(2)
	slot, ok := reg.Acquire(7)
	require.True(t, ok)

	dev := &manualDevice{}
	d := NewDispatcher(reg, dev)
	require.NoError(t, d.BindMasks(testMasks(t, 1, 1)))

	d.Tick(testParams())
	require.Equal(t, Dispatching, d.State())
	require.Equal(t, 1, d.Dispatches())

	for i := 0; i < 5; i++ {
		d.Tick(testParams())
	}
	require.Equal(t, 1, d.Dispatches())
	require.Len(t, dev.params, 6)

	out := make([]registry.Record, 2)
	out[0] = registry.SentinelRecord()
	out[slot] = registry.Record{SurfaceIndex: 0, CoverageDepth: 3}
	out[1] = registry.Record{SurfaceIndex: 0, CoverageDepth: 9}
	dev.complete(ReadbackResult{Records: out})

	d.Tick(testParams())
	require.Equal(t, 1, d.Completions())
	require.Equal(t, 2, d.Dispatches())
	require.Equal(t, Dispatching, d.State())
	require.Equal(t, float32(3), reg.Output()[slot].CoverageDepth)
	require.Equal(t, registry.SentinelRecord(), reg.Output()[1])
}

func TestDispatcherReadbackErrorKeepsOutput(t *testing.T) {
	reg := registry.NewRegistry(1)
	slot, _ := reg.Acquire(1)

	dev := &manualDevice{}
	d := NewDispatcher(reg, dev)
	require.NoError(t, d.BindMasks(testMasks(t, 1, 1)))

	d.Tick(testParams())
	dev.complete(ReadbackResult{Records: []registry.Record{{SurfaceIndex: 0, CoverageDepth: 4}}})
	d.Tick(testParams())
	require.Equal(t, float32(4), reg.Output()[slot].CoverageDepth)

	dev.complete(ReadbackResult{Err: errors.New("device lost")})
	d.Tick(testParams())
	require.Equal(t, 2, d.Completions())
	require.Equal(t, 3, d.Dispatches())
	require.Equal(t, float32(4), reg.Output()[slot].CoverageDepth)

	dev.complete(ReadbackResult{Records: []registry.Record{}})
	d.Tick(testParams())
	require.Equal(t, 3, d.Completions())
	require.Equal(t, float32(4), reg.Output()[slot].CoverageDepth)
}

func TestDispatcherSlotReusedDuringFlight(t *testing.T) {
	reg := registry.NewRegistry(2)
	b, _ := reg.Acquire('B')
	reg.SetInput(b, registry.Record{W: mgl32.Vec3{1, 2, 3}, SurfaceIndex: 0, UV: mgl32.Vec2{0.5, 0.5}})

	dev := &manualDevice{}
	d := NewDispatcher(reg, dev)
	require.NoError(t, d.BindMasks(testMasks(t, 1, 1)))
	d.Tick(testParams())
	require.Equal(t, Dispatching, d.State())

	require.True(t, reg.Release('B'))
	e, ok := reg.Acquire('E')
	require.True(t, ok)
	require.Equal(t, b, e)

	out := []registry.Record{registry.SentinelRecord(), registry.SentinelRecord()}
	out[e] = registry.Record{W: mgl32.Vec3{1, 2, 3}, SurfaceIndex: 0, UV: mgl32.Vec2{0.5, 0.5}, CoverageDepth: 0.9}
	dev.complete(ReadbackResult{Records: out})
	d.Tick(testParams())

	require.Equal(t, 1, d.Completions())
	require.Equal(t, registry.SentinelRecord(), reg.Output()[e])

	// The next round-trip started after E took the slot, so its result applies.
	out[e].CoverageDepth = 0.3
	dev.complete(ReadbackResult{Records: out})
	d.Tick(testParams())
	require.Equal(t, float32(0.3), reg.Output()[e].CoverageDepth)
}

func TestDispatcherWithoutSurfaces(t *testing.T) {
	reg := registry.NewRegistry(1)
	dev := &manualDevice{}
	d := NewDispatcher(reg, dev)

	d.Tick(testParams())
	d.Tick(testParams())
	require.Equal(t, Idle, d.State())
	require.Zero(t, d.Dispatches())
	require.Len(t, dev.params, 2)

	require.NoError(t, d.BindMasks(bake.NewMaskArray(4, 0)))
	d.Tick(testParams())
	require.Zero(t, d.Dispatches())
}

func TestDispatcherInterval(t *testing.T) {
	reg := registry.NewRegistry(1)
	dev := &manualDevice{}
	d := NewDispatcher(reg, dev, WithInterval(3))
	require.NoError(t, d.BindMasks(testMasks(t, 1, 1)))

	d.Tick(testParams())
	d.Tick(testParams())
	require.Zero(t, d.Dispatches())
	d.Tick(testParams())
	require.Equal(t, 1, d.Dispatches())
	require.Len(t, dev.params, 3)

	d.Release()
	require.True(t, dev.released)
}

func TestDispatcherCPUDevice(t *testing.T) {
	reg := registry.NewRegistry(3)
	onSurface, _ := reg.Acquire(1)
	offSurface, _ := reg.Acquire(2)
	outside, _ := reg.Acquire(3)

	reg.SetInput(onSurface, registry.Record{W: mgl32.Vec3{1, 0, 1}, SurfaceIndex: 1, UV: mgl32.Vec2{0.5, 0.5}})
	reg.SetInput(outside, registry.Record{W: mgl32.Vec3{500, 0, 500}, SurfaceIndex: 0, UV: mgl32.Vec2{0.5, 0.5}})

	d := NewDispatcher(reg, NewCPUDevice())
	defer d.Release()
	require.NoError(t, d.BindMasks(testMasks(t, 2, 0.5)))

	d.Tick(testParams())
	require.Eventually(t, func() bool {
		d.Tick(testParams())
		return d.Completions() > 0
	}, time.Second, time.Millisecond)

	out := reg.Output()
	require.Equal(t, int32(1), out[onSurface].SurfaceIndex)
	require.InDelta(t, 1, out[onSurface].CoverageDepth, 1e-5)
	require.Equal(t, registry.NoSurface, out[offSurface].SurfaceIndex)
	require.Zero(t, out[offSurface].CoverageDepth)
	require.Equal(t, int32(0), out[outside].SurfaceIndex)
	require.Zero(t, out[outside].CoverageDepth)
}

func TestCPUDeviceWithoutMasks(t *testing.T) {
	_, err := NewCPUDevice().Dispatch(nil)
	require.True(t, errors.IsType(err, ErrTypeMisconfigured))
}

func TestSampleRecordUnknownLayer(t *testing.T) {
	r := sampleRecord(registry.Record{SurfaceIndex: 5, CoverageDepth: 3}, testMasks(t, 2, 1), testParams())
	require.Equal(t, registry.NoSurface, r.SurfaceIndex)
	require.Zero(t, r.CoverageDepth)
}

func TestFootprintMatrix(t *testing.T) {
	area := common.NewRect2(mgl32.Vec2{10, 20}, mgl32.Vec2{8, 4})
	m := FootprintMatrix(area, 30, 60)

	require.Equal(t, float32(1), footprintWeight(m, mgl32.Vec3{10, 0, 20}))
	require.Equal(t, float32(1), footprintWeight(m, mgl32.Vec3{13.9, 0, 21.9}))
	require.Equal(t, float32(0), footprintWeight(m, mgl32.Vec3{15, 0, 20}))
	require.Equal(t, float32(0), footprintWeight(m, mgl32.Vec3{10, 0, 23}))
	require.Equal(t, float32(0), footprintWeight(m, mgl32.Vec3{10, 40, 20}))
	require.Equal(t, float32(0), footprintWeight(m, mgl32.Vec3{10, -40, 20}))
}

func TestRecordLayout(t *testing.T) {
	records := []registry.Record{
		{W: mgl32.Vec3{1, 2, 3}, SurfaceIndex: 4, UV: mgl32.Vec2{0.25, 0.75}, CoverageDepth: 6},
		registry.SentinelRecord(),
	}
	data := marshalRecords(records)
	require.Len(t, data, 2*GPURecordSize)
	require.Equal(t, records, unmarshalRecords(data))

	p := GPUKernelParams{Footprint: mgl32.Ident4(), Count: 2}
	require.Len(t, p.Marshal(), 80)
	require.NotEmpty(t, SampleSource)
}
