package dispatcher

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/gpu"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// wgpuDevice runs the sample kernel as a compute shader with a mapped staging buffer for readback.
type wgpuDevice struct {
	mu  *sync.Mutex
	dev gpu.Device

	params     KernelParams
	layers     int
	resolution int

	pipeline  *gpu.ComputePipeline
	paramsBuf *wgpu.Buffer
	maskBuf   *wgpu.Buffer
	inputBuf  *wgpu.Buffer
	outputBuf *wgpu.Buffer
	staging   *wgpu.Buffer
	capacity  int
	bindGroup *wgpu.BindGroup
}

// NewWGPUDevice creates a Device that samples on dev.
//
// Parameters:
//   - dev: the device to run the kernel on
//
// Returns:
//   - Device: the device
//   - error: an error if the kernel could not be compiled
func NewWGPUDevice(dev gpu.Device) (Device, error) {
	d := &wgpuDevice{
		mu:  &sync.Mutex{},
		dev: dev,
	}

	storage := func(binding uint32, t wgpu.BufferBindingType) wgpu.BindGroupLayoutEntry {
		return wgpu.BindGroupLayoutEntry{
			Binding:    binding,
			Visibility: wgpu.ShaderStageCompute,
			Buffer:     wgpu.BufferBindingLayout{Type: t},
		}
	}
	p, err := dev.CreateComputePipeline("Coverage Sample", SampleSource, "cs_main", wgpu.BindGroupLayoutDescriptor{
		Label: "Coverage Sample Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			storage(0, wgpu.BufferBindingTypeUniform),
			storage(1, wgpu.BufferBindingTypeReadOnlyStorage),
			storage(2, wgpu.BufferBindingTypeReadOnlyStorage),
			storage(3, wgpu.BufferBindingTypeStorage),
		},
	})
	if err != nil {
		return nil, err
	}
	d.pipeline = p

	d.paramsBuf, err = dev.CreateBuffer("Coverage Sample Params", 80, wgpu.BufferUsageUniform|wgpu.BufferUsageCopyDst)
	if err != nil {
		d.Release()
		return nil, err
	}
	return d, nil
}

var _ Device = &wgpuDevice{}

func (d *wgpuDevice) SetParams(params KernelParams) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = params
}

func (d *wgpuDevice) BindMasks(masks *bake.MaskArray) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.maskBuf != nil {
		d.maskBuf.Release()
		d.maskBuf = nil
	}
	d.releaseBindGroup()
	d.layers, d.resolution = 0, 0
	if masks == nil || masks.Layers() == 0 {
		return nil
	}

	data := masks.Data()
	buf, err := d.dev.CreateBuffer("Coverage Masks", uint64(len(data)*4), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	d.dev.WriteBuffer(buf, 0, common.SliceToBytes(data))
	d.maskBuf = buf
	d.layers = masks.Layers()
	d.resolution = masks.Resolution()
	return nil
}

// ensureCapacity sizes the record buffers for n records and rebuilds the bind group when they change.
func (d *wgpuDevice) ensureCapacity(n int) error {
	if d.bindGroup != nil && d.capacity == n {
		return nil
	}
	d.releaseRecordBuffers()

	size := uint64(max(n, 1) * GPURecordSize)
	var err error
	if d.inputBuf, err = d.dev.CreateBuffer("Coverage Sample Input", size, wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if d.outputBuf, err = d.dev.CreateBuffer("Coverage Sample Output", size, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc); err != nil {
		return err
	}
	if d.staging, err = d.dev.CreateBuffer("Coverage Sample Staging", size, wgpu.BufferUsageMapRead|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}

	d.bindGroup, err = d.dev.Device().CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Coverage Sample Bind Group",
		Layout: d.pipeline.BindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: d.paramsBuf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: d.maskBuf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: d.inputBuf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: d.outputBuf, Offset: 0, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return errors.New("creating sample bind group failed").
			WithTag("records", n).
			WithType(gpu.ErrTypeDevice).
			Wrap(err)
	}
	d.capacity = n
	return nil
}

func (d *wgpuDevice) Dispatch(input []registry.Record) (<-chan ReadbackResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.maskBuf == nil {
		return nil, errors.New("no mask array bound").
			WithType(ErrTypeMisconfigured)
	}
	if err := d.ensureCapacity(len(input)); err != nil {
		return nil, err
	}

	uniform := GPUKernelParams{
		Footprint:  d.params.Footprint,
		Intensity:  d.params.CoverageIntensity,
		Layers:     uint32(d.layers),
		Resolution: uint32(d.resolution),
		Count:      uint32(len(input)),
	}
	d.dev.WriteBuffer(d.paramsBuf, 0, uniform.Marshal())
	d.dev.WriteBuffer(d.inputBuf, 0, marshalRecords(input))

	size := uint64(len(input) * GPURecordSize)
	groups := uint32((len(input) + sampleWorkgroupSize - 1) / sampleWorkgroupSize)
	err := d.dev.Submit("Coverage Sample", func(encoder *wgpu.CommandEncoder) error {
		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(d.pipeline.Pipeline)
		pass.SetBindGroup(0, d.bindGroup, nil)
		pass.DispatchWorkgroups(max(groups, 1), 1, 1)
		pass.End()
		if size > 0 {
			encoder.CopyBufferToBuffer(d.outputBuf, 0, d.staging, 0, size)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ch := make(chan ReadbackResult, 1)
	if size == 0 {
		ch <- ReadbackResult{Records: []registry.Record{}}
		return ch, nil
	}
	d.dev.ReadBufferAsync(d.staging, size, func(data []byte, err error) {
		if err != nil {
			ch <- ReadbackResult{Err: err}
			return
		}
		ch <- ReadbackResult{Records: unmarshalRecords(data)}
	})
	return ch, nil
}

func (d *wgpuDevice) Poll() {
	d.dev.Poll(false)
}

func (d *wgpuDevice) releaseBindGroup() {
	if d.bindGroup != nil {
		d.bindGroup.Release()
		d.bindGroup = nil
	}
}

func (d *wgpuDevice) releaseRecordBuffers() {
	d.releaseBindGroup()
	for _, buf := range []**wgpu.Buffer{&d.inputBuf, &d.outputBuf, &d.staging} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	d.capacity = 0
}

func (d *wgpuDevice) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.releaseRecordBuffers()
	for _, buf := range []**wgpu.Buffer{&d.maskBuf, &d.paramsBuf} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	d.pipeline.Release()
	d.pipeline = nil
}
