// package gpu wraps a headless WebGPU adapter and device for compute and off-screen work.
package gpu

import (
	"sync"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/cogentcore/webgpu/wgpu"
)

// ErrTypeDevice marks failures reported by the WebGPU device.
const ErrTypeDevice = "gpu-device"

// ReadCallback receives the bytes of a completed buffer read, or the error that ended it.
type ReadCallback func(data []byte, err error)

// ComputePipeline bundles a compute pipeline with the layout of its single bind group.
type ComputePipeline struct {
	Pipeline        *wgpu.ComputePipeline
	BindGroupLayout *wgpu.BindGroupLayout
}

// Release frees the pipeline's GPU objects.
func (p *ComputePipeline) Release() {
	if p == nil {
		return
	}
	if p.Pipeline != nil {
		p.Pipeline.Release()
	}
	if p.BindGroupLayout != nil {
		p.BindGroupLayout.Release()
	}
}

type pendingRead struct {
	buf    *wgpu.Buffer
	size   uint64
	status chan wgpu.BufferMapAsyncStatus
	done   ReadCallback
}

// device is the implementation of the Device interface.
type device struct {
	mu     *sync.Mutex
	label  string
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter

	forceFallbackAdapter bool
	pending              []*pendingRead
}

// Device is a headless WebGPU device. All methods are safe for concurrent use.
// Asynchronous reads complete only while Poll is being called.
type Device interface {
	// Device returns the underlying wgpu device.
	Device() *wgpu.Device

	// Queue returns the device queue.
	Queue() *wgpu.Queue

	// CreateBuffer creates a GPU buffer.
	//
	// Parameters:
	//   - label: the debug label
	//   - size: the size in bytes, rounded up to a multiple of 4
	//   - usage: the buffer usage flags
	//
	// Returns:
	//   - *wgpu.Buffer: the buffer
	//   - error: an error if the buffer could not be created
	CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error)

	// WriteBuffer queues a write of data into buf at offset.
	WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte)

	// CreateShaderModule compiles WGSL source.
	CreateShaderModule(label, source string) (*wgpu.ShaderModule, error)

	// CreateComputePipeline compiles source and creates a compute pipeline with a single bind group laid out as layout.
	//
	// Parameters:
	//   - label: the debug label
	//   - source: the WGSL source
	//   - entryPoint: the compute entry point
	//   - layout: the layout of bind group 0
	//
	// Returns:
	//   - *ComputePipeline: the pipeline and its bind group layout
	//   - error: an error if any step failed
	CreateComputePipeline(label, source, entryPoint string, layout wgpu.BindGroupLayoutDescriptor) (*ComputePipeline, error)

	// Submit records commands with encode and submits them to the queue.
	//
	// Parameters:
	//   - label: the debug label of the command encoder
	//   - encode: records commands; returning an error abandons the submission
	//
	// Returns:
	//   - error: the encode error or a device error
	Submit(label string, encode func(encoder *wgpu.CommandEncoder) error) error

	// ReadBufferAsync maps staging for reading and calls done with its first size bytes from a later Poll.
	// staging must have MapRead usage and already hold the data, typically copied in by a prior Submit.
	//
	// Parameters:
	//   - staging: the mappable buffer to read
	//   - size: the number of bytes to read
	//   - done: called once with a copy of the data or an error
	ReadBufferAsync(staging *wgpu.Buffer, size uint64, done ReadCallback)

	// ReadBuffer maps staging and blocks until its first size bytes are available.
	ReadBuffer(staging *wgpu.Buffer, size uint64) ([]byte, error)

	// Poll processes device callbacks and completes pending reads.
	//
	// Parameters:
	//   - wait: block until the queue is idle
	Poll(wait bool)

	// Release frees the device, adapter and instance.
	Release()
}

var _ Device = &device{}

// NewDevice requests a headless adapter and device.
//
// Parameters:
//   - options: variadic list of DeviceBuilderOption functions to configure the device
//
// Returns:
//   - Device: the device
//   - error: an error if no adapter or device could be acquired
func NewDevice(options ...DeviceBuilderOption) (Device, error) {
	d := &device{
		mu:    &sync.Mutex{},
		label: "Coverage Device",
	}
	for _, opt := range options {
		opt(d)
	}

	d.instance = wgpu.CreateInstance(nil)
	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.forceFallbackAdapter,
	})
	if err != nil {
		d.instance.Release()
		return nil, errors.New("requesting adapter failed").
			WithType(ErrTypeDevice).
			Wrap(err)
	}
	d.adapter = a

	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: d.label,
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		d.adapter.Release()
		d.instance.Release()
		return nil, errors.New("requesting device failed").
			WithTag("label", d.label).
			WithType(ErrTypeDevice).
			Wrap(err)
	}
	d.device = dev
	d.queue = dev.GetQueue()
	return d, nil
}

func (d *device) Device() *wgpu.Device {
	return d.device
}

func (d *device) Queue() *wgpu.Queue {
	return d.queue
}

func (d *device) CreateBuffer(label string, size uint64, usage wgpu.BufferUsage) (*wgpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf, err := d.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label:            label,
		Size:             align4(size),
		Usage:            usage,
		MappedAtCreation: false,
	})
	if err != nil {
		return nil, errors.New("creating buffer failed").
			WithTag("label", label).
			WithTag("size", size).
			WithType(ErrTypeDevice).
			Wrap(err)
	}
	return buf, nil
}

func (d *device) WriteBuffer(buf *wgpu.Buffer, offset uint64, data []byte) {
	if buf == nil || len(data) == 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	d.queue.WriteBuffer(buf, offset, data)
}

func (d *device) CreateShaderModule(label, source string) (*wgpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.createShaderModule(label, source)
}

func (d *device) createShaderModule(label, source string) (*wgpu.ShaderModule, error) {
	m, err := d.device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: source,
		},
	})
	if err != nil {
		return nil, errors.New("compiling shader failed").
			WithTag("label", label).
			WithType(ErrTypeDevice).
			Wrap(err)
	}
	return m, nil
}

func (d *device) CreateComputePipeline(label, source, entryPoint string, layout wgpu.BindGroupLayoutDescriptor) (*ComputePipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.createShaderModule(label, source)
	if err != nil {
		return nil, err
	}
	defer s.Release()

	bgl, err := d.device.CreateBindGroupLayout(&layout)
	if err != nil {
		return nil, errors.New("creating bind group layout failed").
			WithTag("label", label).
			WithType(ErrTypeDevice).
			Wrap(err)
	}

	pl, err := d.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{bgl},
	})
	if err != nil {
		bgl.Release()
		return nil, errors.New("creating pipeline layout failed").
			WithTag("label", label).
			WithType(ErrTypeDevice).
			Wrap(err)
	}
	defer pl.Release()

	created, err := d.device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label:  label + " Compute Pipeline",
		Layout: pl,
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     s,
			EntryPoint: entryPoint,
		},
	})
	if err != nil {
		bgl.Release()
		return nil, errors.New("creating compute pipeline failed").
			WithTag("label", label).
			WithType(ErrTypeDevice).
			Wrap(err)
	}

	return &ComputePipeline{Pipeline: created, BindGroupLayout: bgl}, nil
}

func (d *device) Submit(label string, encode func(encoder *wgpu.CommandEncoder) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	encoder, err := d.device.CreateCommandEncoder(&wgpu.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return errors.New("creating command encoder failed").
			WithTag("label", label).
			WithType(ErrTypeDevice).
			Wrap(err)
	}
	defer encoder.Release()

	if err := encode(encoder); err != nil {
		return err
	}

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		return errors.New("finishing command encoder failed").
			WithTag("label", label).
			WithType(ErrTypeDevice).
			Wrap(err)
	}
	defer commandBuffer.Release()

	d.queue.Submit(commandBuffer)
	return nil
}

func (d *device) ReadBufferAsync(staging *wgpu.Buffer, size uint64, done ReadCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()

	p := &pendingRead{
		buf:    staging,
		size:   size,
		status: make(chan wgpu.BufferMapAsyncStatus, 1),
		done:   done,
	}
	// The callback only records the status; mapping is finished in Poll outside the wgpu callback.
	err := staging.MapAsync(wgpu.MapModeRead, 0, align4(size), func(status wgpu.BufferMapAsyncStatus) {
		p.status <- status
	})
	if err != nil {
		go done(nil, errors.New("mapping buffer failed").
			WithTag("size", size).
			WithType(ErrTypeDevice).
			Wrap(err))
		return
	}
	d.pending = append(d.pending, p)
}

func (d *device) ReadBuffer(staging *wgpu.Buffer, size uint64) ([]byte, error) {
	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	d.ReadBufferAsync(staging, size, func(data []byte, err error) {
		ch <- result{data: data, err: err}
	})
	for {
		select {
		case r := <-ch:
			return r.data, r.err
		default:
			d.Poll(true)
		}
	}
}

func (d *device) Poll(wait bool) {
	d.mu.Lock()
	d.device.Poll(wait, nil)

	var completed []func()
	remaining := d.pending[:0]
	for _, p := range d.pending {
		select {
		case status := <-p.status:
			completed = append(completed, d.finishRead(p, status))
		default:
			remaining = append(remaining, p)
		}
	}
	d.pending = remaining
	d.mu.Unlock()

	for _, fn := range completed {
		fn()
	}
}

// finishRead copies the mapped range and returns the callback invocation to run once the lock is released.
func (d *device) finishRead(p *pendingRead, status wgpu.BufferMapAsyncStatus) func() {
	if status != wgpu.BufferMapAsyncStatusSuccess {
		err := errors.Newf("mapping buffer failed with status %v", status).
			WithTag("size", p.size).
			WithType(ErrTypeDevice)
		return func() { p.done(nil, err) }
	}

	data := make([]byte, p.size)
	copy(data, p.buf.GetMappedRange(0, uint(align4(p.size))))
	p.buf.Unmap()
	return func() { p.done(data, nil) }
}

func (d *device) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queue != nil {
		d.queue.Release()
		d.queue = nil
	}
	if d.device != nil {
		d.device.Release()
		d.device = nil
	}
	if d.adapter != nil {
		d.adapter.Release()
		d.adapter = nil
	}
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func align4(n uint64) uint64 {
	return (n + 3) &^ 3
}
