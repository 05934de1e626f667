package bake

import (
	"sync"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/gpu"
	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	// noOccluder marks depth texels without an occluder; it matches NO_OCCLUDER in bake_mask.wgsl.
	noOccluder float32 = -1e30

	blurWorkgroupSize = 8

	// texture to buffer copies need rows aligned to 256 bytes, which is 64 R32Float texels.
	rowAlignmentTexels = 64
)

// wgpuBackend renders and blurs masks on a gpu.Device.
type wgpuBackend struct {
	mu  *sync.Mutex
	dev gpu.Device

	resolution int

	target     *wgpu.Texture
	targetView *wgpu.TextureView

	uniformBuf  *wgpu.Buffer
	occluderBuf *wgpu.Buffer
	occluderLen int
	vertexBuf   *wgpu.Buffer
	vertexSize  uint64
	indexBuf    *wgpu.Buffer
	indexSize   uint64

	colorBuf   *wgpu.Buffer
	blurA      *wgpu.Buffer
	blurB      *wgpu.Buffer
	weightsBuf *wgpu.Buffer
	blurHBuf   *wgpu.Buffer
	blurVBuf   *wgpu.Buffer
	stagingBuf *wgpu.Buffer

	renderLayout   *wgpu.BindGroupLayout
	renderPipeline *wgpu.RenderPipeline
	renderGroup    *wgpu.BindGroup

	blur       *gpu.ComputePipeline
	blurHGroup *wgpu.BindGroup
	blurVGroup *wgpu.BindGroup
}

// NewWGPUBackend creates a Backend that runs the bake stages on dev.
// Resolutions must be multiples of 64.
//
// Parameters:
//   - dev: the device to render on
//
// Returns:
//   - Backend: the backend
func NewWGPUBackend(dev gpu.Device) Backend {
	return &wgpuBackend{
		mu:  &sync.Mutex{},
		dev: dev,
	}
}

var _ Backend = &wgpuBackend{}

func (b *wgpuBackend) Configure(resolution int, kernel []float32) error {
	if resolution <= 0 || resolution%rowAlignmentTexels != 0 {
		return errors.Newf("bake resolution %d is not a positive multiple of %d", resolution, rowAlignmentTexels).
			WithType(ErrTypeMisconfigured)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.release()
	b.resolution = resolution

	if err := b.createTargets(); err != nil {
		b.release()
		return err
	}
	if err := b.createRenderPipeline(); err != nil {
		b.release()
		return err
	}
	if err := b.createBlur(kernel); err != nil {
		b.release()
		return err
	}
	return nil
}

func (b *wgpuBackend) createTargets() error {
	d := b.dev.Device()
	n := uint32(b.resolution)

	tex, err := d.CreateTexture(&wgpu.TextureDescriptor{
		Label: "Bake Target",
		Size: wgpu.Extent3D{
			Width:              n,
			Height:             n,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        wgpu.TextureFormatR32Float,
		Usage:         wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageCopySrc,
	})
	if err != nil {
		return errors.New("creating bake target failed").
			WithTag("resolution", b.resolution).
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	b.target = tex

	view, err := tex.CreateView(nil)
	if err != nil {
		return errors.New("creating bake target view failed").
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	b.targetView = view

	size := uint64(b.resolution * b.resolution * 4)
	storage := wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst
	buffers := []struct {
		dst   **wgpu.Buffer
		label string
		size  uint64
		usage wgpu.BufferUsage
	}{
		{&b.colorBuf, "Bake Color", size, storage},
		{&b.blurA, "Bake Blur A", size, storage},
		{&b.blurB, "Bake Blur B", size, storage},
		{&b.stagingBuf, "Bake Staging", size, wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst},
		{&b.uniformBuf, "Bake Uniform", 48, wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst},
		{&b.blurHBuf, "Blur Horizontal Uniform", 16, wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst},
		{&b.blurVBuf, "Blur Vertical Uniform", 16, wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst},
	}
	for _, spec := range buffers {
		buf, err := b.dev.CreateBuffer(spec.label, spec.size, spec.usage)
		if err != nil {
			return err
		}
		*spec.dst = buf
	}
	return b.ensureOccluders(1)
}

func (b *wgpuBackend) createRenderPipeline() error {
	d := b.dev.Device()

	module, err := b.dev.CreateShaderModule("Bake Mask", BakeMaskSource)
	if err != nil {
		return err
	}
	defer module.Release()

	layout, err := d.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label: "Bake Mask Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: wgpu.ShaderStageVertex | wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: wgpu.ShaderStageFragment,
				Buffer:     wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage},
			},
		},
	})
	if err != nil {
		return errors.New("creating bake bind group layout failed").
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	b.renderLayout = layout

	pl, err := d.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            "Bake Mask Pipeline Layout",
		BindGroupLayouts: []*wgpu.BindGroupLayout{layout},
	})
	if err != nil {
		return errors.New("creating bake pipeline layout failed").
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	defer pl.Release()

	created, err := d.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  "Bake Mask Render Pipeline",
		Layout: pl,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: "vs_main",
			Buffers: []wgpu.VertexBufferLayout{
				{
					ArrayStride: bakeVertexStride,
					StepMode:    wgpu.VertexStepModeVertex,
					Attributes: []wgpu.VertexAttribute{
						{Format: wgpu.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
						{Format: wgpu.VertexFormatFloat32x2, Offset: 12, ShaderLocation: 1},
					},
				},
			},
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    wgpu.TextureFormatR32Float,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return errors.New("creating bake render pipeline failed").
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	b.renderPipeline = created
	return b.bindRenderGroup()
}

func (b *wgpuBackend) bindRenderGroup() error {
	if b.renderGroup != nil {
		b.renderGroup.Release()
		b.renderGroup = nil
	}
	group, err := b.dev.Device().CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  "Bake Mask Bind Group",
		Layout: b.renderLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: b.uniformBuf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: b.occluderBuf, Offset: 0, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return errors.New("creating bake bind group failed").
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	b.renderGroup = group
	return nil
}

func (b *wgpuBackend) createBlur(kernel []float32) error {
	weights := kernel
	if len(weights) == 0 {
		weights = []float32{1}
	}
	buf, err := b.dev.CreateBuffer("Blur Weights", uint64(len(weights)*4), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	b.weightsBuf = buf
	b.dev.WriteBuffer(b.weightsBuf, 0, marshalFloats(weights))

	n := uint32(b.resolution)
	r := uint32(len(weights) / 2)
	horizontal := GPUBlurUniform{Resolution: n, Radius: r, Horizontal: 1}
	vertical := GPUBlurUniform{Resolution: n, Radius: r}
	b.dev.WriteBuffer(b.blurHBuf, 0, horizontal.Marshal())
	b.dev.WriteBuffer(b.blurVBuf, 0, vertical.Marshal())

	b.blur, err = b.dev.CreateComputePipeline("Bake Blur", BlurSource, "cs_main", wgpu.BindGroupLayoutDescriptor{
		Label: "Bake Blur Bind Group Layout",
		Entries: []wgpu.BindGroupLayoutEntry{
			{Binding: 0, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeReadOnlyStorage}},
			{Binding: 3, Visibility: wgpu.ShaderStageCompute, Buffer: wgpu.BufferBindingLayout{Type: wgpu.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return err
	}

	if b.blurHGroup, err = b.blurGroup("Blur Horizontal Bind Group", b.blurHBuf, b.colorBuf, b.blurA); err != nil {
		return err
	}
	if b.blurVGroup, err = b.blurGroup("Blur Vertical Bind Group", b.blurVBuf, b.blurA, b.blurB); err != nil {
		return err
	}
	return nil
}

func (b *wgpuBackend) blurGroup(label string, params, src, dst *wgpu.Buffer) (*wgpu.BindGroup, error) {
	group, err := b.dev.Device().CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:  label,
		Layout: b.blur.BindGroupLayout,
		Entries: []wgpu.BindGroupEntry{
			{Binding: 0, Buffer: params, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 1, Buffer: b.weightsBuf, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 2, Buffer: src, Offset: 0, Size: wgpu.WholeSize},
			{Binding: 3, Buffer: dst, Offset: 0, Size: wgpu.WholeSize},
		},
	})
	if err != nil {
		return nil, errors.New("creating blur bind group failed").
			WithTag("label", label).
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	return group, nil
}

// ensureOccluders grows the occluder buffer to hold count heights and rebinds the render group when it changes.
func (b *wgpuBackend) ensureOccluders(count int) error {
	count = max(count, 1)
	if b.occluderBuf != nil && b.occluderLen >= count {
		return nil
	}
	if b.occluderBuf != nil {
		b.occluderBuf.Release()
	}
	buf, err := b.dev.CreateBuffer("Bake Occluders", uint64(count*4), wgpu.BufferUsageStorage|wgpu.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	b.occluderBuf = buf
	b.occluderLen = count
	if b.renderLayout != nil {
		return b.bindRenderGroup()
	}
	return nil
}

// ensureBuffer grows a vertex or index buffer to hold size bytes.
func (b *wgpuBackend) ensureBuffer(buf **wgpu.Buffer, capacity *uint64, label string, size uint64, usage wgpu.BufferUsage) error {
	if *buf != nil && *capacity >= size {
		return nil
	}
	if *buf != nil {
		(*buf).Release()
		*buf = nil
	}
	created, err := b.dev.CreateBuffer(label, size, usage)
	if err != nil {
		return err
	}
	*buf = created
	*capacity = size
	return nil
}

func (b *wgpuBackend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.configured(); err != nil {
		return err
	}
	return b.dev.Submit("Bake Clear", func(encoder *wgpu.CommandEncoder) error {
		pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{
				{
					View:       b.targetView,
					LoadOp:     wgpu.LoadOpClear,
					StoreOp:    wgpu.StoreOpStore,
					ClearValue: wgpu.Color{},
				},
			},
		})
		pass.End()
		return nil
	})
}

func (b *wgpuBackend) Render(mesh *surface.Mesh, material Material) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.configured(); err != nil {
		return err
	}
	if !mesh.Renderable() {
		return errors.New("mesh has no triangles").
			WithType(ErrTypeBackend)
	}

	uniform, occluders := b.depthGrid(mesh, material)
	if err := b.ensureOccluders(len(occluders)); err != nil {
		return err
	}
	b.dev.WriteBuffer(b.uniformBuf, 0, uniform.Marshal())
	b.dev.WriteBuffer(b.occluderBuf, 0, marshalFloats(occluders))

	vertices := marshalBakeVertices(mesh)
	indices := marshalIndices(mesh.Indices)
	if err := b.ensureBuffer(&b.vertexBuf, &b.vertexSize, "Bake Vertices", uint64(len(vertices)), wgpu.BufferUsageVertex|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	if err := b.ensureBuffer(&b.indexBuf, &b.indexSize, "Bake Indices", uint64(len(indices)), wgpu.BufferUsageIndex|wgpu.BufferUsageCopyDst); err != nil {
		return err
	}
	b.dev.WriteBuffer(b.vertexBuf, 0, vertices)
	b.dev.WriteBuffer(b.indexBuf, 0, indices)

	n := uint32(b.resolution)
	return b.dev.Submit("Bake Render", func(encoder *wgpu.CommandEncoder) error {
		pass := encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
			ColorAttachments: []wgpu.RenderPassColorAttachment{
				{
					View:    b.targetView,
					LoadOp:  wgpu.LoadOpLoad,
					StoreOp: wgpu.StoreOpStore,
				},
			},
		})
		pass.SetPipeline(b.renderPipeline)
		pass.SetBindGroup(0, b.renderGroup, nil)
		pass.SetVertexBuffer(0, b.vertexBuf, 0, wgpu.WholeSize)
		pass.SetIndexBuffer(b.indexBuf, wgpu.IndexFormatUint32, 0, wgpu.WholeSize)
		pass.DrawIndexed(uint32(len(mesh.Indices)), 1, 0, 0, 0)
		pass.End()

		encoder.CopyTextureToBuffer(
			&wgpu.ImageCopyTexture{
				Texture:  b.target,
				MipLevel: 0,
				Origin:   wgpu.Origin3D{},
				Aspect:   wgpu.TextureAspectAll,
			},
			&wgpu.ImageCopyBuffer{
				Buffer: b.colorBuf,
				Layout: wgpu.TextureDataLayout{
					Offset:       0,
					BytesPerRow:  n * 4,
					RowsPerImage: n,
				},
			},
			&wgpu.Extent3D{Width: n, Height: n, DepthOrArrayLayers: 1},
		)
		return nil
	})
}

// depthGrid flattens the material's depth source into the uniform and occluder grid the shader samples.
// Height fields upload as is; other sources are resampled over the mesh's XZ footprint.
func (b *wgpuBackend) depthGrid(mesh *surface.Mesh, material Material) (GPUBakeUniform, []float32) {
	u := GPUBakeUniform{
		Bias:     material.Bias,
		Softness: material.Softness,
	}
	if material.Depth == nil {
		return u, []float32{noOccluder}
	}

	if hf, ok := material.Depth.(*HeightField); ok && hf.Width > 0 && hf.Height > 0 {
		lo := hf.Bounds.Min()
		size := hf.Bounds.Size()
		u.DepthOrigin = [2]float32{lo.X(), lo.Y()}
		u.DepthSize = [2]float32{size.X(), size.Y()}
		u.DepthDims = [2]uint32{uint32(hf.Width), uint32(hf.Height)}
		u.HasDepth = 1
		return u, hf.Heights
	}

	lo3, hi3 := mesh.Bounds()
	bounds := common.NewRect2FromMinMax(mgl32.Vec2{lo3.X(), lo3.Z()}, mgl32.Vec2{hi3.X(), hi3.Z()})
	n := b.resolution
	grid := make([]float32, n*n)
	lo := bounds.Min()
	size := bounds.Size()
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			wx := lo.X() + (float32(x)+0.5)/float32(n)*size.X()
			wz := lo.Y() + (float32(y)+0.5)/float32(n)*size.Y()
			h, ok := material.Depth.OccluderHeight(wx, wz)
			if !ok {
				h = noOccluder
			}
			grid[y*n+x] = h
		}
	}
	u.DepthOrigin = [2]float32{lo.X(), lo.Y()}
	u.DepthSize = [2]float32{max(size.X(), 1e-6), max(size.Y(), 1e-6)}
	u.DepthDims = [2]uint32{uint32(n), uint32(n)}
	u.HasDepth = 1
	return u, grid
}

func (b *wgpuBackend) BlurHorizontal() error {
	return b.dispatchBlur("Bake Blur Horizontal", func() *wgpu.BindGroup { return b.blurHGroup })
}

func (b *wgpuBackend) BlurVertical() error {
	return b.dispatchBlur("Bake Blur Vertical", func() *wgpu.BindGroup { return b.blurVGroup })
}

func (b *wgpuBackend) dispatchBlur(label string, group func() *wgpu.BindGroup) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.configured(); err != nil {
		return err
	}
	groups := uint32((b.resolution + blurWorkgroupSize - 1) / blurWorkgroupSize)
	return b.dev.Submit(label, func(encoder *wgpu.CommandEncoder) error {
		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(b.blur.Pipeline)
		pass.SetBindGroup(0, group(), nil)
		pass.DispatchWorkgroups(groups, groups, 1)
		pass.End()
		return nil
	})
}

func (b *wgpuBackend) Readback() ([]float32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.configured(); err != nil {
		return nil, err
	}
	size := uint64(b.resolution * b.resolution * 4)
	err := b.dev.Submit("Bake Readback", func(encoder *wgpu.CommandEncoder) error {
		encoder.CopyBufferToBuffer(b.blurB, 0, b.stagingBuf, 0, size)
		return nil
	})
	if err != nil {
		return nil, err
	}
	data, err := b.dev.ReadBuffer(b.stagingBuf, size)
	if err != nil {
		return nil, err
	}
	return common.BytesToFloat32s(data), nil
}

func (b *wgpuBackend) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.release()
}

func (b *wgpuBackend) release() {
	for _, g := range []**wgpu.BindGroup{&b.renderGroup, &b.blurHGroup, &b.blurVGroup} {
		if *g != nil {
			(*g).Release()
			*g = nil
		}
	}
	b.blur.Release()
	b.blur = nil
	if b.renderPipeline != nil {
		b.renderPipeline.Release()
		b.renderPipeline = nil
	}
	if b.renderLayout != nil {
		b.renderLayout.Release()
		b.renderLayout = nil
	}
	for _, buf := range []**wgpu.Buffer{
		&b.uniformBuf, &b.occluderBuf, &b.vertexBuf, &b.indexBuf,
		&b.colorBuf, &b.blurA, &b.blurB, &b.weightsBuf,
		&b.blurHBuf, &b.blurVBuf, &b.stagingBuf,
	} {
		if *buf != nil {
			(*buf).Release()
			*buf = nil
		}
	}
	b.occluderLen, b.vertexSize, b.indexSize = 0, 0, 0
	if b.targetView != nil {
		b.targetView.Release()
		b.targetView = nil
	}
	if b.target != nil {
		b.target.Release()
		b.target = nil
	}
	b.resolution = 0
}

func (b *wgpuBackend) configured() error {
	if b.resolution == 0 || b.renderPipeline == nil || b.blur == nil {
		return errors.New("bake backend is not configured").
			WithType(ErrTypeMisconfigured)
	}
	return nil
}
