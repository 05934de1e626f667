// package bake renders per-surface coverage masks into a layered mask array, one surface per step.
package bake

import (
	"context"

	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	defaultBlurRadius = 4
	defaultMipLevels  = 1
)

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	backend    Backend
	blurRadius int
	blurSigma  float32
	mipLevels  int
}

// Pipeline starts mask bakes on a backend.
type Pipeline interface {
	// BakeMasks prepares a staged bake of surfaces into a resolution x resolution x len(surfaces) mask array.
	// Nothing is rendered until the returned task is stepped.
	//
	// Parameters:
	//   - surfaces: the surfaces in index order
	//   - material: the bake material
	//   - resolution: the side length of each mask slice
	//
	// Returns:
	//   - Task: the staged bake
	//   - error: when there are no surfaces or the backend cannot be configured
	BakeMasks(surfaces []*surface.Surface, material Material, resolution int) (Task, error)

	// Kernel returns the blur weights used by bakes.
	Kernel() []float32

	// Release frees the backend.
	Release()
}

var _ Pipeline = &pipeline{}

// NewPipeline creates a Pipeline that bakes on backend.
//
// Parameters:
//   - backend: the backend running the bake stages
//   - options: variadic list of PipelineBuilderOption functions to configure the pipeline
//
// Returns:
//   - Pipeline: the configured pipeline
func NewPipeline(backend Backend, options ...PipelineBuilderOption) Pipeline {
	p := &pipeline{
		backend:    backend,
		blurRadius: defaultBlurRadius,
		mipLevels:  defaultMipLevels,
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

func (p *pipeline) Kernel() []float32 {
	return GaussianKernel(p.blurRadius, p.blurSigma)
}

func (p *pipeline) BakeMasks(surfaces []*surface.Surface, material Material, resolution int) (Task, error) {
	if len(surfaces) == 0 {
		return nil, errors.New("no surfaces to bake").
			WithType(ErrTypeMisconfigured)
	}
	if err := p.backend.Configure(resolution, p.Kernel()); err != nil {
		return nil, errors.New("configuring bake backend failed").
			WithTag("resolution", resolution).
			WithType(ErrTypeMisconfigured).
			Wrap(err)
	}

	t := &task{
		pipeline:   p,
		surfaces:   append([]*surface.Surface(nil), surfaces...),
		material:   material,
		resolution: resolution,
	}
	t.Restart()
	return t, nil
}

func (p *pipeline) Release() {
	p.backend.Release()
}

// task is the implementation of the Task interface.
type task struct {
	pipeline   *pipeline
	surfaces   []*surface.Surface
	material   Material
	resolution int

	masks *MaskArray
	next  int
	done  bool
}

// Task is a resumable bake that processes one surface per Step. It must be driven from a single goroutine.
type Task interface {
	// Step bakes the next surface into its mask slice. Surfaces whose geometry was invalidated are skipped,
	// leaving their slice cleared. After the last surface the mip chain is generated and the array becomes immutable.
	//
	// Returns:
	//   - bool: true once the whole batch is complete
	Step() bool

	// Done reports whether the batch is complete.
	Done() bool

	// Restart discards progress and starts over on a fresh mask array.
	Restart()

	// Run steps the task until it completes or ctx ends.
	//
	// Parameters:
	//   - ctx: stops the bake between steps
	//
	// Returns:
	//   - error: ctx's error when it ended first
	Run(ctx context.Context) error

	// Progress returns the number of surfaces processed and the batch size.
	Progress() (int, int)

	// Masks returns the mask array the task writes into.
	Masks() *MaskArray
}

var _ Task = &task{}

func (t *task) Step() bool {
	if t.done {
		return true
	}

	s := t.surfaces[t.next]
	t.next++

	if err := t.bake(s); err != nil {
		logs.Warn(err)
		if errors.IsType(err, ErrTypeInvalidatedGeometry) {
			instrumentBakeStep(resultSkipped)
		} else {
			instrumentBakeStep(resultFailed)
		}
	} else {
		instrumentBakeStep(resultBaked)
	}

	if t.next >= len(t.surfaces) {
		t.finish()
	}
	return t.done
}

func (t *task) bake(s *surface.Surface) error {
	if !s.Valid() {
		return errors.New("surface geometry was invalidated before baking").
			WithTag("surface", s.Name).
			WithTag("index", s.Index).
			WithType(ErrTypeInvalidatedGeometry)
	}

	b := t.pipeline.backend
	stages := []struct {
		name string
		run  func() error
	}{
		{"clear", b.Clear},
		{"render", func() error { return b.Render(s.Mesh, t.material) }},
		{"blur-horizontal", b.BlurHorizontal},
		{"blur-vertical", b.BlurVertical},
	}
	for _, stage := range stages {
		if err := stage.run(); err != nil {
			return errors.New("bake stage failed").
				WithTag("stage", stage.name).
				WithTag("surface", s.Name).
				WithTag("index", s.Index).
				WithType(ErrTypeBackend).
				Wrap(err)
		}
	}

	data, err := b.Readback()
	if err != nil {
		return errors.New("bake readback failed").
			WithTag("surface", s.Name).
			WithTag("index", s.Index).
			WithType(ErrTypeBackend).
			Wrap(err)
	}
	return t.masks.SetSlice(int(s.Index), data)
}

func (t *task) finish() {
	if err := t.masks.GenerateMipmaps(t.pipeline.mipLevels); err != nil {
		logs.Warn(err)
	}
	t.masks.MarkImmutable()
	t.done = true

	logs.WithTag("surfaces", len(t.surfaces)).
		WithTag("resolution", t.resolution).
		WithTag("mip_levels", t.masks.Levels()).
		Info("coverage masks baked")
}

func (t *task) Done() bool {
	return t.done
}

func (t *task) Restart() {
	t.masks = NewMaskArray(t.resolution, len(t.surfaces))
	t.next = 0
	t.done = false
}

func (t *task) Run(ctx context.Context) error {
	for !t.done {
		if err := ctx.Err(); err != nil {
			return err
		}
		t.Step()
	}
	return nil
}

func (t *task) Progress() (int, int) {
	return t.next, len(t.surfaces)
}

func (t *task) Masks() *MaskArray {
	return t.masks
}
