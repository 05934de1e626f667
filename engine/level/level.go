// package level owns the coverage core for one loaded level: it builds surfaces, bakes their masks and
// drives the sample loop.
package level

import (
	"context"
	"time"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/config"
	"github.com/Carmen-Shannon/oxy-coverage/engine/coverage"
	"github.com/Carmen-Shannon/oxy-coverage/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-coverage/engine/mesher"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// level is the implementation of the Level interface.
type level struct {
	cfg config.Config

	bakeBackend  bake.Backend
	sampleDevice dispatcher.Device
	depth        bake.DepthSource
	valid        coverage.ValidityPredicate

	builder    surface.Builder
	pipeline   bake.Pipeline
	registry   registry.Registry
	dispatcher dispatcher.Dispatcher

	playable common.Rect2
	surfaces *surface.Set
	task     bake.Task
	facade   coverage.Facade

	intensity intensityRamp
	elapsed   time.Duration
}

// Level is the coverage core of one level. Load replaces the previous level's surfaces and masks while
// tracked entities keep their slots. It must be driven from a single goroutine.
type Level interface {
	// Load builds surfaces from candidates and prepares their mask bake. The bake advances one surface per
	// StepBake or Tick.
	//
	// Parameters:
	//   - ctx: cancels the surface build
	//   - candidates: the level geometry candidates
	//   - playableArea: the region terrain is meshed densely around and the footprint camera covers
	//
	// Returns:
	//   - error: an error if the build was canceled
	Load(ctx context.Context, candidates []surface.Candidate, playableArea common.Rect2) error

	// StepBake bakes the next surface mask. When the bake completes the masks are bound for sampling.
	//
	// Returns:
	//   - bool: whether the bake is complete
	StepBake() bool

	// Baked reports whether the current level's masks are complete.
	Baked() bool

	// Tick advances the level by dt: it steps an unfinished bake, then runs one dispatcher tick.
	Tick(dt time.Duration)

	// SetCoverageIntensity moves the coverage intensity to target over the given duration of ticks.
	SetCoverageIntensity(target float32, over time.Duration)

	// CoverageIntensity returns the current coverage intensity.
	CoverageIntensity() float32

	// Coverage returns the query facade of the current level.
	Coverage() coverage.Facade

	// Surfaces returns the current level's surfaces.
	Surfaces() *surface.Set

	// Masks returns the current level's mask array, nil before Load or when the level has no surfaces.
	Masks() *bake.MaskArray

	// Dispatcher returns the sample dispatcher.
	Dispatcher() dispatcher.Dispatcher

	// Close releases the level's workers and devices.
	Close()
}

var _ Level = &level{}

// New creates a Level configured by cfg. Without options baking and sampling run on the CPU.
//
// Parameters:
//   - cfg: the core configuration
//   - options: variadic list of LevelBuilderOption functions to configure the level
//
// Returns:
//   - Level: the level, empty until Load
func New(cfg config.Config, options ...LevelBuilderOption) Level {
	l := &level{
		cfg: cfg,
	}
	for _, opt := range options {
		opt(l)
	}
	if l.bakeBackend == nil {
		l.bakeBackend = bake.NewCPUBackend()
	}
	if l.sampleDevice == nil {
		l.sampleDevice = dispatcher.NewCPUDevice()
	}

	l.builder = surface.NewBuilder(
		surface.WithWorkers(cfg.Surface.Workers),
		surface.WithMesherOptions(
			mesher.WithGridStep(cfg.Mesh.GridStep),
			mesher.WithMinCellSize(cfg.Mesh.MinCellSize),
			mesher.WithMaxDepth(cfg.Mesh.MaxDepth),
		),
	)
	l.pipeline = bake.NewPipeline(l.bakeBackend,
		bake.WithBlurRadius(cfg.Bake.BlurRadius),
		bake.WithBlurSigma(cfg.Bake.BlurSigma),
		bake.WithMipLevels(cfg.Bake.MipLevels),
	)
	l.registry = registry.NewRegistry(cfg.Sampling.Capacity)
	l.dispatcher = dispatcher.NewDispatcher(l.registry, l.sampleDevice,
		dispatcher.WithInterval(cfg.Sampling.DispatchInterval),
	)
	l.intensity = intensityRamp{current: cfg.Sampling.CoverageIntensity, target: cfg.Sampling.CoverageIntensity}
	l.surfaces = surface.NewSet(nil)
	l.facade = l.newFacade()
	return l
}

func (l *level) newFacade() coverage.Facade {
	var opts []coverage.FacadeBuilderOption
	if l.valid != nil {
		opts = append(opts, coverage.WithValidityPredicate(l.valid))
	}
	return coverage.NewFacade(l.registry, l.surfaces, opts...)
}

func (l *level) buildConfig(playable common.Rect2) surface.BuildConfig {
	holes := surface.HoleCarve
	if l.cfg.Surface.FillHoles {
		holes = surface.HoleFill
	}
	return surface.BuildConfig{
		PlayableArea: playable,
		BaseCellSize: l.cfg.Mesh.BaseCellSize,
		MaxCellSize:  l.cfg.Mesh.MaxCellSize,
		FalloffSpeed: l.cfg.Mesh.FalloffSpeed,
		MaxDistance:  l.cfg.Mesh.MaxDistance,
		PostProcess: surface.PostProcess{
			TargetEdgeLength:    l.cfg.Surface.TargetEdgeLength,
			MaxRefinePasses:     l.cfg.Surface.MaxRefinePasses,
			SmoothingIterations: l.cfg.Surface.SmoothingIterations,
			SmoothingFactor:     l.cfg.Surface.SmoothingFactor,
			HoleMode:            holes,
			MirrorCollision:     l.cfg.Surface.MirrorCollision,
		},
		OverlayLayer:    l.cfg.Surface.OverlayLayer,
		OverlayMaterial: l.cfg.Surface.OverlayMaterial,
	}
}

func (l *level) Load(ctx context.Context, candidates []surface.Candidate, playableArea common.Rect2) error {
	set, err := l.builder.BuildSurfacesAsync(ctx, candidates, l.buildConfig(playableArea))
	if err != nil {
		return err
	}

	if err := l.dispatcher.BindMasks(nil); err != nil {
		logs.Warn(err)
	}
	// Old surface indices mean nothing on the new level, and a readback still in flight belongs to it.
	for _, slot := range l.registry.Live() {
		l.registry.ResetSlot(slot)
	}

	l.playable = playableArea
	l.surfaces = set
	l.facade = l.newFacade()
	l.task = nil

	material := bake.Material{
		Depth:    l.depth,
		Bias:     l.cfg.Bake.Bias,
		Softness: l.cfg.Bake.Softness,
	}
	task, err := l.pipeline.BakeMasks(set.Surfaces(), material, l.cfg.Bake.Resolution)
	if err != nil {
		logs.Warn(err)
	} else {
		l.task = task
	}

	logs.WithTag("surfaces", set.Len()).
		WithTag("candidates", len(candidates)).
		WithTag("resolution", l.cfg.Bake.Resolution).
		Info("level loaded")
	return nil
}

func (l *level) StepBake() bool {
	if l.task == nil {
		return false
	}
	if l.task.Done() {
		return true
	}
	if !l.task.Step() {
		return false
	}

	if err := l.dispatcher.BindMasks(l.task.Masks()); err != nil {
		logs.Warn(errors.New("binding baked masks failed").
			WithTag("surfaces", l.surfaces.Len()).
			Wrap(err))
	}
	return true
}

func (l *level) Baked() bool {
	return l.task != nil && l.task.Done()
}

func (l *level) Tick(dt time.Duration) {
	l.elapsed += dt
	l.intensity.advance(dt)

	if l.task != nil && !l.task.Done() {
		l.StepBake()
	}
	l.dispatcher.Tick(l.kernelParams())
}

func (l *level) kernelParams() dispatcher.KernelParams {
	return dispatcher.KernelParams{
		CoverageIntensity: l.intensity.current,
		Footprint:         dispatcher.FootprintMatrix(l.playable, l.cfg.Sampling.FootprintCeiling, l.cfg.Sampling.FootprintDepth),
	}
}

func (l *level) SetCoverageIntensity(target float32, over time.Duration) {
	l.intensity.set(target, over)
}

func (l *level) CoverageIntensity() float32 {
	return l.intensity.current
}

func (l *level) Coverage() coverage.Facade {
	return l.facade
}

func (l *level) Surfaces() *surface.Set {
	return l.surfaces
}

func (l *level) Masks() *bake.MaskArray {
	if l.task == nil {
		return nil
	}
	return l.task.Masks()
}

func (l *level) Dispatcher() dispatcher.Dispatcher {
	return l.dispatcher
}

func (l *level) Close() {
	l.builder.Close()
	l.pipeline.Release()
	l.dispatcher.Release()
	logs.WithTag("uptime", l.elapsed.String()).
		Info("level closed")
}

// intensityRamp moves the coverage intensity linearly towards a target.
type intensityRamp struct {
	start, current, target float32
	duration, progress     time.Duration
}

func (r *intensityRamp) set(target float32, over time.Duration) {
	r.start = r.current
	r.target = target
	r.duration = over
	r.progress = 0
	if over <= 0 {
		r.current = target
	}
}

func (r *intensityRamp) advance(dt time.Duration) {
	if r.current == r.target || r.duration <= 0 {
		r.current = r.target
		return
	}
	r.progress = min(r.progress+dt, r.duration)
	t := float32(r.progress) / float32(r.duration)
	r.current = common.Lerp(r.start, r.target, t)
}
