package surface

import (
	"context"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine/mesher"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// BuildConfig holds the per-level settings of a surface build.
type BuildConfig struct {
	// PlayableArea is the region of interest terrain is meshed at full density around.
	PlayableArea common.Rect2
	// BaseCellSize is the terrain cell size, in grid steps, inside the playable area.
	BaseCellSize float32
	// MaxCellSize is the largest terrain cell size, in grid steps, far from the playable area.
	MaxCellSize float32
	// FalloffSpeed scales how quickly terrain cells coarsen with distance.
	FalloffSpeed float32
	// MaxDistance normalizes the coarsening distance.
	MaxDistance float32
	// PostProcess is applied to every candidate mesh.
	PostProcess PostProcess
	// OverlayLayer is the render layer mask of the coverage overlays. It is removed from each source surface's layer.
	OverlayLayer uint32
	// OverlayMaterial is the name given to overlay materials.
	OverlayMaterial string
}

// builder is the implementation of the Builder interface.
type builder struct {
	mesherOptions []mesher.MesherBuilderOption
	workers       int
	queueSize     int
	pool          worker.DynamicWorkerPool
	closeOnce     sync.Once
}

// Builder turns level geometry candidates into indexed ground surfaces.
type Builder interface {
	// BuildSurfaces processes candidates one by one on the calling goroutine.
	// Candidates without renderable geometry are skipped with a warning.
	// Surviving surfaces get dense indices in candidate order.
	//
	// Parameters:
	//   - candidates: the level geometry candidates
	//   - cfg: the build settings
	//
	// Returns:
	//   - *Set: the built surfaces
	BuildSurfaces(candidates []Candidate, cfg BuildConfig) *Set

	// BuildSurfacesAsync processes candidates concurrently on the builder's worker pool, joins,
	// then assigns dense indices in candidate order.
	//
	// Parameters:
	//   - ctx: cancels candidates that have not started processing yet
	//   - candidates: the level geometry candidates
	//   - cfg: the build settings
	//
	// Returns:
	//   - *Set: the built surfaces
	//   - error: non-nil when ctx ended before the build completed
	BuildSurfacesAsync(ctx context.Context, candidates []Candidate, cfg BuildConfig) (*Set, error)

	// Close stops the worker pool.
	Close()
}

var _ Builder = &builder{}

// NewBuilder creates a new Builder with the provided options.
//
// Parameters:
//   - options: variadic list of BuilderOption functions to configure the builder
//
// Returns:
//   - Builder: the configured builder
func NewBuilder(options ...BuilderOption) Builder {
	b := &builder{
		workers:   defaultWorkers,
		queueSize: defaultQueueSize,
	}
	for _, opt := range options {
		opt(b)
	}
	b.pool = worker.NewDynamicWorkerPool(b.workers, b.queueSize, 1*time.Second)
	return b
}

func (b *builder) BuildSurfaces(candidates []Candidate, cfg BuildConfig) *Set {
	surfaces := make([]*Surface, len(candidates))
	errs := make([]error, len(candidates))
	for i, c := range candidates {
		surfaces[i], errs[i] = b.process(c, cfg)
	}
	return b.collect(candidates, surfaces, errs)
}

func (b *builder) BuildSurfacesAsync(ctx context.Context, candidates []Candidate, cfg BuildConfig) (*Set, error) {
	surfaces := make([]*Surface, len(candidates))
	errs := make([]error, len(candidates))

	var wg sync.WaitGroup
	for i, c := range candidates {
		wg.Add(1)
		idx, cand := i, c
		b.pool.SubmitTask(worker.Task{
			ID:      idx,
			Payload: cand.Name(),
			Do: func() (any, error) {
				defer wg.Done()
				if err := ctx.Err(); err != nil {
					errs[idx] = err
					return nil, err
				}
				surfaces[idx], errs[idx] = b.process(cand, cfg)
				return surfaces[idx], errs[idx]
			},
		})
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, errors.New("surface build canceled").
			WithTag("candidates", len(candidates)).
			WithType(ErrTypeBuildCanceled).
			Wrap(err)
	}
	return b.collect(candidates, surfaces, errs), nil
}

func (b *builder) Close() {
	b.closeOnce.Do(func() {
		b.pool.Stop()
	})
}

// process produces the surface for one candidate. It is safe to call concurrently.
func (b *builder) process(c Candidate, cfg BuildConfig) (*Surface, error) {
	env := geometryEnv{
		mesher: mesher.NewMesher(b.mesherOptions...),
		params: terrainParams(cfg.PlayableArea, cfg),
		post:   cfg.PostProcess,
	}

	mesh := c.geometry(env)
	if mesh == nil {
		return nil, errors.New("candidate has no renderable geometry").
			WithTag("candidate", c.Name()).
			WithTag("kind", c.Kind().String()).
			WithType(ErrTypeMissingGeometry)
	}
	cfg.PostProcess.Apply(mesh)

	s := &Surface{
		Handle: NewHandle(),
		Name:   c.Name(),
		Kind:   c.Kind(),
		Mesh:   mesh,
		Layer:  c.RenderLayer() &^ cfg.OverlayLayer,
		Overlay: Overlay{
			Mesh:     mesh.Clone(),
			Material: OverlayMaterial{Name: cfg.OverlayMaterial},
			Layer:    cfg.OverlayLayer,
		},
	}
	if cfg.PostProcess.MirrorCollision && c.HasCollision() {
		s.Collision = mesh.Clone()
	}
	return s, nil
}

// collect is the single point where indices are assigned.
func (b *builder) collect(candidates []Candidate, surfaces []*Surface, errs []error) *Set {
	kept := make([]*Surface, 0, len(surfaces))
	for i, s := range surfaces {
		if errs[i] != nil || s == nil {
			logs.Warn(errs[i])
			instrumentCandidateSkipped(candidates[i].Kind())
			continue
		}
		kept = append(kept, s)
		instrumentSurfaceBuilt(s.Kind)
	}

	set := NewSet(kept)
	logs.WithTag("surfaces", set.Len()).
		WithTag("candidates", len(candidates)).
		Info("ground surfaces built")
	return set
}
