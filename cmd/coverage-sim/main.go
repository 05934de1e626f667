package main

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/Carmen-Shannon/oxy-coverage/engine"
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	corecfg "github.com/Carmen-Shannon/oxy-coverage/engine/config"
	"github.com/Carmen-Shannon/oxy-coverage/engine/dispatcher"
	"github.com/Carmen-Shannon/oxy-coverage/engine/gpu"
	"github.com/Carmen-Shannon/oxy-coverage/engine/level"
	"github.com/Carmen-Shannon/oxy-coverage/engine/loader"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
)

var (
	// The simulator version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "coverage_sim_info",
		Help:        "Coverage simulator information.",
		ConstLabels: prometheus.Labels{"version": version},
	})

	walkerDepth = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "coverage_sim_walker_depth",
		Help:    "Coverage depth read under simulated walkers.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})
)

// Keeps the cli package from seeing obfuscated field names.
var _ = reflect.TypeOf(config{})

type config struct {
	Config      string        `cli:""        env:"COVERAGE_CONFIG"       help:"Path to the YAML core configuration."`
	MetricsAddr string        `cli:""        env:"COVERAGE_METRICS_ADDR" help:"Listening address for Prometheus metrics, empty to disable."`
	LogLevel    string        `cli:""        env:"COVERAGE_LOG_LEVEL"    help:"Log level (debug|info|warning|error)."`
	LogIndent   bool          `cli:""        env:"COVERAGE_LOG_INDENT"   help:"Indent logs."`
	Scene       string        `cli:""        env:"COVERAGE_SCENE"        help:"Optional glTF/GLB asset whose meshes are added as surface candidates."`
	GPU         bool          `cli:""        env:"COVERAGE_GPU"          help:"Bake and sample on the GPU, falling back to the CPU when no adapter is found."`
	TickRate    float64       `cli:""        env:"COVERAGE_TICK_RATE"    help:"Simulation ticks per second."`
	Duration    time.Duration `cli:""        env:"COVERAGE_DURATION"     help:"How long to run, 0 runs until interrupted."`
	Walkers     int           `cli:""        env:"COVERAGE_WALKERS"      help:"Number of simulated walking entities."`
	TerrainSize float32       `cli:",hidden" env:"COVERAGE_TERRAIN_SIZE" help:"Side length of the generated terrain."`
	Seed        int64         `cli:",hidden" env:"COVERAGE_SEED"         help:"Terrain and walker seed."`
	Profile     bool          `cli:",hidden" env:"COVERAGE_PROFILE"      help:"Log tick profiling stats."`
	Version     bool          `cli:""        env:"-"                     help:"Show version."`
	Help        bool          `cli:""        env:"-"                     help:"Show help."`
}

func main() {
	conf := config{
		MetricsAddr: ":18190",
		LogLevel:    logs.InfoLevel.String(),
		TickRate:    60,
		Walkers:     16,
		TerrainSize: 64,
		Seed:        1,
	}

	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Runs a headless coverage simulation.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}
	errors.Encoder = json.Marshal

	coreConf, err := corecfg.Load(conf.Config)
	if err != nil {
		logs.Fatal(errors.New("loading core configuration failed").Wrap(err))
	}

	if conf.Duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, conf.Duration)
		defer cancel()
	}

	if conf.MetricsAddr != "" {
		var admin http.ServeMux
		admin.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: conf.MetricsAddr, Handler: &admin}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logs.Error(errors.New("metrics server failed").Wrap(err))
			}
		}()
		defer server.Close()
	}

	area := common.NewRect2(mgl32.Vec2{0, 0}, mgl32.Vec2{conf.TerrainSize, conf.TerrainSize})
	terrain := surface.NoiseHeightmap(area, int(conf.TerrainSize)+1, 2, 0.08, conf.Seed)
	roof := newShelter(area, terrain)

	options, release := deviceOptions(conf.GPU)
	defer release()
	options = append(options, level.WithDepthSource(roof.depth(area, 128)))

	lvl := level.New(coreConf, options...)
	defer lvl.Close()

	candidates := sceneCandidates(area, terrain, roof)
	if conf.Scene != "" {
		imported, err := loader.NewLoader(loader.WithCollider(true)).Load(conf.Scene)
		if err != nil {
			logs.Fatal(errors.New("importing scene failed").Wrap(err))
		}
		candidates = append(candidates, imported...)
	}
	if err := lvl.Load(ctx, candidates, area); err != nil {
		logs.Fatal(errors.New("loading level failed").Wrap(err))
	}

	sim := newWalkers(lvl, terrain, area, conf.Walkers, conf.Seed)
	eng := engine.NewEngine(lvl,
		engine.WithTickRate(conf.TickRate),
		engine.WithProfiling(conf.Profile),
		engine.WithTickCallback(sim.tick),
	)

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("walkers", conf.Walkers).
		WithTag("surfaces", lvl.Surfaces().Len()).
		Info("starting coverage simulation")

	if err := eng.Run(ctx); err != nil {
		logs.Fatal(err)
	}

	logs.WithTag("ticks", eng.Ticks()).
		WithTag("dispatches", lvl.Dispatcher().Dispatches()).
		WithTag("completions", lvl.Dispatcher().Completions()).
		Info("coverage simulation finished")
}

// deviceOptions selects the bake backend and sample device. The returned func releases the GPU device.
func deviceOptions(useGPU bool) ([]level.LevelBuilderOption, func()) {
	if !useGPU {
		return nil, func() {}
	}

	dev, err := gpu.NewDevice(gpu.WithLabel("coverage-sim"))
	if err != nil {
		logs.Warn(errors.New("gpu unavailable, running on the cpu").Wrap(err))
		return nil, func() {}
	}
	sampler, err := dispatcher.NewWGPUDevice(dev)
	if err != nil {
		logs.Warn(errors.New("gpu sampler unavailable, running on the cpu").Wrap(err))
		dev.Release()
		return nil, func() {}
	}
	return []level.LevelBuilderOption{
		level.WithBakeBackend(bake.NewWGPUBackend(dev)),
		level.WithSampleDevice(sampler),
	}, dev.Release
}

// shelter is a flat roof that hides part of the terrain from falling coverage.
type shelter struct {
	center mgl32.Vec3
	size   float32
}

func newShelter(area common.Rect2, terrain *surface.Heightmap) shelter {
	x, z := area.Center.X()-8, area.Center.Y()
	return shelter{
		center: mgl32.Vec3{x, terrain.HeightAt(x, z) + 4, z},
		size:   8,
	}
}

// depth rasterizes the roof into an overhead height field of res×res texels over area.
func (s shelter) depth(area common.Rect2, res int) *bake.HeightField {
	field := bake.NewHeightField(area, res, res, -1e6)
	roof := common.NewRect2(mgl32.Vec2{s.center.X(), s.center.Z()}, mgl32.Vec2{s.size, s.size})
	lo, size := area.Min(), area.Size()
	for y := 0; y < res; y++ {
		for x := 0; x < res; x++ {
			p := mgl32.Vec2{
				lo.X() + (float32(x)+0.5)/float32(res)*size.X(),
				lo.Y() + (float32(y)+0.5)/float32(res)*size.Y(),
			}
			if roof.Contains(p) {
				field.Set(x, y, s.center.Y())
			}
		}
	}
	return field
}

// sceneCandidates returns the generated terrain plus a raised platform and the shelter roof.
func sceneCandidates(area common.Rect2, terrain *surface.Heightmap, roof shelter) []surface.Candidate {
	c := area.Center
	return []surface.Candidate{
		&surface.HeightmapCandidate{
			ID:       "terrain",
			Heights:  terrain,
			Layer:    1,
			Collider: true,
		},
		&surface.MeshCandidate{
			ID:        "platform",
			Mesh:      flatQuad(mgl32.Vec3{c.X() + 8, terrain.HeightAt(c.X()+8, c.Y()) + 1, c.Y()}, 6),
			BrokenUVs: true,
			Layer:     1,
			Collider:  true,
		},
		&surface.MeshCandidate{
			ID:    "shelter-roof",
			Mesh:  flatQuad(roof.center, roof.size),
			Layer: 1,
		},
	}
}

// flatQuad returns a flat square quad of the given size centered on center.
func flatQuad(center mgl32.Vec3, size float32) *surface.Mesh {
	h := size / 2
	x, y, z := center.X(), center.Y(), center.Z()
	return &surface.Mesh{
		Vertices: []surface.Vertex{
			{Position: mgl32.Vec3{x - h, y, z - h}, Normal: mgl32.Vec3{0, 1, 0}},
			{Position: mgl32.Vec3{x - h, y, z + h}, Normal: mgl32.Vec3{0, 1, 0}},
			{Position: mgl32.Vec3{x + h, y, z + h}, Normal: mgl32.Vec3{0, 1, 0}},
			{Position: mgl32.Vec3{x + h, y, z - h}, Normal: mgl32.Vec3{0, 1, 0}},
		},
		Indices: []uint32{0, 1, 2, 0, 2, 3},
	}
}

// walkers moves entities across the terrain and reports their contacts to the coverage facade.
type walkers struct {
	level   level.Level
	terrain *surface.Heightmap
	area    common.Rect2
	rng     *rand.Rand

	ids       []registry.EntityID
	positions []mgl32.Vec2
	headings  []mgl32.Vec2
	ticks     int
}

func newWalkers(lvl level.Level, terrain *surface.Heightmap, area common.Rect2, n int, seed int64) *walkers {
	w := &walkers{
		level:   lvl,
		terrain: terrain,
		area:    area,
		rng:     rand.New(rand.NewSource(seed)),
	}
	lo, hi := area.Min(), area.Max()
	for i := 0; i < n; i++ {
		id := registry.EntityID(i + 1)
		if !lvl.Coverage().Track(id) {
			logs.WithTag("entity", id).Warn(errors.New("sample capacity exhausted"))
			break
		}
		w.ids = append(w.ids, id)
		w.positions = append(w.positions, mgl32.Vec2{
			lo.X() + w.rng.Float32()*(hi.X()-lo.X()),
			lo.Y() + w.rng.Float32()*(hi.Y()-lo.Y()),
		})
		w.headings = append(w.headings, w.heading())
	}
	return w
}

func (w *walkers) heading() mgl32.Vec2 {
	a := w.rng.Float64() * 2 * math.Pi
	return mgl32.Vec2{float32(math.Cos(a)), float32(math.Sin(a))}
}

func (w *walkers) tick(dt time.Duration) {
	w.ticks++
	f := w.level.Coverage()
	ground := w.ground()
	step := float32(dt.Seconds()) * 2

	for i, id := range w.ids {
		p := w.positions[i].Add(w.headings[i].Mul(step))
		if !w.area.Contains(p) || w.rng.Float32() < 0.01 {
			w.headings[i] = w.heading()
			p = w.positions[i]
		}
		w.positions[i] = p

		hit := mgl32.Vec3{p.X(), w.terrain.HeightAt(p.X(), p.Y()), p.Y()}
		handle := surface.NilHandle
		var uv mgl32.Vec2
		if ground != nil {
			handle = ground.Handle
			uv = w.groundUV(ground, p)
		}
		f.UpdateEntitySample(id, hit, uv, handle)
		walkerDepth.Observe(float64(f.CoverageDepthAt(id)))
	}

	if w.ticks%600 == 0 && len(w.ids) > 0 {
		logs.WithTag("entity", w.ids[0]).
			WithTag("on_surface", f.IsOnRegisteredSurface(w.ids[0])).
			WithTag("depth", f.CoverageDepthAt(w.ids[0])).
			Debug("walker sample")
	}
}

// ground returns the terrain surface when it survived processing.
func (w *walkers) ground() *surface.Surface {
	s, ok := w.level.Surfaces().At(0)
	if !ok || !s.Valid() || s.Name != "terrain" {
		return nil
	}
	return s
}

// groundUV projects p onto the terrain mask, whose UVs are normalized to the mesh XZ bounds.
func (w *walkers) groundUV(s *surface.Surface, p mgl32.Vec2) mgl32.Vec2 {
	lo, hi := s.Mesh.Bounds()
	rect := common.NewRect2FromMinMax(mgl32.Vec2{lo.X(), lo.Z()}, mgl32.Vec2{hi.X(), hi.Z()})
	return rect.Normalize(p)
}
