// package engine runs the fixed-rate simulation loop that drives a coverage level.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-coverage/engine/level"
	"github.com/Carmen-Shannon/oxy-coverage/engine/profiler"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// engine implements the Engine interface.
type engine struct {
	mu              *sync.Mutex
	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	level level.Level

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   func(dt time.Duration)
	ticks          atomic.Uint64
}

// Engine is the simulation loop. Every tick it advances the level, then calls the tick callback,
// all on the loop goroutine.
type Engine interface {
	// Level returns the level the engine drives.
	Level() level.Level

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in ticks per second.
	//
	// Parameters:
	//   - tps: target ticks per second (defaults to 60 if <= 0)
	SetTickRate(tps float64)

	// SetTickCallback registers the function called after the level each tick.
	// Use it to move entities and report their contacts through the level's coverage facade.
	//
	// Parameters:
	//   - callback: function receiving the time since the previous tick
	SetTickCallback(callback func(dt time.Duration))

	// Ticks returns the number of ticks run so far.
	Ticks() uint64

	// Run drives the loop until ctx ends or Quit is called.
	//
	// Parameters:
	//   - ctx: stops the loop when done
	//
	// Returns:
	//   - error: an error if the engine is already running
	Run(ctx context.Context) error

	// Quit stops the loop. Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

// NewEngine creates a new Engine driving lvl.
//
// Parameters:
//   - lvl: the level to tick
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(lvl level.Level, options ...EngineBuilderOption) Engine {
	e := &engine{
		mu:               &sync.Mutex{},
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		level:            lvl,
		profiler:         profiler.NewProfiler(time.Second),
		engineTickRate:   time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Level() level.Level {
	return e.level
}

func (e *engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return errors.New("engine is already running")
	}
	e.running = true
	rate := e.engineTickRate
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	logs.WithTag("tick_rate", rate.String()).
		Info("engine started")

	ticker := time.NewTicker(rate)
	defer ticker.Stop()

	lastTick := time.Now()
	for {
		select {
		case <-ctx.Done():
			logs.WithTag("ticks", e.ticks.Load()).Info("engine stopped")
			return nil
		case <-e.quitChannel:
			logs.WithTag("ticks", e.ticks.Load()).Info("engine stopped")
			return nil
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
		case now := <-ticker.C:
			dt := now.Sub(lastTick)
			lastTick = now
			e.tick(dt)
		}
	}
}

// tick runs one simulation step.
func (e *engine) tick(dt time.Duration) {
	e.ticks.Add(1)
	if e.level != nil {
		e.level.Tick(dt)
	}

	e.mu.Lock()
	callback := e.tickCallback
	e.mu.Unlock()
	if callback != nil {
		callback(dt)
	}
	if e.profilingEnabled.Load() && e.profiler != nil {
		e.profiler.Tick()
	}
}

func (e *engine) Ticks() uint64 {
	return e.ticks.Load()
}

func (e *engine) Quit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in ticks per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(tps float64) {
	if tps <= 0 {
		tps = 60
	}
	newRate := time.Duration(float64(time.Second) / tps)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.engineTickRate = newRate
	if !e.running {
		return
	}

	// Replace any pending update so the loop only sees the latest rate.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(dt time.Duration)) {
	e.mu.Lock()
	e.tickCallback = callback
	e.mu.Unlock()
}
