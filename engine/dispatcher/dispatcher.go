// package dispatcher pushes the registry's input records through the sample kernel with at most one
// round-trip in flight.
package dispatcher

import (
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

// State is the dispatcher's round-trip state.
type State int

const (
	// Idle means no round-trip is in flight and the next evaluation tick may dispatch.
	Idle State = iota
	// Dispatching means a round-trip is in flight; no new dispatch starts until it completes.
	Dispatching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// dispatcher is the implementation of the Dispatcher interface.
type dispatcher struct {
	registry registry.Registry
	device   Device

	interval int
	ticks    int
	layers   int

	state       State
	pending     <-chan ReadbackResult
	generations []uint64

	dispatches      int
	completions     int
	warnedMisconfig bool
}

// Dispatcher drives the sample round-trip state machine from the simulation loop. It is not safe for
// concurrent use; the simulation loop owns it.
type Dispatcher interface {
	// Tick consumes a completed round-trip if one is ready, refreshes the kernel parameters and,
	// when Idle on an evaluation tick, starts the next round-trip. It never blocks.
	//
	// Parameters:
	//   - params: the current kernel parameters
	Tick(params KernelParams)

	// BindMasks hands the finished mask array to the device. Dispatches are refused until an array with at
	// least one layer is bound.
	//
	// Parameters:
	//   - masks: the mask array, nil to unbind
	//
	// Returns:
	//   - error: an error if the device could not take the array
	BindMasks(masks *bake.MaskArray) error

	// State returns the current round-trip state.
	State() State

	// Dispatches returns how many round-trips were started.
	Dispatches() int

	// Completions returns how many round-trips completed, successfully or not.
	Completions() int

	// Release frees the device.
	Release()
}

var _ Dispatcher = &dispatcher{}

// NewDispatcher creates a Dispatcher that samples reg's records on device.
//
// Parameters:
//   - reg: the registry owning the input and output records
//   - device: the device running the kernel
//   - options: variadic list of DispatcherBuilderOption functions to configure the dispatcher
//
// Returns:
//   - Dispatcher: the dispatcher
func NewDispatcher(reg registry.Registry, device Device, options ...DispatcherBuilderOption) Dispatcher {
	d := &dispatcher{
		registry: reg,
		device:   device,
		interval: 1,
		state:    Idle,
	}
	for _, opt := range options {
		opt(d)
	}
	return d
}

func (d *dispatcher) Tick(params KernelParams) {
	d.device.Poll()
	d.receive()

	d.device.SetParams(params)

	d.ticks++
	if d.ticks%d.interval != 0 || d.state != Idle {
		return
	}
	if d.layers == 0 {
		d.warnMisconfigured(errors.New("no registered surfaces to sample").
			WithType(ErrTypeMisconfigured))
		return
	}

	ch, err := d.device.Dispatch(d.registry.Input())
	if err != nil {
		if errors.IsType(err, ErrTypeMisconfigured) {
			d.warnMisconfigured(err)
		} else {
			logs.Warn(err)
		}
		return
	}
	d.pending = ch
	d.generations = d.registry.Generations()
	d.state = Dispatching
	d.dispatches++
	instrumentDispatch()
}

// receive completes the in-flight round-trip if its result is ready.
func (d *dispatcher) receive() {
	if d.state != Dispatching {
		return
	}
	select {
	case res := <-d.pending:
		d.complete(res)
	default:
	}
}

func (d *dispatcher) complete(res ReadbackResult) {
	generations := d.generations
	d.pending = nil
	d.generations = nil
	d.state = Idle
	d.completions++

	if res.Err != nil {
		instrumentReadbackError()
		logs.Warn(errors.New("sample readback failed").
			WithTag("dispatch", d.dispatches).
			WithType(ErrTypeReadback).
			Wrap(res.Err))
		return
	}
	if err := d.registry.CommitOutput(res.Records, generations); err != nil {
		instrumentReadbackError()
		logs.Warn(errors.New("sample readback rejected").
			WithTag("dispatch", d.dispatches).
			WithType(ErrTypeReadback).
			Wrap(err))
	}
}

// warnMisconfigured logs the first misconfigured dispatch attempt only; it repeats every tick otherwise.
func (d *dispatcher) warnMisconfigured(err error) {
	if d.warnedMisconfig {
		return
	}
	d.warnedMisconfig = true
	logs.Warn(err)
}

func (d *dispatcher) BindMasks(masks *bake.MaskArray) error {
	if err := d.device.BindMasks(masks); err != nil {
		return err
	}
	d.layers = 0
	if masks != nil {
		d.layers = masks.Layers()
	}
	d.warnedMisconfig = false
	logs.WithTag("layers", d.layers).
		Debug("sample masks bound")
	return nil
}

func (d *dispatcher) State() State {
	return d.state
}

func (d *dispatcher) Dispatches() int {
	return d.dispatches
}

func (d *dispatcher) Completions() int {
	return d.completions
}

func (d *dispatcher) Release() {
	d.device.Release()
}
