package dispatcher

import (
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
)

// ReadbackResult is the outcome of one compute round-trip.
type ReadbackResult struct {
	// Records holds one output record per input record when Err is nil.
	Records []registry.Record
	// Err is the failure that ended the round-trip.
	Err error
}

// Device runs the sample kernel. Implementations deliver each round-trip's result on the channel returned
// by Dispatch; the channel is buffered so completion never blocks on the consumer.
type Device interface {
	// SetParams replaces the kernel parameters used by later dispatches.
	SetParams(params KernelParams)

	// BindMasks sets the mask array the kernel samples. A nil array unbinds it.
	//
	// Parameters:
	//   - masks: the finished mask array
	//
	// Returns:
	//   - error: an error if the array could not be uploaded
	BindMasks(masks *bake.MaskArray) error

	// Dispatch uploads a copy of input, runs the kernel and starts the asynchronous readback.
	//
	// Parameters:
	//   - input: the input record array
	//
	// Returns:
	//   - <-chan ReadbackResult: receives exactly one result
	//   - error: an error if the dispatch could not be started
	Dispatch(input []registry.Record) (<-chan ReadbackResult, error)

	// Poll lets the device make progress on outstanding readbacks without blocking.
	Poll()

	// Release frees the device's resources.
	Release()
}
