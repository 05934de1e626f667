package level

import (
	"github.com/Carmen-Shannon/oxy-coverage/engine/bake"
	"github.com/Carmen-Shannon/oxy-coverage/engine/coverage"
	"github.com/Carmen-Shannon/oxy-coverage/engine/dispatcher"
)

// LevelBuilderOption is a function that configures a Level instance during construction.
type LevelBuilderOption func(*level)

// WithBakeBackend is an option builder that sets the backend masks are baked on.
//
// Parameters:
//   - backend: the bake backend, defaults to bake.NewCPUBackend()
//
// Returns:
//   - LevelBuilderOption: a function that applies the bake backend option to a level
func WithBakeBackend(backend bake.Backend) LevelBuilderOption {
	return func(l *level) {
		l.bakeBackend = backend
	}
}

// WithSampleDevice is an option builder that sets the device the sample kernel runs on.
//
// Parameters:
//   - device: the sample device, defaults to dispatcher.NewCPUDevice()
//
// Returns:
//   - LevelBuilderOption: a function that applies the sample device option to a level
func WithSampleDevice(device dispatcher.Device) LevelBuilderOption {
	return func(l *level) {
		l.sampleDevice = device
	}
}

// WithDepthSource is an option builder that sets the overhead depth buffer bakes sample.
//
// Parameters:
//   - depth: the depth source, nil leaves every surface fully exposed
//
// Returns:
//   - LevelBuilderOption: a function that applies the depth source option to a level
func WithDepthSource(depth bake.DepthSource) LevelBuilderOption {
	return func(l *level) {
		l.depth = depth
	}
}

// WithValidityPredicate is an option builder that sets the predicate contacts must pass to be sampled.
//
// Parameters:
//   - valid: the predicate
//
// Returns:
//   - LevelBuilderOption: a function that applies the predicate option to a level
func WithValidityPredicate(valid coverage.ValidityPredicate) LevelBuilderOption {
	return func(l *level) {
		l.valid = valid
	}
}
