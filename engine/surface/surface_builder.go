package surface

import "github.com/Carmen-Shannon/oxy-coverage/engine/mesher"

// BuilderOption is a function that configures a Builder instance during construction.
type BuilderOption func(*builder)

// WithWorkers is an option builder that sets the maximum number of concurrent candidate workers
// used by BuildSurfacesAsync.
//
// Parameters:
//   - n: the worker count, ignored when <= 0
//
// Returns:
//   - BuilderOption: a function that applies the worker count option to a builder
func WithWorkers(n int) BuilderOption {
	return func(b *builder) {
		if n > 0 {
			b.workers = n
		}
	}
}

// WithQueueSize is an option builder that sets the worker pool's task queue size.
//
// Parameters:
//   - n: the queue size, ignored when <= 0
//
// Returns:
//   - BuilderOption: a function that applies the queue size option to a builder
func WithQueueSize(n int) BuilderOption {
	return func(b *builder) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// WithMesherOptions is an option builder that sets the options of the meshers created for heightmap candidates.
//
// Parameters:
//   - opts: the mesher options
//
// Returns:
//   - BuilderOption: a function that applies the mesher options to a builder
func WithMesherOptions(opts ...mesher.MesherBuilderOption) BuilderOption {
	return func(b *builder) {
		b.mesherOptions = append(b.mesherOptions, opts...)
	}
}
