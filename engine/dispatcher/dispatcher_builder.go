package dispatcher

// DispatcherBuilderOption is a function that configures a Dispatcher instance during construction.
type DispatcherBuilderOption func(*dispatcher)

// WithInterval is an option builder that makes every n-th tick an evaluation tick. Parameters are still
// refreshed on every tick.
//
// Parameters:
//   - n: the number of ticks between dispatch attempts, ignored when < 1
//
// Returns:
//   - DispatcherBuilderOption: a function that applies the interval option to a dispatcher
func WithInterval(n int) DispatcherBuilderOption {
	return func(d *dispatcher) {
		if n >= 1 {
			d.interval = n
		}
	}
}
