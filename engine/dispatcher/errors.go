package dispatcher

const (
	// ErrTypeReadback marks compute round-trips that completed with an error; the output array keeps its contents.
	ErrTypeReadback = "dispatcher-readback"
	// ErrTypeMisconfigured marks dispatches attempted before any surface masks were bound.
	ErrTypeMisconfigured = "dispatcher-misconfigured"
)
