package bake

const (
	// ErrTypeInvalidatedGeometry marks bake steps skipped because the surface geometry was destroyed.
	ErrTypeInvalidatedGeometry = "bake-invalidated-geometry"
	// ErrTypeMisconfigured marks bakes started with no surfaces or an unusable resolution.
	ErrTypeMisconfigured = "bake-misconfigured"
	// ErrTypeMaskWrite marks rejected writes to the mask array.
	ErrTypeMaskWrite = "bake-mask-write"
	// ErrTypeBackend marks failures of a backend stage.
	ErrTypeBackend = "bake-backend"
)
