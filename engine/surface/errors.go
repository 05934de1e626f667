package surface

const (
	// ErrTypeMissingGeometry marks candidates skipped because they have no renderable geometry.
	ErrTypeMissingGeometry = "surface-missing-geometry"
	// ErrTypeBuildCanceled marks asynchronous builds abandoned because their context ended.
	ErrTypeBuildCanceled = "surface-build-canceled"
)
