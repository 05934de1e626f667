package loader

// LoaderBuilderOption is a functional option for configuring a Loader via NewLoader.
type LoaderBuilderOption func(*loader)

// WithLayer is an option builder that sets the render layer of imported candidates.
//
// Parameters:
//   - layer: the render layer bit set (default 1)
//
// Returns:
//   - LoaderBuilderOption: a function that applies the layer option to a loader
func WithLayer(layer uint32) LoaderBuilderOption {
	return func(l *loader) {
		l.layer = layer
	}
}

// WithCollider is an option builder that marks imported candidates as collision sources by default.
func WithCollider(collider bool) LoaderBuilderOption {
	return func(l *loader) {
		l.collider = collider
	}
}

// WithBrokenUVs is an option builder that replaces authored UVs with a planar projection by default.
func WithBrokenUVs(broken bool) LoaderBuilderOption {
	return func(l *loader) {
		l.brokenUVs = broken
	}
}
