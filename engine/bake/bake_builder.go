package bake

// PipelineBuilderOption is a function that configures a Pipeline instance during construction.
type PipelineBuilderOption func(*pipeline)

// WithBlurRadius is an option builder that sets the blur kernel radius in texels.
//
// Parameters:
//   - radius: the kernel radius, 0 disables blurring
//
// Returns:
//   - PipelineBuilderOption: a function that applies the blur radius option to a pipeline
func WithBlurRadius(radius int) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blurRadius = max(radius, 0)
	}
}

// WithBlurSigma is an option builder that sets the blur kernel's standard deviation.
// Defaults to half the radius.
//
// Parameters:
//   - sigma: the standard deviation in texels
//
// Returns:
//   - PipelineBuilderOption: a function that applies the blur sigma option to a pipeline
func WithBlurSigma(sigma float32) PipelineBuilderOption {
	return func(p *pipeline) {
		p.blurSigma = sigma
	}
}

// WithMipLevels is an option builder that sets how many mip levels, including level 0, finished arrays carry.
//
// Parameters:
//   - levels: the mip level count, ignored when < 1
//
// Returns:
//   - PipelineBuilderOption: a function that applies the mip level option to a pipeline
func WithMipLevels(levels int) PipelineBuilderOption {
	return func(p *pipeline) {
		if levels >= 1 {
			p.mipLevels = levels
		}
	}
}
