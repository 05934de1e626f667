package bake

import "github.com/Carmen-Shannon/oxy-coverage/engine/surface"

// Backend runs the per-surface bake stages against its off-screen targets.
// A bake step calls Clear, Render, BlurHorizontal, BlurVertical and Readback in that order.
type Backend interface {
	// Configure allocates resolution x resolution targets and stores the blur kernel.
	// It is called once per bake before any other stage.
	//
	// Parameters:
	//   - resolution: the target side length in texels
	//   - kernel: normalized 1D blur weights with an odd length
	//
	// Returns:
	//   - error: an error if targets could not be allocated
	Configure(resolution int, kernel []float32) error

	// Clear zeroes the render target.
	Clear() error

	// Render draws mesh into the render target in UV space, writing the material's exposure of each texel.
	Render(mesh *surface.Mesh, material Material) error

	// BlurHorizontal blurs the render target into the first blur target along X.
	BlurHorizontal() error

	// BlurVertical blurs the first blur target into the second along Y.
	BlurVertical() error

	// Readback returns the second blur target as row-major values.
	Readback() ([]float32, error)

	// Release frees the targets.
	Release()
}
