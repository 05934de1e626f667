package bake

import "math"

// GaussianKernel returns normalized 1D Gaussian weights for offsets -radius..radius.
//
// Parameters:
//   - radius: the kernel radius in texels, values < 0 are treated as 0
//   - sigma: the standard deviation, defaults to radius/2 when <= 0
//
// Returns:
//   - []float32: 2*radius+1 weights summing to 1
func GaussianKernel(radius int, sigma float32) []float32 {
	radius = max(radius, 0)
	if sigma <= 0 {
		sigma = max(float32(radius)/2, 1)
	}
	weights := make([]float32, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-float64(i*i) / (2 * float64(sigma) * float64(sigma)))
		weights[i+radius] = float32(w)
		sum += w
	}
	for i := range weights {
		weights[i] = float32(float64(weights[i]) / sum)
	}
	return weights
}

// blurPass convolves a size x size image with kernel along one axis, clamping at the borders.
func blurPass(dst, src []float32, size int, kernel []float32, horizontal bool) {
	radius := len(kernel) / 2
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			var acc float32
			for k, w := range kernel {
				o := k - radius
				sx, sy := x, y
				if horizontal {
					sx = min(max(x+o, 0), size-1)
				} else {
					sy = min(max(y+o, 0), size-1)
				}
				acc += src[sy*size+sx] * w
			}
			dst[y*size+x] = acc
		}
	}
}
