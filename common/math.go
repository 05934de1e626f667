package common

import (
	"unsafe"
)

// SliceToBytes converts any slice to a byte slice for GPU buffer uploads.
// Uses unsafe pointer operations to create a view into the original data.
// WARNING: The returned slice shares memory with the input - do not modify.
//
// Parameters:
//   - data: source slice of any type
//
// Returns:
//   - []byte: byte slice view of the input data, or nil if input is empty
func SliceToBytes[T any](data []T) []byte {
	if len(data) == 0 {
		return nil
	}
	var zero T
	size := unsafe.Sizeof(zero)
	totalBytes := int(size) * len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), totalBytes)
}

// BytesToFloat32s reinterprets a byte slice read back from the GPU as float32 values.
// Trailing bytes that do not form a whole float are ignored.
// WARNING: The returned slice shares memory with the input.
//
// Parameters:
//   - data: source bytes, little-endian float32 values
//
// Returns:
//   - []float32: float view of the input data, or nil if it holds less than one float
func BytesToFloat32s(data []byte) []float32 {
	n := len(data) / 4
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&data[0])), n)
}

// Lerp linearly interpolates between a and b by t.
func Lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

// Clamp restricts v to the closed range [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Clamp01 restricts v to [0, 1].
func Clamp01(v float32) float32 {
	return Clamp(v, 0, 1)
}

// Bilinear samples a row-major width x height grid of values at fractional texel coordinates.
// Coordinates are clamped to the grid edges, so sampling outside the grid returns the border value.
//
// Parameters:
//   - values: row-major grid data, len must be width*height
//   - width: number of columns
//   - height: number of rows
//   - x: fractional column coordinate (0 is the center of the first column)
//   - y: fractional row coordinate (0 is the center of the first row)
//
// Returns:
//   - float32: the interpolated value, 0 for an empty grid
func Bilinear(values []float32, width, height int, x, y float32) float32 {
	if width <= 0 || height <= 0 || len(values) < width*height {
		return 0
	}
	x = Clamp(x, 0, float32(width-1))
	y = Clamp(y, 0, float32(height-1))

	x0 := int(x)
	y0 := int(y)
	x1 := min(x0+1, width-1)
	y1 := min(y0+1, height-1)
	fx := x - float32(x0)
	fy := y - float32(y0)

	top := Lerp(values[y0*width+x0], values[y0*width+x1], fx)
	bottom := Lerp(values[y1*width+x0], values[y1*width+x1], fx)
	return Lerp(top, bottom, fy)
}
