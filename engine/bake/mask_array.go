package bake

import (
	"image"
	"sync"

	"github.com/Carmen-Shannon/oxy-coverage/common"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"golang.org/x/image/draw"
)

// MaskArray is the layered coverage mask texture: one resolution x resolution slice per surface index,
// each with an optional chain of mip levels. It is written during a bake and read-only once immutable.
type MaskArray struct {
	mu         sync.RWMutex
	resolution int
	layers     int
	// levels[level][layer] holds a row-major (resolution>>level)^2 slice.
	levels    [][][]float32
	immutable bool
}

// NewMaskArray creates a zeroed array with a single mip level.
//
// Parameters:
//   - resolution: the side length of every slice in texels
//   - layers: the number of slices
//
// Returns:
//   - *MaskArray: the array
func NewMaskArray(resolution, layers int) *MaskArray {
	base := make([][]float32, layers)
	for i := range base {
		base[i] = make([]float32, resolution*resolution)
	}
	return &MaskArray{
		resolution: resolution,
		layers:     layers,
		levels:     [][][]float32{base},
	}
}

// Resolution returns the side length of a level 0 slice.
func (m *MaskArray) Resolution() int {
	return m.resolution
}

// Layers returns the number of slices.
func (m *MaskArray) Layers() int {
	return m.layers
}

// Levels returns the number of mip levels, including level 0.
func (m *MaskArray) Levels() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.levels)
}

// Immutable reports whether the array has been finalized.
func (m *MaskArray) Immutable() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.immutable
}

// MarkImmutable finalizes the array. Later writes fail.
func (m *MaskArray) MarkImmutable() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.immutable = true
}

// SetSlice copies data into level 0 of layer.
//
// Parameters:
//   - layer: the slice index
//   - data: resolution*resolution row-major values
//
// Returns:
//   - error: when the array is immutable, the layer is out of range or data has the wrong size
func (m *MaskArray) SetSlice(layer int, data []float32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writable(layer); err != nil {
		return err
	}
	if len(data) != m.resolution*m.resolution {
		return errors.New("mask slice has the wrong size").
			WithTag("layer", layer).
			WithTag("values", len(data)).
			WithTag("resolution", m.resolution).
			WithType(ErrTypeMaskWrite)
	}
	copy(m.levels[0][layer], data)
	return nil
}

// ClearSlice zeroes level 0 of layer.
func (m *MaskArray) ClearSlice(layer int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.writable(layer); err != nil {
		return err
	}
	clear(m.levels[0][layer])
	return nil
}

func (m *MaskArray) writable(layer int) error {
	if m.immutable {
		return errors.New("mask array is immutable").
			WithTag("layer", layer).
			WithType(ErrTypeMaskWrite)
	}
	if layer < 0 || layer >= m.layers {
		return errors.New("mask layer out of range").
			WithTag("layer", layer).
			WithTag("layers", m.layers).
			WithType(ErrTypeMaskWrite)
	}
	return nil
}

// Slice returns a copy of level 0 of layer, or nil when the layer is out of range.
func (m *MaskArray) Slice(layer int) []float32 {
	return m.SliceLevel(layer, 0)
}

// SliceLevel returns a copy of a mip level of layer, or nil when either is out of range.
func (m *MaskArray) SliceLevel(layer, level int) []float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if level < 0 || level >= len(m.levels) || layer < 0 || layer >= m.layers {
		return nil
	}
	return append([]float32(nil), m.levels[level][layer]...)
}

// Data returns level 0 of every layer packed back to back, the layout uploaded to compute devices.
func (m *MaskArray) Data() []float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]float32, 0, m.layers*m.resolution*m.resolution)
	for _, s := range m.levels[0] {
		out = append(out, s...)
	}
	return out
}

// Sample bilinearly samples level 0 of layer at (u, v) in [0, 1]. Out of range layers sample as 0.
//
// Parameters:
//   - layer: the slice index
//   - u: the horizontal coordinate
//   - v: the vertical coordinate
//
// Returns:
//   - float32: the filtered mask value
func (m *MaskArray) Sample(layer int, u, v float32) float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if layer < 0 || layer >= m.layers || m.resolution == 0 {
		return 0
	}
	n := float32(m.resolution)
	return common.Bilinear(m.levels[0][layer], m.resolution, m.resolution, u*n-0.5, v*n-0.5)
}

// GenerateMipmaps rebuilds the mip chain from level 0 with bilinear downsampling.
// The chain stops early when a level would be smaller than one texel.
//
// Parameters:
//   - levels: the total number of levels wanted, including level 0
//
// Returns:
//   - error: when the array is immutable
func (m *MaskArray) GenerateMipmaps(levels int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.immutable {
		return errors.New("mask array is immutable").
			WithType(ErrTypeMaskWrite)
	}

	m.levels = m.levels[:1]
	size := m.resolution
	for level := 1; level < levels && size > 1; level++ {
		next := size / 2
		prev := m.levels[level-1]
		cur := make([][]float32, m.layers)
		for layer := range cur {
			cur[layer] = downsample(prev[layer], size, next)
		}
		m.levels = append(m.levels, cur)
		size = next
	}
	return nil
}

// downsample scales a size^2 slice to next^2 through 16-bit grayscale images.
func downsample(src []float32, size, next int) []float32 {
	srcImg := image.NewGray16(image.Rect(0, 0, size, size))
	for i, v := range src {
		srcImg.Pix[i*2], srcImg.Pix[i*2+1] = toGray16(v)
	}

	dstImg := image.NewGray16(image.Rect(0, 0, next, next))
	draw.BiLinear.Scale(dstImg, dstImg.Bounds(), srcImg, srcImg.Bounds(), draw.Src, nil)

	out := make([]float32, next*next)
	for i := range out {
		out[i] = float32(uint16(dstImg.Pix[i*2])<<8|uint16(dstImg.Pix[i*2+1])) / 0xffff
	}
	return out
}

func toGray16(v float32) (byte, byte) {
	g := uint16(common.Clamp01(v)*0xffff + 0.5)
	return byte(g >> 8), byte(g)
}
