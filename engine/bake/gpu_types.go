package bake

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
)

// BakeMaskSource is the WGSL program that renders a surface's exposure into UV space.
// Its BakeUniform matches GPUBakeUniform exactly (48 bytes).
//
//go:embed assets/bake_mask.wgsl
var BakeMaskSource string

// BlurSource is the WGSL compute program for one separable Gaussian blur pass.
// Its BlurUniform matches GPUBlurUniform exactly (16 bytes).
//
//go:embed assets/blur.wgsl
var BlurSource string

// bakeVertexStride is the byte size of one vertex in the bake vertex buffer: position vec3 + uv vec2.
const bakeVertexStride = 20

// GPUBakeUniform is the GPU-aligned bake material and depth source description.
type GPUBakeUniform struct {
	DepthOrigin [2]float32 // offset  0: world XZ of the depth grid's minimum corner
	DepthSize   [2]float32 // offset  8: world XZ extent of the depth grid
	DepthDims   [2]uint32  // offset 16: depth grid width and height
	Bias        float32    // offset 24: surface lift before the occlusion test
	Softness    float32    // offset 28: exposure fade distance under an occluder
	HasDepth    uint32     // offset 32: 1 when the occluder buffer holds data
	_pad        [3]uint32  // offset 36: padding to 48 bytes
}

// Size returns the size of the GPUBakeUniform struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (48)
func (g *GPUBakeUniform) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUBakeUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPUBakeUniform) Marshal() []byte {
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint32(buf[0:4], math.Float32bits(g.DepthOrigin[0]))
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.DepthOrigin[1]))
	binary.LittleEndian.PutUint32(buf[8:12], math.Float32bits(g.DepthSize[0]))
	binary.LittleEndian.PutUint32(buf[12:16], math.Float32bits(g.DepthSize[1]))
	binary.LittleEndian.PutUint32(buf[16:20], g.DepthDims[0])
	binary.LittleEndian.PutUint32(buf[20:24], g.DepthDims[1])
	binary.LittleEndian.PutUint32(buf[24:28], math.Float32bits(g.Bias))
	binary.LittleEndian.PutUint32(buf[28:32], math.Float32bits(g.Softness))
	binary.LittleEndian.PutUint32(buf[32:36], g.HasDepth)
	return buf
}

// GPUBlurUniform is the GPU-aligned parameter block of one blur pass.
type GPUBlurUniform struct {
	Resolution uint32 // offset  0: target side length
	Radius     uint32 // offset  4: kernel radius
	Horizontal uint32 // offset  8: 1 for the X pass, 0 for the Y pass
	_pad       uint32 // offset 12: padding to 16 bytes
}

// Marshal serializes the GPUBlurUniform struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *GPUBlurUniform) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], g.Resolution)
	binary.LittleEndian.PutUint32(buf[4:8], g.Radius)
	binary.LittleEndian.PutUint32(buf[8:12], g.Horizontal)
	return buf
}

// marshalBakeVertices packs mesh vertices as position vec3 + uv vec2.
func marshalBakeVertices(mesh *surface.Mesh) []byte {
	buf := make([]byte, len(mesh.Vertices)*bakeVertexStride)
	for i, v := range mesh.Vertices {
		o := i * bakeVertexStride
		binary.LittleEndian.PutUint32(buf[o:o+4], math.Float32bits(v.Position[0]))
		binary.LittleEndian.PutUint32(buf[o+4:o+8], math.Float32bits(v.Position[1]))
		binary.LittleEndian.PutUint32(buf[o+8:o+12], math.Float32bits(v.Position[2]))
		binary.LittleEndian.PutUint32(buf[o+12:o+16], math.Float32bits(v.UV[0]))
		binary.LittleEndian.PutUint32(buf[o+16:o+20], math.Float32bits(v.UV[1]))
	}
	return buf
}

// marshalIndices packs triangle indices as little-endian uint32.
func marshalIndices(indices []uint32) []byte {
	buf := make([]byte, len(indices)*4)
	for i, idx := range indices {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], idx)
	}
	return buf
}

// marshalFloats packs values as little-endian float32.
func marshalFloats(values []float32) []byte {
	buf := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}
