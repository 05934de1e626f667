package dispatcher

import (
	_ "embed"
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-coverage/engine/registry"
	"github.com/go-gl/mathgl/mgl32"
)

// SampleSource is the WGSL compute program that samples the mask array for every record.
// Its KernelParams matches GPUKernelParams exactly (80 bytes) and its Record matches GPURecordSize.
//
//go:embed assets/sample.wgsl
var SampleSource string

const (
	// GPURecordSize is the stride of one registry.Record in the kernel's storage buffers.
	GPURecordSize = 32

	sampleWorkgroupSize = 64
)

// GPUKernelParams is the GPU-aligned uniform of the sample kernel.
type GPUKernelParams struct {
	Footprint  mgl32.Mat4 // offset  0: column-major footprint view-projection
	Intensity  float32    // offset 64: coverage intensity
	Layers     uint32     // offset 68: mask array layer count
	Resolution uint32     // offset 72: mask slice side length
	Count      uint32     // offset 76: number of records
}

// Marshal serializes the GPUKernelParams struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 80-byte buffer ready for GPU upload
func (g *GPUKernelParams) Marshal() []byte {
	buf := make([]byte, 80)
	for i, v := range g.Footprint {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[64:68], math.Float32bits(g.Intensity))
	binary.LittleEndian.PutUint32(buf[68:72], g.Layers)
	binary.LittleEndian.PutUint32(buf[72:76], g.Resolution)
	binary.LittleEndian.PutUint32(buf[76:80], g.Count)
	return buf
}

// marshalRecords packs records into the kernel's storage layout.
func marshalRecords(records []registry.Record) []byte {
	buf := make([]byte, len(records)*GPURecordSize)
	for i, r := range records {
		o := buf[i*GPURecordSize : (i+1)*GPURecordSize]
		binary.LittleEndian.PutUint32(o[0:4], math.Float32bits(r.W[0]))
		binary.LittleEndian.PutUint32(o[4:8], math.Float32bits(r.W[1]))
		binary.LittleEndian.PutUint32(o[8:12], math.Float32bits(r.W[2]))
		binary.LittleEndian.PutUint32(o[12:16], uint32(r.SurfaceIndex))
		binary.LittleEndian.PutUint32(o[16:20], math.Float32bits(r.UV[0]))
		binary.LittleEndian.PutUint32(o[20:24], math.Float32bits(r.UV[1]))
		binary.LittleEndian.PutUint32(o[24:28], math.Float32bits(r.CoverageDepth))
	}
	return buf
}

// unmarshalRecords decodes a readback of the kernel's output buffer.
func unmarshalRecords(data []byte) []registry.Record {
	records := make([]registry.Record, len(data)/GPURecordSize)
	for i := range records {
		o := data[i*GPURecordSize : (i+1)*GPURecordSize]
		records[i] = registry.Record{
			W: mgl32.Vec3{
				math.Float32frombits(binary.LittleEndian.Uint32(o[0:4])),
				math.Float32frombits(binary.LittleEndian.Uint32(o[4:8])),
				math.Float32frombits(binary.LittleEndian.Uint32(o[8:12])),
			},
			SurfaceIndex: int32(binary.LittleEndian.Uint32(o[12:16])),
			UV: mgl32.Vec2{
				math.Float32frombits(binary.LittleEndian.Uint32(o[16:20])),
				math.Float32frombits(binary.LittleEndian.Uint32(o[20:24])),
			},
			CoverageDepth: math.Float32frombits(binary.LittleEndian.Uint32(o[24:28])),
		}
	}
	return records
}
