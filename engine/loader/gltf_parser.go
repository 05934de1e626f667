package loader

import (
	"encoding/base64"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/segmentio/encoding/json"
)

const (
	// ErrTypeInvalidAsset is the error type returned for malformed or unsupported glTF data.
	ErrTypeInvalidAsset = "loader-invalid-asset"
)

// gltfParser decodes a glTF or GLB document and reads typed accessor data from its buffers.
type gltfParser struct {
	baseDir  string
	document *gltfDocument
	binChunk []byte
}

func newGLTFParser(baseDir string) *gltfParser {
	return &gltfParser{baseDir: baseDir}
}

func invalidAsset(msg string) errors.Error {
	return errors.New(msg).WithType(ErrTypeInvalidAsset)
}

// isGLB reports whether data starts with the GLB magic.
func isGLB(data []byte) bool {
	return len(data) >= 4 && binary.LittleEndian.Uint32(data[:4]) == gltfGLBMagic
}

// parse decodes data, detecting GLB by its magic.
func (p *gltfParser) parse(data []byte) error {
	if isGLB(data) {
		return p.parseGLB(data)
	}
	return p.parseJSON(data)
}

func (p *gltfParser) parseJSON(data []byte) error {
	var doc gltfDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return invalidAsset("decoding gltf json failed").Wrap(err)
	}
	if !strings.HasPrefix(doc.Asset.Version, "2.") {
		return invalidAsset("unsupported gltf version").
			WithTag("version", doc.Asset.Version)
	}
	if err := p.loadBuffers(&doc); err != nil {
		return err
	}
	p.document = &doc
	return nil
}

func (p *gltfParser) parseGLB(data []byte) error {
	if len(data) < gltfGLBHeaderSize {
		return invalidAsset("glb too small")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != gltfGLBMagic {
		return invalidAsset("invalid glb magic")
	}
	if v := binary.LittleEndian.Uint32(data[4:8]); v != gltfGLBVersion {
		return invalidAsset("unsupported glb version").WithTag("version", v)
	}

	var jsonChunk []byte
	for off := gltfGLBHeaderSize; off+8 <= len(data); {
		length := int(binary.LittleEndian.Uint32(data[off : off+4]))
		kind := binary.LittleEndian.Uint32(data[off+4 : off+8])
		off += 8
		if off+length > len(data) {
			return invalidAsset("glb chunk overruns file").
				WithTag("chunk_length", length)
		}
		switch kind {
		case gltfGLBChunkJSON:
			jsonChunk = data[off : off+length]
		case gltfGLBChunkBIN:
			p.binChunk = data[off : off+length]
		}
		off += length
	}
	if jsonChunk == nil {
		return invalidAsset("glb has no json chunk")
	}
	return p.parseJSON(jsonChunk)
}

// loadBuffers resolves every buffer from a data URI, a file next to the document or the GLB binary chunk.
func (p *gltfParser) loadBuffers(doc *gltfDocument) error {
	for i := range doc.Buffers {
		buf := &doc.Buffers[i]

		switch {
		case buf.URI == "" && i == 0 && p.binChunk != nil:
			buf.data = p.binChunk
		case buf.URI == "":
			return invalidAsset("buffer has no source").WithTag("buffer", i)
		case strings.HasPrefix(buf.URI, "data:"):
			data, err := decodeDataURI(buf.URI)
			if err != nil {
				return errors.New("decoding buffer failed").
					WithTag("buffer", i).
					WithType(ErrTypeInvalidAsset).
					Wrap(err)
			}
			buf.data = data
		default:
			data, err := os.ReadFile(filepath.Join(p.baseDir, buf.URI))
			if err != nil {
				return errors.New("reading buffer file failed").
					WithTag("buffer", i).
					WithTag("uri", buf.URI).
					Wrap(err)
			}
			buf.data = data
		}

		if len(buf.data) < buf.ByteLength {
			return invalidAsset("buffer shorter than declared").
				WithTag("buffer", i).
				WithTag("byte_length", buf.ByteLength).
				WithTag("actual", len(buf.data))
		}
	}
	return nil
}

// decodeDataURI decodes data:[<mediatype>];base64,<data>.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data uri")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, errors.Newf("unsupported data uri encoding %q", header)
	}
	return base64.StdEncoding.DecodeString(payload)
}

// elements returns the accessor's elements as byte slices of elementSize, honoring the view's stride.
func (p *gltfParser) elements(index int, accessorType string, elementSize int) ([][]byte, *gltfAccessor, error) {
	doc := p.document
	if index < 0 || index >= len(doc.Accessors) {
		return nil, nil, invalidAsset("accessor out of range").WithTag("accessor", index)
	}
	acc := &doc.Accessors[index]
	if acc.Type != accessorType {
		return nil, nil, invalidAsset("unexpected accessor type").
			WithTag("accessor", index).
			WithTag("type", acc.Type).
			WithTag("expected", accessorType)
	}
	if acc.Sparse != nil {
		return nil, nil, invalidAsset("sparse accessors are not supported").WithTag("accessor", index)
	}
	if acc.BufferView == nil || *acc.BufferView >= len(doc.BufferViews) {
		return nil, nil, invalidAsset("accessor has no buffer view").WithTag("accessor", index)
	}

	bv := &doc.BufferViews[*acc.BufferView]
	if bv.Buffer < 0 || bv.Buffer >= len(doc.Buffers) {
		return nil, nil, invalidAsset("buffer view out of range").WithTag("accessor", index)
	}
	data := doc.Buffers[bv.Buffer].data

	stride := elementSize
	if bv.ByteStride != nil && *bv.ByteStride > 0 {
		stride = *bv.ByteStride
	}
	start := bv.ByteOffset + acc.ByteOffset
	if acc.Count > 0 && start+(acc.Count-1)*stride+elementSize > len(data) {
		return nil, nil, invalidAsset("accessor overruns buffer").WithTag("accessor", index)
	}

	out := make([][]byte, acc.Count)
	for i := range out {
		off := start + i*stride
		out[i] = data[off : off+elementSize]
	}
	return out, acc, nil
}

func float32At(b []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
}

func (p *gltfParser) readVec3(index int) ([][3]float32, error) {
	elems, acc, err := p.elements(index, gltfAccessorTypeVec3, 12)
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != gltfComponentTypeFloat {
		return nil, invalidAsset("vec3 accessor is not float").WithTag("accessor", index)
	}
	out := make([][3]float32, len(elems))
	for i, e := range elems {
		out[i] = [3]float32{float32At(e, 0), float32At(e, 1), float32At(e, 2)}
	}
	return out, nil
}

func (p *gltfParser) readVec2(index int) ([][2]float32, error) {
	elems, acc, err := p.elements(index, gltfAccessorTypeVec2, 8)
	if err != nil {
		return nil, err
	}
	if acc.ComponentType != gltfComponentTypeFloat {
		return nil, invalidAsset("vec2 accessor is not float").WithTag("accessor", index)
	}
	out := make([][2]float32, len(elems))
	for i, e := range elems {
		out[i] = [2]float32{float32At(e, 0), float32At(e, 1)}
	}
	return out, nil
}

func (p *gltfParser) readIndices(index int) ([]uint32, error) {
	if index < 0 || index >= len(p.document.Accessors) {
		return nil, invalidAsset("accessor out of range").WithTag("accessor", index)
	}

	var size int
	switch ct := p.document.Accessors[index].ComponentType; ct {
	case gltfComponentTypeUnsignedByte:
		size = 1
	case gltfComponentTypeUnsignedShort:
		size = 2
	case gltfComponentTypeUnsignedInt:
		size = 4
	default:
		return nil, invalidAsset("unsupported index component type").
			WithTag("accessor", index).
			WithTag("component_type", ct)
	}

	elems, _, err := p.elements(index, gltfAccessorTypeScalar, size)
	if err != nil {
		return nil, err
	}
	out := make([]uint32, len(elems))
	for i, e := range elems {
		switch size {
		case 1:
			out[i] = uint32(e[0])
		case 2:
			out[i] = uint32(binary.LittleEndian.Uint16(e))
		default:
			out[i] = binary.LittleEndian.Uint32(e)
		}
	}
	return out, nil
}
