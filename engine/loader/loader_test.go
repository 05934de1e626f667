package loader

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

// quadBuffer holds a unit quad in the XZ plane: 4 float positions then 6 uint16 indices.
func quadBuffer() []byte {
	var b bytes.Buffer
	for _, p := range [][3]float32{{0, 0, 0}, {0, 0, 1}, {1, 0, 1}, {1, 0, 0}} {
		for _, v := range p {
			binary.Write(&b, binary.LittleEndian, math.Float32bits(v))
		}
	}
	for _, i := range []uint16{0, 1, 2, 0, 2, 3} {
		binary.Write(&b, binary.LittleEndian, i)
	}
	return b.Bytes()
}

const quadDocument = `{
	"asset": {"version": "2.0"},
	"scene": 0,
	"scenes": [{"nodes": [0, 1]}],
	"nodes": [
		{"name": "ledge", "mesh": 0, "translation": [10, 2, 0], "children": [2], "extras": {"collider": true}},
		{"name": "hidden", "mesh": 0, "extras": {"coverage_surface": false}},
		{"mesh": 0, "scale": [2, 1, 2], "extras": {"render_layer": 4}}
	],
	"meshes": [{"name": "quad", "primitives": [{"attributes": {"POSITION": 0}, "indices": 1}]}],
	"accessors": [
		{"bufferView": 0, "componentType": 5126, "count": 4, "type": "VEC3"},
		{"bufferView": 1, "componentType": 5123, "count": 6, "type": "SCALAR"}
	],
	"bufferViews": [
		{"buffer": 0, "byteOffset": 0, "byteLength": 48},
		{"buffer": 0, "byteOffset": 48, "byteLength": 12}
	],
	"buffers": [{%s"byteLength": 60}]
}`

func embeddedDocument() string {
	uri := fmt.Sprintf(`"uri": "data:application/octet-stream;base64,%s", `, base64.StdEncoding.EncodeToString(quadBuffer()))
	return fmt.Sprintf(quadDocument, uri)
}

func glb(json string, bin []byte) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.LittleEndian, uint32(gltfGLBMagic))
	binary.Write(&b, binary.LittleEndian, uint32(gltfGLBVersion))
	binary.Write(&b, binary.LittleEndian, uint32(gltfGLBHeaderSize+8+len(json)+8+len(bin)))
	binary.Write(&b, binary.LittleEndian, uint32(len(json)))
	binary.Write(&b, binary.LittleEndian, uint32(gltfGLBChunkJSON))
	b.WriteString(json)
	binary.Write(&b, binary.LittleEndian, uint32(len(bin)))
	binary.Write(&b, binary.LittleEndian, uint32(gltfGLBChunkBIN))
	b.Write(bin)
	return b.Bytes()
}

func requireQuadScene(t *testing.T, candidates []surface.Candidate) {
	require.Len(t, candidates, 2)

	ledge := candidates[0].(*surface.MeshCandidate)
	require.Equal(t, "ledge", ledge.ID)
	require.True(t, ledge.HasCollision())
	require.Equal(t, uint32(1), ledge.RenderLayer())
	require.Equal(t, []uint32{0, 1, 2, 0, 2, 3}, ledge.Mesh.Indices)
	require.Equal(t, mgl32.Vec3{11, 2, 1}, ledge.Mesh.Vertices[2].Position)
	require.InDelta(t, 1, ledge.Mesh.Vertices[0].Normal.Y(), 1e-5)

	child := candidates[1].(*surface.MeshCandidate)
	require.Equal(t, "quad", child.ID)
	require.False(t, child.HasCollision())
	require.Equal(t, uint32(4), child.RenderLayer())
	require.Equal(t, mgl32.Vec3{12, 2, 2}, child.Mesh.Vertices[2].Position)
}

func TestLoadEmbeddedGLTF(t *testing.T) {
	candidates, err := NewLoader().LoadReader(bytes.NewReader([]byte(embeddedDocument())))
	require.NoError(t, err)
	requireQuadScene(t, candidates)
}

func TestLoadGLBFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "level.glb")
	require.NoError(t, os.WriteFile(path, glb(fmt.Sprintf(quadDocument, ""), quadBuffer()), 0o644))

	candidates, err := NewLoader().Load(path)
	require.NoError(t, err)
	requireQuadScene(t, candidates)
}

func TestLoadExternalBuffer(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.bin"), quadBuffer(), 0o644))
	doc := fmt.Sprintf(quadDocument, `"uri": "quad.bin", `)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "level.gltf"), []byte(doc), 0o644))

	candidates, err := NewLoader(WithLayer(8), WithBrokenUVs(true)).Load(filepath.Join(dir, "level.gltf"))
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, uint32(8), candidates[0].RenderLayer())
	require.True(t, candidates[0].(*surface.MeshCandidate).BrokenUVs)
}

func TestLoadInvalidAssets(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "garbage", data: []byte("not gltf")},
		{name: "version", data: []byte(`{"asset": {"version": "1.0"}}`)},
		{name: "truncated glb", data: glb(`{"asset": {"version": "2.0"}}`, nil)[:10]},
		{name: "missing buffer", data: []byte(fmt.Sprintf(quadDocument, ""))},
		{name: "short buffer", data: []byte(fmt.Sprintf(quadDocument, `"uri": "data:application/octet-stream;base64,AAAA", `))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLoader().LoadReader(bytes.NewReader(tt.data))
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeInvalidAsset))
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := NewLoader().Load(filepath.Join(t.TempDir(), "missing.glb"))
	require.Error(t, err)
}

func TestLocalTransformMatrixWins(t *testing.T) {
	m := mgl32.Translate3D(1, 2, 3)
	arr := [16]float32(m)
	tr := [3]float32{9, 9, 9}
	n := &gltfNode{Matrix: &arr, Translation: &tr}
	require.Equal(t, m, localTransform(n))

	rot := [4]float32{0, float32(math.Sin(math.Pi / 4)), 0, float32(math.Cos(math.Pi / 4))}
	n = &gltfNode{Rotation: &rot}
	v := localTransform(n).Mul4x1(mgl32.Vec4{1, 0, 0, 1})
	require.InDelta(t, 0, v.X(), 1e-5)
	require.InDelta(t, -1, v.Z(), 1e-5)
}
