// gltf_types.go holds the subset of the glTF 2.0 JSON schema needed to import static level geometry.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html
package loader

// gltfDocument is the root of a glTF JSON document.
type gltfDocument struct {
	Asset       gltfAsset        `json:"asset"`
	Scene       *int             `json:"scene,omitempty"`
	Scenes      []gltfScene      `json:"scenes,omitempty"`
	Nodes       []gltfNode       `json:"nodes,omitempty"`
	Meshes      []gltfMesh       `json:"meshes,omitempty"`
	Accessors   []gltfAccessor   `json:"accessors,omitempty"`
	BufferViews []gltfBufferView `json:"bufferViews,omitempty"`
	Buffers     []gltfBuffer     `json:"buffers,omitempty"`
}

type gltfAsset struct {
	// Version must be "2.x".
	Version string `json:"version"`
}

type gltfScene struct {
	Name  string `json:"name,omitempty"`
	Nodes []int  `json:"nodes,omitempty"`
}

// gltfNode is a node in the transform hierarchy. Matrix wins over TRS when both are set.
type gltfNode struct {
	Name        string       `json:"name,omitempty"`
	Children    []int        `json:"children,omitempty"`
	Mesh        *int         `json:"mesh,omitempty"`
	Matrix      *[16]float32 `json:"matrix,omitempty"`      // column-major
	Translation *[3]float32  `json:"translation,omitempty"` // x, y, z
	Rotation    *[4]float32  `json:"rotation,omitempty"`    // quaternion x, y, z, w
	Scale       *[3]float32  `json:"scale,omitempty"`
	Extras      *gltfExtras  `json:"extras,omitempty"`
}

// gltfExtras carries per-node authoring flags.
type gltfExtras struct {
	// Surface excludes the node from import when false.
	Surface *bool `json:"coverage_surface,omitempty"`
	// Collider marks nodes whose collision is replaced by the processed mesh.
	Collider *bool `json:"collider,omitempty"`
	// BrokenUVs marks nodes whose authored UVs are unusable for mask lookups.
	BrokenUVs *bool `json:"broken_uvs,omitempty"`
	// Layer overrides the render layer.
	Layer *uint32 `json:"render_layer,omitempty"`
}

type gltfMesh struct {
	Name       string          `json:"name,omitempty"`
	Primitives []gltfPrimitive `json:"primitives"`
}

type gltfPrimitive struct {
	// Attributes maps semantics such as POSITION, NORMAL and TEXCOORD_0 to accessor indices.
	Attributes map[string]int `json:"attributes"`
	Indices    *int           `json:"indices,omitempty"`
	Mode       *int           `json:"mode,omitempty"`
}

const gltfPrimitiveModeTriangles = 4

type gltfAccessor struct {
	BufferView    *int           `json:"bufferView,omitempty"`
	ByteOffset    int            `json:"byteOffset,omitempty"`
	ComponentType int            `json:"componentType"`
	Count         int            `json:"count"`
	Type          string         `json:"type"`
	Sparse        *gltfSparseRef `json:"sparse,omitempty"`
}

// gltfSparseRef is decoded only to reject sparse accessors.
type gltfSparseRef struct {
	Count int `json:"count"`
}

const (
	gltfComponentTypeUnsignedByte  = 5121
	gltfComponentTypeUnsignedShort = 5123
	gltfComponentTypeUnsignedInt   = 5125
	gltfComponentTypeFloat         = 5126
)

const (
	gltfAccessorTypeScalar = "SCALAR"
	gltfAccessorTypeVec2   = "VEC2"
	gltfAccessorTypeVec3   = "VEC3"
)

type gltfBufferView struct {
	Buffer     int  `json:"buffer"`
	ByteOffset int  `json:"byteOffset,omitempty"`
	ByteLength int  `json:"byteLength"`
	ByteStride *int `json:"byteStride,omitempty"`
}

type gltfBuffer struct {
	URI        string `json:"uri,omitempty"`
	ByteLength int    `json:"byteLength"`

	data []byte
}

// GLB container layout.
// Reference: https://registry.khronos.org/glTF/specs/2.0/glTF-2.0.html#glb-file-format-specification
const (
	gltfGLBHeaderSize = 12
	gltfGLBMagic      = 0x46546C67 // "glTF"
	gltfGLBVersion    = 2
	gltfGLBChunkJSON  = 0x4E4F534A // "JSON"
	gltfGLBChunkBIN   = 0x004E4942 // "BIN\0"
)
