// package loader imports static level geometry from glTF 2.0 assets as surface candidates.
package loader

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/go-gl/mathgl/mgl32"
)

// loader is the implementation of the Loader interface.
type loader struct {
	layer     uint32
	collider  bool
	brokenUVs bool
}

// Loader turns every mesh node of a glTF scene into a surface.MeshCandidate with world-space geometry.
// Node extras may override the per-candidate flags: "coverage_surface": false skips the node, and
// "collider", "broken_uvs" and "render_layer" replace the loader defaults.
type Loader interface {
	// Load imports a .gltf or .glb file. Relative buffer URIs resolve next to the file.
	//
	// Parameters:
	//   - path: the asset path
	//
	// Returns:
	//   - []surface.Candidate: one candidate per mesh node, in scene traversal order
	//   - error: an error if the asset cannot be read or decoded
	Load(path string) ([]surface.Candidate, error)

	// LoadReader imports a glTF JSON or GLB stream. Buffers must be embedded.
	//
	// Parameters:
	//   - r: the asset stream
	//
	// Returns:
	//   - []surface.Candidate: one candidate per mesh node, in scene traversal order
	//   - error: an error if the asset cannot be read or decoded
	LoadReader(r io.Reader) ([]surface.Candidate, error)
}

var _ Loader = &loader{}

// NewLoader creates a Loader.
//
// Parameters:
//   - options: variadic list of LoaderBuilderOption functions to configure the loader
//
// Returns:
//   - Loader: the loader
func NewLoader(options ...LoaderBuilderOption) Loader {
	l := &loader{
		layer: 1,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

func (l *loader) Load(path string) ([]surface.Candidate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("reading level asset failed").
			WithTag("path", path).
			Wrap(err)
	}

	p := newGLTFParser(filepath.Dir(path))
	if err := p.parse(data); err != nil {
		return nil, errors.New("parsing level asset failed").
			WithTag("path", path).
			WithType(ErrTypeInvalidAsset).
			Wrap(err)
	}
	return l.candidates(p)
}

func (l *loader) LoadReader(r io.Reader) ([]surface.Candidate, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.New("reading level asset failed").Wrap(err)
	}

	p := newGLTFParser("")
	if err := p.parse(data); err != nil {
		return nil, err
	}
	return l.candidates(p)
}

// candidates walks the default scene, or every root node when the document names none.
func (l *loader) candidates(p *gltfParser) ([]surface.Candidate, error) {
	doc := p.document

	var roots []int
	switch {
	case doc.Scene != nil && *doc.Scene < len(doc.Scenes):
		roots = doc.Scenes[*doc.Scene].Nodes
	case len(doc.Scenes) > 0:
		roots = doc.Scenes[0].Nodes
	default:
		roots = rootNodes(doc)
	}

	var out []surface.Candidate
	visited := make(map[int]bool, len(doc.Nodes))
	var walk func(node int, parent mgl32.Mat4) error
	walk = func(node int, parent mgl32.Mat4) error {
		if node < 0 || node >= len(doc.Nodes) {
			return invalidAsset("node out of range").WithTag("node", node)
		}
		if visited[node] {
			return invalidAsset("node hierarchy has a cycle").WithTag("node", node)
		}
		visited[node] = true

		n := &doc.Nodes[node]
		world := parent.Mul4(localTransform(n))
		if n.Mesh != nil {
			c, err := l.candidate(p, node, world)
			if err != nil {
				return err
			}
			if c != nil {
				out = append(out, c)
			}
		}
		for _, child := range n.Children {
			if err := walk(child, world); err != nil {
				return err
			}
		}
		return nil
	}

	for _, root := range roots {
		if err := walk(root, mgl32.Ident4()); err != nil {
			return nil, err
		}
	}

	logs.WithTag("candidates", len(out)).
		WithTag("nodes", len(doc.Nodes)).
		Debug("level asset imported")
	return out, nil
}

// rootNodes returns the nodes no other node lists as a child.
func rootNodes(doc *gltfDocument) []int {
	child := make([]bool, len(doc.Nodes))
	for _, n := range doc.Nodes {
		for _, c := range n.Children {
			if c >= 0 && c < len(child) {
				child[c] = true
			}
		}
	}
	var roots []int
	for i, isChild := range child {
		if !isChild {
			roots = append(roots, i)
		}
	}
	return roots
}

// localTransform returns the node's matrix, or T * R * S.
func localTransform(n *gltfNode) mgl32.Mat4 {
	if n.Matrix != nil {
		return mgl32.Mat4(*n.Matrix)
	}
	m := mgl32.Ident4()
	if t := n.Translation; t != nil {
		m = m.Mul4(mgl32.Translate3D(t[0], t[1], t[2]))
	}
	if r := n.Rotation; r != nil {
		q := mgl32.Quat{W: r[3], V: mgl32.Vec3{r[0], r[1], r[2]}}
		m = m.Mul4(q.Normalize().Mat4())
	}
	if s := n.Scale; s != nil {
		m = m.Mul4(mgl32.Scale3D(s[0], s[1], s[2]))
	}
	return m
}

// candidate merges the node's triangle primitives into one world-space candidate. It returns nil for nodes
// excluded by their extras.
func (l *loader) candidate(p *gltfParser, node int, world mgl32.Mat4) (*surface.MeshCandidate, error) {
	n := &p.document.Nodes[node]
	if *n.Mesh < 0 || *n.Mesh >= len(p.document.Meshes) {
		return nil, invalidAsset("mesh out of range").WithTag("node", node)
	}
	gm := &p.document.Meshes[*n.Mesh]

	c := &surface.MeshCandidate{
		ID:        nodeName(n, gm, node),
		Mesh:      &surface.Mesh{},
		Layer:     l.layer,
		Collider:  l.collider,
		BrokenUVs: l.brokenUVs,
	}
	if x := n.Extras; x != nil {
		if x.Surface != nil && !*x.Surface {
			return nil, nil
		}
		if x.Collider != nil {
			c.Collider = *x.Collider
		}
		if x.BrokenUVs != nil {
			c.BrokenUVs = *x.BrokenUVs
		}
		if x.Layer != nil {
			c.Layer = *x.Layer
		}
	}

	normalMatrix := world.Mat3().Inv().Transpose()
	missingNormals := false
	for i := range gm.Primitives {
		hasNormals, err := appendPrimitive(p, &gm.Primitives[i], world, normalMatrix, c.Mesh)
		if err != nil {
			return nil, errors.New("importing mesh primitive failed").
				WithTag("node", c.ID).
				WithTag("primitive", i).
				WithType(ErrTypeInvalidAsset).
				Wrap(err)
		}
		missingNormals = missingNormals || !hasNormals
	}
	if missingNormals {
		c.Mesh.RecalculateNormals()
	}
	return c, nil
}

func nodeName(n *gltfNode, m *gltfMesh, index int) string {
	switch {
	case n.Name != "":
		return n.Name
	case m.Name != "":
		return m.Name
	default:
		return "node-" + strconv.Itoa(index)
	}
}

// appendPrimitive transforms a triangle primitive into world space and appends it to dst.
// Non-triangle primitives are skipped. It reports whether the primitive carried normals.
func appendPrimitive(p *gltfParser, prim *gltfPrimitive, world mgl32.Mat4, normalMatrix mgl32.Mat3, dst *surface.Mesh) (bool, error) {
	if prim.Mode != nil && *prim.Mode != gltfPrimitiveModeTriangles {
		return true, nil
	}
	posIndex, ok := prim.Attributes["POSITION"]
	if !ok {
		return false, invalidAsset("primitive has no positions")
	}

	positions, err := p.readVec3(posIndex)
	if err != nil {
		return false, err
	}
	var normals [][3]float32
	if idx, ok := prim.Attributes["NORMAL"]; ok {
		if normals, err = p.readVec3(idx); err != nil {
			return false, err
		}
	}
	var uvs [][2]float32
	if idx, ok := prim.Attributes["TEXCOORD_0"]; ok {
		if uvs, err = p.readVec2(idx); err != nil {
			return false, err
		}
	}

	var indices []uint32
	if prim.Indices != nil {
		if indices, err = p.readIndices(*prim.Indices); err != nil {
			return false, err
		}
	} else {
		indices = make([]uint32, len(positions))
		for i := range indices {
			indices[i] = uint32(i)
		}
	}
	if len(indices)%3 != 0 {
		return false, invalidAsset("triangle index count is not a multiple of 3").
			WithTag("indices", len(indices))
	}

	base := uint32(len(dst.Vertices))
	for i, pos := range positions {
		v := surface.Vertex{
			Position: world.Mul4x1(mgl32.Vec3(pos).Vec4(1)).Vec3(),
		}
		if i < len(normals) {
			v.Normal = normalMatrix.Mul3x1(mgl32.Vec3(normals[i])).Normalize()
		}
		if i < len(uvs) {
			v.UV = mgl32.Vec2(uvs[i])
		}
		dst.Vertices = append(dst.Vertices, v)
	}
	for _, idx := range indices {
		if int(idx) >= len(positions) {
			return false, invalidAsset("index out of range").WithTag("index", idx)
		}
		dst.Indices = append(dst.Indices, base+idx)
	}
	return len(normals) > 0, nil
}
