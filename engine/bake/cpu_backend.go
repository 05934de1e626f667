package bake

import (
	"math"

	"github.com/Carmen-Shannon/oxy-coverage/engine/surface"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl32"
)

// cpuBackend rasterizes and blurs in memory.
type cpuBackend struct {
	resolution int
	kernel     []float32
	color      []float32
	blurX      []float32
	blurY      []float32
}

// NewCPUBackend creates a software Backend.
func NewCPUBackend() Backend {
	return &cpuBackend{}
}

var _ Backend = &cpuBackend{}

func (b *cpuBackend) Configure(resolution int, kernel []float32) error {
	if resolution <= 0 {
		return errors.Newf("invalid bake resolution %d", resolution).
			WithType(ErrTypeMisconfigured)
	}
	n := resolution * resolution
	b.resolution = resolution
	b.kernel = kernel
	b.color = make([]float32, n)
	b.blurX = make([]float32, n)
	b.blurY = make([]float32, n)
	return nil
}

func (b *cpuBackend) Clear() error {
	if err := b.configured(); err != nil {
		return err
	}
	clear(b.color)
	return nil
}

func (b *cpuBackend) Render(mesh *surface.Mesh, material Material) error {
	if err := b.configured(); err != nil {
		return err
	}
	for t := 0; t < mesh.TriangleCount(); t++ {
		v0, v1, v2 := mesh.Triangle(t)
		b.rasterize(v0, v1, v2, material)
	}
	return nil
}

// rasterize fills the texels whose centers fall inside the triangle's UV footprint.
func (b *cpuBackend) rasterize(v0, v1, v2 surface.Vertex, material Material) {
	n := float32(b.resolution)
	p0 := v0.UV.Mul(n)
	p1 := v1.UV.Mul(n)
	p2 := v2.UV.Mul(n)

	area := edge(p0, p1, p2)
	if area == 0 {
		return
	}

	minX := clampTexel(min(p0.X(), p1.X(), p2.X()), b.resolution)
	maxX := clampTexel(max(p0.X(), p1.X(), p2.X()), b.resolution)
	minY := clampTexel(min(p0.Y(), p1.Y(), p2.Y()), b.resolution)
	maxY := clampTexel(max(p0.Y(), p1.Y(), p2.Y()), b.resolution)

	for y := minY; y <= maxY; y++ {
		for x := minX; x <= maxX; x++ {
			p := mgl32.Vec2{float32(x) + 0.5, float32(y) + 0.5}
			w0 := edge(p1, p2, p) / area
			w1 := edge(p2, p0, p) / area
			w2 := edge(p0, p1, p) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			world := v0.Position.Mul(w0).Add(v1.Position.Mul(w1)).Add(v2.Position.Mul(w2))
			b.color[y*b.resolution+x] = material.Exposure(world)
		}
	}
}

func (b *cpuBackend) BlurHorizontal() error {
	if err := b.configured(); err != nil {
		return err
	}
	blurPass(b.blurX, b.color, b.resolution, b.kernel, true)
	return nil
}

func (b *cpuBackend) BlurVertical() error {
	if err := b.configured(); err != nil {
		return err
	}
	blurPass(b.blurY, b.blurX, b.resolution, b.kernel, false)
	return nil
}

func (b *cpuBackend) Readback() ([]float32, error) {
	if err := b.configured(); err != nil {
		return nil, err
	}
	return append([]float32(nil), b.blurY...), nil
}

func (b *cpuBackend) Release() {
	b.color, b.blurX, b.blurY = nil, nil, nil
	b.resolution = 0
}

func (b *cpuBackend) configured() error {
	if b.resolution == 0 {
		return errors.New("bake backend is not configured").
			WithType(ErrTypeMisconfigured)
	}
	return nil
}

// edge is the signed doubled area of (a, b, c); its sign tells which side of ab the point c is on.
func edge(a, b, c mgl32.Vec2) float32 {
	return (b.X()-a.X())*(c.Y()-a.Y()) - (b.Y()-a.Y())*(c.X()-a.X())
}

func clampTexel(v float32, resolution int) int {
	return min(max(int(math.Floor(float64(v))), 0), resolution-1)
}
