// Package mesh turns a recomputed octree into an indexed triangle list plus a
// non-indexed collision triangle soup. Every solid node becomes one scaled cube and
// only faces whose visibility bit is set are emitted.
package mesh

import "voxstruct.ai/internal/voxel/octree"

type Vec2 [2]float32
type Vec3 [3]float32

// Color is RGBA.
type Color [4]float32

type Vertex struct {
	Pos    Vec3
	Normal Vec3
	UV     Vec2
	// UV2 carries the cube size on both axes for texture tiling.
	UV2   Vec2
	Color Color
}

// Painter receives mesh output. Vertex returns the index of the stored vertex.
type Painter interface {
	Vertex(v Vertex) int32
	Index(i int32)
	CollisionTriangle(a, b, c Vec3)
}

type Mesher struct {
	palette *Palette
	scale   float32
	invertY bool
}

type Option func(*Mesher)

// WithScale multiplies every emitted position.
func WithScale(s float32) Option {
	return func(m *Mesher) { m.scale = s }
}

// WithInvertedY treats the tree as stored top-down: node positions and the top/bottom
// face bits are mirrored so output is in volume orientation.
func WithInvertedY() Option {
	return func(m *Mesher) { m.invertY = true }
}

func New(p *Palette, opts ...Option) *Mesher {
	if p == nil {
		p = GrayPalette()
	}
	m := &Mesher{palette: p, scale: 1}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Render walks t and paints every visible face. An empty summary paints nothing and
// does not touch the tree.
func (m *Mesher) Render(t *octree.Octree, sum octree.Summary, p Painter) {
	if sum.Empty {
		return
	}
	side := t.Side()
	t.Draw(func(cubeSize int, min octree.Pos, v octree.Voxel) {
		mask := v.Faces
		y := int(min.Y)
		if m.invertY {
			y = side - cubeSize - y
			mask = swapTopBottom(mask)
		}
		if mask == 0 {
			return
		}
		offs := Vec3{float32(min.X), float32(y), float32(min.Z)}
		color := m.palette.Color(v.Material)
		for i := range faces {
			if mask&faces[i].bit != 0 {
				m.face(p, &faces[i], offs, float32(cubeSize), color)
			}
		}
	})
}

func (m *Mesher) face(p Painter, f *face, offs Vec3, size float32, color Color) {
	var pos [4]Vec3
	var base int32
	for i, corner := range f.corners {
		c := cubeVertices[corner]
		pos[i] = Vec3{
			(c[0]*size + offs[0]) * m.scale,
			(c[1]*size + offs[1]) * m.scale,
			(c[2]*size + offs[2]) * m.scale,
		}
		idx := p.Vertex(Vertex{
			Pos:    pos[i],
			Normal: f.normal,
			UV:     cornerUV[i],
			UV2:    Vec2{size, size},
			Color:  color,
		})
		if i == 0 {
			base = idx
		}
	}
	for t := 0; t < len(f.tris); t += 3 {
		a, b, c := f.tris[t], f.tris[t+1], f.tris[t+2]
		p.Index(base + a)
		p.Index(base + b)
		p.Index(base + c)
		p.CollisionTriangle(pos[a], pos[b], pos[c])
	}
}

// Build renders t into a fresh Mesh.
func (m *Mesher) Build(t *octree.Octree, sum octree.Summary) *Mesh {
	var b Builder
	m.Render(t, sum, &b)
	return b.Mesh()
}
