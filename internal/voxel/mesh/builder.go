package mesh

// Mesh is one indexed triangle-list surface plus its collision soup. Collision holds
// three points per triangle, in the same order as Indices.
type Mesh struct {
	Vertices  []Vec3
	Normals   []Vec3
	UV        []Vec2
	UV2       []Vec2
	Colors    []Color
	Indices   []int32
	Collision []Vec3
}

func (m *Mesh) Triangles() int {
	if m == nil {
		return 0
	}
	return len(m.Indices) / 3
}

func (m *Mesh) Empty() bool { return m.Triangles() == 0 }

const (
	initialVertexCap = 1 << 4
	initialIndexCap  = 1 << 5
)

// Builder is a Painter collecting output into slices that double when full.
type Builder struct {
	vertices  []Vec3
	normals   []Vec3
	uv        []Vec2
	uv2       []Vec2
	colors    []Color
	indices   []int32
	collision []Vec3
}

func (b *Builder) Vertex(v Vertex) int32 {
	if len(b.vertices) == cap(b.vertices) {
		n := max(2*cap(b.vertices), initialVertexCap)
		b.vertices = grow(b.vertices, n)
		b.normals = grow(b.normals, n)
		b.uv = grow(b.uv, n)
		b.uv2 = grow(b.uv2, n)
		b.colors = grow(b.colors, n)
	}
	idx := int32(len(b.vertices))
	b.vertices = append(b.vertices, v.Pos)
	b.normals = append(b.normals, v.Normal)
	b.uv = append(b.uv, v.UV)
	b.uv2 = append(b.uv2, v.UV2)
	b.colors = append(b.colors, v.Color)
	return idx
}

func (b *Builder) Index(i int32) {
	if len(b.indices) == cap(b.indices) {
		b.indices = grow(b.indices, max(2*cap(b.indices), initialIndexCap))
	}
	b.indices = append(b.indices, i)
}

func (b *Builder) CollisionTriangle(p0, p1, p2 Vec3) {
	if len(b.collision)+3 > cap(b.collision) {
		b.collision = grow(b.collision, max(2*cap(b.collision), initialIndexCap))
	}
	b.collision = append(b.collision, p0, p1, p2)
}

// Mesh returns the collected buffers trimmed to their exact length.
func (b *Builder) Mesh() *Mesh {
	return &Mesh{
		Vertices:  trim(b.vertices),
		Normals:   trim(b.normals),
		UV:        trim(b.uv),
		UV2:       trim(b.uv2),
		Colors:    trim(b.colors),
		Indices:   trim(b.indices),
		Collision: trim(b.collision),
	}
}

func grow[T any](s []T, n int) []T {
	out := make([]T, len(s), n)
	copy(out, s)
	return out
}

func trim[T any](s []T) []T {
	out := make([]T, len(s))
	copy(out, s)
	return out
}
