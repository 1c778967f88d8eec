// Package grid splits a dense volume into cubic chunks, each backed by its own sparse
// octree and mesh. Chunk octrees store Y top-down: volume row y lands on local row
// ChunkSize-1-(y%ChunkSize). Every translation between the two goes through the
// octree's inverted accessors.
package grid

import (
	"fmt"
	"time"

	"voxstruct.ai/internal/voxel/mesh"
	"voxstruct.ai/internal/voxel/octree"
	"voxstruct.ai/internal/voxel/volume"
)

type Config struct {
	VolumeSize int
	ChunkSize  int
	// Scale multiplies emitted vertex positions. Zero means 1.
	Scale float32
}

func (c Config) validate() error {
	if c.VolumeSize <= 0 || c.VolumeSize&(c.VolumeSize-1) != 0 {
		return fmt.Errorf("volume size %d is not a power of two", c.VolumeSize)
	}
	if c.ChunkSize <= 0 || c.ChunkSize&(c.ChunkSize-1) != 0 {
		return fmt.Errorf("chunk size %d is not a power of two", c.ChunkSize)
	}
	if c.VolumeSize%c.ChunkSize != 0 {
		return fmt.Errorf("volume size %d not divisible by chunk size %d", c.VolumeSize, c.ChunkSize)
	}
	if c.Scale < 0 {
		return fmt.Errorf("negative scale %v", c.Scale)
	}
	return nil
}

// Update describes a chunk after (re)meshing. Mesh is nil for empty chunks and holds
// positions relative to Origin.
type Update struct {
	Chunk   int
	Origin  volume.Pos
	Empty   bool
	Changed bool
	Mesh    *mesh.Mesh
}

type chunk struct {
	origin volume.Pos
	tree   *octree.Octree
	mesh   *mesh.Mesh
	empty  bool
}

type Grid struct {
	cfg    Config
	per    int
	mesher *mesh.Mesher
	chunks []*chunk
	vol    *volume.Volume
}

func New(cfg Config, palette *mesh.Palette) (*Grid, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	opts := []mesh.Option{mesh.WithInvertedY()}
	if cfg.Scale != 0 {
		opts = append(opts, mesh.WithScale(cfg.Scale))
	}
	per := cfg.VolumeSize / cfg.ChunkSize
	g := &Grid{
		cfg:    cfg,
		per:    per,
		mesher: mesh.New(palette, opts...),
		chunks: make([]*chunk, per*per*per),
	}
	for i := range g.chunks {
		x, y, z := i%per, i/per%per, i/(per*per)
		g.chunks[i] = &chunk{
			origin: volume.Pos{
				X: uint16(x * cfg.ChunkSize),
				Y: uint16(y * cfg.ChunkSize),
				Z: uint16(z * cfg.ChunkSize),
			},
			tree:  octree.New(cfg.ChunkSize),
			empty: true,
		}
	}
	return g, nil
}

func (g *Grid) Config() Config { return g.cfg }

// ChunksPerAxis is VolumeSize/ChunkSize.
func (g *Grid) ChunksPerAxis() int { return g.per }

func (g *Grid) Len() int { return len(g.chunks) }

func (g *Grid) inBounds(p volume.Pos) bool {
	s := g.cfg.VolumeSize
	return int(p.X) < s && int(p.Y) < s && int(p.Z) < s
}

// InBounds reports whether p lies inside the gridded volume.
func (g *Grid) InBounds(p volume.Pos) bool { return g.inBounds(p) }

// ChunkAt returns the row-major index of the chunk containing p.
func (g *Grid) ChunkAt(p volume.Pos) int {
	if !g.inBounds(p) {
		panic(fmt.Sprintf("grid: position %v outside volume %d", p, g.cfg.VolumeSize))
	}
	cs := g.cfg.ChunkSize
	return int(p.X)/cs + int(p.Y)/cs*g.per + int(p.Z)/cs*g.per*g.per
}

// local converts a volume position into the owning chunk's coordinates, Y still
// bottom-up. Callers pass it to the inverted octree accessors.
func (g *Grid) local(p volume.Pos) (*chunk, octree.Pos) {
	c := g.chunks[g.ChunkAt(p)]
	return c, octree.Pos{X: p.X - c.origin.X, Y: p.Y - c.origin.Y, Z: p.Z - c.origin.Z}
}

// Load rebuilds every chunk from vol and keeps vol as the backing store for edits.
// The caller keeps ownership of vol and must not mutate it behind the grid's back.
func (g *Grid) Load(vol *volume.Volume) []Update {
	if vol.Side() != g.cfg.VolumeSize {
		panic(fmt.Sprintf("grid: volume side %d, want %d", vol.Side(), g.cfg.VolumeSize))
	}
	g.vol = vol
	cs := g.cfg.ChunkSize
	out := make([]Update, len(g.chunks))
	for i, c := range g.chunks {
		o := c.origin
		c.tree = octree.Build(cs, func(p octree.Pos) uint8 {
			return vol.At(volume.Pos{
				X: o.X + p.X,
				Y: o.Y + uint16(cs-1) - p.Y,
				Z: o.Z + p.Z,
			})
		})
		g.remesh(c, reasonLoad)
		out[i] = g.update(i, true)
	}
	return out
}

// Edit writes m at p into the volume and the owning chunk, then remeshes that chunk
// only. Writing the material already present reports Changed=false.
func (g *Grid) Edit(p volume.Pos, m uint8) Update {
	if g.vol == nil {
		panic("grid: edit before load")
	}
	idx := g.ChunkAt(p)
	c, lp := g.local(p)
	prev := g.vol.At(p)
	g.vol.Set(p, m)
	if prev == m && c.tree.GetInvY(lp).Material == m {
		return g.update(idx, false)
	}
	c.tree.SetInvY(lp, m)
	g.remesh(c, reasonEdit)
	return g.update(idx, true)
}

// Material reads p through the owning chunk's octree.
func (g *Grid) Material(p volume.Pos) uint8 {
	c, lp := g.local(p)
	return c.tree.GetInvY(lp).Material
}

// Mine clears a solid voxel. It returns the removed material, or ok=false when p
// already holds air.
func (g *Grid) Mine(p volume.Pos) (uint8, Update, bool) {
	m := g.Material(p)
	if m == 0 {
		return 0, Update{}, false
	}
	return m, g.Edit(p, 0), true
}

// Chunk returns the current state of chunk i.
func (g *Grid) Chunk(i int) Update {
	return g.update(i, false)
}

// Chunks returns the current state of every chunk in index order.
func (g *Grid) Chunks() []Update {
	out := make([]Update, len(g.chunks))
	for i := range g.chunks {
		out[i] = g.update(i, false)
	}
	return out
}

// SyncVolume copies every chunk octree back into the backing volume.
func (g *Grid) SyncVolume() {
	if g.vol == nil {
		panic("grid: sync before load")
	}
	cs := uint16(g.cfg.ChunkSize)
	for _, c := range g.chunks {
		for z := uint16(0); z < cs; z++ {
			for y := uint16(0); y < cs; y++ {
				for x := uint16(0); x < cs; x++ {
					m := c.tree.GetInvY(octree.Pos{X: x, Y: y, Z: z}).Material
					g.vol.Set(volume.Pos{X: c.origin.X + x, Y: c.origin.Y + y, Z: c.origin.Z + z}, m)
				}
			}
		}
	}
}

type Stats struct {
	Chunks      int
	EmptyChunks int
	Nodes       int
	Vertices    int
	Triangles   int
}

func (g *Grid) Stats() Stats {
	s := Stats{Chunks: len(g.chunks)}
	for _, c := range g.chunks {
		s.Nodes += c.tree.Stats().Nodes
		if c.empty {
			s.EmptyChunks++
			continue
		}
		s.Vertices += len(c.mesh.Vertices)
		s.Triangles += c.mesh.Triangles()
	}
	return s
}

func (g *Grid) remesh(c *chunk, reason string) {
	start := time.Now()
	sum := c.tree.Recompute()
	c.empty = sum.Empty
	if sum.Empty {
		c.mesh = nil
	} else {
		c.mesh = g.mesher.Build(c.tree, sum)
	}
	instrumentRemesh(reason, start, c.mesh)
}

func (g *Grid) update(i int, changed bool) Update {
	c := g.chunks[i]
	return Update{
		Chunk:   i,
		Origin:  c.origin,
		Empty:   c.empty,
		Changed: changed,
		Mesh:    c.mesh,
	}
}
