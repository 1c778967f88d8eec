// Package octree stores a cube of material ids as a sparse octree. Nodes live in an
// arena and reference their children by index; runs of one material collapse into a
// single leaf as soon as all eight siblings agree.
package octree

import "fmt"

// Face bits. The order is fixed: it is shared with the mesher's face table.
const (
	FaceFront  uint8 = 1 << iota // -Z
	FaceTop                      // +Y
	FaceBack                     // +Z
	FaceLeft                     // -X
	FaceRight                    // +X
	FaceBottom                   // -Y

	AllFaces = FaceFront | FaceTop | FaceBack | FaceLeft | FaceRight | FaceBottom
)

// maxSide keeps positions inside uint16.
const maxSide = 1 << 15

// Pos is a position inside the tree, 0 <= c < Side().
type Pos struct {
	X, Y, Z uint16
}

// Voxel is a material with its derived face visibility mask.
type Voxel struct {
	Material uint8
	Faces    uint8
}

func (v Voxel) Empty() bool { return v.Material == 0 }

// Summary is the result of Recompute.
type Summary struct {
	Empty bool
}

type node struct {
	voxel    Voxel
	leaf     bool
	children [8]int32
}

type Octree struct {
	side  int
	nodes []node
	free  []int32
}

// New returns a tree of the given side covering only air. side must be a power of two.
func New(side int) *Octree {
	if side <= 0 || side&(side-1) != 0 || side > maxSide {
		panic(fmt.Sprintf("octree: invalid side %d", side))
	}
	t := &Octree{side: side}
	t.nodes = append(t.nodes, node{leaf: true})
	return t
}

func (t *Octree) Side() int { return t.side }

// Stats reports live node and leaf counts.
type Stats struct {
	Nodes  int
	Leaves int
	Solid  int
}

func (t *Octree) Stats() Stats {
	var s Stats
	var walk func(idx int32)
	walk = func(idx int32) {
		n := &t.nodes[idx]
		s.Nodes++
		if n.leaf {
			s.Leaves++
			if !n.voxel.Empty() {
				s.Solid++
			}
			return
		}
		for _, c := range n.children {
			walk(c)
		}
	}
	walk(0)
	return s
}

func (t *Octree) check(p Pos) {
	if int(p.X) >= t.side || int(p.Y) >= t.side || int(p.Z) >= t.side {
		panic(fmt.Sprintf("octree: position %v outside side %d", p, t.side))
	}
}

// octant picks the child holding (x,y,z) relative to a node of the given half size.
func octant(x, y, z, half int) int {
	i := 0
	if x >= half {
		i |= 1
	}
	if y >= half {
		i |= 2
	}
	if z >= half {
		i |= 4
	}
	return i
}

func octantOffset(i, half int) (int, int, int) {
	return (i & 1) * half, (i >> 1 & 1) * half, (i >> 2 & 1) * half
}

func (t *Octree) alloc(n node) int32 {
	if k := len(t.free); k > 0 {
		idx := t.free[k-1]
		t.free = t.free[:k-1]
		t.nodes[idx] = n
		return idx
	}
	t.nodes = append(t.nodes, n)
	return int32(len(t.nodes) - 1)
}

func (t *Octree) split(idx int32) {
	m := t.nodes[idx].voxel.Material
	var children [8]int32
	for i := range children {
		children[i] = t.alloc(node{leaf: true, voxel: Voxel{Material: m}})
	}
	t.nodes[idx] = node{children: children}
}

// collapse turns idx into a leaf when its eight children are leaves of one material.
func (t *Octree) collapse(idx int32) bool {
	n := &t.nodes[idx]
	if n.leaf {
		return true
	}
	first := t.nodes[n.children[0]]
	if !first.leaf {
		return false
	}
	for _, c := range n.children[1:] {
		cn := &t.nodes[c]
		if !cn.leaf || cn.voxel.Material != first.voxel.Material {
			return false
		}
	}
	children := n.children
	t.nodes[idx] = node{leaf: true, voxel: Voxel{Material: first.voxel.Material}}
	for _, c := range children {
		t.free = append(t.free, c)
	}
	return true
}

// Get returns the voxel covering p. Faces are only meaningful after Recompute.
func (t *Octree) Get(p Pos) Voxel {
	t.check(p)
	idx := int32(0)
	x, y, z := int(p.X), int(p.Y), int(p.Z)
	size := t.side
	for !t.nodes[idx].leaf {
		half := size / 2
		i := octant(x, y, z, half)
		ox, oy, oz := octantOffset(i, half)
		x, y, z = x-ox, y-oy, z-oz
		idx = t.nodes[idx].children[i]
		size = half
	}
	return t.nodes[idx].voxel
}

// Set stores material m at p, splitting leaves on the way down and merging uniform
// parents on the way back up.
func (t *Octree) Set(p Pos, m uint8) {
	t.check(p)
	var path [16]int32
	depth := 0
	idx := int32(0)
	x, y, z := int(p.X), int(p.Y), int(p.Z)
	size := t.side
	for {
		n := &t.nodes[idx]
		if n.leaf {
			if n.voxel.Material == m {
				return
			}
			if size == 1 {
				n.voxel = Voxel{Material: m}
				break
			}
			t.split(idx)
		}
		path[depth] = idx
		depth++
		half := size / 2
		i := octant(x, y, z, half)
		ox, oy, oz := octantOffset(i, half)
		x, y, z = x-ox, y-oy, z-oz
		idx = t.nodes[idx].children[i]
		size = half
	}
	for d := depth - 1; d >= 0; d-- {
		if !t.collapse(path[d]) {
			break
		}
	}
}

// GetInvY reads p with the Y axis flipped.
func (t *Octree) GetInvY(p Pos) Voxel {
	return t.Get(t.invY(p))
}

// SetInvY writes p with the Y axis flipped.
func (t *Octree) SetInvY(p Pos, m uint8) {
	t.Set(t.invY(p), m)
}

func (t *Octree) invY(p Pos) Pos {
	t.check(p)
	p.Y = uint16(t.side-1) - p.Y
	return p
}

// Build creates a tree of the given side from sample, merging uniform octants bottom-up.
func Build(side int, sample func(p Pos) uint8) *Octree {
	t := New(side)
	t.build(0, 0, 0, 0, side, sample)
	return t
}

func (t *Octree) build(idx int32, ox, oy, oz, size int, sample func(p Pos) uint8) {
	if size == 1 {
		t.nodes[idx] = node{leaf: true, voxel: Voxel{Material: sample(Pos{X: uint16(ox), Y: uint16(oy), Z: uint16(oz)})}}
		return
	}
	half := size / 2
	var children [8]int32
	for i := range children {
		children[i] = t.alloc(node{leaf: true})
	}
	for i, c := range children {
		dx, dy, dz := octantOffset(i, half)
		t.build(c, ox+dx, oy+dy, oz+dz, half, sample)
	}
	t.nodes[idx] = node{children: children}
	t.collapse(idx)
}
