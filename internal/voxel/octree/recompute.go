package octree

// Recompute collapses uniform subtrees and derives the face mask of every solid leaf.
// A face is visible when any voxel directly across it is air or when it lies on the
// tree boundary. Neighbouring trees are never consulted.
func (t *Octree) Recompute() Summary {
	t.compact(0)
	root := &t.nodes[0]
	if root.leaf && root.voxel.Empty() {
		root.voxel.Faces = 0
		return Summary{Empty: true}
	}
	t.faces(0, 0, 0, 0, t.side)
	return Summary{}
}

// compact merges every subtree whose leaves share one material. It reports whether idx
// is a leaf afterwards.
func (t *Octree) compact(idx int32) bool {
	if t.nodes[idx].leaf {
		return true
	}
	uniform := true
	for _, c := range t.nodes[idx].children {
		if !t.compact(c) {
			uniform = false
		}
	}
	if !uniform {
		return false
	}
	return t.collapse(idx)
}

func (t *Octree) faces(idx int32, ox, oy, oz, size int) {
	n := &t.nodes[idx]
	if !n.leaf {
		half := size / 2
		for i, c := range n.children {
			dx, dy, dz := octantOffset(i, half)
			t.faces(c, ox+dx, oy+dy, oz+dz, half)
		}
		return
	}
	if n.voxel.Empty() {
		n.voxel.Faces = 0
		return
	}
	n.voxel.Faces = t.faceMask(ox, oy, oz, size)
}

// box is a half-open voxel range used for neighbour slab queries.
type box struct {
	x0, y0, z0 int
	x1, y1, z1 int
}

func (t *Octree) faceMask(ox, oy, oz, size int) uint8 {
	var mask uint8
	ex, ey, ez := ox+size, oy+size, oz+size

	if oz == 0 || !t.solid(box{ox, oy, oz - 1, ex, ey, oz}) {
		mask |= FaceFront
	}
	if ey == t.side || !t.solid(box{ox, ey, oz, ex, ey + 1, ez}) {
		mask |= FaceTop
	}
	if ez == t.side || !t.solid(box{ox, oy, ez, ex, ey, ez + 1}) {
		mask |= FaceBack
	}
	if ox == 0 || !t.solid(box{ox - 1, oy, oz, ox, ey, ez}) {
		mask |= FaceLeft
	}
	if ex == t.side || !t.solid(box{ex, oy, oz, ex + 1, ey, ez}) {
		mask |= FaceRight
	}
	if oy == 0 || !t.solid(box{ox, oy - 1, oz, ex, oy, ez}) {
		mask |= FaceBottom
	}
	return mask
}

// solid reports whether every voxel in b holds a non-air material.
func (t *Octree) solid(b box) bool {
	return t.solidIn(0, 0, 0, 0, t.side, b)
}

func (t *Octree) solidIn(idx int32, ox, oy, oz, size int, b box) bool {
	if ox >= b.x1 || oy >= b.y1 || oz >= b.z1 ||
		ox+size <= b.x0 || oy+size <= b.y0 || oz+size <= b.z0 {
		return true
	}
	n := &t.nodes[idx]
	if n.leaf {
		return !n.voxel.Empty()
	}
	half := size / 2
	for i, c := range n.children {
		dx, dy, dz := octantOffset(i, half)
		if !t.solidIn(c, ox+dx, oy+dy, oz+dz, half, b) {
			return false
		}
	}
	return true
}

// Draw calls visit once for every maximal solid uniform node, depth first in octant
// order, with the node's side length and minimum corner. Air is skipped.
func (t *Octree) Draw(visit func(cubeSize int, min Pos, v Voxel)) {
	t.draw(0, 0, 0, 0, t.side, visit)
}

func (t *Octree) draw(idx int32, ox, oy, oz, size int, visit func(int, Pos, Voxel)) {
	n := &t.nodes[idx]
	if n.leaf {
		if !n.voxel.Empty() {
			visit(size, Pos{X: uint16(ox), Y: uint16(oy), Z: uint16(oz)}, n.voxel)
		}
		return
	}
	half := size / 2
	for i, c := range n.children {
		dx, dy, dz := octantOffset(i, half)
		t.draw(c, ox+dx, oy+dy, oz+dz, half, visit)
	}
}
