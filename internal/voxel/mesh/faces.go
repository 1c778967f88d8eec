package mesh

import "voxstruct.ai/internal/voxel/octree"

var cubeVertices = [8]Vec3{
	{0, 0, 0}, // 0
	{0, 1, 0}, // 1
	{1, 1, 0}, // 2
	{1, 0, 0}, // 3

	{0, 0, 1}, // 4
	{0, 1, 1}, // 5
	{1, 1, 1}, // 6
	{1, 0, 1}, // 7
}

// face describes one cube side: the mask bit, its outward normal, the four cube
// corners of its quad and two triangles as offsets into those four corners.
type face struct {
	bit     uint8
	normal  Vec3
	corners [4]int
	tris    [6]int32
}

// Order matches the octree face bits.
var faces = [6]face{
	{octree.FaceFront, Vec3{0, 0, -1}, [4]int{0, 1, 2, 3}, [6]int32{2, 1, 0, 0, 3, 2}},
	{octree.FaceTop, Vec3{0, 1, 0}, [4]int{1, 5, 6, 2}, [6]int32{2, 1, 0, 0, 3, 2}},
	{octree.FaceBack, Vec3{0, 0, 1}, [4]int{4, 5, 6, 7}, [6]int32{1, 2, 3, 3, 0, 1}},
	{octree.FaceLeft, Vec3{-1, 0, 0}, [4]int{0, 1, 5, 4}, [6]int32{1, 2, 3, 3, 0, 1}},
	{octree.FaceRight, Vec3{1, 0, 0}, [4]int{3, 7, 6, 2}, [6]int32{2, 3, 0, 0, 1, 2}},
	{octree.FaceBottom, Vec3{0, -1, 0}, [4]int{0, 4, 7, 3}, [6]int32{1, 2, 3, 3, 0, 1}},
}

var cornerUV = [4]Vec2{
	{0, 0},
	{0, 1},
	{1, 1},
	{1, 0},
}

// swapTopBottom mirrors a face mask across the XZ plane.
func swapTopBottom(mask uint8) uint8 {
	out := mask &^ (octree.FaceTop | octree.FaceBottom)
	if mask&octree.FaceTop != 0 {
		out |= octree.FaceBottom
	}
	if mask&octree.FaceBottom != 0 {
		out |= octree.FaceTop
	}
	return out
}
