package octree

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type visit struct {
	size int
	min  Pos
	v    Voxel
}

func collect(t *Octree) []visit {
	var out []visit
	t.Draw(func(size int, min Pos, v Voxel) {
		out = append(out, visit{size: size, min: min, v: v})
	})
	return out
}

func fillAll(t *Octree, m uint8) {
	s := uint16(t.Side())
	for z := uint16(0); z < s; z++ {
		for y := uint16(0); y < s; y++ {
			for x := uint16(0); x < s; x++ {
				t.Set(Pos{X: x, Y: y, Z: z}, m)
			}
		}
	}
}

func TestNewValidatesSide(t *testing.T) {
	require.Panics(t, func() { New(0) })
	require.Panics(t, func() { New(6) })
	require.Equal(t, 1, New(1).Side())
}

func TestOutOfRangePanics(t *testing.T) {
	tr := New(4)
	require.Panics(t, func() { tr.Get(Pos{X: 4}) })
	require.Panics(t, func() { tr.Set(Pos{Y: 4}, 1) })
	require.Panics(t, func() { tr.GetInvY(Pos{Z: 5}) })
}

func TestSetGetMatchesDenseModel(t *testing.T) {
	const side = 8
	rng := rand.New(rand.NewSource(3))
	tr := New(side)
	dense := make(map[Pos]uint8)

	for i := 0; i < 5000; i++ {
		p := Pos{X: uint16(rng.Intn(side)), Y: uint16(rng.Intn(side)), Z: uint16(rng.Intn(side))}
		// a small palette forces plenty of merges and splits
		m := uint8(rng.Intn(3))
		tr.Set(p, m)
		dense[p] = m
	}
	for z := uint16(0); z < side; z++ {
		for y := uint16(0); y < side; y++ {
			for x := uint16(0); x < side; x++ {
				p := Pos{X: x, Y: y, Z: z}
				require.Equal(t, dense[p], tr.Get(p).Material, "at %v", p)
			}
		}
	}
}

func TestSetMergesUniformOctants(t *testing.T) {
	tr := New(4)
	fillAll(tr, 9)
	require.Equal(t, Stats{Nodes: 1, Leaves: 1, Solid: 1}, tr.Stats())

	tr.Set(Pos{X: 3, Y: 3, Z: 3}, 0)
	require.Equal(t, 17, tr.Stats().Nodes)

	tr.Set(Pos{X: 3, Y: 3, Z: 3}, 9)
	require.Equal(t, 1, tr.Stats().Nodes)
	require.Equal(t, uint8(9), tr.Get(Pos{X: 3, Y: 3, Z: 3}).Material)
}

func TestFreedNodesAreReused(t *testing.T) {
	tr := New(8)
	for i := 0; i < 10; i++ {
		tr.Set(Pos{X: 5, Y: 1, Z: 6}, 4)
		tr.Set(Pos{X: 5, Y: 1, Z: 6}, 0)
	}
	require.LessOrEqual(t, len(tr.nodes), 1+8*3)
	require.Equal(t, 1, tr.Stats().Nodes)
}

func TestSingleVoxelAllFacesVisible(t *testing.T) {
	tr := New(8)
	p := Pos{X: 3, Y: 4, Z: 5}
	tr.Set(p, 2)
	sum := tr.Recompute()
	require.False(t, sum.Empty)
	require.Equal(t, AllFaces, tr.Get(p).Faces)
}

func TestSolidNeighbourHidesSharedFace(t *testing.T) {
	cases := []struct {
		name  string
		other Pos
		face  uint8
		back  uint8
	}{
		{"right", Pos{X: 4, Y: 3, Z: 3}, FaceRight, FaceLeft},
		{"left", Pos{X: 2, Y: 3, Z: 3}, FaceLeft, FaceRight},
		{"top", Pos{X: 3, Y: 4, Z: 3}, FaceTop, FaceBottom},
		{"bottom", Pos{X: 3, Y: 2, Z: 3}, FaceBottom, FaceTop},
		{"back", Pos{X: 3, Y: 3, Z: 4}, FaceBack, FaceFront},
		{"front", Pos{X: 3, Y: 3, Z: 2}, FaceFront, FaceBack},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tr := New(8)
			p := Pos{X: 3, Y: 3, Z: 3}
			tr.Set(p, 1)
			tr.Set(tc.other, 7)
			tr.Recompute()
			require.Equal(t, AllFaces&^tc.face, tr.Get(p).Faces)
			require.Equal(t, AllFaces&^tc.back, tr.Get(tc.other).Faces)
		})
	}
}

func TestBoundaryFacesAlwaysVisible(t *testing.T) {
	tr := New(2)
	fillAll(tr, 1)
	tr.Set(Pos{X: 1, Y: 1, Z: 1}, 0)
	tr.Recompute()
	// (0,0,0) touches the boundary on three sides and solid voxels on the others.
	require.Equal(t, FaceFront|FaceLeft|FaceBottom, tr.Get(Pos{}).Faces)
	// (1,1,0) is next to the carved voxel at +Z.
	require.Equal(t, FaceFront|FaceTop|FaceRight|FaceBack, tr.Get(Pos{X: 1, Y: 1}).Faces)
}

func TestGreedyMergeFullTree(t *testing.T) {
	tr := New(8)
	fillAll(tr, 3)
	tr.Recompute()
	visits := collect(tr)
	require.Len(t, visits, 1)
	require.Equal(t, 8, visits[0].size)
	require.Equal(t, Pos{}, visits[0].min)
}

func TestGreedyMergeMinCornerVoxel(t *testing.T) {
	tr := New(8)
	tr.Set(Pos{}, 3)
	tr.Recompute()
	visits := collect(tr)
	require.Len(t, visits, 1)
	require.Equal(t, 1, visits[0].size)
	require.Equal(t, AllFaces, visits[0].v.Faces)
}

func TestEmptyTree(t *testing.T) {
	tr := New(16)
	require.True(t, tr.Recompute().Empty)
	require.Empty(t, collect(tr))

	tr.Set(Pos{X: 2}, 1)
	tr.Set(Pos{X: 2}, 0)
	require.True(t, tr.Recompute().Empty)
	require.Empty(t, collect(tr))
}

func TestScenarioSolidChunk(t *testing.T) {
	tr := New(16)
	fillAll(tr, 5)
	require.False(t, tr.Recompute().Empty)
	visits := collect(tr)
	require.Len(t, visits, 1)
	require.Equal(t, 16, visits[0].size)
	require.Equal(t, uint8(5), visits[0].v.Material)
	require.Equal(t, AllFaces, visits[0].v.Faces)
}

func TestScenarioCarvedChunk(t *testing.T) {
	tr := New(16)
	fillAll(tr, 5)
	tr.Recompute()

	tr.Set(Pos{X: 1}, 0)
	require.False(t, tr.Recompute().Empty)
	visits := collect(tr)
	require.Greater(t, len(visits), 1)

	total := 0
	for _, v := range visits {
		require.Less(t, v.size, 16)
		total += v.size * v.size * v.size
	}
	require.Equal(t, 16*16*16-1, total)

	require.NotZero(t, tr.Get(Pos{}).Faces&FaceRight)
	require.NotZero(t, tr.Get(Pos{X: 2}).Faces&FaceLeft)
	require.NotZero(t, tr.Get(Pos{X: 1, Y: 1}).Faces&FaceBottom)
	require.NotZero(t, tr.Get(Pos{X: 1, Z: 1}).Faces&FaceFront)
	// The half-size octants away from the hole keep their interior faces hidden.
	far := tr.Get(Pos{X: 15, Y: 15, Z: 15})
	require.Equal(t, FaceTop|FaceBack|FaceRight, far.Faces)
}

func TestBuildMatchesSet(t *testing.T) {
	const side = 16
	sample := func(p Pos) uint8 {
		if p.Y < 6 {
			return 1
		}
		if p.X == 3 && p.Z == 9 {
			return 2
		}
		return 0
	}
	built := Build(side, sample)
	manual := New(side)
	for z := uint16(0); z < side; z++ {
		for y := uint16(0); y < side; y++ {
			for x := uint16(0); x < side; x++ {
				p := Pos{X: x, Y: y, Z: z}
				manual.Set(p, sample(p))
				require.Equal(t, sample(p), built.Get(p).Material)
			}
		}
	}
	require.Equal(t, manual.Stats(), built.Stats())
	require.Equal(t, 1, Build(side, func(Pos) uint8 { return 4 }).Stats().Nodes)
}

func TestInvertedAccess(t *testing.T) {
	tr := New(4)
	tr.SetInvY(Pos{X: 1, Y: 0, Z: 2}, 8)
	require.Equal(t, uint8(8), tr.Get(Pos{X: 1, Y: 3, Z: 2}).Material)
	require.Equal(t, uint8(8), tr.GetInvY(Pos{X: 1, Y: 0, Z: 2}).Material)
}
