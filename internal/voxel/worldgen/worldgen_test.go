package worldgen

import (
	"testing"

	"github.com/stretchr/testify/require"

	"voxstruct.ai/internal/voxel/volume"
)

func terrainParams(seed int64) Params {
	p := DefaultParams()
	p.Mode = ModeTerrain
	p.Seed = seed
	p.MinHeight = 4
	p.MaxHeight = 28
	p.Region = 8
	return p
}

func TestFillMode(t *testing.T) {
	vol := volume.New(16)
	require.NoError(t, Paint(vol, DefaultParams()))
	require.Equal(t, vol.Len(), vol.Count(DefaultFillMaterial))

	require.NoError(t, Paint(vol, Params{Mode: ModeEmpty}))
	require.Zero(t, vol.Solid())
}

func TestTerrainIsDeterministic(t *testing.T) {
	a, b, c := volume.New(32), volume.New(32), volume.New(32)
	require.NoError(t, Paint(a, terrainParams(7)))
	require.NoError(t, Paint(b, terrainParams(7)))
	require.NoError(t, Paint(c, terrainParams(8)))
	require.Equal(t, a.Serialize(), b.Serialize())
	require.NotEqual(t, a.Serialize(), c.Serialize())
}

func TestTerrainColumns(t *testing.T) {
	p := terrainParams(42)
	vol := volume.New(32)
	require.NoError(t, Paint(vol, p))
	for z := 0; z < 32; z++ {
		for x := 0; x < 32; x++ {
			h := HeightAt(p, x, z)
			require.GreaterOrEqual(t, h, p.MinHeight)
			require.Less(t, h, p.MaxHeight)
			top := volume.Pos{X: uint16(x), Y: uint16(h - 1), Z: uint16(z)}
			require.Equal(t, p.Grass, vol.At(top))
			require.Equal(t, uint8(0), vol.At(volume.Pos{X: uint16(x), Y: uint16(h), Z: uint16(z)}))
		}
	}
}

func TestHeightIsContinuousAcrossRegions(t *testing.T) {
	p := terrainParams(3)
	p.MinHeight, p.MaxHeight = 0, 64
	for x := -40; x < 40; x++ {
		d := HeightAt(p, x+1, 5) - HeightAt(p, x, 5)
		// one region step can move at most span/region per voxel, rounded up
		require.LessOrEqual(t, d*d, 81, "x=%d", x)
	}
}

func TestValidate(t *testing.T) {
	require.Error(t, Params{Mode: "caves"}.Validate(16))
	require.Error(t, Params{Mode: ModeFill}.Validate(16))
	p := terrainParams(1)
	p.MaxHeight = 64
	require.Error(t, p.Validate(32))
	p = terrainParams(1)
	p.Region = 0
	require.Error(t, p.Validate(32))
	require.NoError(t, terrainParams(1).Validate(32))
}
