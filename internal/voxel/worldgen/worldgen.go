// Package worldgen paints initial volume contents. Every mode is a pure function of
// its Params, so the same seed always yields the same bytes.
package worldgen

import (
	"fmt"

	"voxstruct.ai/internal/voxel/volume"
)

const (
	ModeEmpty   = "empty"
	ModeFill    = "fill"
	ModeTerrain = "terrain"
)

// DefaultFillMaterial is what a fresh structure is filled with.
const DefaultFillMaterial uint8 = 100

type Params struct {
	Mode string
	Seed int64

	Fill uint8

	// Region is the horizontal spacing of height samples; heights between samples are
	// interpolated.
	Region    int
	MinHeight int
	MaxHeight int

	Stone uint8
	Dirt  uint8
	Grass uint8
	Ore   uint8
	// OrePermille is the chance per stone voxel of becoming ore.
	OrePermille int
}

func DefaultParams() Params {
	return Params{
		Mode:        ModeFill,
		Fill:        DefaultFillMaterial,
		Region:      16,
		MinHeight:   24,
		MaxHeight:   72,
		Stone:       73,
		Dirt:        104,
		Grass:       28,
		Ore:         227,
		OrePermille: 8,
	}
}

func (p Params) Validate(side int) error {
	switch p.Mode {
	case ModeEmpty:
	case ModeFill:
		if p.Fill == 0 {
			return fmt.Errorf("fill mode needs a non-air material")
		}
	case ModeTerrain:
		if p.Region <= 0 {
			return fmt.Errorf("region must be > 0")
		}
		if p.MinHeight < 0 || p.MaxHeight <= p.MinHeight || p.MaxHeight > side {
			return fmt.Errorf("height range [%d,%d) invalid for side %d", p.MinHeight, p.MaxHeight, side)
		}
		if p.OrePermille < 0 || p.OrePermille > 1000 {
			return fmt.Errorf("ore_permille must be in [0,1000]")
		}
	default:
		return fmt.Errorf("unknown worldgen mode %q", p.Mode)
	}
	return nil
}

// Paint overwrites vol according to p.
func Paint(vol *volume.Volume, p Params) error {
	side := vol.Side()
	if err := p.Validate(side); err != nil {
		return err
	}
	all := volume.Box{Max: volume.Pos{X: uint16(side), Y: uint16(side), Z: uint16(side)}}
	switch p.Mode {
	case ModeEmpty:
		return vol.Fill(all, 0)
	case ModeFill:
		return vol.Fill(all, p.Fill)
	}

	if err := vol.Fill(all, 0); err != nil {
		return err
	}
	for z := 0; z < side; z++ {
		for x := 0; x < side; x++ {
			h := HeightAt(p, x, z)
			for y := 0; y < h; y++ {
				vol.Set(volume.Pos{X: uint16(x), Y: uint16(y), Z: uint16(z)}, p.columnMaterial(x, y, z, h))
			}
		}
	}
	return nil
}

func (p Params) columnMaterial(x, y, z, h int) uint8 {
	switch {
	case y == h-1:
		return p.Grass
	case y >= h-4:
		return p.Dirt
	case p.OrePermille > 0 && hash3(p.Seed, x, y, z)%1000 < uint64(p.OrePermille):
		return p.Ore
	default:
		return p.Stone
	}
}

// HeightAt returns the terrain column height at (x, z), always in
// [MinHeight, MaxHeight).
func HeightAt(p Params, x, z int) int {
	r := p.Region
	gx, gz := floorDiv(x, r), floorDiv(z, r)
	fx, fz := x-gx*r, z-gz*r
	span := uint64(p.MaxHeight - p.MinHeight)

	corner := func(cx, cz int) int {
		return int(hash2(p.Seed, cx, cz) % span)
	}
	h00 := corner(gx, gz)
	h10 := corner(gx+1, gz)
	h01 := corner(gx, gz+1)
	h11 := corner(gx+1, gz+1)

	// bilinear in integer space, weights sum to r*r
	top := h00*(r-fx) + h10*fx
	bot := h01*(r-fx) + h11*fx
	v := (top*(r-fz) + bot*fz) / (r * r)
	return p.MinHeight + v
}
