package volume

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedVolume is returned by Deserialize when the input does not hold exactly
	// side³ material bytes.
	ErrMalformedVolume = errors.New("malformed volume data")
	// ErrBoxOutOfBounds is returned by Fill for boxes that leave the volume.
	ErrBoxOutOfBounds = errors.New("box exceeds volume bounds")
)

// Pos addresses one voxel.
type Pos struct {
	X, Y, Z uint16
}

// Box is an axis-aligned box, Min inclusive and Max exclusive.
type Box struct {
	Min, Max Pos
}

func (b Box) empty() bool {
	return b.Max.X <= b.Min.X || b.Max.Y <= b.Min.Y || b.Max.Z <= b.Min.Z
}

// Volume is a dense cube of material ids. Index order is x fastest, then y, then z.
type Volume struct {
	side int
	data []uint8
}

func New(side int) *Volume {
	if side <= 0 || side&(side-1) != 0 {
		panic(fmt.Sprintf("volume: side %d is not a power of two", side))
	}
	if side > 1<<16 {
		panic(fmt.Sprintf("volume: side %d does not fit 16 bit coordinates", side))
	}
	return &Volume{
		side: side,
		data: make([]uint8, side*side*side),
	}
}

func (v *Volume) Side() int { return v.side }

// Len is the number of voxels (side³), which is also the serialized length.
func (v *Volume) Len() int { return len(v.data) }

func (v *Volume) InBounds(p Pos) bool {
	return int(p.X) < v.side && int(p.Y) < v.side && int(p.Z) < v.side
}

func (v *Volume) index(p Pos) int {
	if int(p.X) >= v.side || int(p.Y) >= v.side || int(p.Z) >= v.side {
		panic(fmt.Sprintf("volume: position %v outside side %d", p, v.side))
	}
	return int(p.X) + int(p.Y)*v.side + int(p.Z)*v.side*v.side
}

func (v *Volume) At(p Pos) uint8 {
	return v.data[v.index(p)]
}

func (v *Volume) Set(p Pos, m uint8) {
	v.data[v.index(p)] = m
}

// Fill sets every voxel in b to m. Boxes reaching past the volume are rejected
// without touching any voxel.
func (v *Volume) Fill(b Box, m uint8) error {
	if b.empty() {
		return nil
	}
	if int(b.Max.X) > v.side || int(b.Max.Y) > v.side || int(b.Max.Z) > v.side {
		return fmt.Errorf("fill %v..%v in side %d: %w", b.Min, b.Max, v.side, ErrBoxOutOfBounds)
	}
	for z := int(b.Min.Z); z < int(b.Max.Z); z++ {
		for y := int(b.Min.Y); y < int(b.Max.Y); y++ {
			row := y*v.side + z*v.side*v.side
			for x := int(b.Min.X); x < int(b.Max.X); x++ {
				v.data[row+x] = m
			}
		}
	}
	return nil
}

// Count returns how many voxels hold material m.
func (v *Volume) Count(m uint8) int {
	n := 0
	for _, c := range v.data {
		if c == m {
			n++
		}
	}
	return n
}

// Solid returns the number of non-air voxels.
func (v *Volume) Solid() int {
	return len(v.data) - v.Count(0)
}

func (v *Volume) Clone() *Volume {
	data := make([]uint8, len(v.data))
	copy(data, v.data)
	return &Volume{side: v.side, data: data}
}

// Serialize returns one byte per voxel in index order.
func (v *Volume) Serialize() []byte {
	out := make([]byte, len(v.data))
	copy(out, v.data)
	return out
}

// Deserialize overwrites the whole volume from b. The volume is left untouched when b
// has the wrong length.
func (v *Volume) Deserialize(b []byte) error {
	if len(b) != len(v.data) {
		return fmt.Errorf("got %d bytes want %d: %w", len(b), len(v.data), ErrMalformedVolume)
	}
	copy(v.data, b)
	return nil
}
