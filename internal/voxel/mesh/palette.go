package mesh

import "fmt"

// RGB is a color with channels in 0..1.
type RGB [3]float32

// Palette maps material ids to colors. Entry 0 is air and never rendered.
type Palette [256]RGB

// GrayPalette maps material i to the gray level i/255.
func GrayPalette() *Palette {
	var p Palette
	for i := range p {
		c := float32(i) / 255
		p[i] = RGB{c, c, c}
	}
	return &p
}

// Palette8Bit decodes material ids as RRRGGGBB.
func Palette8Bit() *Palette {
	var p Palette
	for i := range p {
		r := (i >> 5) & 0x7
		g := (i >> 2) & 0x7
		b := i & 0x3
		p[i] = RGB{float32(r) / 7, float32(g) / 7, float32(b) / 3}
	}
	return &p
}

// PaletteFromRGB builds a palette from 8 bit triples; materials past the list stay black.
func PaletteFromRGB(entries [][3]uint8) (*Palette, error) {
	if len(entries) > 256 {
		return nil, fmt.Errorf("palette has %d entries, max 256", len(entries))
	}
	var p Palette
	for i, e := range entries {
		p[i] = RGB{float32(e[0]) / 255, float32(e[1]) / 255, float32(e[2]) / 255}
	}
	return &p, nil
}

// PaletteByName resolves a preset name.
func PaletteByName(name string) (*Palette, error) {
	switch name {
	case "", "gray":
		return GrayPalette(), nil
	case "8bit":
		return Palette8Bit(), nil
	default:
		return nil, fmt.Errorf("unknown palette preset %q", name)
	}
}

// Color returns the RGBA color of material m with full alpha.
func (p *Palette) Color(m uint8) Color {
	c := p[m]
	return Color{c[0], c[1], c[2], 1}
}
