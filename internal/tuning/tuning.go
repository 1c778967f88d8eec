package tuning

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"voxstruct.ai/internal/voxel/mesh"
	"voxstruct.ai/internal/voxel/worldgen"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	VolumeSize int     `yaml:"volume_size"`
	ChunkSize  int     `yaml:"chunk_size"`
	Scale      float32 `yaml:"scale"`

	// Palette is a preset name ("gray", "8bit"); PaletteRGB overrides it when set.
	Palette    string     `yaml:"palette"`
	PaletteRGB [][3]uint8 `yaml:"palette_rgb"`

	Worldgen Worldgen `yaml:"worldgen"`

	SnapshotEveryEdits int `yaml:"snapshot_every_edits"`
	MaxEditsPerSecond  int `yaml:"max_edits_per_second"`
}

type Worldgen struct {
	Mode         string `yaml:"mode"`
	Seed         int64  `yaml:"seed"`
	FillMaterial uint8  `yaml:"fill_material"`
	Region       int    `yaml:"region"`
	MinHeight    int    `yaml:"min_height"`
	MaxHeight    int    `yaml:"max_height"`
	OrePermille  int    `yaml:"ore_permille"`
}

func Defaults() Tuning {
	gen := worldgen.DefaultParams()
	return Tuning{
		ProtocolVersion: "1.0",
		VolumeSize:      128,
		ChunkSize:       16,
		Scale:           1,
		Palette:         "gray",
		Worldgen: Worldgen{
			Mode:         gen.Mode,
			FillMaterial: gen.Fill,
			Region:       gen.Region,
			MinHeight:    gen.MinHeight,
			MaxHeight:    gen.MaxHeight,
			OrePermille:  gen.OrePermille,
		},
		SnapshotEveryEdits: 500,
		MaxEditsPerSecond:  200,
	}
}

// Load reads path over Defaults, so a partial file only overrides what it names.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func isPow2(n int) bool { return n > 0 && n&(n-1) == 0 }

func (t Tuning) Validate() error {
	var errs []error
	if !isPow2(t.VolumeSize) || t.VolumeSize > 1<<10 {
		errs = append(errs, fmt.Errorf("volume_size %d must be a power of two <= 1024", t.VolumeSize))
	}
	if !isPow2(t.ChunkSize) || t.ChunkSize > t.VolumeSize {
		errs = append(errs, fmt.Errorf("chunk_size %d must be a power of two <= volume_size", t.ChunkSize))
	}
	if t.Scale <= 0 {
		errs = append(errs, fmt.Errorf("scale must be > 0"))
	}
	if _, err := t.PaletteValue(); err != nil {
		errs = append(errs, err)
	}
	if t.VolumeSize > 0 {
		if err := t.WorldgenParams().Validate(t.VolumeSize); err != nil {
			errs = append(errs, fmt.Errorf("worldgen: %w", err))
		}
	}
	if t.SnapshotEveryEdits < 0 {
		errs = append(errs, fmt.Errorf("snapshot_every_edits must be >= 0"))
	}
	if t.MaxEditsPerSecond < 0 {
		errs = append(errs, fmt.Errorf("max_edits_per_second must be >= 0"))
	}
	return errors.Join(errs...)
}

func (t Tuning) PaletteValue() (*mesh.Palette, error) {
	if len(t.PaletteRGB) > 0 {
		return mesh.PaletteFromRGB(t.PaletteRGB)
	}
	return mesh.PaletteByName(t.Palette)
}

func (t Tuning) WorldgenParams() worldgen.Params {
	p := worldgen.DefaultParams()
	p.Mode = t.Worldgen.Mode
	p.Seed = t.Worldgen.Seed
	p.Fill = t.Worldgen.FillMaterial
	p.Region = t.Worldgen.Region
	p.MinHeight = t.Worldgen.MinHeight
	p.MaxHeight = t.Worldgen.MaxHeight
	p.OrePermille = t.Worldgen.OrePermille
	return p
}
