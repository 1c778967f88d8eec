package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/structure"
	"voxstruct.ai/internal/tuning"
	"voxstruct.ai/internal/voxel/grid"
	"voxstruct.ai/internal/voxel/volume"
	"voxstruct.ai/internal/voxel/worldgen"
)

// openStructure restores the structure from snapPath, or paints a fresh volume when
// snapPath is empty, then replays logged edits newer than the starting point.
func openStructure(id, structureDir, snapPath string, tune tuning.Tuning, logger *log.Logger) (*structure.Structure, error) {
	palette, err := tune.PaletteValue()
	if err != nil {
		return nil, err
	}
	cfg := structure.Config{
		ID: id,
		Grid: grid.Config{
			VolumeSize: tune.VolumeSize,
			ChunkSize:  tune.ChunkSize,
			Scale:      tune.Scale,
		},
		Palette:            palette,
		PaletteName:        tune.Palette,
		PaletteRGB:         tune.PaletteRGB,
		Seed:               tune.Worldgen.Seed,
		SnapshotEveryEdits: tune.SnapshotEveryEdits,
		MaxEditsPerSecond:  tune.MaxEditsPerSecond,
	}

	var vol *volume.Volume
	if snapPath != "" {
		snap, err := snapshot.ReadSnapshot(snapPath)
		if err != nil {
			return nil, fmt.Errorf("read snapshot: %w", err)
		}
		if snap.Header.StructureID != "" && snap.Header.StructureID != id {
			return nil, fmt.Errorf("snapshot structure id mismatch: flag=%s snap=%s", id, snap.Header.StructureID)
		}
		if snap.VolumeSize != tune.VolumeSize {
			return nil, fmt.Errorf("snapshot volume_size %d, tuning has %d", snap.VolumeSize, tune.VolumeSize)
		}
		vol, err = snap.Volume()
		if err != nil {
			return nil, err
		}
		cfg.StartSeq = snap.Header.Seq
		cfg.Seed = snap.Seed
		logger.Printf("loaded snapshot %s (seq=%d solid=%d)", snapPath, snap.Header.Seq, snap.Solid)
	} else {
		vol = volume.New(tune.VolumeSize)
		gen := tune.WorldgenParams()
		if err := worldgen.Paint(vol, gen); err != nil {
			return nil, fmt.Errorf("worldgen: %w", err)
		}
		logger.Printf("generated volume (mode=%s seed=%d solid=%d)", gen.Mode, gen.Seed, vol.Solid())
	}

	st, err := structure.New(cfg, vol)
	if err != nil {
		return nil, err
	}

	files, err := persistlog.EditFiles(structureDir)
	if err != nil {
		return nil, fmt.Errorf("list edit logs: %w", err)
	}
	start := st.Seq()
	for _, f := range files {
		err := persistlog.ReadEdits(f, st.Replay)
		if errors.Is(err, persistlog.ErrTruncated) {
			logger.Printf("replay: %v; continuing at seq=%d", err, st.Seq())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("replay %s: %w", f, err)
		}
	}
	if st.Seq() != start {
		logger.Printf("replayed edits %d..%d", start+1, st.Seq())
	}
	return st, nil
}

// latestSnapshot picks the newest snapshot known either to the index or to the
// snapshots directory. Index entries whose file is gone or unreadable are ignored.
func latestSnapshot(structureDir string, idx runtimeIndex, logger *log.Logger) string {
	best := snapshot.Latest(structureDir)
	var bestSeq uint64
	if best != "" {
		h, err := snapshot.ReadHeader(best)
		if err != nil {
			logger.Printf("snapshot %s: %v", best, err)
			best = ""
		} else {
			bestSeq = h.Seq
		}
	}
	if idx == nil {
		return best
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	path, seq, ok, err := idx.LatestSnapshot(ctx)
	if err != nil {
		logger.Printf("index backend: latest snapshot: %v", err)
		return best
	}
	if !ok || (best != "" && seq <= bestSeq) {
		return best
	}
	if _, err := os.Stat(path); err != nil {
		logger.Printf("indexed snapshot seq=%d missing: %v", seq, err)
		return best
	}
	h, err := snapshot.ReadHeader(path)
	if err != nil || h.Seq != seq {
		logger.Printf("indexed snapshot %s does not match seq=%d (header=%d err=%v)", path, seq, h.Seq, err)
		return best
	}
	return path
}
