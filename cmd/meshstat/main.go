package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/voxel/grid"
	"voxstruct.ai/internal/voxel/mesh"
	"voxstruct.ai/internal/voxel/volume"
)

var errStop = errors.New("stop")

type options struct {
	snapPath   string
	dataDir    string
	toSeq      uint64
	top        int
	asJSON     bool
	headerOnly bool
	verify     bool
}

func main() {
	var opts options
	flag.StringVar(&opts.snapPath, "snapshot", "", "path to .snap.zst")
	flag.StringVar(&opts.dataDir, "data", "", "structure dir containing edits/ to replay on top of the snapshot (optional)")
	flag.Uint64Var(&opts.toSeq, "to_seq", 0, "stop replay at seq (inclusive, optional)")
	flag.IntVar(&opts.top, "top", 5, "list the N chunks with the most triangles")
	flag.BoolVar(&opts.asJSON, "json", false, "print stats as JSON")
	flag.BoolVar(&opts.headerOnly, "header", false, "print only the snapshot header")
	flag.BoolVar(&opts.verify, "verify", false, "check that the chunk octrees reproduce the volume")
	flag.Parse()

	if opts.snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	if err := run(os.Stdout, opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type chunkStat struct {
	Chunk     int    `json:"chunk"`
	Origin    [3]int `json:"origin"`
	Triangles int    `json:"triangles"`
}

type report struct {
	StructureID string      `json:"structure_id"`
	Seq         uint64      `json:"seq"`
	Replayed    int         `json:"replayed"`
	Truncated   []string    `json:"truncated,omitempty"`
	Solid       int         `json:"solid"`
	Stats       grid.Stats  `json:"stats"`
	Top         []chunkStat `json:"top,omitempty"`
	// Mismatches counts voxels where the octrees disagree with the volume; only set
	// with -verify.
	Mismatches *int `json:"mismatches,omitempty"`
}

func run(w io.Writer, opts options) error {
	h, err := snapshot.ReadHeader(opts.snapPath)
	if err != nil {
		return fmt.Errorf("read snapshot header: %w", err)
	}
	if opts.headerOnly {
		if opts.asJSON {
			return json.NewEncoder(w).Encode(h)
		}
		fmt.Fprintf(w, "snapshot v%d structure=%s seq=%d\n", h.Version, h.StructureID, h.Seq)
		return nil
	}

	snap, err := snapshot.ReadSnapshot(opts.snapPath)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Header != h {
		return fmt.Errorf("snapshot header line %+v disagrees with body %+v", h, snap.Header)
	}
	vol, err := snap.Volume()
	if err != nil {
		return fmt.Errorf("snapshot volume: %w", err)
	}
	palette, err := snapshotPalette(snap)
	if err != nil {
		return err
	}
	if !opts.asJSON {
		fmt.Fprintf(w, "snapshot v%d structure=%s seq=%d volume=%d chunk=%d scale=%g seed=%d solid=%d\n",
			h.Version, h.StructureID, h.Seq,
			snap.VolumeSize, snap.ChunkSize, snap.Scale, snap.Seed, snap.Solid)
	}

	g, err := grid.New(grid.Config{VolumeSize: snap.VolumeSize, ChunkSize: snap.ChunkSize, Scale: snap.Scale}, palette)
	if err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	g.Load(vol)

	rep := report{StructureID: h.StructureID, Seq: h.Seq}
	if opts.dataDir != "" {
		if err := replay(g, opts, &rep); err != nil {
			return err
		}
	}

	rep.Solid = vol.Solid()
	rep.Stats = g.Stats()
	rep.Top = topChunks(g.Chunks(), opts.top)
	if opts.verify {
		n := verifySync(g, vol)
		rep.Mismatches = &n
	}

	if opts.asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		if opts.dataDir != "" {
			fmt.Fprintf(w, "replayed %d edits, now at seq=%d solid=%d\n", rep.Replayed, rep.Seq, rep.Solid)
			for _, t := range rep.Truncated {
				fmt.Fprintf(w, "  truncated: %s\n", t)
			}
		}
		s := rep.Stats
		fmt.Fprintf(w, "chunks=%d empty=%d nodes=%d vertices=%d triangles=%d\n",
			s.Chunks, s.EmptyChunks, s.Nodes, s.Vertices, s.Triangles)
		for _, c := range rep.Top {
			fmt.Fprintf(w, "  chunk %d at %v: %d triangles\n", c.Chunk, c.Origin, c.Triangles)
		}
		if rep.Mismatches != nil {
			fmt.Fprintf(w, "verify: %d mismatched voxels\n", *rep.Mismatches)
		}
	}
	if rep.Mismatches != nil && *rep.Mismatches > 0 {
		return fmt.Errorf("verify: %d voxels differ between octrees and volume", *rep.Mismatches)
	}
	return nil
}

func replay(g *grid.Grid, opts options, rep *report) error {
	files, err := persistlog.EditFiles(opts.dataDir)
	if err != nil {
		return fmt.Errorf("list edits: %w", err)
	}
	for _, path := range files {
		err := persistlog.ReadEdits(path, func(e persistlog.EditEntry) error {
			if e.Seq <= rep.Seq {
				return nil
			}
			if opts.toSeq != 0 && e.Seq > opts.toSeq {
				return errStop
			}
			p, ok := editPos(g, e.Pos)
			if !ok {
				return fmt.Errorf("edit %d: position %v out of bounds", e.Seq, e.Pos)
			}
			g.Edit(p, e.Material)
			rep.Seq = e.Seq
			rep.Replayed++
			return nil
		})
		switch {
		case errors.Is(err, errStop):
			return nil
		case errors.Is(err, persistlog.ErrTruncated):
			rep.Truncated = append(rep.Truncated, err.Error())
		case err != nil:
			return fmt.Errorf("replay %s: %w", path, err)
		}
	}
	return nil
}

// verifySync rebuilds the volume from the chunk octrees and counts voxels that differ
// from the volume the grid was loaded and edited with. vol holds the octree contents
// afterwards.
func verifySync(g *grid.Grid, vol *volume.Volume) int {
	want := vol.Clone().Serialize()
	g.SyncVolume()
	got := vol.Serialize()
	n := 0
	for i := range want {
		if want[i] != got[i] {
			n++
		}
	}
	return n
}

func snapshotPalette(snap snapshot.SnapshotV1) (*mesh.Palette, error) {
	if len(snap.PaletteRGB) > 0 {
		return mesh.PaletteFromRGB(snap.PaletteRGB)
	}
	return mesh.PaletteByName(snap.Palette)
}

func editPos(g *grid.Grid, pos [3]int) (volume.Pos, bool) {
	side := g.Config().VolumeSize
	for _, c := range pos {
		if c < 0 || c >= side {
			return volume.Pos{}, false
		}
	}
	return volume.Pos{X: uint16(pos[0]), Y: uint16(pos[1]), Z: uint16(pos[2])}, true
}

func topChunks(ups []grid.Update, n int) []chunkStat {
	if n <= 0 {
		return nil
	}
	out := make([]chunkStat, 0, len(ups))
	for _, u := range ups {
		if u.Empty {
			continue
		}
		out = append(out, chunkStat{
			Chunk:     u.Chunk,
			Origin:    [3]int{int(u.Origin.X), int(u.Origin.Y), int(u.Origin.Z)},
			Triangles: u.Mesh.Triangles(),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Triangles > out[j].Triangles })
	if len(out) > n {
		out = out[:n]
	}
	return out
}
