package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/voxel/grid"
	"voxstruct.ai/internal/voxel/mesh"
	"voxstruct.ai/internal/voxel/volume"
)

func writeTestSnapshot(t *testing.T, dir string) string {
	t.Helper()
	vol := volume.New(32)
	if err := vol.Fill(volume.Box{Max: volume.Pos{X: 32, Y: 16, Z: 32}}, 3); err != nil {
		t.Fatalf("fill: %v", err)
	}
	snap := snapshot.SnapshotV1{
		Header:    snapshot.Header{Version: snapshot.Version, StructureID: "s1", Seq: 4},
		ChunkSize: 16,
		Scale:     1,
		Palette:   "gray",
	}
	snap.SetVolume(vol)
	path := snapshot.Path(dir, 4)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return path
}

func TestRun_SnapshotOnly(t *testing.T) {
	path := writeTestSnapshot(t, t.TempDir())
	var buf bytes.Buffer
	if err := run(&buf, options{snapPath: path, top: 2}); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "structure=s1 seq=4") {
		t.Fatalf("missing header line:\n%s", out)
	}
	// four full bottom chunks, each one cube
	if !strings.Contains(out, "chunks=8 empty=4 nodes=8 vertices=96 triangles=48") {
		t.Fatalf("unexpected stats:\n%s", out)
	}
	if strings.Count(out, "triangles\n") != 2 {
		t.Fatalf("expected two top chunks:\n%s", out)
	}
}

func TestRun_ReplaysNewerEdits(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSnapshot(t, dir)

	l := persistlog.NewEditLogger(dir)
	for _, e := range []persistlog.EditEntry{
		{Seq: 3, Op: "EDIT", Pos: [3]int{20, 20, 20}, Material: 9},
		{Seq: 5, Op: "EDIT", Pos: [3]int{31, 31, 31}, Material: 9},
		{Seq: 6, Op: "MINE", Pos: [3]int{0, 0, 0}, Prev: 3},
	} {
		if err := l.WriteEdit(e); err != nil {
			t.Fatalf("write edit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var buf bytes.Buffer
	if err := run(&buf, options{snapPath: path, dataDir: dir, toSeq: 5, asJSON: true, verify: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var rep report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if rep.Replayed != 1 || rep.Seq != 5 {
		t.Fatalf("replayed=%d seq=%d", rep.Replayed, rep.Seq)
	}
	if rep.Stats.EmptyChunks != 3 {
		t.Fatalf("empty chunks=%d want 3", rep.Stats.EmptyChunks)
	}
	if rep.Solid != 32*16*32+1 {
		t.Fatalf("solid=%d", rep.Solid)
	}
	if rep.Mismatches == nil || *rep.Mismatches != 0 {
		t.Fatalf("mismatches=%v", rep.Mismatches)
	}
}

func TestRun_HeaderOnly(t *testing.T) {
	path := writeTestSnapshot(t, t.TempDir())
	var buf bytes.Buffer
	if err := run(&buf, options{snapPath: path, headerOnly: true, asJSON: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var h snapshot.Header
	if err := json.Unmarshal(buf.Bytes(), &h); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if h.StructureID != "s1" || h.Seq != 4 || h.Version != snapshot.Version {
		t.Fatalf("header=%+v", h)
	}
	if strings.Contains(buf.String(), "chunks=") {
		t.Fatalf("header mode printed stats:\n%s", buf.String())
	}
}

func TestRun_MissingSnapshot(t *testing.T) {
	var buf bytes.Buffer
	if err := run(&buf, options{snapPath: filepath.Join(t.TempDir(), "nope.snap.zst")}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRun_ContinuesPastTruncatedSegment(t *testing.T) {
	dir := t.TempDir()
	path := writeTestSnapshot(t, dir)

	l := persistlog.NewEditLogger(dir)
	for seq := uint64(5); seq <= 8; seq++ {
		if err := l.WriteEdit(persistlog.EditEntry{Seq: seq, Op: "EDIT", Pos: [3]int{int(seq), 20, 20}, Material: 9}); err != nil {
			t.Fatalf("write edit: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := persistlog.EditFiles(dir)
	if err != nil || len(files) != 1 {
		t.Fatalf("edit files=%v err=%v", files, err)
	}
	b, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if err := os.WriteFile(files[0], b[:len(b)-12], 0o644); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	var buf bytes.Buffer
	if err := run(&buf, options{snapPath: path, dataDir: dir, asJSON: true}); err != nil {
		t.Fatalf("run: %v", err)
	}
	var rep report
	if err := json.Unmarshal(buf.Bytes(), &rep); err != nil {
		t.Fatalf("decode: %v\n%s", err, buf.String())
	}
	if len(rep.Truncated) != 1 {
		t.Fatalf("truncated=%v", rep.Truncated)
	}
	if rep.Replayed == 0 || rep.Replayed >= 4 {
		t.Fatalf("replayed=%d, want a prefix of the segment", rep.Replayed)
	}
}

func TestVerifySync_CountsDrift(t *testing.T) {
	vol := volume.New(32)
	g, err := grid.New(grid.Config{VolumeSize: 32, ChunkSize: 16, Scale: 1}, mesh.GrayPalette())
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	g.Load(vol)
	g.Edit(volume.Pos{X: 1, Y: 2, Z: 3}, 4)
	if n := verifySync(g, vol); n != 0 {
		t.Fatalf("mismatches=%d after edit", n)
	}

	// written behind the grid's back
	vol.Set(volume.Pos{X: 5, Y: 5, Z: 5}, 7)
	if n := verifySync(g, vol); n != 1 {
		t.Fatalf("mismatches=%d want 1", n)
	}
	if m := vol.At(volume.Pos{X: 5, Y: 5, Z: 5}); m != 0 {
		t.Fatalf("sync left material %d", m)
	}
}
