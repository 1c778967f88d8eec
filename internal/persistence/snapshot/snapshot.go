package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"voxstruct.ai/internal/encoding"
	"voxstruct.ai/internal/voxel/volume"
)

const (
	Version = 1
	suffix  = ".snap.zst"
)

var ErrVersion = errors.New("unsupported snapshot version")

type Header struct {
	Version     int    `json:"version"`
	StructureID string `json:"structure_id"`
	// Seq is the number of applied edits at the time of the snapshot.
	Seq uint64 `json:"seq"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	VolumeSize int     `json:"volume_size"`
	ChunkSize  int     `json:"chunk_size"`
	Scale      float32 `json:"scale"`
	Seed       int64   `json:"seed"`

	Palette    string     `json:"palette,omitempty"`
	PaletteRGB [][3]uint8 `json:"palette_rgb,omitempty"`

	// Runs is the serialized volume in encoding.EncodeRuns form.
	Runs  []byte `json:"runs"`
	Solid int    `json:"solid"`
}

// SetVolume stores vol's contents in the snapshot.
func (s *SnapshotV1) SetVolume(vol *volume.Volume) {
	s.VolumeSize = vol.Side()
	s.Runs = encoding.EncodeRuns(vol.Serialize())
	s.Solid = vol.Solid()
}

// Volume decodes the stored runs into a fresh volume.
func (s SnapshotV1) Volume() (*volume.Volume, error) {
	if s.VolumeSize <= 0 || s.VolumeSize&(s.VolumeSize-1) != 0 || s.VolumeSize > 1<<10 {
		return nil, fmt.Errorf("snapshot volume size %d: %w", s.VolumeSize, volume.ErrMalformedVolume)
	}
	vol := volume.New(s.VolumeSize)
	raw, err := encoding.DecodeRuns(s.Runs, vol.Len())
	if err != nil {
		return nil, fmt.Errorf("snapshot runs: %w: %w", volume.ErrMalformedVolume, err)
	}
	if err := vol.Deserialize(raw); err != nil {
		return nil, err
	}
	return vol, nil
}

// Path names the snapshot for seq inside dir.
func Path(dir string, seq uint64) string {
	return filepath.Join(dir, "snapshots", strconv.FormatUint(seq, 10)+suffix)
}

// Latest returns the snapshot with the highest seq under dir, or "" if none exist.
func Latest(dir string) string {
	snapDir := filepath.Join(dir, "snapshots")
	ents, err := os.ReadDir(snapDir)
	if err != nil {
		return ""
	}
	var best string
	var bestSeq uint64
	for _, e := range ents {
		if e.IsDir() || !strings.HasSuffix(e.Name(), suffix) {
			continue
		}
		seq, err := strconv.ParseUint(strings.TrimSuffix(e.Name(), suffix), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || seq > bestSeq {
			bestSeq = seq
			best = filepath.Join(snapDir, e.Name())
		}
	}
	return best
}

// WriteSnapshot writes a zstd stream holding one JSON header line followed by the gob
// body. The file appears under path only once fully written.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// The gob body repeats the header.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("%w: %d", ErrVersion, snap.Header.Version)
	}
	return snap, nil
}
