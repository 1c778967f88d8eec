package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// ErrTruncated marks a log file whose tail was cut off, usually by a crash. Entries
// before the cut have already been delivered when it is returned.
var ErrTruncated = errors.New("truncated log file")

const logSuffix = ".jsonl.zst"

// JSONLZstdWriter appends JSON lines to hourly zstd files. Every Write ends a zstd
// block, so a killed process loses at most the line being written.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		now:     time.Now,
	}
}

func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := w.now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	if err := w.w.Flush(); err != nil {
		return err
	}
	return w.enc.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := w.createSegment(hour)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curHour = hour
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

// createSegment opens a new file for hour. A file left from an earlier run is never
// appended to, since its last frame may be torn; later runs get <hour>.1, <hour>.2, ...
func (w *JSONLZstdWriter) createSegment(hour string) (*os.File, error) {
	for n := 0; ; n++ {
		f, err := os.OpenFile(w.pathForSegment(hour, n), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if os.IsExist(err) {
			continue
		}
		return f, err
	}
}

func (w *JSONLZstdWriter) pathForSegment(hour string, n int) string {
	name := w.prefix + "-" + hour
	if n > 0 {
		name += "." + strconv.Itoa(n)
	}
	return filepath.Join(w.baseDir, name+logSuffix)
}

// segmentKey splits "<prefix>-<hour>[.<n>].jsonl.zst" into its hour and segment.
func segmentKey(name, prefix string) (string, int, bool) {
	if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, logSuffix) {
		return "", 0, false
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), logSuffix)
	hour, seg, found := strings.Cut(stem, ".")
	if !found {
		return hour, 0, true
	}
	n, err := strconv.Atoi(seg)
	if err != nil || n <= 0 {
		return "", 0, false
	}
	return hour, n, true
}

// EditEntry is one applied voxel edit.
type EditEntry struct {
	Seq       uint64 `json:"seq"`
	TimeMs    int64  `json:"time_ms"`
	SessionID string `json:"session_id,omitempty"`
	Op        string `json:"op"`
	Pos       [3]int `json:"pos"`
	Material  uint8  `json:"material"`
	Prev      uint8  `json:"prev"`
	Chunk     int    `json:"chunk"`
}

// EditLogger writes one compressed JSONL entry per applied edit.
type EditLogger struct{ w *JSONLZstdWriter }

func NewEditLogger(dataDir string) *EditLogger {
	return &EditLogger{w: NewJSONLZstdWriter(filepath.Join(dataDir, "edits"), "edits")}
}

func (l *EditLogger) WriteEdit(e EditEntry) error { return l.w.Write(e) }
func (l *EditLogger) Close() error                { return l.w.Close() }

// EditFiles lists the edit log files under dataDir, oldest first.
func EditFiles(dataDir string) ([]string, error) {
	dir := filepath.Join(dataDir, "edits")
	ents, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	type segment struct {
		name string
		hour string
		n    int
	}
	var segs []segment
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		hour, n, ok := segmentKey(e.Name(), "edits")
		if !ok {
			continue
		}
		segs = append(segs, segment{name: e.Name(), hour: hour, n: n})
	}
	// hour stamps sort lexically
	sort.Slice(segs, func(i, j int) bool {
		if segs[i].hour != segs[j].hour {
			return segs[i].hour < segs[j].hour
		}
		return segs[i].n < segs[j].n
	})
	out := make([]string, 0, len(segs))
	for _, s := range segs {
		out = append(out, filepath.Join(dir, s.name))
	}
	return out, nil
}

// ReadEdits calls fn for every entry in path, in file order. A torn tail (a partial
// last line or an unfinished zstd frame) ends the read with ErrTruncated after every
// complete entry has been delivered.
func ReadEdits(path string, fn func(EditEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		if len(sc.Bytes()) == 0 {
			continue
		}
		var e EditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			if !sc.Scan() {
				return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, ErrTruncated)
			}
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return fmt.Errorf("%s:%d: %w", filepath.Base(path), line+1, err)
		}
		return fmt.Errorf("%s: %w (%v)", filepath.Base(path), ErrTruncated, err)
	}
	return nil
}
