package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/tuning"
)

// SQLiteIndex is a queryable read model of the edit log and snapshots. Writes are
// queued and applied in batches on one goroutine; the JSONL logs stay the source of
// truth, so a full queue drops entries instead of blocking the caller.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropEdit     atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqEdit reqKind = iota + 1
	reqSnapshot
	reqFlush
)

type req struct {
	kind reqKind

	edit     persistlog.EditEntry
	snapshot snapshotRow
	done     chan struct{}
}

type snapshotRow struct {
	Seq         uint64
	Path        string
	StructureID string
	VolumeSize  int
	ChunkSize   int
	Seed        int64
	Solid       int
	RecordedAt  string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	return openSQLite(path, 65536)
}

func openSQLite(path string, queue int) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queue),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			digest TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS edits (
			seq INTEGER PRIMARY KEY,
			time_ms INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			op TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			material INTEGER NOT NULL,
			prev INTEGER NOT NULL,
			chunk INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_pos_seq ON edits(x, z, y, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_edits_chunk_seq ON edits(chunk, seq);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			seq INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			structure_id TEXT NOT NULL,
			volume_size INTEGER NOT NULL,
			chunk_size INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			solid INTEGER NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteEdit(e persistlog.EditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqEdit, edit: e}:
	default:
		s.dropEdit.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Seq:         snap.Header.Seq,
		Path:        path,
		StructureID: snap.Header.StructureID,
		VolumeSize:  snap.VolumeSize,
		ChunkSize:   snap.ChunkSize,
		Seed:        snap.Seed,
		Solid:       snap.Solid,
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// Flush blocks until everything queued before it is committed.
func (s *SQLiteIndex) Flush(ctx context.Context) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	done := make(chan struct{})
	select {
	case s.ch <- req{kind: reqFlush, done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type Stats struct {
	QueueDepth        int
	QueueCapacity     int
	DropEditTotal     uint64
	DropSnapshotTotal uint64
}

func (s *SQLiteIndex) Stats() Stats {
	return Stats{
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropEditTotal:     s.dropEdit.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// UpsertTuning stores the tuning actually applied, keyed by its digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	digest := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('tuning_digest',?)`, digest); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(digest,json,updated_at) VALUES(?,?,?)`, digest, string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

// EditsAt returns the most recent edits of one voxel, newest first.
func (s *SQLiteIndex) EditsAt(ctx context.Context, pos [3]int, limit int) ([]persistlog.EditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT seq,time_ms,session_id,op,material,prev,chunk FROM edits
		WHERE x=? AND y=? AND z=? ORDER BY seq DESC LIMIT ?`, pos[0], pos[1], pos[2], limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []persistlog.EditEntry
	for rows.Next() {
		e := persistlog.EditEntry{Pos: pos}
		if err := rows.Scan(&e.Seq, &e.TimeMs, &e.SessionID, &e.Op, &e.Material, &e.Prev, &e.Chunk); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ChunkEditCounts returns the number of indexed edits per chunk.
func (s *SQLiteIndex) ChunkEditCounts(ctx context.Context) (map[int]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT chunk, COUNT(*) FROM edits GROUP BY chunk`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[int]int{}
	for rows.Next() {
		var chunk, n int
		if err := rows.Scan(&chunk, &n); err != nil {
			return nil, err
		}
		out[chunk] = n
	}
	return out, rows.Err()
}

// LatestSnapshot returns the path and seq of the newest recorded snapshot.
func (s *SQLiteIndex) LatestSnapshot(ctx context.Context) (string, uint64, bool, error) {
	var path string
	var seq uint64
	err := s.db.QueryRowContext(ctx, `SELECT path, seq FROM snapshots ORDER BY seq DESC LIMIT 1`).Scan(&path, &seq)
	if err == sql.ErrNoRows {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, err
	}
	return path, seq, true, nil
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertEdit, _ := s.db.Prepare(`INSERT OR REPLACE INTO edits(seq,time_ms,session_id,op,x,y,z,material,prev,chunk) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(seq,path,structure_id,volume_size,chunk_size,seed,solid,recorded_at) VALUES(?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertEdit != nil {
			_ = insertEdit.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	// An idle open tx holds the only connection, so readers need a periodic commit.
	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		var r req
		var ok bool
		select {
		case r, ok = <-s.ch:
			if !ok {
				commit()
				return
			}
		case <-ticker.C:
			if tx != nil && time.Since(lastCommit) >= commitMaxWait {
				commit()
			}
			continue
		}

		if r.kind == reqFlush {
			commit()
			close(r.done)
			continue
		}

		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqEdit:
			e := r.edit
			if insertEdit != nil {
				if _, err := tx.Stmt(insertEdit).Exec(
					int64(e.Seq),
					e.TimeMs,
					e.SessionID,
					e.Op,
					e.Pos[0], e.Pos[1], e.Pos[2],
					int64(e.Material),
					int64(e.Prev),
					e.Chunk,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					int64(sn.Seq),
					sn.Path,
					sn.StructureID,
					sn.VolumeSize,
					sn.ChunkSize,
					sn.Seed,
					sn.Solid,
					sn.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}
}
