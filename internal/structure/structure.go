// Package structure owns one volume and its chunk grid. All mutation happens on the
// goroutine running Run; sessions talk to it through channels.
package structure

import (
	"context"
	"errors"
	"fmt"
	"time"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/persistence/snapshot"
	"voxstruct.ai/internal/protocol"
	"voxstruct.ai/internal/voxel/grid"
	"voxstruct.ai/internal/voxel/mesh"
	"voxstruct.ai/internal/voxel/volume"
)

var ErrStopped = errors.New("structure stopped")

type Config struct {
	ID   string
	Grid grid.Config

	Palette *mesh.Palette
	// PaletteName, PaletteRGB and Seed are recorded in snapshots only.
	PaletteName string
	PaletteRGB  [][3]uint8
	Seed        int64

	// StartSeq resumes the edit sequence, usually from a snapshot header.
	StartSeq uint64

	SnapshotEveryEdits int
	MaxEditsPerSecond  int
}

type EditLogger interface {
	WriteEdit(e persistlog.EditEntry) error
}

type JoinRequest struct {
	SessionID  string
	Name       string
	SkipMeshes bool
	Out        chan []byte
	Resp       chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

// Request is one client operation. The ACK goes to Resp when set, otherwise to the
// session's Out channel.
type Request struct {
	SessionID string
	Op        string
	ReqID     string
	Pos       [3]int
	Material  int
	Resp      chan protocol.AckMsg
}

type Info struct {
	ID      string
	Seq     uint64
	Clients int
	Grid    grid.Stats
}

type snapshotReq struct {
	resp chan snapshot.SnapshotV1
}

type infoReq struct {
	resp chan Info
}

type client struct {
	id   string
	name string
	out  chan []byte

	// chunks whose latest mesh has not reached the client yet
	pending map[int]struct{}

	windowStart time.Time
	windowCount int
}

type Structure struct {
	cfg  Config
	grid *grid.Grid
	vol  *volume.Volume
	now  func() time.Time

	seq            uint64
	editsSinceSnap int
	clients        map[string]*client

	meshes meshCache

	editLoggers  []EditLogger
	snapshotSink chan<- snapshot.SnapshotV1

	join     chan JoinRequest
	leave    chan string
	inbox    chan Request
	snapReq  chan snapshotReq
	infoReqs chan infoReq
	stop     chan struct{}
}

// New builds the grid over vol. The structure takes ownership of vol.
func New(cfg Config, vol *volume.Volume) (*Structure, error) {
	if cfg.ID == "" {
		cfg.ID = "default"
	}
	if vol.Side() != cfg.Grid.VolumeSize {
		return nil, fmt.Errorf("volume side %d does not match volume_size %d", vol.Side(), cfg.Grid.VolumeSize)
	}
	g, err := grid.New(cfg.Grid, cfg.Palette)
	if err != nil {
		return nil, fmt.Errorf("grid: %w", err)
	}
	g.Load(vol)
	return &Structure{
		cfg:      cfg,
		grid:     g,
		vol:      vol,
		now:      time.Now,
		seq:      cfg.StartSeq,
		clients:  map[string]*client{},
		join:     make(chan JoinRequest, 64),
		leave:    make(chan string, 64),
		inbox:    make(chan Request, 1024),
		snapReq:  make(chan snapshotReq),
		infoReqs: make(chan infoReq),
		stop:     make(chan struct{}),
	}, nil
}

func (s *Structure) ID() string { return s.cfg.ID }

func (s *Structure) Config() Config { return s.cfg }

func (s *Structure) AddEditLogger(l EditLogger) { s.editLoggers = append(s.editLoggers, l) }

func (s *Structure) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { s.snapshotSink = ch }

func (s *Structure) Join() chan<- JoinRequest { return s.join }
func (s *Structure) Leave() chan<- string     { return s.leave }
func (s *Structure) Inbox() chan<- Request    { return s.inbox }

func (s *Structure) Stop() { close(s.stop) }

func (s *Structure) Run(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stop:
			return nil
		case req := <-s.join:
			s.handleJoin(req)
		case id := <-s.leave:
			s.handleLeave(id)
		case req := <-s.inbox:
			s.handleRequest(req)
		case req := <-s.snapReq:
			req.resp <- s.exportSnapshot()
		case req := <-s.infoReqs:
			req.resp <- s.info()
		case <-ticker.C:
			s.flushPending()
		}
	}
}

// Snapshot asks the running loop for a snapshot of the current state.
func (s *Structure) Snapshot(ctx context.Context) (snapshot.SnapshotV1, error) {
	req := snapshotReq{resp: make(chan snapshot.SnapshotV1, 1)}
	select {
	case s.snapReq <- req:
	case <-s.stop:
		return snapshot.SnapshotV1{}, ErrStopped
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-req.resp:
		return snap, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

func (s *Structure) Info(ctx context.Context) (Info, error) {
	req := infoReq{resp: make(chan Info, 1)}
	select {
	case s.infoReqs <- req:
	case <-s.stop:
		return Info{}, ErrStopped
	case <-ctx.Done():
		return Info{}, ctx.Err()
	}
	select {
	case in := <-req.resp:
		return in, nil
	case <-ctx.Done():
		return Info{}, ctx.Err()
	}
}

func (s *Structure) info() Info {
	return Info{
		ID:      s.cfg.ID,
		Seq:     s.seq,
		Clients: len(s.clients),
		Grid:    s.grid.Stats(),
	}
}

// exportSnapshot captures the volume. Grid edits write through to it, so it already
// matches the chunk octrees.
func (s *Structure) exportSnapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version:     snapshot.Version,
			StructureID: s.cfg.ID,
			Seq:         s.seq,
		},
		ChunkSize:  s.cfg.Grid.ChunkSize,
		Scale:      s.cfg.Grid.Scale,
		Seed:       s.cfg.Seed,
		Palette:    s.cfg.PaletteName,
		PaletteRGB: s.cfg.PaletteRGB,
	}
	snap.SetVolume(s.vol)
	return snap
}

func (s *Structure) maybeSnapshot() {
	if s.cfg.SnapshotEveryEdits <= 0 || s.snapshotSink == nil {
		return
	}
	s.editsSinceSnap++
	if s.editsSinceSnap < s.cfg.SnapshotEveryEdits {
		return
	}
	select {
	case s.snapshotSink <- s.exportSnapshot():
		s.editsSinceSnap = 0
	default:
		// writer busy; retry on the next edit
	}
}
