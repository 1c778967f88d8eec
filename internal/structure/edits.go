package structure

import (
	"encoding/json"
	"fmt"
	"time"

	persistlog "voxstruct.ai/internal/persistence/log"
	"voxstruct.ai/internal/protocol"
	"voxstruct.ai/internal/voxel/grid"
	"voxstruct.ai/internal/voxel/volume"
)

func (s *Structure) handleRequest(req Request) {
	ack := s.apply(req)
	instrumentRequest(req.Op, ack)
	if req.Resp != nil {
		req.Resp <- ack
		return
	}
	c := s.clients[req.SessionID]
	if c == nil {
		return
	}
	b, err := json.Marshal(ack)
	if err != nil {
		return
	}
	// ACKs are small and rare next to meshes; a full queue drops them.
	_ = sendNonBlocking(c.out, b)
}

func (s *Structure) apply(req Request) protocol.AckMsg {
	p, ok := s.position(req.Pos)
	if !ok {
		return protocol.NewReject(req.Op, req.ReqID, protocol.ErrOutOfBound,
			fmt.Sprintf("position %v outside volume of side %d", req.Pos, s.cfg.Grid.VolumeSize))
	}

	switch req.Op {
	case protocol.TypeProbe:
		ack := protocol.NewAck(req.Op, req.ReqID)
		ack.Material = int(s.grid.Material(p))
		ack.Seq = s.seq
		return ack

	case protocol.TypeEdit:
		if req.Material < 0 || req.Material > 255 {
			return protocol.NewReject(req.Op, req.ReqID, protocol.ErrBadRequest, "material must be in [0,255]")
		}
		if !s.allow(req.SessionID) {
			return protocol.NewReject(req.Op, req.ReqID, protocol.ErrRateLimit, "too many edits")
		}
		prev := s.grid.Material(p)
		u := s.grid.Edit(p, uint8(req.Material))
		s.commit(req, p, prev, uint8(req.Material), u)
		ack := protocol.NewAck(req.Op, req.ReqID)
		ack.Material = req.Material
		ack.Seq = s.seq
		return ack

	case protocol.TypeMine:
		if !s.allow(req.SessionID) {
			return protocol.NewReject(req.Op, req.ReqID, protocol.ErrRateLimit, "too many edits")
		}
		m, u, ok := s.grid.Mine(p)
		if !ok {
			return protocol.NewReject(req.Op, req.ReqID, protocol.ErrNothingToMine, "no solid voxel at position")
		}
		s.commit(req, p, m, 0, u)
		ack := protocol.NewAck(req.Op, req.ReqID)
		ack.Material = int(m)
		ack.Seq = s.seq
		return ack
	}
	return protocol.NewReject(req.Op, req.ReqID, protocol.ErrBadRequest, "unknown op "+req.Op)
}

func (s *Structure) position(pos [3]int) (volume.Pos, bool) {
	side := s.cfg.Grid.VolumeSize
	for _, c := range pos {
		if c < 0 || c >= side {
			return volume.Pos{}, false
		}
	}
	p := volume.Pos{X: uint16(pos[0]), Y: uint16(pos[1]), Z: uint16(pos[2])}
	return p, s.grid.InBounds(p)
}

// allow applies the per-session edit budget over one-second windows.
func (s *Structure) allow(sessionID string) bool {
	if s.cfg.MaxEditsPerSecond <= 0 {
		return true
	}
	c := s.clients[sessionID]
	if c == nil {
		return true
	}
	now := s.now()
	if now.Sub(c.windowStart) >= time.Second {
		c.windowStart = now
		c.windowCount = 0
	}
	if c.windowCount >= s.cfg.MaxEditsPerSecond {
		return false
	}
	c.windowCount++
	return true
}

// commit records a changed voxel. Writes that left the chunk untouched are not
// sequenced.
func (s *Structure) commit(req Request, p volume.Pos, prev, m uint8, u grid.Update) {
	if !u.Changed {
		return
	}
	s.seq++
	entry := persistlog.EditEntry{
		Seq:       s.seq,
		TimeMs:    s.now().UnixMilli(),
		SessionID: req.SessionID,
		Op:        req.Op,
		Pos:       req.Pos,
		Material:  m,
		Prev:      prev,
		Chunk:     u.Chunk,
	}
	for _, l := range s.editLoggers {
		_ = l.WriteEdit(entry)
	}
	s.broadcastChunk(u.Chunk)
	s.maybeSnapshot()
}

// Replay applies logged edits without broadcasting or logging them again. Entries at
// or below the current seq are skipped.
func (s *Structure) Replay(e persistlog.EditEntry) error {
	if e.Seq <= s.seq {
		return nil
	}
	p, ok := s.position(e.Pos)
	if !ok {
		return fmt.Errorf("edit %d: position %v out of bounds", e.Seq, e.Pos)
	}
	s.grid.Edit(p, e.Material)
	s.seq = e.Seq
	return nil
}

// Seq returns the last applied edit sequence. Only safe while Run is not running.
func (s *Structure) Seq() uint64 { return s.seq }
