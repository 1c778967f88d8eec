package structure

import (
	"encoding/json"

	"voxstruct.ai/internal/protocol"
)

func (s *Structure) handleJoin(req JoinRequest) {
	c := &client{
		id:      req.SessionID,
		name:    req.Name,
		out:     req.Out,
		pending: map[int]struct{}{},
	}
	s.clients[c.id] = c
	clientsGauge.Set(float64(len(s.clients)))

	if !req.SkipMeshes {
		for _, u := range s.grid.Chunks() {
			if !u.Empty {
				c.pending[u.Chunk] = struct{}{}
			}
		}
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: s.welcome(c.id)}
	}
	s.flushClient(c)
}

func (s *Structure) welcome(sessionID string) protocol.WelcomeMsg {
	cfg := s.cfg.Grid
	scale := cfg.Scale
	if scale == 0 {
		scale = 1
	}
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		StructureID:     s.cfg.ID,
		VolumeSize:      cfg.VolumeSize,
		ChunkSize:       cfg.ChunkSize,
		Chunks:          s.grid.Len(),
		Scale:           scale,
		Seq:             s.seq,
	}
}

func (s *Structure) handleLeave(id string) {
	if _, ok := s.clients[id]; !ok {
		return
	}
	delete(s.clients, id)
	clientsGauge.Set(float64(len(s.clients)))
}

// broadcastChunk queues the chunk for every client and sends what fits.
func (s *Structure) broadcastChunk(chunk int) {
	for _, c := range s.clients {
		c.pending[chunk] = struct{}{}
		s.flushClient(c)
	}
}

func (s *Structure) flushPending() {
	for _, c := range s.clients {
		if len(c.pending) > 0 {
			s.flushClient(c)
		}
	}
}

// meshCache holds CHUNK_MESH encodings for one seq; any edit invalidates all of them.
type meshCache struct {
	seq uint64
	enc map[int][]byte
}

func (s *Structure) encodedMesh(chunk int) ([]byte, error) {
	if s.meshes.enc == nil || s.meshes.seq != s.seq {
		s.meshes = meshCache{seq: s.seq, enc: map[int][]byte{}}
	}
	if b, ok := s.meshes.enc[chunk]; ok {
		return b, nil
	}
	b, err := json.Marshal(protocol.NewChunkMesh(s.grid.Chunk(chunk), s.seq))
	if err != nil {
		return nil, err
	}
	s.meshes.enc[chunk] = b
	return b, nil
}

func queueFull(ch chan []byte) bool {
	return cap(ch) > 0 && len(ch) == cap(ch)
}

// flushClient sends the current mesh of each pending chunk until the client's queue
// is full. Unsent chunks stay pending and always go out with their latest mesh.
func (s *Structure) flushClient(c *client) {
	for chunk := range c.pending {
		if queueFull(c.out) {
			meshBackpressure.Inc()
			return
		}
		b, err := s.encodedMesh(chunk)
		if err != nil {
			delete(c.pending, chunk)
			continue
		}
		if !sendNonBlocking(c.out, b) {
			meshBackpressure.Inc()
			return
		}
		delete(c.pending, chunk)
		meshesSent.Inc()
	}
}

func sendNonBlocking(ch chan []byte, b []byte) bool {
	select {
	case ch <- b:
		return true
	default:
		return false
	}
}
