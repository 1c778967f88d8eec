package protocol

import (
	"fmt"

	"voxstruct.ai/internal/voxel/grid"
	"voxstruct.ai/internal/voxel/mesh"
)

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	// SkipMeshes suppresses the initial CHUNK_MESH burst.
	SkipMeshes bool `json:"skip_meshes,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	SessionID       string  `json:"session_id"`
	StructureID     string  `json:"structure_id"`
	VolumeSize      int     `json:"volume_size"`
	ChunkSize       int     `json:"chunk_size"`
	Chunks          int     `json:"chunks"`
	Scale           float32 `json:"scale"`
	Seq             uint64  `json:"seq"`
}

// EDIT (client -> server) writes material at pos; material 0 clears.
type EditMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Pos             [3]int `json:"pos"`
	Material        int    `json:"material"`
}

// MINE (client -> server) clears a solid voxel.
type MineMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Pos             [3]int `json:"pos"`
}

// PROBE (client -> server) reads the material at pos; the ACK carries it.
type ProbeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Pos             [3]int `json:"pos"`
}

type AckMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	AckFor          string `json:"ack_for"`
	ReqID           string `json:"req_id,omitempty"`
	Accepted        bool   `json:"accepted"`
	Code            string `json:"code,omitempty"`
	Message         string `json:"message,omitempty"`
	Material        int    `json:"material"`
	Seq             uint64 `json:"seq,omitempty"`
}

// CHUNK_MESH (server -> client). Arrays are flattened: three floats per vertex,
// normal and collision point, two per UV, four per color. Positions are relative to
// Origin.
type ChunkMeshMsg struct {
	Type            string    `json:"type"`
	ProtocolVersion string    `json:"protocol_version"`
	Chunk           int       `json:"chunk"`
	Origin          [3]int    `json:"origin"`
	Empty           bool      `json:"empty"`
	Seq             uint64    `json:"seq"`
	Vertices        []float32 `json:"vertices"`
	Normals         []float32 `json:"normals"`
	UV              []float32 `json:"uv"`
	UV2             []float32 `json:"uv2"`
	Colors          []float32 `json:"colors"`
	Indices         []int32   `json:"indices"`
	Collision       []float32 `json:"collision"`
}

func NewAck(ackFor, reqID string) AckMsg {
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: ackFor, ReqID: reqID, Accepted: true}
}

// NewReject builds a failed ACK. Codes outside the known set are reported as
// E_INTERNAL so clients only ever see documented codes.
func NewReject(ackFor, reqID, code, message string) AckMsg {
	if code == "" || !IsKnownCode(code) {
		message = fmt.Sprintf("%s: %s", code, message)
		code = ErrInternal
	}
	return AckMsg{Type: TypeAck, ProtocolVersion: Version, AckFor: ackFor, ReqID: reqID, Code: code, Message: message}
}

// NewChunkMesh flattens a grid update for the wire.
func NewChunkMesh(u grid.Update, seq uint64) ChunkMeshMsg {
	msg := ChunkMeshMsg{
		Type:            TypeChunkMesh,
		ProtocolVersion: Version,
		Chunk:           u.Chunk,
		Origin:          [3]int{int(u.Origin.X), int(u.Origin.Y), int(u.Origin.Z)},
		Empty:           u.Empty,
		Seq:             seq,
		Vertices:        []float32{},
		Normals:         []float32{},
		UV:              []float32{},
		UV2:             []float32{},
		Colors:          []float32{},
		Indices:         []int32{},
		Collision:       []float32{},
	}
	m := u.Mesh
	if u.Empty || m == nil {
		return msg
	}
	msg.Vertices = flatten(m.Vertices)
	msg.Normals = flatten(m.Normals)
	msg.UV = flatten(m.UV)
	msg.UV2 = flatten(m.UV2)
	msg.Colors = flatten(m.Colors)
	msg.Indices = append(msg.Indices, m.Indices...)
	msg.Collision = flatten(m.Collision)
	return msg
}

func flatten[V mesh.Vec2 | mesh.Vec3 | mesh.Color](in []V) []float32 {
	if len(in) == 0 {
		return []float32{}
	}
	out := make([]float32, 0, len(in)*len(in[0]))
	for _, v := range in {
		for i := 0; i < len(v); i++ {
			out = append(out, v[i])
		}
	}
	return out
}
