package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello     = "HELLO"
	TypeWelcome   = "WELCOME"
	TypeEdit      = "EDIT"
	TypeMine      = "MINE"
	TypeProbe     = "PROBE"
	TypeAck       = "ACK"
	TypeChunkMesh = "CHUNK_MESH"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
