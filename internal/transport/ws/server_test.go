package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voxstruct.ai/internal/protocol"
	"voxstruct.ai/internal/structure"
	"voxstruct.ai/internal/voxel/grid"
	"voxstruct.ai/internal/voxel/volume"
)

func startServer(t *testing.T) (*httptest.Server, *structure.Structure) {
	t.Helper()
	vol := volume.New(32)
	vol.Set(volume.Pos{X: 1, Y: 1, Z: 1}, 100)
	st, err := structure.New(structure.Config{Grid: grid.Config{VolumeSize: 32, ChunkSize: 16}}, vol)
	if err != nil {
		t.Fatalf("structure.New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = st.Run(ctx) }()

	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	srv := httptest.NewServer(NewServer(st, v, log.New(io.Discard, "", 0)).Handler())
	t.Cleanup(srv.Close)
	return srv, st
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return m
}

func send(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestServer_HelloEditMine(t *testing.T) {
	srv, _ := startServer(t)
	conn := dial(t, srv)

	send(t, conn, `{"type":"HELLO","protocol_version":"1.0","client_name":"test"}`)
	w := readMsg(t, conn)
	if w["type"] != protocol.TypeWelcome || w["session_id"] == "" || w["chunks"] != float64(8) {
		t.Fatalf("welcome: %v", w)
	}
	m := readMsg(t, conn)
	if m["type"] != protocol.TypeChunkMesh || m["chunk"] != float64(0) {
		t.Fatalf("initial mesh: %v", m)
	}

	send(t, conn, `{"type":"MINE","protocol_version":"1.0","req_id":"m1","pos":[1,1,1]}`)
	m = readMsg(t, conn)
	if m["type"] != protocol.TypeChunkMesh || m["empty"] != true {
		t.Fatalf("mine mesh: %v", m)
	}
	ack := readMsg(t, conn)
	if ack["accepted"] != true || ack["material"] != float64(100) || ack["req_id"] != "m1" {
		t.Fatalf("mine ack: %v", ack)
	}

	send(t, conn, `{"type":"MINE","protocol_version":"1.0","pos":[1,1,1]}`)
	ack = readMsg(t, conn)
	if ack["accepted"] != false || ack["code"] != protocol.ErrNothingToMine {
		t.Fatalf("second mine: %v", ack)
	}
}

func TestServer_RejectsInvalidMessages(t *testing.T) {
	srv, _ := startServer(t)
	conn := dial(t, srv)
	send(t, conn, `{"type":"HELLO","protocol_version":"1.0","client_name":"test","skip_meshes":true}`)
	readMsg(t, conn)

	send(t, conn, `{"type":"EDIT","protocol_version":"1.0","pos":[1,2],"material":1}`)
	ack := readMsg(t, conn)
	if ack["code"] != protocol.ErrProtoBadRequest {
		t.Fatalf("bad edit: %v", ack)
	}

	send(t, conn, `{"type":"PROBE","protocol_version":"1.0","pos":[1,100,1]}`)
	ack = readMsg(t, conn)
	if ack["code"] != protocol.ErrOutOfBound {
		t.Fatalf("out of bounds probe: %v", ack)
	}
}

func TestServer_RequiresHello(t *testing.T) {
	srv, _ := startServer(t)
	conn := dial(t, srv)
	send(t, conn, `{"type":"PROBE","protocol_version":"1.0","pos":[0,0,0]}`)
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy close, got %v", err)
	}
}

func TestServer_FullInboxAnswersBusy(t *testing.T) {
	// The loop is never started, so nothing drains the inbox.
	st, err := structure.New(structure.Config{Grid: grid.Config{VolumeSize: 32, ChunkSize: 16}}, volume.New(32))
	if err != nil {
		t.Fatalf("structure.New: %v", err)
	}
	s := NewServer(st, nil, log.New(io.Discard, "", 0))

	req := structure.Request{SessionID: "s", Op: protocol.TypeMine, ReqID: "r7"}
	n := 0
	for s.submit(req) == nil {
		n++
		if n > 1<<16 {
			t.Fatalf("inbox never filled")
		}
	}
	if n == 0 {
		t.Fatalf("first submit rejected")
	}
	rej := s.submit(req)
	if rej == nil || rej.Code != protocol.ErrBusy || rej.ReqID != "r7" || rej.AckFor != protocol.TypeMine {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
}
