package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxstruct.ai/internal/protocol"
	"voxstruct.ai/internal/structure"
)

const sendQueue = 256

type Server struct {
	structure *structure.Structure
	validator *protocol.Validator
	log       *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(s *structure.Structure, v *protocol.Validator, logger *log.Logger) *Server {
	return &Server{
		structure: s,
		validator: v,
		log:       logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 256 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, out := s.handshake(conn)
		if sessionID == "" {
			return
		}
		s.log.Printf("session %s connected from %s", sessionID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			req, rej := s.decodeRequest(sessionID, msg)
			if rej == nil {
				rej = s.submit(req)
			}
			if rej != nil {
				if b, err := json.Marshal(rej); err == nil {
					select {
					case out <- b:
					default:
					}
				}
			}
		}

		s.structure.Leave() <- sessionID
		s.log.Printf("session %s disconnected", sessionID)
	}
}

// submit hands req to the structure without waiting. A full inbox is answered with
// E_BUSY.
func (s *Server) submit(req structure.Request) *protocol.AckMsg {
	select {
	case s.structure.Inbox() <- req:
		return nil
	default:
		rej := protocol.NewReject(req.Op, req.ReqID, protocol.ErrBusy, "structure busy")
		return &rej
	}
}

// decodeRequest validates one client message. Invalid input yields an ACK rejection
// instead of a request.
func (s *Server) decodeRequest(sessionID string, msg []byte) (structure.Request, *protocol.AckMsg) {
	base, err := s.validator.Validate(msg)
	if err != nil {
		rej := protocol.NewReject(base.Type, "", protocol.ErrProtoBadRequest, err.Error())
		return structure.Request{}, &rej
	}
	if base.ProtocolVersion != protocol.Version {
		rej := protocol.NewReject(base.Type, "", protocol.ErrProtoBadRequest, "bad protocol_version")
		return structure.Request{}, &rej
	}
	req := structure.Request{SessionID: sessionID, Op: base.Type}
	switch base.Type {
	case protocol.TypeEdit:
		var m protocol.EditMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			rej := protocol.NewReject(base.Type, "", protocol.ErrProtoBadRequest, err.Error())
			return req, &rej
		}
		req.ReqID, req.Pos, req.Material = m.ReqID, m.Pos, m.Material
	case protocol.TypeMine:
		var m protocol.MineMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			rej := protocol.NewReject(base.Type, "", protocol.ErrProtoBadRequest, err.Error())
			return req, &rej
		}
		req.ReqID, req.Pos = m.ReqID, m.Pos
	case protocol.TypeProbe:
		var m protocol.ProbeMsg
		if err := json.Unmarshal(msg, &m); err != nil {
			rej := protocol.NewReject(base.Type, "", protocol.ErrProtoBadRequest, err.Error())
			return req, &rej
		}
		req.ReqID, req.Pos = m.ReqID, m.Pos
	default:
		rej := protocol.NewReject(base.Type, "", protocol.ErrProtoBadRequest, "unexpected "+base.Type)
		return req, &rej
	}
	return req, nil
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := s.validator.Validate(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}

	sessionID = uuid.NewString()
	out = make(chan []byte, sendQueue)

	respCh := make(chan structure.JoinResponse, 1)
	s.structure.Join() <- structure.JoinRequest{
		SessionID:  sessionID,
		Name:       hello.ClientName,
		SkipMeshes: hello.SkipMeshes,
		Out:        out,
		Resp:       respCh,
	}
	resp := <-respCh

	// WELCOME goes out before the writer goroutine starts draining meshes.
	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.structure.Leave() <- sessionID
		return "", nil
	}
	return sessionID, out
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
