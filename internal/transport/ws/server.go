package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/agents"
	"factoryverse.ai/internal/sim/runtime"
)

type Server struct {
	rt  *runtime.Runtime
	log *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(rt *runtime.Runtime, logger *log.Logger) *Server {
	return &Server{
		rt:  rt,
		log: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
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
		unsubscribe := s.rt.Subscribe(out)
		defer unsubscribe()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine: acks and event batches share one ordered channel.
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
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.Type != protocol.TypeCall {
				continue
			}
			var call protocol.CallMsg
			if err := json.Unmarshal(msg, &call); err != nil {
				continue
			}
			if call.ProtocolVersion != protocol.Version {
				s.send(out, protocol.AckMsg{
					Type:            protocol.TypeAck,
					ProtocolVersion: protocol.Version,
					AckFor:          call.ID,
					Accepted:        false,
					Code:            protocol.ErrProtoBadRequest,
					Message:         "unsupported protocol_version",
					Tick:            s.rt.CurrentTick(),
				})
				continue
			}
			if call.ID == "" || call.Action == "" {
				s.send(out, protocol.AckMsg{
					Type:            protocol.TypeAck,
					ProtocolVersion: protocol.Version,
					AckFor:          call.ID,
					Accepted:        false,
					Code:            protocol.ErrProtoBadRequest,
					Message:         "missing id or action",
					Tick:            s.rt.CurrentTick(),
				})
				continue
			}
			s.rt.Submit(agents.Call{
				ID:      call.ID,
				AgentID: call.AgentID,
				Action:  call.Action,
				Params:  agents.Params(call.Params),
				Reply:   func(a protocol.AckMsg) { s.send(out, a) },
			})
		}
	}
}

// send marshals onto the session channel without ever blocking the caller.
func (s *Server) send(out chan []byte, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
		if s.log != nil {
			s.log.Printf("ws: session channel full, dropping message")
		}
	}
}

func (s *Server) handshake(conn *websocket.Conn) (sessionID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"),
			time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"),
			time.Now().Add(time.Second))
		return "", nil
	}

	maxQ := hello.MaxQueue
	if maxQ <= 0 {
		maxQ = 64
	}
	if maxQ > 1024 {
		maxQ = 1024
	}
	out = make(chan []byte, maxQ)

	sessionID = uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		TickRateHz:      s.rt.Tuning().TickRateHz,
		ServerTick:      s.rt.CurrentTick(),
		Actions:         s.rt.Actions(),
	}
	b, err := json.Marshal(welcome)
	if err != nil {
		return "", nil
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		return "", nil
	}
	return sessionID, out
}
