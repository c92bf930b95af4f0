package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/gridworld"
	"factoryverse.ai/internal/sim/runtime"
	"factoryverse.ai/internal/sim/tuning"
)

func startServer(t *testing.T) (*httptest.Server, *runtime.Runtime, func()) {
	t.Helper()
	tun := tuning.Default()
	tun.TickRateHz = 200
	rt := runtime.New(runtime.Options{
		Tuning: tun,
		World:  gridworld.New(gridworld.Config{Width: 16, Height: 16}),
	})
	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)

	srv := httptest.NewServer(NewServer(rt, nil).Handler())
	return srv, rt, func() {
		srv.Close()
		cancel()
	}
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func writeMsg(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("decode %q: %v", b, err)
	}
	return m
}

// readUntil skips interleaved messages (event batches) until the predicate
// matches or the deadline passes.
func readUntil(t *testing.T, conn *websocket.Conn, match func(map[string]any) bool) map[string]any {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		m := readMsg(t, conn)
		if match(m) {
			return m
		}
	}
	t.Fatalf("no matching message before deadline")
	return nil
}

func hello() protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      "test-client",
	}
}

func TestHandshakeWelcome(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()
	conn := dial(t, srv)
	defer conn.Close()

	writeMsg(t, conn, hello())
	m := readMsg(t, conn)
	if m["type"] != protocol.TypeWelcome {
		t.Fatalf("first message %v, want WELCOME", m["type"])
	}
	if m["session_id"] == "" || m["session_id"] == nil {
		t.Fatalf("welcome missing session_id: %v", m)
	}
	actions, ok := m["actions"].([]any)
	if !ok || len(actions) == 0 {
		t.Fatalf("welcome actions %v", m["actions"])
	}
	names := map[string]bool{}
	for _, a := range actions {
		names[a.(map[string]any)["name"].(string)] = true
	}
	for _, want := range []string{"walk_to", "start_mining", "craft_enqueue", "create_agent"} {
		if !names[want] {
			t.Fatalf("welcome missing action %q", want)
		}
	}
}

func TestHandshakeRejectsNonHello(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()
	conn := dial(t, srv)
	defer conn.Close()

	writeMsg(t, conn, protocol.CallMsg{
		Type: protocol.TypeCall, ProtocolVersion: protocol.Version,
		ID: "c1", Action: "create_agent",
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection survived a protocol violation")
	}
}

func TestCallAckEventFlow(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()
	conn := dial(t, srv)
	defer conn.Close()

	writeMsg(t, conn, hello())
	readMsg(t, conn) // WELCOME

	writeMsg(t, conn, protocol.CallMsg{
		Type: protocol.TypeCall, ProtocolVersion: protocol.Version,
		ID: "c1", Action: "create_agent",
		Params: map[string]any{"x": 2.5, "y": 2.5},
	})
	ack := readUntil(t, conn, func(m map[string]any) bool { return m["ack_for"] == "c1" })
	if ack["accepted"] != true {
		t.Fatalf("create_agent ack %v", ack)
	}
	agentID := ack["result"].(map[string]any)["agent_id"].(float64)

	// A goal inside the arrival radius completes on the next tick.
	writeMsg(t, conn, protocol.CallMsg{
		Type: protocol.TypeCall, ProtocolVersion: protocol.Version,
		ID: "c2", AgentID: uint64(agentID), Action: "walk_to",
		Params: map[string]any{"x": 3.0, "y": 2.5},
	})
	ack = readUntil(t, conn, func(m map[string]any) bool { return m["ack_for"] == "c2" })
	if ack["accepted"] != true || ack["action_id"] == nil {
		t.Fatalf("walk_to ack %v", ack)
	}
	actionID := ack["action_id"].(float64)

	ev := readUntil(t, conn, func(m map[string]any) bool { return m["type"] == protocol.TypeEvent })
	batch := ev["events"].([]any)
	if len(batch) == 0 {
		t.Fatalf("empty event batch %v", ev)
	}
	e := batch[0].(map[string]any)
	if e["type"] != protocol.EventDone || e["action_id"].(float64) != actionID {
		t.Fatalf("completion event %v", e)
	}
}

func TestCallBadVersionRejected(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()
	conn := dial(t, srv)
	defer conn.Close()

	writeMsg(t, conn, hello())
	readMsg(t, conn) // WELCOME

	writeMsg(t, conn, protocol.CallMsg{
		Type: protocol.TypeCall, ProtocolVersion: "0.9",
		ID: "c1", Action: "create_agent",
	})
	ack := readUntil(t, conn, func(m map[string]any) bool { return m["ack_for"] == "c1" })
	if ack["accepted"] != false || ack["code"] != protocol.ErrProtoBadRequest {
		t.Fatalf("ack %v", ack)
	}
}

func TestUnknownActionAckOverWire(t *testing.T) {
	srv, _, stop := startServer(t)
	defer stop()
	conn := dial(t, srv)
	defer conn.Close()

	writeMsg(t, conn, hello())
	readMsg(t, conn)

	writeMsg(t, conn, protocol.CallMsg{
		Type: protocol.TypeCall, ProtocolVersion: protocol.Version,
		ID: "c9", Action: "teleport",
	})
	ack := readUntil(t, conn, func(m map[string]any) bool { return m["ack_for"] == "c9" })
	if ack["accepted"] != false || ack["code"] != protocol.ErrUnknownAction {
		t.Fatalf("ack %v", ack)
	}
}
