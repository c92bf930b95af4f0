package runtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"factoryverse.ai/internal/persistence/log"
	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/agents"
	"factoryverse.ai/internal/sim/gridworld"
	"factoryverse.ai/internal/sim/tuning"
)

type memRecorder struct {
	mu     sync.Mutex
	events []protocol.Event
	calls  []log.CallRecord
}

func (m *memRecorder) WriteEvent(e protocol.Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

func (m *memRecorder) WriteCall(r log.CallRecord) error {
	m.mu.Lock()
	m.calls = append(m.calls, r)
	m.mu.Unlock()
	return nil
}

func (m *memRecorder) snapshot() ([]protocol.Event, []log.CallRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]protocol.Event(nil), m.events...), append([]log.CallRecord(nil), m.calls...)
}

func startRuntime(t *testing.T, rec *memRecorder) (*Runtime, func()) {
	t.Helper()
	tun := tuning.Default()
	tun.TickRateHz = 500
	rt := New(Options{
		Tuning: tun,
		World:  gridworld.New(gridworld.Config{Width: 16, Height: 16}),
		Events: []EventRecorder{rec},
		Calls:  []CallRecorder{rec},
	})
	ctx, cancel := context.WithCancel(context.Background())
	go rt.Run(ctx)
	return rt, cancel
}

func await(t *testing.T, ch <-chan protocol.AckMsg) protocol.AckMsg {
	t.Helper()
	select {
	case a := <-ch:
		return a
	case <-time.After(3 * time.Second):
		t.Fatalf("no acknowledgement")
		return protocol.AckMsg{}
	}
}

func submit(rt *Runtime, id string, agentID uint64, action string, params map[string]any) <-chan protocol.AckMsg {
	ch := make(chan protocol.AckMsg, 1)
	rt.Submit(agents.Call{
		ID:      id,
		AgentID: agentID,
		Action:  action,
		Params:  agents.Params(params),
		Reply:   func(a protocol.AckMsg) { ch <- a },
	})
	return ch
}

func TestRuntimeSubmitAndComplete(t *testing.T) {
	rec := &memRecorder{}
	rt, stop := startRuntime(t, rec)
	defer stop()

	ack := await(t, submit(rt, "c1", 0, "create_agent", map[string]any{"x": 2.5, "y": 2.5}))
	if !ack.Accepted {
		t.Fatalf("create_agent rejected: %+v", ack)
	}
	agentID, ok := ack.Result["agent_id"].(uint64)
	if !ok {
		t.Fatalf("agent_id missing from result %v", ack.Result)
	}

	sub := make(chan []byte, 64)
	unsub := rt.Subscribe(sub)
	defer unsub()

	ack = await(t, submit(rt, "c2", agentID, "walk_to", map[string]any{"x": 3.0, "y": 2.5}))
	if !ack.Accepted || ack.ActionID == 0 {
		t.Fatalf("walk_to ack: %+v", ack)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case b := <-sub:
			var msg protocol.EventMsg
			if err := json.Unmarshal(b, &msg); err != nil {
				t.Fatalf("decode batch: %v", err)
			}
			for _, e := range msg.Events {
				if e["type"] == protocol.EventDone {
					events, calls := rec.snapshot()
					if len(events) == 0 {
						t.Fatalf("completion not recorded")
					}
					if len(calls) != 2 {
						t.Fatalf("recorded %d calls, want 2", len(calls))
					}
					if calls[1].ActionID != ack.ActionID || !calls[1].Accepted {
						t.Fatalf("call record %+v", calls[1])
					}
					return
				}
			}
		case <-deadline:
			t.Fatalf("walk never completed")
		}
	}
}

func TestRuntimeRejectionsJournaled(t *testing.T) {
	rec := &memRecorder{}
	rt, stop := startRuntime(t, rec)
	defer stop()

	ack := await(t, submit(rt, "c1", 42, "walk_to", map[string]any{"x": 1.0, "y": 1.0}))
	if ack.Accepted || ack.Code != protocol.ErrUnknownAgent {
		t.Fatalf("ack: %+v", ack)
	}
	_, calls := rec.snapshot()
	if len(calls) != 1 || calls[0].Accepted || calls[0].Code != protocol.ErrUnknownAgent {
		t.Fatalf("call records %+v", calls)
	}
}

func TestRuntimeTickAdvances(t *testing.T) {
	rt, stop := startRuntime(t, &memRecorder{})
	defer stop()

	start := rt.CurrentTick()
	deadline := time.Now().Add(2 * time.Second)
	for rt.CurrentTick() == start {
		if time.Now().After(deadline) {
			t.Fatalf("tick stuck at %d", start)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRuntimeActionsSurface(t *testing.T) {
	rt, stop := startRuntime(t, &memRecorder{})
	defer stop()

	refs := rt.Actions()
	if len(refs) == 0 {
		t.Fatalf("empty action surface")
	}
	seen := map[string]bool{}
	for _, r := range refs {
		seen[r.Name] = true
	}
	for _, want := range []string{"walk_to", "cancel_walk", "start_mining", "craft_enqueue", "place_entity"} {
		if !seen[want] {
			t.Fatalf("missing action %q", want)
		}
	}
}
