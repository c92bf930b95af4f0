// Package runtime owns the tick goroutine: it drives the host world, the
// path resolutions and the agent controller from a single loop, and fans the
// per-tick event batches out to transports and recorders. Everything the
// simulation mutates is confined to this goroutine; transports talk to it
// through channels only.
package runtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"factoryverse.ai/internal/persistence/log"
	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/agents"
	"factoryverse.ai/internal/sim/gridworld"
	"factoryverse.ai/internal/sim/tuning"
)

// EventRecorder persists outbound events (journal, index).
type EventRecorder interface {
	WriteEvent(e protocol.Event) error
}

// CallRecorder persists acknowledged invocations.
type CallRecorder interface {
	WriteCall(r log.CallRecord) error
}

type Options struct {
	Tuning tuning.Tuning
	World  *gridworld.World

	// Optional persistence fan-out; nil entries are skipped.
	Events []EventRecorder
	Calls  []CallRecorder
}

type Runtime struct {
	tun  tuning.Tuning
	w    *gridworld.World
	d    *agents.Dispatcher
	sink *collectSink

	events []EventRecorder
	calls  []CallRecorder

	inbox chan agents.Call
	tick  atomic.Uint64

	subMu sync.Mutex
	subs  map[chan []byte]struct{}
}

// collectSink buffers one tick's events for broadcast.
type collectSink struct {
	pending []protocol.Event
}

func (s *collectSink) Publish(e protocol.Event) {
	s.pending = append(s.pending, e)
}

func New(opts Options) *Runtime {
	opts.Tuning.ApplyDefaults()
	if opts.World == nil {
		opts.World = gridworld.New(gridworld.Config{WalkSpeed: opts.Tuning.Nav.WalkSpeed})
	}
	sink := &collectSink{}
	return &Runtime{
		tun:    opts.Tuning,
		w:      opts.World,
		d:      agents.New(opts.World, opts.Tuning, sink),
		sink:   sink,
		events: opts.Events,
		calls:  opts.Calls,
		inbox:  make(chan agents.Call, 1024),
		subs:   map[chan []byte]struct{}{},
	}
}

func (r *Runtime) Tuning() tuning.Tuning { return r.tun }

func (r *Runtime) World() *gridworld.World { return r.w }

// Dispatcher exposes the controller for in-process embedding and tests. Only
// the tick goroutine may call methods that mutate it.
func (r *Runtime) Dispatcher() *agents.Dispatcher { return r.d }

// CurrentTick is safe from any goroutine.
func (r *Runtime) CurrentTick() uint64 { return r.tick.Load() }

// Actions lists the registered action surface for WELCOME messages.
func (r *Runtime) Actions() []protocol.ActionRef { return r.d.Registry().Refs() }

// Submit hands one call to the tick goroutine. Safe from any goroutine; the
// acknowledgement arrives on the call's Reply, with the call journaled on the
// way through.
func (r *Runtime) Submit(c agents.Call) {
	orig := c.Reply
	c.Reply = func(a protocol.AckMsg) {
		for _, rec := range r.calls {
			if rec != nil {
				_ = rec.WriteCall(log.CallRecord{
					Tick:     a.Tick,
					AgentID:  c.AgentID,
					Action:   c.Action,
					CallID:   c.ID,
					Accepted: a.Accepted,
					Code:     a.Code,
					ActionID: a.ActionID,
				})
			}
		}
		if orig != nil {
			orig(a)
		}
	}
	r.inbox <- c
}

// Subscribe registers an outbound byte channel for per-tick EVENT batches.
// Slow subscribers have batches dropped, never block the tick. The returned
// function unsubscribes.
func (r *Runtime) Subscribe(out chan []byte) func() {
	r.subMu.Lock()
	r.subs[out] = struct{}{}
	r.subMu.Unlock()
	return func() {
		r.subMu.Lock()
		delete(r.subs, out)
		r.subMu.Unlock()
	}
}

// Run blocks driving the loop until the context is cancelled.
func (r *Runtime) Run(ctx context.Context) {
	hz := r.tun.TickRateHz
	if hz <= 0 {
		hz = 60
	}
	ticker := time.NewTicker(time.Second / time.Duration(hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-r.inbox:
			r.d.Submit(c, r.tick.Load())
		case <-ticker.C:
			r.step()
		}
	}
}

func (r *Runtime) step() {
	tick := r.tick.Add(1)

	r.w.Step()
	for _, res := range r.w.TakeResolvedPaths() {
		r.d.ResolvePath(res.ID, res.Waypoints, res.OK)
	}
	r.d.OnTick(tick)

	if len(r.sink.pending) == 0 {
		return
	}
	batch := r.sink.pending
	r.sink.pending = nil

	for _, e := range batch {
		for _, rec := range r.events {
			if rec != nil {
				_ = rec.WriteEvent(e)
			}
		}
	}

	msg := protocol.EventMsg{
		Type:            protocol.TypeEvent,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Events:          batch,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	r.subMu.Lock()
	for out := range r.subs {
		select {
		case out <- b:
		default:
		}
	}
	r.subMu.Unlock()
}
