package agents

import (
	"sort"

	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/nav"
	"factoryverse.ai/internal/sim/tuning"
)

// Call is one inbound invocation, already parameter-normalized.
type Call struct {
	ID      string
	AgentID uint64
	Action  string
	Params  Params
	// Reply receives the acknowledgement: immediately for sync actions and
	// rejections, at dispatch time for queued async intents. May be nil.
	Reply func(protocol.AckMsg)
}

// Dispatcher owns the agent arena and is the single per-tick entry point.
// All methods must be called from the tick goroutine; the single-threaded
// cooperative schedule is the concurrency model, not locks.
type Dispatcher struct {
	env  Env
	reg  *Registry
	tun  tuning.Tuning
	navP nav.Params

	agents       map[uint64]*Agent
	nextAgentID  uint64
	nextActionID uint64

	queue *ActionQueue
	sink  EventSink
}

func New(env Env, tun tuning.Tuning, sink EventSink) *Dispatcher {
	tun.ApplyDefaults()
	return &Dispatcher{
		env:    env,
		reg:    LoadRegistry(),
		tun:    tun,
		navP:   navParamsFrom(tun.Nav),
		agents: map[uint64]*Agent{},
		queue:  NewActionQueue(tun.Queue.Capacity),
		sink:   sink,
	}
}

func navParamsFrom(n tuning.Nav) nav.Params {
	return nav.Params{
		ArrivalRadius:     n.ArrivalRadius,
		WaypointRadius:    n.WaypointRadius,
		DiagonalBand:      n.DiagonalBand,
		AxisSnapEpsilon:   n.AxisSnapEpsilon,
		MaxReplans:        n.MaxReplans,
		ZeroMotionTicks:   n.ZeroMotionTicks,
		NoProgressTicks:   n.NoProgressTicks,
		NoProgressEpsilon: n.NoProgressEpsilon,
		StallLimit:        n.StallLimit,
		SidestepOffset:    n.SidestepOffset,
		MicroDetourTicks:  n.MicroDetourTicks,
	}
}

func (d *Dispatcher) Registry() *Registry { return d.reg }

func (d *Dispatcher) Agent(id uint64) *Agent { return d.agents[id] }

func (d *Dispatcher) QueueLen() int { return d.queue.Len() }

func (d *Dispatcher) sortedAgents() []*Agent {
	out := make([]*Agent, 0, len(d.agents))
	for _, a := range d.agents {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *Dispatcher) newActionID() uint64 {
	d.nextActionID++
	return d.nextActionID
}

// Submit routes one call: sync actions run now, async ones are queued and
// acknowledged at dispatch. Backpressure is reported to the caller, never
// silently dropped.
func (d *Dispatcher) Submit(c Call, nowTick uint64) {
	act, ok := d.reg.Lookup(c.Action)
	if !ok {
		d.reply(c.Reply, rejectAck(c.ID, nowTick, protocol.ErrUnknownAction, "unknown action: "+c.Action))
		return
	}
	if !act.ArenaLevel && d.agents[c.AgentID] == nil {
		d.reply(c.Reply, rejectAck(c.ID, nowTick, protocol.ErrUnknownAgent, "unknown agent"))
		return
	}
	if !act.Async {
		d.runSync(act, c, nowTick)
		return
	}
	in := Intent{
		CallID:       c.ID,
		AgentID:      c.AgentID,
		Action:       c.Action,
		Params:       c.Params,
		ActionID:     d.newActionID(),
		AcceptedTick: nowTick,
		Reply:        c.Reply,
	}
	if err := d.queue.Enqueue(in); err != nil {
		d.reply(c.Reply, rejectAck(c.ID, nowTick, protocol.ErrQueueFull, "action queue full"))
	}
}

func (d *Dispatcher) runSync(act *Action, c Call, nowTick uint64) {
	a := d.agents[c.AgentID] // nil for arena-level actions
	res, herr := act.Handler(d, a, 0, c.Params, nowTick)
	if herr != nil {
		d.reply(c.Reply, rejectAck(c.ID, nowTick, herr.Code, herr.Message))
		return
	}
	d.reply(c.Reply, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          c.ID,
		Accepted:        true,
		Tick:            nowTick,
		Result:          res.Result,
	})
}

func (d *Dispatcher) dispatchIntent(in Intent, nowTick uint64) {
	a := d.agents[in.AgentID]
	if a == nil {
		d.reply(in.Reply, rejectAck(in.CallID, nowTick, protocol.ErrUnknownAgent, "agent gone before dispatch"))
		return
	}
	act, ok := d.reg.Lookup(in.Action)
	if !ok {
		d.reply(in.Reply, rejectAck(in.CallID, nowTick, protocol.ErrUnknownAction, "unknown action: "+in.Action))
		return
	}
	res, herr := act.Handler(d, a, in.ActionID, in.Params, nowTick)
	if herr != nil {
		d.reply(in.Reply, rejectAck(in.CallID, nowTick, herr.Code, herr.Message))
		return
	}
	d.reply(in.Reply, protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          in.CallID,
		Accepted:        true,
		ActionID:        in.ActionID,
		Tick:            nowTick,
		ETATick:         res.ETATick,
		Result:          res.Result,
	})
}

func (d *Dispatcher) reply(fn func(protocol.AckMsg), ack protocol.AckMsg) {
	if fn != nil {
		fn(ack)
	}
}

func rejectAck(callID string, nowTick uint64, code, msg string) protocol.AckMsg {
	if !protocol.IsKnownCode(code) {
		code = protocol.ErrInternal
	}
	return protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          callID,
		Accepted:        false,
		Code:            code,
		Message:         msg,
		Tick:            nowTick,
	}
}

// OnTick is the single entry point called once per simulation step: drain the
// action queue at the capped rate, run every agent's activity routines in the
// fixed order, then flush outbound events in generation order.
func (d *Dispatcher) OnTick(nowTick uint64) {
	d.queue.Drain(d.tun.Queue.DrainPerTick, func(in Intent) {
		d.dispatchIntent(in, nowTick)
	})
	for _, a := range d.sortedAgents() {
		d.tickWalking(a, nowTick)
		d.tickMining(a, nowTick)
		d.tickCrafting(a, nowTick)
		d.tickPlacement(a, nowTick)
	}
	d.flushEvents()
}

func (d *Dispatcher) flushEvents() {
	if d.sink == nil {
		for _, a := range d.agents {
			a.Events = a.Events[:0]
		}
		return
	}
	for _, a := range d.sortedAgents() {
		for _, e := range a.Events {
			d.sink.Publish(e)
		}
		a.Events = a.Events[:0]
	}
}

// ResolvePath delivers an out-of-band path resolution. Resolutions whose
// request id matches no live walk job are ignored.
func (d *Dispatcher) ResolvePath(requestID uint64, waypoints []nav.Pos, ok bool) {
	for _, a := range d.agents {
		j := a.WalkJob
		if j != nil && j.Walk.PathRequestID == requestID {
			j.Walk.ResolvePath(requestID, waypoints, ok)
			return
		}
	}
}

func (d *Dispatcher) engineFor(b Body) nav.Engine {
	return nav.Engine{
		Planner: plannerAdapter{env: d.env, footprint: b.Footprint()},
		Prober:  proberAdapter{env: d.env},
	}
}

type plannerAdapter struct {
	env       Env
	footprint float64
}

func (p plannerAdapter) RequestPath(from, to nav.Pos) (uint64, error) {
	return p.env.RequestPath(from, to, p.footprint)
}

type proberAdapter struct{ env Env }

func (p proberAdapter) Passable(q nav.Pos) bool { return p.env.Passable(q) }
