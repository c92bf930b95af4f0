package agents

import (
	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/nav"
)

func (d *Dispatcher) tickWalking(a *Agent, nowTick uint64) {
	// Sustained raw-direction intent: re-applied every tick until expiry,
	// independent of the navigation engine.
	if a.WalkDirUntil > 0 {
		b := a.Body()
		switch {
		case b == nil:
			a.WalkDirUntil = 0
		case nowTick >= a.WalkDirUntil:
			b.StopWalking()
			a.WalkDirUntil = 0
		case a.MineJob == nil:
			b.SetWalking(a.WalkDir)
		}
	}

	j := a.WalkJob
	if j == nil {
		return
	}
	b := a.Body()
	if b == nil {
		// Backing entity gone: drop the job without side effects.
		a.WalkJob = nil
		return
	}
	if a.MineJob != nil {
		// Suspended while mining holds the actuation.
		return
	}

	eng := d.engineFor(b)
	dec := eng.Step(j.Walk, b.Position())
	switch dec.Status {
	case nav.Continue:
		b.SetWalking(dec.Dir)
	case nav.Arrived:
		b.StopWalking()
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventDone,
			"category": protocol.CategoryWalking, "kind": "walk_to",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok":   true,
			"goal": [2]float64{j.Walk.Goal.X, j.Walk.Goal.Y},
		})
		a.WalkJob = nil
	case nav.Failed:
		b.StopWalking()
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventFail,
			"category": protocol.CategoryWalking, "kind": "walk_to",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok": false, "code": protocol.ErrInvalidTarget, "message": "no path to goal",
			"goal": [2]float64{j.Walk.Goal.X, j.Walk.Goal.Y},
		})
		a.WalkJob = nil
	}
}
