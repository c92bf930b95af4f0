package agents

import (
	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/jobs"
)

func (d *Dispatcher) tickMining(a *Agent, nowTick uint64) {
	j := a.MineJob
	if j == nil {
		return
	}
	b := a.Body()
	if b == nil {
		a.MineJob = nil
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventFail,
			"category": protocol.CategoryMining, "kind": "start_mining",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok": false, "code": protocol.ErrOrphaned, "message": "agent entity destroyed",
		})
		return
	}

	delta := b.ItemCount(j.Item) - j.Baseline

	// The resource vanishing (depleted) completes the job with whatever was
	// actually extracted.
	if !d.env.ResourceValid(j.ResourceID) {
		b.StopMining()
		a.AddEvent(d.mineDone(a, j, nowTick, delta, true))
		a.MineJob = nil
		return
	}
	if j.TargetCount > 0 && delta >= j.TargetCount {
		b.StopMining()
		a.AddEvent(d.mineDone(a, j, nowTick, delta, false))
		a.MineJob = nil
	}
}

func (d *Dispatcher) mineDone(a *Agent, j *jobs.MineJob, nowTick uint64, delta int, depleted bool) protocol.Event {
	return protocol.Event{
		"t": nowTick, "type": protocol.EventDone,
		"category": protocol.CategoryMining, "kind": "start_mining",
		"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
		"ok":       true,
		"resource": j.ResourceName,
		"position": [2]float64{j.Position.X, j.Position.Y},
		"item":     j.Item,
		"count":    delta,
		"depleted": depleted,
	}
}
