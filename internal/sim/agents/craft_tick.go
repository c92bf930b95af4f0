package agents

import "factoryverse.ai/internal/protocol"

func (d *Dispatcher) tickCrafting(a *Agent, nowTick uint64) {
	j := a.CraftJob
	if j == nil {
		return
	}
	b := a.Body()
	if b == nil {
		a.CraftJob = nil
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventFail,
			"category": protocol.CategoryCrafting, "kind": "craft_enqueue",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok": false, "code": protocol.ErrOrphaned, "message": "agent entity destroyed",
		})
		return
	}

	depth := d.env.CraftQueueDepth(b)
	if depth > 0 {
		j.SawNonEmpty = true
	}

	if j.Cancelled {
		// Cleared only once the queue has actually shrunk below its
		// pre-cancel baseline.
		if depth < j.CancelBaseline {
			a.AddEvent(protocol.Event{
				"t": nowTick, "type": protocol.EventCanceled,
				"category": protocol.CategoryCrafting, "kind": "craft_enqueue",
				"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
				"ok": false, "cancelled": true,
				"recipe": j.Recipe, "count_requested": j.Requested, "count_queued": j.Queued,
			})
			a.CraftJob = nil
		}
		return
	}

	if j.SawNonEmpty && depth == 0 {
		// Per-product deltas against the pre-craft snapshot; units crafted is
		// the minimum count implied across products.
		products := map[string]int{}
		crafted := 0
		first := true
		for item, per := range j.PerUnit {
			delta := b.ItemCount(item) - j.ProductBaseline[item]
			products[item] = delta
			if per > 0 {
				units := delta / per
				if first || units < crafted {
					crafted = units
					first = false
				}
			}
		}
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventDone,
			"category": protocol.CategoryCrafting, "kind": "craft_enqueue",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok":     true,
			"recipe": j.Recipe, "count_requested": j.Requested, "count_queued": j.Queued,
			"count_crafted": crafted, "products": products,
		})
		a.CraftJob = nil
	}
}
