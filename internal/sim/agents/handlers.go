package agents

import (
	"fmt"
	"math"

	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/jobs"
	"factoryverse.ai/internal/sim/nav"
)

// Param readers. Parameters arrive normalized from the validation layer, so
// conversions here only bridge JSON number decoding.

func floatParam(p Params, key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	}
	return 0, false
}

func intParam(p Params, key string) (int, bool) {
	f, ok := floatParam(p, key)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func uintParam(p Params, key string) (uint64, bool) {
	f, ok := floatParam(p, key)
	if !ok || f < 0 {
		return 0, false
	}
	return uint64(f), true
}

func strParam(p Params, key string) (string, bool) {
	s, ok := p[key].(string)
	return s, ok
}

func posParam(p Params) (nav.Pos, bool) {
	x, okX := floatParam(p, "x")
	y, okY := floatParam(p, "y")
	if !okX || !okY {
		return nav.Pos{}, false
	}
	return nav.Pos{X: x, Y: y}, true
}

var octantByName = map[string]nav.Octant{
	"N": nav.North, "NE": nav.Northeast, "E": nav.East, "SE": nav.Southeast,
	"S": nav.South, "SW": nav.Southwest, "W": nav.West, "NW": nav.Northwest,
}

// --- exclusivity transitions ---

// cancelMining clears the mining job and its actuation; used when walking
// starts (walking and mining are hard-exclusive).
func (d *Dispatcher) cancelMining(a *Agent, nowTick uint64, reason string) {
	j := a.MineJob
	if j == nil {
		return
	}
	if b := a.Body(); b != nil {
		b.StopMining()
	}
	a.AddEvent(protocol.Event{
		"t": nowTick, "type": protocol.EventCanceled,
		"category": protocol.CategoryMining, "kind": "start_mining",
		"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
		"ok": false, "cancelled": true, "reason": reason,
		"resource": j.ResourceName, "item": j.Item,
	})
	a.MineJob = nil
}

// haltWalkActuation stops movement actuation and the sustained intent without
// touching the walk job record; the job is suspended while mining runs and
// may be cancelled separately.
func (d *Dispatcher) haltWalkActuation(a *Agent) {
	if b := a.Body(); b != nil {
		b.StopWalking()
	}
	a.WalkDirUntil = 0
}

// --- walking ---

func handleWalkTo(d *Dispatcher, a *Agent, actionID uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	b := a.Body()
	if b == nil {
		return HandlerResult{}, failf(protocol.ErrOrphaned, "agent entity destroyed")
	}
	goal, ok := posParam(p)
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing goal position")
	}

	np := d.navP
	if r, ok := floatParam(p, "arrival_radius"); ok && r > 0 {
		np.ArrivalRadius = r
	}

	// Starting a walk cancels in-flight mining and supersedes any previous
	// walk job.
	d.cancelMining(a, nowTick, "superseded by walk_to")
	if old := a.WalkJob; old != nil {
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventCanceled,
			"category": protocol.CategoryWalking, "kind": "walk_to",
			"action_id": old.ActionID, "agent_id": a.ID, "t_issued": old.StartedTick,
			"ok": false, "cancelled": true, "reason": "superseded by walk_to",
			"goal": [2]float64{old.Walk.Goal.X, old.Walk.Goal.Y},
		})
	}

	w := nav.NewWalk(actionID, goal, np)
	eng := d.engineFor(b)
	eng.Start(w, b.Position())
	a.WalkJob = &jobs.WalkJob{ActionID: actionID, StartedTick: nowTick, Walk: w}

	eta := nowTick + uint64(math.Ceil(nav.Dist(b.Position(), goal)/d.tun.Nav.WalkSpeed))
	return HandlerResult{
		ETATick: eta,
		Result:  map[string]any{"goal_x": goal.X, "goal_y": goal.Y},
	}, nil
}

func handleCancelWalk(d *Dispatcher, a *Agent, _ uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	j := a.WalkJob
	if j == nil {
		return HandlerResult{}, failf(protocol.ErrNothingActive, "no active walk")
	}
	if id, ok := uintParam(p, "action_id"); ok && id != j.ActionID {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget, fmt.Sprintf("walk job mismatch: active %d, requested %d", j.ActionID, id))
	}
	if b := a.Body(); b != nil && a.MineJob == nil {
		b.StopWalking()
	}
	a.AddEvent(protocol.Event{
		"t": nowTick, "type": protocol.EventCanceled,
		"category": protocol.CategoryWalking, "kind": "walk_to",
		"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
		"ok": false, "cancelled": true,
		"goal": [2]float64{j.Walk.Goal.X, j.Walk.Goal.Y},
	})
	a.WalkJob = nil
	return HandlerResult{Result: map[string]any{"cancelled": true, "action_id": j.ActionID}}, nil
}

func handleWalkDirection(d *Dispatcher, a *Agent, _ uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	b := a.Body()
	if b == nil {
		return HandlerResult{}, failf(protocol.ErrOrphaned, "agent entity destroyed")
	}
	name, ok := strParam(p, "direction")
	dir, known := octantByName[name]
	if !ok || !known {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "bad direction")
	}
	until, ok := uintParam(p, "until_tick")
	if !ok || until <= nowTick {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "until_tick must be in the future")
	}
	d.cancelMining(a, nowTick, "superseded by walk_direction")
	a.WalkDir = dir
	a.WalkDirUntil = until
	b.SetWalking(dir)
	return HandlerResult{Result: map[string]any{"direction": dir.String(), "until_tick": until}}, nil
}

func handleStopWalking(d *Dispatcher, a *Agent, _ uint64, _ Params, _ uint64) (HandlerResult, *HandlerError) {
	stopped := a.WalkDirUntil > 0
	a.WalkDirUntil = 0
	if b := a.Body(); b != nil {
		b.StopWalking()
	}
	return HandlerResult{Result: map[string]any{"stopped": stopped}}, nil
}

// --- mining ---

func handleStartMining(d *Dispatcher, a *Agent, actionID uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	b := a.Body()
	if b == nil {
		return HandlerResult{}, failf(protocol.ErrOrphaned, "agent entity destroyed")
	}
	pos, ok := posParam(p)
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing resource position")
	}
	res, ok := d.env.FindResource(pos)
	if !ok {
		return HandlerResult{}, failf(protocol.ErrNoResource, "no minable resource at position")
	}
	if dist := nav.Dist(b.Position(), res.Pos); dist > d.tun.Mine.ReachRadius {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget,
			fmt.Sprintf("resource out of reach: %.1f > %.1f", dist, d.tun.Mine.ReachRadius))
	}

	target := 0
	if !res.DepletionBounded {
		if n, ok := intParam(p, "count"); ok && n > 0 {
			target = n
		}
	}

	// Mining takes the actuation; the walk job (if any) is suspended.
	d.haltWalkActuation(a)
	if a.MineJob != nil {
		d.cancelMining(a, nowTick, "superseded by start_mining")
	}

	b.SetMining(res.Pos)
	a.MineJob = &jobs.MineJob{
		ActionID:     actionID,
		StartedTick:  nowTick,
		ResourceID:   res.ID,
		ResourceName: res.Name,
		Position:     res.Pos,
		Item:         res.Item,
		TargetCount:  target,
		Baseline:     b.ItemCount(res.Item),
	}
	return HandlerResult{
		Result: map[string]any{"resource": res.Name, "item": res.Item, "target_count": target},
	}, nil
}

func handleCancelMining(d *Dispatcher, a *Agent, _ uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	j := a.MineJob
	if j == nil {
		return HandlerResult{}, failf(protocol.ErrNothingActive, "no active mining")
	}
	if id, ok := uintParam(p, "action_id"); ok && id != j.ActionID {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget, fmt.Sprintf("mining job mismatch: active %d, requested %d", j.ActionID, id))
	}
	d.cancelMining(a, nowTick, "cancelled")
	return HandlerResult{Result: map[string]any{"cancelled": true, "action_id": j.ActionID}}, nil
}

// --- crafting ---

func handleCraftEnqueue(d *Dispatcher, a *Agent, actionID uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	b := a.Body()
	if b == nil {
		return HandlerResult{}, failf(protocol.ErrOrphaned, "agent entity destroyed")
	}
	recipe, ok := strParam(p, "recipe")
	if !ok || recipe == "" {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing recipe")
	}
	count, ok := intParam(p, "count")
	if !ok || count <= 0 {
		count = 1
	}
	if a.CraftJob != nil {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "crafting job already active")
	}
	if !d.env.RecipeAvailable(b.Force(), recipe) {
		return HandlerResult{}, failf(protocol.ErrNoRecipe, "recipe not available: "+recipe)
	}
	craftable := d.env.CraftableCount(b, recipe)
	if craftable <= 0 {
		return HandlerResult{}, failf(protocol.ErrNoResource, "nothing craftable: "+recipe)
	}
	perUnit, ok := d.env.RecipeProducts(recipe)
	if !ok {
		return HandlerResult{}, failf(protocol.ErrNoRecipe, "unknown recipe: "+recipe)
	}

	n := count
	if craftable < n {
		n = craftable
	}
	baselineDepth := d.env.CraftQueueDepth(b)
	productBase := make(map[string]int, len(perUnit))
	for item := range perUnit {
		productBase[item] = b.ItemCount(item)
	}
	queued := d.env.BeginCraft(b, recipe, n)
	if queued <= 0 {
		return HandlerResult{}, failf(protocol.ErrNoResource, "craft queue rejected: "+recipe)
	}

	a.CraftJob = &jobs.CraftJob{
		ActionID:        actionID,
		StartedTick:     nowTick,
		Recipe:          recipe,
		Requested:       count,
		Queued:          queued,
		BaselineDepth:   baselineDepth,
		ProductBaseline: productBase,
		PerUnit:         perUnit,
		SawNonEmpty:     true,
	}

	eta := nowTick + uint64(queued*d.env.RecipeCraftTicks(recipe))
	return HandlerResult{
		ETATick: eta,
		Result: map[string]any{
			"recipe": recipe, "count_requested": count, "count_queued": queued,
		},
	}, nil
}

func handleCraftDequeue(d *Dispatcher, a *Agent, _ uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	j := a.CraftJob
	if j == nil {
		return HandlerResult{}, failf(protocol.ErrNothingActive, "no active crafting found")
	}
	recipe, ok := strParam(p, "recipe")
	if !ok || recipe == "" {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing recipe")
	}
	if recipe != j.Recipe {
		return HandlerResult{}, failf(protocol.ErrRecipeMismatch, fmt.Sprintf("active crafting is %q, not %q", j.Recipe, recipe))
	}
	b := a.Body()
	if b == nil {
		return HandlerResult{}, failf(protocol.ErrOrphaned, "agent entity destroyed")
	}

	depthBefore := d.env.CraftQueueDepth(b)
	remaining := depthBefore - j.BaselineDepth
	if remaining < 0 {
		remaining = depthBefore
	}
	n, ok := intParam(p, "count")
	if !ok || n <= 0 || n > remaining {
		n = remaining
	}
	cancelled := d.env.CancelCraft(b, recipe, n)
	if cancelled <= 0 {
		return HandlerResult{}, failf(protocol.ErrNothingActive, "nothing queued to dequeue")
	}
	if cancelled >= remaining {
		// Whole remaining batch dequeued; the slot clears once the queue is
		// observed below its pre-cancel depth.
		j.Cancelled = true
		j.CancelBaseline = depthBefore
	} else {
		// Partial cancellation keeps the slot alive for the remainder.
		j.Queued -= cancelled
	}
	return HandlerResult{
		Result: map[string]any{"recipe": recipe, "count_cancelled": cancelled},
	}, nil
}

// --- placement ---

func handlePlaceEntity(d *Dispatcher, a *Agent, actionID uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	b := a.Body()
	if b == nil {
		return HandlerResult{}, failf(protocol.ErrOrphaned, "agent entity destroyed")
	}
	item, ok := strParam(p, "item")
	if !ok || item == "" {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing item")
	}
	pos, ok := posParam(p)
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing position")
	}
	dir := nav.North
	if name, ok := strParam(p, "direction"); ok {
		if o, known := octantByName[name]; known {
			dir = o
		}
	}
	if b.ItemCount(item) <= 0 {
		return HandlerResult{}, failf(protocol.ErrNoResource, "item not in inventory: "+item)
	}
	if !d.env.CanPlace(item, pos) {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget, "cannot place at position")
	}
	a.PlaceJobs = append(a.PlaceJobs, &jobs.PlaceJob{
		ActionID:    actionID,
		StartedTick: nowTick,
		Item:        item,
		Position:    pos,
		Direction:   dir,
	})
	return HandlerResult{
		Result: map[string]any{"item": item, "x": pos.X, "y": pos.Y},
	}, nil
}

func handleCancelPlacement(d *Dispatcher, a *Agent, _ uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	id, ok := uintParam(p, "action_id")
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing action_id")
	}
	for i, j := range a.PlaceJobs {
		if j.ActionID != id {
			continue
		}
		a.PlaceJobs = append(a.PlaceJobs[:i], a.PlaceJobs[i+1:]...)
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventCanceled,
			"category": protocol.CategoryPlacement, "kind": "place_entity",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok": false, "cancelled": true, "item": j.Item,
		})
		return HandlerResult{Result: map[string]any{"cancelled": true, "action_id": id}}, nil
	}
	return HandlerResult{}, failf(protocol.ErrNothingActive, "no matching placement job")
}

// --- agent lifecycle ---

func handleCreateAgent(d *Dispatcher, _ *Agent, _ uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	spawn, ok := posParam(p)
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing spawn position")
	}
	h, err := d.env.CreateBody(spawn)
	if err != nil {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget, err.Error())
	}
	d.nextAgentID++
	a := &Agent{ID: d.nextAgentID, body: h}
	d.agents[a.ID] = a
	return HandlerResult{Result: map[string]any{"agent_id": a.ID}}, nil
}

func handleDestroyAgent(d *Dispatcher, a *Agent, _ uint64, _ Params, nowTick uint64) (HandlerResult, *HandlerError) {
	d.cancelMining(a, nowTick, "agent destroyed")
	if j := a.WalkJob; j != nil {
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventCanceled,
			"category": protocol.CategoryWalking, "kind": "walk_to",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok": false, "cancelled": true, "reason": "agent destroyed",
		})
		a.WalkJob = nil
	}
	if j := a.CraftJob; j != nil {
		a.AddEvent(protocol.Event{
			"t": nowTick, "type": protocol.EventCanceled,
			"category": protocol.CategoryCrafting, "kind": "craft_enqueue",
			"action_id": j.ActionID, "agent_id": a.ID, "t_issued": j.StartedTick,
			"ok": false, "cancelled": true, "reason": "agent destroyed",
			"recipe": j.Recipe,
		})
		a.CraftJob = nil
	}
	a.PlaceJobs = nil
	if b := a.Body(); b != nil {
		b.StopWalking()
		b.StopMining()
		d.env.DestroyBody(b.EntityID())
	}
	// Flush the remaining events before the agent leaves the arena.
	if d.sink != nil {
		for _, e := range a.Events {
			d.sink.Publish(e)
		}
	}
	a.Events = nil
	delete(d.agents, a.ID)
	return HandlerResult{Result: map[string]any{"agent_id": a.ID}}, nil
}

// --- entity inventory/recipe operations ---

func handleTransferItems(d *Dispatcher, a *Agent, _ uint64, p Params, nowTick uint64) (HandlerResult, *HandlerError) {
	b := a.Body()
	if b == nil {
		return HandlerResult{}, failf(protocol.ErrOrphaned, "agent entity destroyed")
	}
	entityID, ok := uintParam(p, "entity_id")
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing entity_id")
	}
	item, ok := strParam(p, "item")
	if !ok || item == "" {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing item")
	}
	count, ok := intParam(p, "count")
	if !ok || count <= 0 {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing count")
	}
	dirName, _ := strParam(p, "direction")
	insert := dirName != "remove"
	moved, err := d.env.TransferItems(b, entityID, item, count, insert)
	if err != nil {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget, err.Error())
	}
	return HandlerResult{
		Result: map[string]any{"item": item, "transferred": moved},
	}, nil
}

func handleSetRecipe(d *Dispatcher, a *Agent, _ uint64, p Params, _ uint64) (HandlerResult, *HandlerError) {
	entityID, ok := uintParam(p, "entity_id")
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing entity_id")
	}
	recipe, ok := strParam(p, "recipe")
	if !ok || recipe == "" {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing recipe")
	}
	if err := d.env.SetEntityRecipe(entityID, recipe); err != nil {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget, err.Error())
	}
	return HandlerResult{Result: map[string]any{"entity_id": entityID, "recipe": recipe}}, nil
}

func handleClearRecipe(d *Dispatcher, a *Agent, _ uint64, p Params, _ uint64) (HandlerResult, *HandlerError) {
	entityID, ok := uintParam(p, "entity_id")
	if !ok {
		return HandlerResult{}, failf(protocol.ErrBadRequest, "missing entity_id")
	}
	if err := d.env.ClearEntityRecipe(entityID); err != nil {
		return HandlerResult{}, failf(protocol.ErrInvalidTarget, err.Error())
	}
	return HandlerResult{Result: map[string]any{"entity_id": entityID}}, nil
}
