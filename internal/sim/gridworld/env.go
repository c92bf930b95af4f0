package gridworld

import (
	"fmt"

	"factoryverse.ai/internal/sim/agents"
	"factoryverse.ai/internal/sim/nav"
)

// agents.Env implementation. All calls arrive from the tick goroutine.

func (w *World) RequestPath(from, to nav.Pos, footprint float64) (uint64, error) {
	w.nextPathID++
	w.pending = append(w.pending, pathRequest{
		id: w.nextPathID, from: from, to: to,
		dueTick: w.tick + uint64(w.cfg.PathResolveDelayTicks),
	})
	return w.nextPathID, nil
}

func (w *World) CreateBody(spawn nav.Pos) (agents.BodyHandle, error) {
	if !w.Passable(spawn) {
		return nil, fmt.Errorf("spawn position (%.1f, %.1f) not passable", spawn.X, spawn.Y)
	}
	c := &Character{w: w, id: w.allocID(), pos: spawn, force: "player", inv: map[string]int{}}
	w.chars[c.id] = c
	return charHandle{w: w, id: c.id}, nil
}

func (w *World) DestroyBody(entityID uint64) {
	delete(w.chars, entityID)
}

func (w *World) FindResource(pos nav.Pos) (agents.Resource, bool) {
	var best *resource
	bestD := 1.0
	for _, r := range w.resources {
		if d := nav.Dist(r.pos, pos); d <= bestD {
			// Ties break toward the lower id for determinism.
			if best == nil || d < bestD || r.id < best.id {
				best, bestD = r, d
			}
		}
	}
	if best == nil {
		return agents.Resource{}, false
	}
	return agents.Resource{
		ID: best.id, Name: best.name, Pos: best.pos, Item: best.item,
		DepletionBounded: best.depletionBounded,
	}, true
}

func (w *World) ResourceValid(id uint64) bool {
	_, ok := w.resources[id]
	return ok
}

func (w *World) RecipeAvailable(force, recipe string) bool {
	_, ok := w.recipes[recipe]
	return ok
}

func (w *World) RecipeProducts(recipe string) (map[string]int, bool) {
	r, ok := w.recipes[recipe]
	if !ok {
		return nil, false
	}
	return r.Products, true
}

func (w *World) RecipeCraftTicks(recipe string) int {
	if r, ok := w.recipes[recipe]; ok && r.TimeTicks > 0 {
		return r.TimeTicks
	}
	return 1
}

func (w *World) CraftableCount(b agents.Body, recipe string) int {
	r, ok := w.recipes[recipe]
	if !ok {
		return 0
	}
	c, ok := b.(*Character)
	if !ok {
		return 0
	}
	craftable := -1
	for item, need := range r.Ingredients {
		if need <= 0 {
			continue
		}
		n := c.inv[item] / need
		if craftable < 0 || n < craftable {
			craftable = n
		}
	}
	if craftable < 0 {
		// A recipe without ingredients is only bounded by the queue.
		return 1 << 16
	}
	return craftable
}

// BeginCraft consumes ingredients up-front and appends the units to the
// character's craft queue. Returns how many units were actually queued.
func (w *World) BeginCraft(b agents.Body, recipe string, count int) int {
	r, ok := w.recipes[recipe]
	if !ok || count <= 0 {
		return 0
	}
	c, ok := b.(*Character)
	if !ok {
		return 0
	}
	if n := w.CraftableCount(b, recipe); count > n {
		count = n
	}
	for item, need := range r.Ingredients {
		c.inv[item] -= need * count
	}
	ticks := w.RecipeCraftTicks(recipe)
	for i := 0; i < count; i++ {
		c.queue = append(c.queue, craftUnit{recipe: recipe, ticksLeft: ticks})
	}
	return count
}

func (w *World) CraftQueueDepth(b agents.Body) int {
	if c, ok := b.(*Character); ok {
		return len(c.queue)
	}
	return 0
}

// CancelCraft removes up to count queued units of the recipe, newest first,
// and refunds their ingredients.
func (w *World) CancelCraft(b agents.Body, recipe string, count int) int {
	c, ok := b.(*Character)
	if !ok || count <= 0 {
		return 0
	}
	removed := 0
	for i := len(c.queue) - 1; i >= 0 && removed < count; i-- {
		if c.queue[i].recipe != recipe {
			continue
		}
		c.queue = append(c.queue[:i], c.queue[i+1:]...)
		removed++
	}
	if r, ok := w.recipes[recipe]; ok {
		for item, need := range r.Ingredients {
			c.inv[item] += need * removed
		}
	}
	return removed
}

func (w *World) CanPlace(item string, pos nav.Pos) bool {
	if !w.Passable(pos) {
		return false
	}
	tx, ty := tileOf(pos)
	for _, e := range w.entities {
		if ex, ey := tileOf(e.Pos); ex == tx && ey == ty {
			return false
		}
	}
	return true
}

func (w *World) TransferItems(b agents.Body, entityID uint64, item string, count int, insert bool) (int, error) {
	c, ok := b.(*Character)
	if !ok {
		return 0, fmt.Errorf("unknown body")
	}
	e := w.entities[entityID]
	if e == nil {
		return 0, fmt.Errorf("no entity %d", entityID)
	}
	if count <= 0 {
		return 0, fmt.Errorf("bad count %d", count)
	}
	if insert {
		have := c.inv[item]
		if have == 0 {
			return 0, fmt.Errorf("no %s held", item)
		}
		if count > have {
			count = have
		}
		c.inv[item] -= count
		e.Stocks[item] += count
	} else {
		have := e.Stocks[item]
		if have == 0 {
			return 0, fmt.Errorf("entity %d holds no %s", entityID, item)
		}
		if count > have {
			count = have
		}
		e.Stocks[item] -= count
		c.inv[item] += count
	}
	return count, nil
}

func (w *World) SetEntityRecipe(entityID uint64, recipe string) error {
	e := w.entities[entityID]
	if e == nil {
		return fmt.Errorf("no entity %d", entityID)
	}
	if _, ok := w.recipes[recipe]; !ok {
		return fmt.Errorf("unknown recipe %q", recipe)
	}
	e.Recipe = recipe
	return nil
}

func (w *World) ClearEntityRecipe(entityID uint64) error {
	e := w.entities[entityID]
	if e == nil {
		return fmt.Errorf("no entity %d", entityID)
	}
	e.Recipe = ""
	return nil
}
