package gridworld

import (
	"factoryverse.ai/internal/sim/agents"
	"factoryverse.ai/internal/sim/nav"
)

// Character is the physical walker a controller agent drives. It implements
// the body capability surface consumed by the agent core.
type Character struct {
	w     *World
	id    uint64
	pos   nav.Pos
	force string
	inv   map[string]int

	walking bool
	walkDir nav.Octant

	mining       bool
	mineResource uint64
	mineProgress int

	queue []craftUnit
}

type craftUnit struct {
	recipe    string
	ticksLeft int
}

func (c *Character) EntityID() uint64  { return c.id }
func (c *Character) Position() nav.Pos { return c.pos }
func (c *Character) Footprint() float64 {
	return 0.4
}
func (c *Character) Force() string { return c.force }

func (c *Character) SetWalking(dir nav.Octant) {
	c.walking, c.walkDir = true, dir
}

func (c *Character) StopWalking() { c.walking = false }

func (c *Character) SetMining(target nav.Pos) {
	c.mining = false
	c.mineProgress = 0
	// Nearest resource to the target tile, lowest id on ties.
	var best *resource
	bestDist := 1.0
	for _, r := range c.w.resources {
		d := nav.Dist(r.pos, target)
		if d > bestDist {
			continue
		}
		if best == nil || d < bestDist || r.id < best.id {
			best, bestDist = r, d
		}
	}
	if best == nil || nav.Dist(c.pos, best.pos) > c.w.cfg.MineReachRadius {
		return
	}
	c.mining = true
	c.mineResource = best.id
}

func (c *Character) StopMining() {
	c.mining = false
	c.mineProgress = 0
}

func (c *Character) ItemCount(item string) int { return c.inv[item] }

// Give adds items directly to the character's inventory, for scenario setup.
func (c *Character) Give(item string, count int) { c.inv[item] += count }

type charHandle struct {
	w  *World
	id uint64
}

func (h charHandle) Resolve() agents.Body {
	if c, ok := h.w.chars[h.id]; ok {
		return c
	}
	return nil
}
