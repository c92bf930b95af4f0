// Package gridworld is the in-process host simulation: a flat tile grid with
// walkable characters, minable resources, craft queues and placeable
// entities. It implements the capability surface the agent core consumes and
// is driven from the same tick loop.
package gridworld

import (
	"math"

	"factoryverse.ai/internal/sim/nav"
)

type Config struct {
	Width  int
	Height int
	// WalkSpeed is tiles per tick along a cardinal; diagonals are normalized.
	WalkSpeed float64
	// MineCycleTicks is how many ticks one extraction cycle takes.
	MineCycleTicks int
	// MineReachRadius is the maximum character-to-resource distance at which
	// extraction binds.
	MineReachRadius float64
	// MaxPathNodes bounds the search per path request.
	MaxPathNodes int
	// PathResolveDelayTicks delays resolutions so requests stay asynchronous
	// even in-process. Minimum 1.
	PathResolveDelayTicks int
}

func (c *Config) applyDefaults() {
	if c.Width <= 0 {
		c.Width = 128
	}
	if c.Height <= 0 {
		c.Height = 128
	}
	if c.WalkSpeed <= 0 {
		c.WalkSpeed = 0.15
	}
	if c.MineCycleTicks <= 0 {
		c.MineCycleTicks = 12
	}
	if c.MineReachRadius <= 0 {
		c.MineReachRadius = 2.0
	}
	if c.MaxPathNodes <= 0 {
		c.MaxPathNodes = 4096
	}
	if c.PathResolveDelayTicks <= 0 {
		c.PathResolveDelayTicks = 1
	}
}

// Recipe is one craftable product with its per-unit ingredients and outputs.
type Recipe struct {
	Name        string
	Ingredients map[string]int
	Products    map[string]int
	TimeTicks   int
}

// Entity is a placed structure with an inventory and an optional recipe.
type Entity struct {
	ID     uint64
	Kind   string
	Pos    nav.Pos
	Recipe string
	Stocks map[string]int
}

type resource struct {
	id   uint64
	name string
	pos  nav.Pos
	item string
	// remaining extraction cycles; depletionBounded resources disappear when
	// it reaches zero, unbounded ones ignore it.
	remaining        int
	depletionBounded bool
	yield            int
}

// PathResolution is one completed path request, delivered out-of-band.
type PathResolution struct {
	ID        uint64
	Waypoints []nav.Pos
	OK        bool
}

type pathRequest struct {
	id       uint64
	from, to nav.Pos
	dueTick  uint64
}

// World is the host grid simulation. Not safe for concurrent use; the tick
// goroutine owns it.
type World struct {
	cfg   Config
	solid []bool

	nextID     uint64
	chars      map[uint64]*Character
	entities   map[uint64]*Entity
	resources  map[uint64]*resource
	recipes    map[string]Recipe

	nextPathID uint64
	pending    []pathRequest
	resolved   []PathResolution

	tick uint64
}

func New(cfg Config) *World {
	cfg.applyDefaults()
	return &World{
		cfg:       cfg,
		solid:     make([]bool, cfg.Width*cfg.Height),
		chars:     map[uint64]*Character{},
		entities:  map[uint64]*Entity{},
		resources: map[uint64]*resource{},
		recipes:   map[string]Recipe{},
	}
}

func (w *World) Config() Config { return w.cfg }

func (w *World) allocID() uint64 {
	w.nextID++
	return w.nextID
}

// --- grid ---

func tileOf(p nav.Pos) (int, int) {
	return int(math.Floor(p.X)), int(math.Floor(p.Y))
}

func tileCenter(tx, ty int) nav.Pos {
	return nav.Pos{X: float64(tx) + 0.5, Y: float64(ty) + 0.5}
}

func (w *World) inBounds(tx, ty int) bool {
	return tx >= 0 && ty >= 0 && tx < w.cfg.Width && ty < w.cfg.Height
}

func (w *World) solidAt(tx, ty int) bool {
	return w.solid[ty*w.cfg.Width+tx]
}

// SetSolid marks one tile as impassable terrain.
func (w *World) SetSolid(tx, ty int, solid bool) {
	if w.inBounds(tx, ty) {
		w.solid[ty*w.cfg.Width+tx] = solid
	}
}

func (w *World) Passable(pos nav.Pos) bool {
	tx, ty := tileOf(pos)
	return w.inBounds(tx, ty) && !w.solidAt(tx, ty)
}

// --- catalog setup ---

func (w *World) AddRecipe(r Recipe) { w.recipes[r.Name] = r }

// AddResource registers a minable resource. cycles <= 0 makes it unbounded.
func (w *World) AddResource(name string, pos nav.Pos, item string, cycles, yield int) uint64 {
	if yield <= 0 {
		yield = 1
	}
	id := w.allocID()
	w.resources[id] = &resource{
		id: id, name: name, pos: pos, item: item,
		remaining: cycles, depletionBounded: cycles > 0, yield: yield,
	}
	return id
}

// AddEntity places a structure directly, bypassing placement checks. Used for
// scenario setup and by the transfer/recipe operations' targets.
func (w *World) AddEntity(kind string, pos nav.Pos) *Entity {
	e := &Entity{ID: w.allocID(), Kind: kind, Pos: pos, Stocks: map[string]int{}}
	w.entities[e.ID] = e
	return e
}

func (w *World) Entity(id uint64) *Entity { return w.entities[id] }

// --- tick ---

// Step advances the host simulation one tick: path requests resolve, walking
// characters move, mining cycles extract, craft queues burn down.
func (w *World) Step() {
	w.tick++
	w.resolvePaths()
	for _, c := range w.chars {
		w.stepCharacter(c)
	}
}

// TakeResolvedPaths drains the resolutions completed since the last call.
func (w *World) TakeResolvedPaths() []PathResolution {
	out := w.resolved
	w.resolved = nil
	return out
}

func (w *World) resolvePaths() {
	var keep []pathRequest
	for _, req := range w.pending {
		if req.dueTick > w.tick {
			keep = append(keep, req)
			continue
		}
		waypoints, ok := w.findPath(req.from, req.to)
		w.resolved = append(w.resolved, PathResolution{ID: req.id, Waypoints: waypoints, OK: ok})
	}
	w.pending = keep
}

func (w *World) stepCharacter(c *Character) {
	if c.walking {
		dx, dy := c.walkDir.Delta()
		speed := w.cfg.WalkSpeed
		if dx != 0 && dy != 0 {
			speed /= math.Sqrt2
		}
		next := nav.Pos{X: c.pos.X + dx*speed, Y: c.pos.Y + dy*speed}
		if w.Passable(next) {
			c.pos = next
		} else {
			// Sliding: try each axis alone so corners do not wedge.
			if nx := (nav.Pos{X: next.X, Y: c.pos.Y}); dx != 0 && w.Passable(nx) {
				c.pos = nx
			} else if ny := (nav.Pos{X: c.pos.X, Y: next.Y}); dy != 0 && w.Passable(ny) {
				c.pos = ny
			}
		}
	}

	if c.mining {
		res := w.resources[c.mineResource]
		if res == nil {
			c.mining = false
			c.mineProgress = 0
		} else {
			c.mineProgress++
			if c.mineProgress >= w.cfg.MineCycleTicks {
				c.mineProgress = 0
				c.inv[res.item] += res.yield
				if res.depletionBounded {
					res.remaining--
					if res.remaining <= 0 {
						delete(w.resources, res.id)
					}
				}
			}
		}
	}

	if len(c.queue) > 0 {
		u := &c.queue[0]
		u.ticksLeft--
		if u.ticksLeft <= 0 {
			if r, ok := w.recipes[u.recipe]; ok {
				for item, n := range r.Products {
					c.inv[item] += n
				}
			}
			c.queue = c.queue[1:]
		}
	}
}
