package agents

import (
	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/nav"
)

// Body is the live physical character an agent controls. A Body is only valid
// within the tick it was resolved; processing routines re-resolve every tick.
type Body interface {
	EntityID() uint64
	Position() nav.Pos
	Footprint() float64
	Force() string

	SetWalking(dir nav.Octant)
	StopWalking()

	SetMining(target nav.Pos)
	StopMining()

	ItemCount(item string) int
}

// BodyHandle is a weak reference to a Body. Resolve returns nil once the
// backing entity has been destroyed; every processing routine short-circuits
// to an orphaned transition on nil.
type BodyHandle interface {
	Resolve() Body
}

// Resource describes one minable resource entity.
type Resource struct {
	ID   uint64
	Name string
	Pos  nav.Pos
	// Item yielded per extraction cycle.
	Item string
	// DepletionBounded resources (trees, rocks) are mined until the entity
	// disappears; count-bounded ones (ores) accept a target count.
	DepletionBounded bool
}

// Env is the capability surface the core consumes from the host simulation.
// It is implemented by gridworld in-process and by game adapters in
// production deployments.
type Env interface {
	// Navigation.
	RequestPath(from, to nav.Pos, footprint float64) (uint64, error)
	Passable(pos nav.Pos) bool

	// Agent lifecycle.
	CreateBody(spawn nav.Pos) (BodyHandle, error)
	DestroyBody(entityID uint64)

	// Mining.
	FindResource(pos nav.Pos) (Resource, bool)
	ResourceValid(id uint64) bool

	// Crafting.
	RecipeAvailable(force, recipe string) bool
	RecipeProducts(recipe string) (map[string]int, bool)
	RecipeCraftTicks(recipe string) int
	CraftableCount(b Body, recipe string) int
	BeginCraft(b Body, recipe string, count int) int
	CraftQueueDepth(b Body) int
	// CancelCraft dequeues up to count units of the named recipe from the
	// body's craft queue, skipping prerequisite entries, and returns how many
	// were removed.
	CancelCraft(b Body, recipe string, count int) int

	// Placement.
	CanPlace(item string, pos nav.Pos) bool

	// Entity inventory/recipe operations.
	TransferItems(b Body, entityID uint64, item string, count int, insert bool) (int, error)
	SetEntityRecipe(entityID uint64, recipe string) error
	ClearEntityRecipe(entityID uint64) error
}

// EventSink receives flushed outbound events once per tick, in generation
// order.
type EventSink interface {
	Publish(e protocol.Event)
}
