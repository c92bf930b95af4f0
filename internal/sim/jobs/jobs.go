package jobs

import "factoryverse.ai/internal/sim/nav"

// WalkJob tracks one goal-directed walk. The steering state lives in the
// embedded nav.Walk; the job adds correlation bookkeeping.
type WalkJob struct {
	ActionID    uint64
	StartedTick uint64
	Walk        *nav.Walk
}

// MineJob tracks extraction from one resource entity. TargetCount == 0 means
// mine to depletion (trees, rocks); otherwise the job completes once the
// held count of Item has grown by TargetCount over Baseline.
type MineJob struct {
	ActionID    uint64
	StartedTick uint64

	ResourceID   uint64
	ResourceName string
	Position     nav.Pos
	Item         string

	TargetCount int
	Baseline    int
}

// CraftJob tracks one enqueued craft batch until the underlying craft queue
// drains or the batch is fully cancelled.
type CraftJob struct {
	ActionID    uint64
	StartedTick uint64

	Recipe    string
	Requested int
	Queued    int

	// Pre-enqueue queue depth and pre-craft product counts, for yield
	// computation when the queue empties.
	BaselineDepth   int
	ProductBaseline map[string]int
	// Products per crafted unit, captured at enqueue.
	PerUnit map[string]int

	SawNonEmpty bool

	// Set once the whole remaining batch has been dequeued; the slot clears
	// when the observed depth drops below CancelBaseline.
	Cancelled      bool
	CancelBaseline int
}

// PlaceJob records a structure placement. Jobs are bookkeeping-only: they are
// not advanced per tick.
type PlaceJob struct {
	ActionID    uint64
	StartedTick uint64

	Item      string
	Position  nav.Pos
	Direction nav.Octant
}
