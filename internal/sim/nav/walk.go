package nav

// Params are the tunables for one walk. Zero values are not defaulted here;
// callers load them from tuning.
type Params struct {
	ArrivalRadius  float64
	WaypointRadius float64

	DiagonalBand    float64
	AxisSnapEpsilon float64

	MaxReplans        int
	ZeroMotionTicks   int
	NoProgressTicks   int
	NoProgressEpsilon float64
	StallLimit        int
	SidestepOffset    float64
	MicroDetourTicks  int

	// FailOnEmptyPath fails the walk when a path request resolves empty
	// instead of continuing on local steering alone.
	FailOnEmptyPath bool
}

// Planner issues asynchronous long-range path requests. The returned id
// correlates the out-of-band resolution (ResolvePath) to this request.
type Planner interface {
	RequestPath(from, to Pos) (uint64, error)
}

// Prober answers whether a position can be occupied by the walker's
// collision footprint. Used for sidestep probing only.
type Prober interface {
	Passable(p Pos) bool
}

type Status uint8

const (
	Continue Status = iota
	Arrived
	Failed
)

type Decision struct {
	Status Status
	Dir    Octant
}

// Walk is the navigation state of one walking job.
type Walk struct {
	ID     uint64
	Goal   Pos
	Params Params

	PathRequestID uint64 // 0 = no request in flight
	Waypoints     []Pos  // nil until a request resolves
	WaypointIdx   int

	Facing    Octant
	HasFacing bool

	Replans int

	lastPos    Pos
	haveLast   bool
	zeroMotion int

	lastGoalDist float64
	haveGoalDist bool
	noProgress   int
	stalls       int

	detour      Pos
	detourTicks int // countdown; >0 means a micro-detour is active

	failed bool
}

func NewWalk(id uint64, goal Pos, p Params) *Walk {
	return &Walk{ID: id, Goal: goal, Params: p}
}

// DetourActive reports whether a micro-detour goal is currently in flight.
func (w *Walk) DetourActive() bool { return w.detourTicks > 0 }

// ResolvePath installs the waypoints of a resolved path request. Resolutions
// whose id does not match the in-flight request are ignored (stale).
func (w *Walk) ResolvePath(requestID uint64, waypoints []Pos, ok bool) bool {
	if requestID == 0 || requestID != w.PathRequestID {
		return false
	}
	w.PathRequestID = 0
	if !ok || len(waypoints) == 0 {
		if w.Params.FailOnEmptyPath {
			w.failed = true
		}
		return true
	}
	w.Waypoints = waypoints
	w.WaypointIdx = 0
	w.detourTicks = 0
	return true
}

// Engine drives walks one tick at a time. It holds no per-walk state.
type Engine struct {
	Planner Planner
	Prober  Prober
}

// Start issues the initial long-range path request. Local steering begins
// immediately; the walk does not wait for the resolution.
func (e *Engine) Start(w *Walk, from Pos) {
	e.requestPath(w, from)
}

// Step advances the walk by one tick given the walker's current position.
func (e *Engine) Step(w *Walk, pos Pos) Decision {
	if w.failed {
		return Decision{Status: Failed}
	}

	r := w.Params.ArrivalRadius
	if Dist2(pos, w.Goal) <= r*r {
		return Decision{Status: Arrived}
	}

	// Micro-detour countdown; the detour also ends early once reached.
	wr2 := w.Params.WaypointRadius * w.Params.WaypointRadius
	if w.detourTicks > 0 {
		w.detourTicks--
		if Dist2(pos, w.detour) <= wr2 {
			w.detourTicks = 0
		}
	}

	// Waypoint advance; several close waypoints may be consumed in one tick.
	for w.WaypointIdx < len(w.Waypoints) && Dist2(pos, w.Waypoints[w.WaypointIdx]) <= wr2 {
		w.WaypointIdx++
	}

	// Stuck tier 1: zero motion. A successful sidestep suppresses replanning
	// this tick; probing both sides and failing escalates immediately.
	const motionEps2 = 1e-12
	if w.detourTicks == 0 {
		if w.haveLast && Dist2(pos, w.lastPos) <= motionEps2 {
			w.zeroMotion++
		} else {
			w.zeroMotion = 0
		}
		if w.zeroMotion >= w.Params.ZeroMotionTicks {
			w.zeroMotion = 0
			if !e.trySidestep(w, pos) && !e.replan(w, pos) {
				return Decision{Status: Failed}
			}
		}
	}
	w.lastPos = pos
	w.haveLast = true

	// Stuck tier 2: no progress toward the goal.
	d := Dist(pos, w.Goal)
	if w.detourTicks == 0 && w.haveGoalDist {
		if w.lastGoalDist-d < w.Params.NoProgressEpsilon {
			w.noProgress++
		} else {
			w.noProgress = 0
		}
		if w.noProgress >= w.Params.NoProgressTicks {
			w.noProgress = 0
			w.stalls++
			if w.stalls > w.Params.StallLimit {
				w.stalls = 0
				if !e.replan(w, pos) {
					return Decision{Status: Failed}
				}
			}
		}
	}
	w.lastGoalDist = d
	w.haveGoalDist = true

	// Immediate target: micro-detour, then next waypoint, then the goal.
	target := w.Goal
	if w.detourTicks > 0 {
		target = w.detour
	} else if w.WaypointIdx < len(w.Waypoints) {
		target = w.Waypoints[w.WaypointIdx]
	}

	desired, ok := OctantToward(pos, target, w.Params.DiagonalBand, w.Params.AxisSnapEpsilon)
	if !ok {
		// Sitting on an intermediate target; aim at the goal instead.
		desired, ok = OctantToward(pos, w.Goal, w.Params.DiagonalBand, w.Params.AxisSnapEpsilon)
	}
	if !ok {
		return Decision{Status: Continue, Dir: w.Facing}
	}

	// Hysteresis: keep the active octant unless the desired one differs by
	// more than one compass step.
	if !w.HasFacing || StepsBetween(desired, w.Facing) > 1 {
		w.Facing = desired
		w.HasFacing = true
	}
	return Decision{Status: Continue, Dir: w.Facing}
}

func (e *Engine) trySidestep(w *Walk, pos Pos) bool {
	if e.Prober == nil {
		return false
	}
	fdx, fdy := w.Facing.Delta()
	if !w.HasFacing {
		if o, ok := OctantToward(pos, w.Goal, w.Params.DiagonalBand, 0); ok {
			fdx, fdy = o.Delta()
		} else {
			fdx, fdy = East.Delta()
		}
	}

	off := w.Params.SidestepOffset
	left := Pos{X: pos.X + fdy*off, Y: pos.Y - fdx*off}
	right := Pos{X: pos.X - fdy*off, Y: pos.Y + fdx*off}

	// Probe order alternates by job id so recovery is reproducible.
	probes := [2]Pos{left, right}
	if w.ID%2 == 1 {
		probes[0], probes[1] = probes[1], probes[0]
	}
	for _, p := range probes {
		if e.Prober.Passable(p) {
			w.detour = p
			w.detourTicks = w.Params.MicroDetourTicks
			return true
		}
	}
	return false
}

func (e *Engine) replan(w *Walk, pos Pos) bool {
	if w.Replans >= w.Params.MaxReplans {
		return false
	}
	w.Replans++
	e.requestPath(w, pos)
	return true
}

func (e *Engine) requestPath(w *Walk, from Pos) {
	if e.Planner == nil {
		return
	}
	id, err := e.Planner.RequestPath(from, w.Goal)
	if err != nil {
		// Planner unavailable: keep steering locally.
		return
	}
	w.PathRequestID = id
}
