package nav

import "testing"

type fakePlanner struct {
	nextID   uint64
	requests []Pos
}

func (f *fakePlanner) RequestPath(from, to Pos) (uint64, error) {
	f.nextID++
	f.requests = append(f.requests, from)
	return f.nextID, nil
}

type fakeProber struct{ fn func(Pos) bool }

func (f fakeProber) Passable(p Pos) bool { return f.fn(p) }

func testParams() Params {
	return Params{
		ArrivalRadius:     1.0,
		WaypointRadius:    0.5,
		DiagonalBand:      0.5,
		AxisSnapEpsilon:   0.2,
		MaxReplans:        3,
		ZeroMotionTicks:   3,
		NoProgressTicks:   4,
		NoProgressEpsilon: 0.01,
		StallLimit:        1,
		SidestepOffset:    2.0,
		MicroDetourTicks:  10,
	}
}

// advance applies one compass step of the given speed to pos.
func advance(pos Pos, o Octant, speed float64) Pos {
	dx, dy := o.Delta()
	return Pos{X: pos.X + dx*speed, Y: pos.Y + dy*speed}
}

func TestWalkStraightEastArrives(t *testing.T) {
	pl := &fakePlanner{}
	eng := Engine{Planner: pl}
	w := NewWalk(1, Pos{X: 10, Y: 0}, testParams())

	pos := Pos{X: 0, Y: 0}
	eng.Start(w, pos)
	if len(pl.requests) != 1 {
		t.Fatalf("Start should issue one path request, got %d", len(pl.requests))
	}

	const speed = 0.15
	arrived := false
	for i := 0; i < 200; i++ {
		d := eng.Step(w, pos)
		if d.Status == Arrived {
			arrived = true
			break
		}
		if d.Status == Failed {
			t.Fatalf("walk failed on open ground at tick %d", i)
		}
		if d.Dir != East {
			t.Fatalf("tick %d: steering %v, want East", i, d.Dir)
		}
		pos = advance(pos, d.Dir, speed)
	}
	if !arrived {
		t.Fatalf("never arrived, final pos %v", pos)
	}
	if Dist(pos, w.Goal) > w.Params.ArrivalRadius+1e-9 {
		t.Fatalf("arrived outside arrival radius: dist %v", Dist(pos, w.Goal))
	}
}

func TestWalkArrivesImmediatelyInsideRadius(t *testing.T) {
	eng := Engine{}
	w := NewWalk(1, Pos{X: 3, Y: 3}, testParams())
	if d := eng.Step(w, Pos{X: 3.5, Y: 3}); d.Status != Arrived {
		t.Fatalf("status %v, want Arrived", d.Status)
	}
}

func TestFacingHysteresis(t *testing.T) {
	eng := Engine{}
	p := testParams()
	p.ZeroMotionTicks = 1000
	p.NoProgressTicks = 1000
	w := NewWalk(1, Pos{X: 100, Y: 52}, p)

	// First step fixes the facing from a cold start.
	d := eng.Step(w, Pos{X: 0, Y: 0})
	if d.Dir != Southeast {
		t.Fatalf("initial facing %v, want Southeast", d.Dir)
	}
	// Desired flips to East (one compass step away); the active facing holds.
	d = eng.Step(w, Pos{X: 0, Y: 30})
	if d.Dir != Southeast {
		t.Fatalf("one-step flutter changed facing to %v", d.Dir)
	}
	// Desired jumps past one step; now the facing must switch.
	d = eng.Step(w, Pos{X: 98, Y: 60})
	if d.Dir != North {
		t.Fatalf("facing %v after large deviation, want North", d.Dir)
	}
}

func TestZeroMotionSidestepBeforeReplan(t *testing.T) {
	pl := &fakePlanner{}
	eng := Engine{Planner: pl, Prober: fakeProber{fn: func(Pos) bool { return true }}}
	p := testParams()
	w := NewWalk(2, Pos{X: 50, Y: 0}, p)
	eng.Start(w, Pos{X: 0, Y: 0})

	// Feed the identical position until the zero-motion tier fires.
	pos := Pos{X: 5, Y: 0}
	for i := 0; i <= p.ZeroMotionTicks; i++ {
		if d := eng.Step(w, pos); d.Status != Continue {
			t.Fatalf("tick %d: status %v", i, d.Status)
		}
	}
	if !w.DetourActive() {
		t.Fatalf("expected an active micro-detour after %d motionless ticks", p.ZeroMotionTicks)
	}
	if len(pl.requests) != 1 {
		t.Fatalf("sidestep must not replan in the same tick, requests=%d", len(pl.requests))
	}
}

func TestZeroMotionBothProbesBlockedEscalates(t *testing.T) {
	pl := &fakePlanner{}
	eng := Engine{Planner: pl, Prober: fakeProber{fn: func(Pos) bool { return false }}}
	p := testParams()
	p.MaxReplans = 1
	w := NewWalk(2, Pos{X: 50, Y: 0}, p)
	eng.Start(w, Pos{X: 0, Y: 0})

	pos := Pos{X: 5, Y: 0}
	step := func() Decision { return eng.Step(w, pos) }

	// First escalation: both probes blocked, one replan left.
	for i := 0; i <= p.ZeroMotionTicks; i++ {
		if d := step(); d.Status != Continue {
			t.Fatalf("status %v before replan budget exhausted", d.Status)
		}
	}
	if len(pl.requests) != 2 {
		t.Fatalf("expected exactly one replan request, total requests %d", len(pl.requests))
	}
	if w.DetourActive() {
		t.Fatalf("no detour should be active with both probes blocked")
	}

	// Second escalation: budget exhausted, the walk fails.
	failed := false
	for i := 0; i <= p.ZeroMotionTicks; i++ {
		if d := step(); d.Status == Failed {
			failed = true
			break
		}
	}
	if !failed {
		t.Fatalf("walk should fail once the replan budget is exhausted")
	}
	if len(pl.requests) != 2 {
		t.Fatalf("failure must not issue further requests, got %d", len(pl.requests))
	}
}

func TestNoProgressStallReplans(t *testing.T) {
	pl := &fakePlanner{}
	eng := Engine{Planner: pl}
	p := testParams()
	p.ZeroMotionTicks = 1000 // isolate the no-progress tier
	p.StallLimit = 1
	w := NewWalk(3, Pos{X: 0, Y: 50}, p)
	eng.Start(w, Pos{X: 0, Y: 0})

	// Orbit two positions equidistant from the goal: real motion, no progress.
	a := Pos{X: 3, Y: 0}
	b := Pos{X: -3, Y: 0}
	for i := 0; i < 3*p.NoProgressTicks+3; i++ {
		pos := a
		if i%2 == 1 {
			pos = b
		}
		if d := eng.Step(w, pos); d.Status != Continue {
			t.Fatalf("tick %d: status %v", i, d.Status)
		}
		if len(pl.requests) > 1 {
			break
		}
	}
	if len(pl.requests) != 2 {
		t.Fatalf("expected one no-progress replan, total requests %d", len(pl.requests))
	}
}

func TestResolvePathStaleIgnored(t *testing.T) {
	pl := &fakePlanner{}
	eng := Engine{Planner: pl}
	w := NewWalk(4, Pos{X: 20, Y: 0}, testParams())
	eng.Start(w, Pos{X: 0, Y: 0})

	if w.ResolvePath(999, []Pos{{X: 5, Y: 5}}, true) {
		t.Fatalf("stale resolution must be ignored")
	}
	if len(w.Waypoints) != 0 {
		t.Fatalf("stale resolution installed waypoints")
	}
	if !w.ResolvePath(w.PathRequestID, []Pos{{X: 10, Y: 0}}, true) {
		t.Fatalf("matching resolution rejected")
	}
	if len(w.Waypoints) != 1 || w.PathRequestID != 0 {
		t.Fatalf("resolution not installed: waypoints=%d reqID=%d", len(w.Waypoints), w.PathRequestID)
	}
	// A second resolution for the consumed id is stale too.
	if w.ResolvePath(1, []Pos{{X: 1, Y: 1}}, true) {
		t.Fatalf("consumed request id accepted twice")
	}
}

func TestResolvePathEmpty(t *testing.T) {
	pl := &fakePlanner{}
	eng := Engine{Planner: pl}

	// Default: an empty resolution falls back to direct steering.
	w := NewWalk(5, Pos{X: 20, Y: 0}, testParams())
	eng.Start(w, Pos{X: 0, Y: 0})
	w.ResolvePath(w.PathRequestID, nil, false)
	if d := eng.Step(w, Pos{X: 0, Y: 0}); d.Status != Continue || d.Dir != East {
		t.Fatalf("direct steering after empty path: %+v", d)
	}

	// With the strict knob the walk fails instead.
	p := testParams()
	p.FailOnEmptyPath = true
	w2 := NewWalk(6, Pos{X: 20, Y: 0}, p)
	eng.Start(w2, Pos{X: 0, Y: 0})
	w2.ResolvePath(w2.PathRequestID, nil, false)
	if d := eng.Step(w2, Pos{X: 0, Y: 0}); d.Status != Failed {
		t.Fatalf("status %v after strict empty path, want Failed", d.Status)
	}
}

func TestWaypointFollowingAndMultiAdvance(t *testing.T) {
	pl := &fakePlanner{}
	eng := Engine{Planner: pl}
	p := testParams()
	w := NewWalk(7, Pos{X: 0, Y: 20}, p)
	pos := Pos{X: 0, Y: 0}
	eng.Start(w, pos)
	w.ResolvePath(w.PathRequestID, []Pos{
		{X: 5, Y: 0},
		{X: 5, Y: 0.2}, // within the waypoint radius of its predecessor
		{X: 5, Y: 20},
	}, true)

	d := eng.Step(w, pos)
	if d.Dir != East {
		t.Fatalf("steering %v toward first waypoint, want East", d.Dir)
	}
	// Standing on the first waypoint consumes it and its near-duplicate.
	d = eng.Step(w, Pos{X: 5, Y: 0})
	if w.WaypointIdx != 2 {
		t.Fatalf("waypoint index %d, want 2 after multi-advance", w.WaypointIdx)
	}
	if d.Dir != South {
		t.Fatalf("steering %v toward third waypoint, want South", d.Dir)
	}
}

func TestSidestepProbeOrderByJobParity(t *testing.T) {
	// Only the right-hand probe is passable. An even job id probes left first
	// and still ends on the right; the detour target must match for both
	// parities, proving both sides are probed, in id-dependent order.
	var probed []Pos
	prober := fakeProber{fn: func(p Pos) bool {
		probed = append(probed, p)
		return p.Y > 0 // right of an east-facing walker is +Y
	}}
	eng := Engine{Prober: prober}

	p := testParams()
	w := NewWalk(2, Pos{X: 50, Y: 0}, p) // even id
	w.Facing, w.HasFacing = East, true
	if !eng.trySidestep(w, Pos{X: 5, Y: 0}) {
		t.Fatalf("sidestep should succeed with one side open")
	}
	if len(probed) != 2 {
		t.Fatalf("even id should probe left first then right, probes=%d", len(probed))
	}
	if w.detour.Y <= 0 {
		t.Fatalf("detour %v, want the right-hand side", w.detour)
	}

	probed = nil
	w2 := NewWalk(3, Pos{X: 50, Y: 0}, p) // odd id
	w2.Facing, w2.HasFacing = East, true
	if !eng.trySidestep(w2, Pos{X: 5, Y: 0}) {
		t.Fatalf("sidestep should succeed with one side open")
	}
	if len(probed) != 1 {
		t.Fatalf("odd id should find the right-hand probe first, probes=%d", len(probed))
	}
	if w2.detour.Y <= 0 {
		t.Fatalf("detour %v, want the right-hand side", w2.detour)
	}
}
