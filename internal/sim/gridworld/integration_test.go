package gridworld

import (
	"testing"

	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/agents"
	"factoryverse.ai/internal/sim/nav"
	"factoryverse.ai/internal/sim/tuning"
)

type recordSink struct{ events []protocol.Event }

func (s *recordSink) Publish(e protocol.Event) { s.events = append(s.events, e) }

// runTicks drives the full loop the server runs: host world first, then path
// resolutions, then the agent controller.
func runTicks(d *agents.Dispatcher, w *World, start uint64, n int, stop func() bool) uint64 {
	tick := start
	for i := 0; i < n; i++ {
		tick++
		w.Step()
		for _, res := range w.TakeResolvedPaths() {
			d.ResolvePath(res.ID, res.Waypoints, res.OK)
		}
		d.OnTick(tick)
		if stop != nil && stop() {
			break
		}
	}
	return tick
}

func TestAgentWalksAroundWall(t *testing.T) {
	w := New(Config{Width: 32, Height: 32})
	for y := 0; y < 10; y++ {
		w.SetSolid(5, y, true)
	}
	sink := &recordSink{}
	d := agents.New(w, tuning.Default(), sink)

	var agentID uint64
	d.Submit(agents.Call{
		ID: "c1", Action: "create_agent", Params: agents.Params{"x": 2.5, "y": 2.5},
		Reply: func(a protocol.AckMsg) {
			if !a.Accepted {
				t.Fatalf("create_agent rejected: %s", a.Code)
			}
			agentID = a.Result["agent_id"].(uint64)
		},
	}, 0)

	goal := nav.Pos{X: 8.5, Y: 2.5}
	d.Submit(agents.Call{
		ID: "c2", AgentID: agentID, Action: "walk_to",
		Params: agents.Params{"x": goal.X, "y": goal.Y},
	}, 0)

	runTicks(d, w, 0, 3000, func() bool { return d.Agent(agentID).WalkJob == nil })
	if d.Agent(agentID).WalkJob != nil {
		t.Fatalf("walk still active after 3000 ticks")
	}

	var done *protocol.Event
	for i := range sink.events {
		if sink.events[i]["type"] == protocol.EventDone {
			done = &sink.events[i]
		}
	}
	if done == nil {
		t.Fatalf("no completion event; events: %v", sink.events)
	}
	body := d.Agent(agentID).Body()
	if nav.Dist(body.Position(), goal) > tuning.Default().Nav.ArrivalRadius+0.2 {
		t.Fatalf("stopped at %v, goal %v", body.Position(), goal)
	}
}

func TestAgentMinesToTargetInWorld(t *testing.T) {
	w := New(Config{Width: 16, Height: 16, MineCycleTicks: 2})
	w.AddResource("iron-deposit", nav.Pos{X: 3.5, Y: 3.5}, "iron-ore", 0, 1)
	sink := &recordSink{}
	d := agents.New(w, tuning.Default(), sink)

	var agentID uint64
	d.Submit(agents.Call{
		ID: "c1", Action: "create_agent", Params: agents.Params{"x": 3.5, "y": 2.8},
		Reply: func(a protocol.AckMsg) { agentID = a.Result["agent_id"].(uint64) },
	}, 0)
	d.Submit(agents.Call{
		ID: "c2", AgentID: agentID, Action: "start_mining",
		Params: agents.Params{"x": 3.5, "y": 3.5, "count": 5},
	}, 0)

	runTicks(d, w, 0, 100, func() bool { return d.Agent(agentID).MineJob == nil })
	if d.Agent(agentID).MineJob != nil {
		t.Fatalf("mining never reached its target")
	}
	body := d.Agent(agentID).Body()
	if got := body.ItemCount("iron-ore"); got < 5 {
		t.Fatalf("ore %d, want >= 5", got)
	}
	var done bool
	for _, e := range sink.events {
		if e["type"] == protocol.EventDone && e["category"] == protocol.CategoryMining {
			done = true
		}
	}
	if !done {
		t.Fatalf("no mining completion event")
	}
}

func TestAgentCraftsInWorld(t *testing.T) {
	w := New(Config{Width: 16, Height: 16})
	w.AddRecipe(Recipe{
		Name:        "iron-gear",
		Ingredients: map[string]int{"iron-plate": 2},
		Products:    map[string]int{"iron-gear": 1},
		TimeTicks:   3,
	})
	sink := &recordSink{}
	d := agents.New(w, tuning.Default(), sink)

	var agentID uint64
	d.Submit(agents.Call{
		ID: "c1", Action: "create_agent", Params: agents.Params{"x": 3.5, "y": 3.5},
		Reply: func(a protocol.AckMsg) { agentID = a.Result["agent_id"].(uint64) },
	}, 0)
	d.Agent(agentID).Body().(*Character).Give("iron-plate", 8)

	var ack protocol.AckMsg
	d.Submit(agents.Call{
		ID: "c2", AgentID: agentID, Action: "craft_enqueue",
		Params: agents.Params{"recipe": "iron-gear", "count": 6},
		Reply:  func(a protocol.AckMsg) { ack = a },
	}, 0)

	runTicks(d, w, 0, 100, func() bool { return d.Agent(agentID).CraftJob == nil && ack.AckFor != "" })
	if !ack.Accepted || ack.Result["count_queued"] != 4 {
		t.Fatalf("craft ack %+v, want 4 queued from 8 plates", ack)
	}
	body := d.Agent(agentID).Body()
	if got := body.ItemCount("iron-gear"); got != 4 {
		t.Fatalf("gears %d, want 4", got)
	}
	var done *protocol.Event
	for i := range sink.events {
		e := sink.events[i]
		if e["type"] == protocol.EventDone && e["category"] == protocol.CategoryCrafting {
			done = &sink.events[i]
		}
	}
	if done == nil {
		t.Fatalf("no crafting completion event")
	}
	if (*done)["count_crafted"] != 4 {
		t.Fatalf("completion event %v", *done)
	}
}
