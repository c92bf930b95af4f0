package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tuning.yaml")
	raw := "tick_rate_hz: 30\nnav:\n  arrival_radius: 2.5\n  max_replans: 5\nqueue:\n  capacity: 64\n"
	if err := os.WriteFile(p, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	tn, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tn.TickRateHz != 30 {
		t.Fatalf("tick_rate_hz=%d", tn.TickRateHz)
	}
	if tn.Nav.ArrivalRadius != 2.5 {
		t.Fatalf("arrival_radius=%v", tn.Nav.ArrivalRadius)
	}
	if tn.Nav.MaxReplans != 5 {
		t.Fatalf("max_replans=%d", tn.Nav.MaxReplans)
	}
	if tn.Queue.Capacity != 64 {
		t.Fatalf("queue capacity=%d", tn.Queue.Capacity)
	}
	// Unset fields fall back to defaults.
	if tn.Nav.DiagonalBand != 0.5 {
		t.Fatalf("diagonal_band default=%v", tn.Nav.DiagonalBand)
	}
	if tn.Queue.DrainPerTick != 16 {
		t.Fatalf("drain_per_tick default=%d", tn.Queue.DrainPerTick)
	}
}

func TestDefault(t *testing.T) {
	tn := Default()
	if tn.Nav.ZeroMotionTicks <= 0 || tn.Nav.NoProgressTicks <= 0 {
		t.Fatalf("stuck thresholds not defaulted: %+v", tn.Nav)
	}
	if tn.Nav.WaypointRadius <= 0 {
		t.Fatalf("waypoint radius not defaulted")
	}
	if tn.Mine.ReachRadius <= 0 {
		t.Fatalf("mine reach radius not defaulted")
	}
}
