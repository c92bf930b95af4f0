package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz int `yaml:"tick_rate_hz"`

	Nav   Nav   `yaml:"nav"`
	Mine  Mine  `yaml:"mine"`
	Queue Queue `yaml:"queue"`
}

// Nav holds the steering parameters consumed by the navigation engine.
type Nav struct {
	ArrivalRadius  float64 `yaml:"arrival_radius"`
	WaypointRadius float64 `yaml:"waypoint_radius"`

	// DiagonalBand is the |minor|/|major| axis-delta ratio above which a
	// diagonal octant is allowed instead of the dominant cardinal.
	DiagonalBand    float64 `yaml:"diagonal_band"`
	AxisSnapEpsilon float64 `yaml:"axis_snap_epsilon"`

	MaxReplans        int     `yaml:"max_replans"`
	ZeroMotionTicks   int     `yaml:"zero_motion_ticks"`
	NoProgressTicks   int     `yaml:"no_progress_ticks"`
	NoProgressEpsilon float64 `yaml:"no_progress_epsilon"`
	StallLimit        int     `yaml:"stall_limit"`
	SidestepOffset    float64 `yaml:"sidestep_offset"`
	MicroDetourTicks  int     `yaml:"micro_detour_ticks"`

	// WalkSpeed (tiles/tick) is only used for ETA estimates in acks.
	WalkSpeed float64 `yaml:"walk_speed"`
}

type Mine struct {
	// ReachRadius is how far an agent may stand from a resource when
	// extraction starts.
	ReachRadius float64 `yaml:"reach_radius"`
}

type Queue struct {
	Capacity     int `yaml:"capacity"`
	DrainPerTick int `yaml:"drain_per_tick"`
}

func Load(path string) (Tuning, error) {
	var t Tuning
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.ApplyDefaults()
	return t, nil
}

func Default() Tuning {
	var t Tuning
	t.ApplyDefaults()
	return t
}

func (t *Tuning) ApplyDefaults() {
	if t.ProtocolVersion == "" {
		t.ProtocolVersion = "1.0"
	}
	if t.TickRateHz <= 0 {
		t.TickRateHz = 60
	}
	n := &t.Nav
	if n.ArrivalRadius <= 0 {
		n.ArrivalRadius = 1.0
	}
	if n.WaypointRadius <= 0 {
		n.WaypointRadius = 0.5
	}
	if n.DiagonalBand <= 0 {
		n.DiagonalBand = 0.5
	}
	if n.AxisSnapEpsilon <= 0 {
		n.AxisSnapEpsilon = 0.2
	}
	if n.MaxReplans <= 0 {
		n.MaxReplans = 3
	}
	if n.ZeroMotionTicks <= 0 {
		n.ZeroMotionTicks = 30
	}
	if n.NoProgressTicks <= 0 {
		n.NoProgressTicks = 60
	}
	if n.NoProgressEpsilon <= 0 {
		n.NoProgressEpsilon = 0.01
	}
	if n.StallLimit <= 0 {
		n.StallLimit = 2
	}
	if n.SidestepOffset <= 0 {
		n.SidestepOffset = 2.0
	}
	if n.MicroDetourTicks <= 0 {
		n.MicroDetourTicks = 45
	}
	if n.WalkSpeed <= 0 {
		n.WalkSpeed = 0.15
	}
	if t.Mine.ReachRadius <= 0 {
		t.Mine.ReachRadius = 2.0
	}
	if t.Queue.Capacity <= 0 {
		t.Queue.Capacity = 256
	}
	if t.Queue.DrainPerTick <= 0 {
		t.Queue.DrainPerTick = 16
	}
}
