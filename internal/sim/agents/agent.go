package agents

import (
	"factoryverse.ai/internal/protocol"
	"factoryverse.ai/internal/sim/jobs"
	"factoryverse.ai/internal/sim/nav"
)

// Agent owns one controllable character: its activity slots, its outbound
// event buffer, and the weak handle to the backing entity.
type Agent struct {
	ID   uint64
	body BodyHandle

	WalkJob   *jobs.WalkJob
	MineJob   *jobs.MineJob
	CraftJob  *jobs.CraftJob
	PlaceJobs []*jobs.PlaceJob

	// Sustained raw-direction intent, independent of walk jobs. Active while
	// WalkDirUntil > 0; re-applied every tick until the expiry tick.
	WalkDir      nav.Octant
	WalkDirUntil uint64

	Events []protocol.Event
}

func (a *Agent) AddEvent(e protocol.Event) {
	a.Events = append(a.Events, e)
}

// Body resolves the backing entity, or nil if it has been destroyed.
func (a *Agent) Body() Body {
	if a.body == nil {
		return nil
	}
	return a.body.Resolve()
}
