package agents

// tickPlacement only keeps placement bookkeeping consistent: jobs whose
// backing entity is gone are dropped. Placement jobs are not advanced per
// tick.
func (d *Dispatcher) tickPlacement(a *Agent, nowTick uint64) {
	if len(a.PlaceJobs) == 0 {
		return
	}
	if a.Body() == nil {
		a.PlaceJobs = nil
	}
}
