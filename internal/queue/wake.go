package queue

// ScheduleMaintenance signals the event of exactly one currently-unassigned
// parked offer (spec §4.6). A silent noop if none are parked and
// unassigned.
func (q *Queue) ScheduleMaintenance() {
	q.mu.Lock()
	q.scheduleMaintenanceLocked()
	q.mu.Unlock()
}

// scheduleMaintenanceLocked requires q.mu held.
func (q *Queue) scheduleMaintenanceLocked() {
	for _, offer := range q.parked {
		if offer.assigned == nil {
			offer.wake()
			return
		}
	}
}

// RunMaintenance runs the maintenance procedure (spec §4.3) directly, then
// wakes one parked executor so any newly-buildable item is picked up
// without waiting on a future Pop to trigger it. Used by Ticker (spec
// §4.7): maintenance must promote due waiting items even while every
// executor is busy, which a plain wake alone (no one parked) cannot do.
func (q *Queue) RunMaintenance() {
	q.mu.Lock()
	q.maintain()
	q.scheduleMaintenanceLocked()
	q.mu.Unlock()
}
