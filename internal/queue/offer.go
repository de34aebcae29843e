package queue

import (
	"sync"

	"github.com/queueforge/ciqueue/internal/nodepool"
)

// JobOffer is the parking slot associating one idle executor with its
// wake-up event (spec §3). It lives exactly for the duration of one Pop
// call. signal is a one-shot event: closing it is idempotent (guarded by
// once) and a blocked receiver wakes on first close, matching the spec's
// "signalling is idempotent... discarded with the offer" requirement.
type JobOffer struct {
	Executor *nodepool.Executor

	signal chan struct{}
	once   sync.Once

	// assigned is only ever read or written while the owning Queue's
	// monitor is held.
	assigned *Item
}

func newOffer(executor *nodepool.Executor) *JobOffer {
	return &JobOffer{
		Executor: executor,
		signal:   make(chan struct{}),
	}
}

// wake signals the offer's one-shot event. Safe to call more than once.
func (o *JobOffer) wake() {
	o.once.Do(func() { close(o.signal) })
}

// available reports whether this offer can currently accept an assignment:
// no task yet assigned, and its executor's owning node is not offline
// (spec §4.5 "Available").
func (o *JobOffer) available() bool {
	return o.assigned == nil && !o.Executor.Owner.IsOffline()
}
