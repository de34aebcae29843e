package queue

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/queueforge/ciqueue/internal/ciqtask"
	"github.com/queueforge/ciqueue/internal/nodepool"
	"github.com/queueforge/ciqueue/internal/observability"
)

// ErrAlreadyParked is returned if an executor calls Pop while it already has
// a rendezvous in flight (spec §4.4: "one executor calls pop at most once
// concurrently").
var ErrAlreadyParked = errors.New("queue: executor already parked")

const minSleep = 100 * time.Millisecond

// Pop blocks executorName (running on node) until a task is assigned to it,
// then returns that task (spec §4.4). It is interruptible via ctx.
func (q *Queue) Pop(ctx context.Context, executorName string, node *nodepool.Node) (ciqtask.Task, error) {
	start := time.Now()
	for {
		offer, err := q.park(executorName, node)
		if err != nil {
			return nil, err
		}

		q.mu.Lock()
		q.maintain()
		q.match()
		sleep, indefinite := q.nextSleep()
		q.mu.Unlock()

		woke := q.waitForSignal(ctx, offer, sleep, indefinite)
		if !woke {
			// ctx was cancelled: run the abnormal-exit cleanup path (spec
			// §4.4 step 7) and surface the cancellation.
			q.cleanup(executorName, offer)
			return nil, ctx.Err()
		}

		q.mu.Lock()
		delete(q.parked, executorName)
		observability.ParkedExecutors.Set(float64(len(q.parked)))
		assigned := offer.assigned
		q.mu.Unlock()

		if assigned != nil {
			observability.PopLatency.Observe(time.Since(start).Seconds())
			return assigned.Task, nil
		}
		// Spurious wake or timer tick: loop back to step 1 and re-park.
	}
}

// park implements spec §4.4 step 1.
func (q *Queue) park(executorName string, node *nodepool.Node) (*JobOffer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, exists := q.parked[executorName]; exists {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyParked, executorName)
	}
	offer := newOffer(nodepool.NewExecutor(executorName, node))
	q.parked[executorName] = offer
	observability.ParkedExecutors.Set(float64(len(q.parked)))
	return offer, nil
}

// match implements spec §4.4 step 3. Must be called with q.mu held.
func (q *Queue) match() {
	for e := q.buildables.order.Front(); e != nil; {
		item := e.Value.(*Item)
		next := e.Next()

		if blocked, _ := isBuildBlocked(item.Task, q.resources); blocked {
			q.demoteToBlocked(e, item)
			e = next
			continue
		}

		if offer := q.choose(item.Task); offer != nil {
			offer.assigned = item
			offer.wake()
			q.removeBuildableElement(e)
			observability.DispatchDecisions.WithLabelValues("DISPATCH").Inc()
		}
		e = next
	}
}

func (q *Queue) demoteToBlocked(e *list.Element, item *Item) {
	q.removeBuildableElement(e)
	q.blocked[item.Task.Key()] = item.cloneForStage(StageBlocked, item.BuildableStartMillis)
	observability.DispatchDecisions.WithLabelValues("BUILDABLE_TO_BLOCKED").Inc()
}

func (q *Queue) removeBuildableElement(e *list.Element) {
	if e == nil {
		return
	}
	item := e.Value.(*Item)
	q.buildables.order.Remove(e)
	delete(q.buildables.byKey, item.Task.Key())
}

// nextSleep implements spec §4.4 step 4. Must be called with q.mu held.
func (q *Queue) nextSleep() (d time.Duration, indefinite bool) {
	front := q.waiting.front()
	if front == nil {
		return 0, true
	}
	d = front.DueAt.Sub(q.clock.Now())
	if d < minSleep {
		d = minSleep
	}
	return d, false
}

// waitForSignal implements spec §4.4 steps 5-6's wait. Returns true if the
// offer's event fired (including a timer tick, which is itself a legitimate
// wake per spec step 6's "spurious wake or timer tick"), false if ctx was
// cancelled first.
func (q *Queue) waitForSignal(ctx context.Context, offer *JobOffer, sleep time.Duration, indefinite bool) bool {
	if indefinite {
		select {
		case <-offer.signal:
			return true
		case <-ctx.Done():
			return false
		}
	}
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-offer.signal:
		return true
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// cleanup implements spec §4.4 step 7: the abnormal-exit path run on
// interruption/cancellation.
func (q *Queue) cleanup(executorName string, offer *JobOffer) {
	q.mu.Lock()
	_, wasParked := q.parked[executorName]
	delete(q.parked, executorName)
	if wasParked {
		observability.ParkedExecutors.Set(float64(len(q.parked)))
	}
	assigned := offer.assigned
	offer.assigned = nil

	requeued := false
	if assigned != nil && !q.containsLocked(assigned.Task.Key()) {
		q.buildables.insert(assigned.cloneForStage(StageBuildable, assigned.BuildableStartMillis))
		requeued = true
	}
	q.mu.Unlock()

	if requeued {
		observability.DispatchDecisions.WithLabelValues("REQUEUE_ON_ABORT").Inc()
	}
	if assigned != nil {
		q.ScheduleMaintenance()
	}
}
