package queue

import (
	"time"

	"github.com/queueforge/ciqueue/internal/ciqtask"
	"github.com/queueforge/ciqueue/internal/observability"
)

// isBuildBlocked implements spec §4.3's definition: task.isBuildBlocked() OR
// NOT resourceController.canAcquire(task.getResourceList()).
func isBuildBlocked(task ciqtask.Task, resources resourceChecker) (bool, string) {
	if blocked, reason := task.IsBuildBlocked(); blocked {
		return true, reason
	}
	if resources != nil && !resources.CanAcquire(task.Key(), task.ResourceList()) {
		return true, ""
	}
	return false, ""
}

// resourceChecker is the minimal resource.Controller surface maintenance
// needs, kept local so this file only depends on a method set.
type resourceChecker interface {
	CanAcquire(activityID string, resources []string) bool
}

// maintain runs passes A and B (spec §4.3). Must be called with q.mu held;
// it never blocks and never itself dispatches.
func (q *Queue) maintain() {
	start := time.Now()
	defer func() {
		observability.MaintenanceDuration.Observe(time.Since(start).Seconds())
	}()

	now := q.clock.Now()

	// Pass A: re-examine blocked.
	for key, item := range q.blocked {
		if blocked, _ := isBuildBlocked(item.Task, q.resources); !blocked {
			delete(q.blocked, key)
			promoted := item.cloneForStage(StageBuildable, item.BuildableStartMillis)
			q.buildables.insert(promoted)
			observability.DispatchDecisions.WithLabelValues("BLOCKED_TO_BUILDABLE").Inc()
		}
	}

	// Pass B: drain due waiting items.
	for {
		front := q.waiting.front()
		if front == nil || front.DueAt.After(now) {
			break
		}
		item := q.waiting.popFront()

		nowMillis := now.UnixMilli()
		if blocked, _ := isBuildBlocked(item.Task, q.resources); blocked {
			q.blocked[item.Task.Key()] = item.cloneForStage(StageBlocked, nowMillis)
			observability.DispatchDecisions.WithLabelValues("WAITING_TO_BLOCKED").Inc()
		} else {
			q.buildables.insert(item.cloneForStage(StageBuildable, nowMillis))
			observability.DispatchDecisions.WithLabelValues("WAITING_TO_BUILDABLE").Inc()
		}
	}

	observability.QueueDepth.WithLabelValues(StageWaiting.String()).Set(float64(q.waiting.len()))
	observability.QueueDepth.WithLabelValues(StageBlocked.String()).Set(float64(len(q.blocked)))
	observability.QueueDepth.WithLabelValues(StageBuildable.String()).Set(float64(q.buildables.len()))
}
