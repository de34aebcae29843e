package queue

import (
	"fmt"
	"time"

	"github.com/queueforge/ciqueue/internal/ciqtask"
)

// Stage identifies which of the three queue stages an Item occupies. Modeled
// as a tagged sum over a single Item struct per the spec's Design Notes
// ("no inheritance hierarchy is needed; the three stage collections
// naturally segregate variants") rather than three separate Go types.
type Stage int

const (
	StageWaiting Stage = iota
	StageBlocked
	StageBuildable
)

func (s Stage) String() string {
	switch s {
	case StageWaiting:
		return "waiting"
	case StageBlocked:
		return "blocked"
	case StageBuildable:
		return "buildable"
	default:
		return "unknown"
	}
}

// Item wraps one task while it sits in the queue. Only the fields relevant
// to its current Stage are meaningful: DueAt/ID for StageWaiting,
// BuildableStartMillis for StageBlocked/StageBuildable (spec §3).
type Item struct {
	Task ciqtask.Task
	Stage Stage

	// DueAt and ID are meaningful only while Stage == StageWaiting.
	DueAt time.Time
	ID    uint64

	// BuildableStartMillis is set once at the first waiting->(buildable|
	// blocked) transition for this incarnation and preserved across
	// blocked<->buildable cycles (invariant I4).
	BuildableStartMillis int64
}

// Why renders the item's status-display reason string (spec §6 "Observable
// item fields").
func (it *Item) Why(now time.Time, blockingActivity string, selfBlocked bool, taskReason string) string {
	switch it.Stage {
	case StageWaiting:
		remaining := it.DueAt.Sub(now)
		if remaining > 0 {
			return fmt.Sprintf("in the quiet period. expires in %s", remaining.Round(time.Second))
		}
		return "pending"
	case StageBlocked:
		if blockingActivity != "" {
			return fmt.Sprintf("blocked by %s", blockingActivity)
		}
		if selfBlocked {
			return "in progress"
		}
		if taskReason != "" {
			return taskReason
		}
		return "blocked"
	case StageBuildable:
		if label := it.Task.Label(); label != "" {
			return fmt.Sprintf("waiting for next available executor on label %q", label)
		}
		return "waiting for next available executor"
	default:
		return ""
	}
}

// cloneForStage derives a new Item for the target stage, carrying forward
// BuildableStartMillis per invariant I4.
func (it *Item) cloneForStage(stage Stage, buildableStartMillis int64) *Item {
	return &Item{
		Task:                 it.Task,
		Stage:                stage,
		BuildableStartMillis: buildableStartMillis,
	}
}
