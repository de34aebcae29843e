// Package queue implements the build queue and dispatcher: the three-stage
// scheduling state machine (waiting/blocked/buildable) plus the
// executor-dispatch rendezvous (Pop), all guarded by a single monitor per
// spec §3/§5.
package queue

import (
	"sync"
	"time"

	"github.com/queueforge/ciqueue/internal/ciqtask"
	"github.com/queueforge/ciqueue/internal/observability"
	"github.com/queueforge/ciqueue/internal/resource"
)

// Environment is the queue's narrow view of the global controller (spec
// Design Notes: "an environment handle passed into queue construction, not
// a global... {isQuietingDown, agentCount, resolveTask}"). Declared locally
// so the queue package depends only on a method set, not a concrete type;
// environment.Handle satisfies this structurally.
type Environment interface {
	// IsQuietingDown reports whether the global controller is preparing
	// for shutdown (spec §4.5 S1). Must not block.
	IsQuietingDown() bool

	// AgentCount reports the number of non-controller nodes, used by the
	// "large deployment" rule (spec §4.5 S3/S4). Must not block.
	AgentCount() int
}

// TaskResolver resolves a persisted task name back into a live Task (spec
// §4.8 load path). The task registry itself is out of the queue's scope.
type TaskResolver interface {
	ResolveTask(name string) (ciqtask.Task, bool)
}

// Clock is the minimal wall-clock dependency the queue needs.
type Clock interface {
	Now() time.Time
}

// Queue is the monitor object guarding the three stage collections, the
// parked-executor table, and the id counter (spec §3/§5: "one explicit lock
// guarding a plain struct").
type Queue struct {
	mu sync.Mutex

	waiting    *waitingSet
	blocked    map[string]*Item // keyed by Task.Key()
	buildables *buildableSet
	parked     map[string]*JobOffer // keyed by executor name

	nextID uint64

	clock     Clock
	resources *resource.Controller
	env       Environment
	resolver  TaskResolver

	defaultQuietPeriod time.Duration
}

// New constructs an empty Queue.
func New(clock Clock, resources *resource.Controller, env Environment, resolver TaskResolver, defaultQuietPeriod time.Duration) *Queue {
	return &Queue{
		waiting:            newWaitingSet(),
		blocked:            make(map[string]*Item),
		buildables:         newBuildableSet(),
		parked:             make(map[string]*JobOffer),
		clock:              clock,
		resources:          resources,
		env:                env,
		resolver:           resolver,
		defaultQuietPeriod: defaultQuietPeriod,
	}
}

// Add enqueues task with the given quiet period (spec §4.2). Returns true
// iff the queue state changed.
func (q *Queue) Add(task ciqtask.Task, quietPeriod time.Duration) bool {
	q.mu.Lock()

	key := task.Key()
	now := q.clock.Now()
	due := now.Add(quietPeriod)

	if _, ok := q.blocked[key]; ok {
		q.mu.Unlock()
		return false
	}
	if _, ok := q.buildables.get(key); ok {
		q.mu.Unlock()
		return false
	}
	if existing, ok := q.waiting.get(key); ok {
		if !existing.DueAt.After(due) {
			// Existing due date is already at or before the requested one:
			// noop, never push the due date out (spec P2).
			q.mu.Unlock()
			return false
		}
		existing.DueAt = due
		q.waiting.reinsert(existing)
		q.scheduleMaintenanceLocked()
		q.mu.Unlock()
		return true
	}

	item := &Item{Task: task, Stage: StageWaiting, DueAt: due, ID: q.nextID}
	q.nextID++
	q.waiting.insert(item)
	observability.QueueDepth.WithLabelValues(StageWaiting.String()).Set(float64(q.waiting.len()))
	q.scheduleMaintenanceLocked()
	q.mu.Unlock()
	return true
}

// AddDefault enqueues task using its own reported quiet period (spec §6
// "add(task) (using task's quiet period)").
func (q *Queue) AddDefault(task ciqtask.Task) bool {
	qp := task.QuietPeriod()
	if qp <= 0 {
		qp = q.defaultQuietPeriod
	}
	return q.Add(task, qp)
}

// Cancel removes task from whichever stage holds it (spec §4.2). Returns
// true iff at least one removal happened.
func (q *Queue) Cancel(task ciqtask.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.cancelLocked(task.Key())
}

func (q *Queue) cancelLocked(key string) bool {
	if q.waiting.remove(key) {
		return true
	}
	removedBlocked := false
	if _, ok := q.blocked[key]; ok {
		delete(q.blocked, key)
		removedBlocked = true
	}
	removedBuildable := q.buildables.remove(key)
	return removedBlocked || removedBuildable
}

// Contains reports whether task occupies any stage.
func (q *Queue) Contains(task ciqtask.Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.containsLocked(task.Key())
}

func (q *Queue) containsLocked(key string) bool {
	if _, ok := q.waiting.get(key); ok {
		return true
	}
	if _, ok := q.blocked[key]; ok {
		return true
	}
	if _, ok := q.buildables.get(key); ok {
		return true
	}
	return false
}

// GetItem returns the item for task, if queued in any stage.
func (q *Queue) GetItem(task ciqtask.Task) (*Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	key := task.Key()
	if item, ok := q.waiting.get(key); ok {
		return item, true
	}
	if item, ok := q.blocked[key]; ok {
		return item, true
	}
	if item, ok := q.buildables.get(key); ok {
		return item, true
	}
	return nil, false
}

// GetItems returns a snapshot of every item across all three stages.
func (q *Queue) GetItems() []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Item, 0, q.waiting.len()+len(q.blocked)+q.buildables.len())
	out = append(out, q.waiting.items()...)
	for _, item := range q.blocked {
		out = append(out, item)
	}
	out = append(out, q.buildables.items()...)
	return out
}

// IsEmpty reports whether the queue holds no items in any stage.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.waiting.len() == 0 && len(q.blocked) == 0 && q.buildables.len() == 0
}

// GetBuildableItemsFor returns buildable items eligible to run on node:
// those the task leaves unlabelled, plus those whose label node belongs to
// (spec §4.2).
func (q *Queue) GetBuildableItemsFor(node ciqNodeLike) []*Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Item, 0)
	for _, item := range q.buildables.items() {
		label := item.Task.Label()
		if label == "" || (node != nil && node.HasLabel(label)) {
			out = append(out, item)
		}
	}
	return out
}

// Counts is a point-in-time tally of items per stage plus parked executors,
// used for status displays and the dashboard hub.
type Counts struct {
	Waiting         int
	Blocked         int
	Buildable       int
	ParkedExecutors int
}

// Snapshot returns the current per-stage counts (dashboard.SnapshotSource).
func (q *Queue) Snapshot() Counts {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Counts{
		Waiting:         q.waiting.len(),
		Blocked:         len(q.blocked),
		Buildable:       q.buildables.len(),
		ParkedExecutors: len(q.parked),
	}
}

// ciqNodeLike is the minimal node shape GetBuildableItemsFor needs, kept
// local to avoid a hard dependency from the core queue package on
// nodepool's concrete type beyond this one label check.
type ciqNodeLike interface {
	HasLabel(label string) bool
}
