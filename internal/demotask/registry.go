// Package demotask is a minimal in-memory task registry and ciqtask.Task
// implementation, standing in for the real build-definition store the
// queue's spec deliberately leaves out of scope. It exists so cmd/ciqueued
// has something concrete to enqueue and to resolve persisted task names
// back into live tasks on restart (spec §4.8 load path).
package demotask

import (
	"fmt"
	"sync"
	"time"

	"github.com/queueforge/ciqueue/internal/ciqtask"
)

// Task is a simple, JSON-friendly ciqtask.Task implementation backed by a
// fixed set of fields rather than a full build-definition graph.
type Task struct {
	name        string
	displayName string
	label       string
	lastBuiltOn string
	resources   []string
	duration    time.Duration
	quietPeriod time.Duration

	mu      sync.Mutex
	blocked bool
	reason  string
}

// New constructs a Task. label may be empty; lastBuiltOn starts empty and is
// set later with SetLastBuiltOn.
func New(name, label string, resources []string, duration, quietPeriod time.Duration) *Task {
	return &Task{
		name:        name,
		displayName: name,
		label:       label,
		resources:   resources,
		duration:    duration,
		quietPeriod: quietPeriod,
	}
}

func (t *Task) Key() string             { return t.name }
func (t *Task) Name() string            { return t.name }
func (t *Task) FullDisplayName() string { return t.displayName }
func (t *Task) Label() string           { return t.label }
func (t *Task) LastBuiltOn() string     { return t.lastBuiltOn }
func (t *Task) ResourceList() []string  { return t.resources }
func (t *Task) EstimatedDuration() time.Duration { return t.duration }
func (t *Task) QuietPeriod() time.Duration       { return t.quietPeriod }

// SetLastBuiltOn records the node a completed build ran on, feeding the
// affinity rule (spec §4.5 S3).
func (t *Task) SetLastBuiltOn(node string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastBuiltOn = node
}

// SetBuildBlocked marks the task as self-blocked (e.g. an in-progress build
// of the same project holding the slot) independent of resource
// contention.
func (t *Task) SetBuildBlocked(blocked bool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.blocked = blocked
	t.reason = reason
}

func (t *Task) IsBuildBlocked() (bool, string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blocked, t.reason
}

// Registry is a mutex-guarded, name-keyed set of known tasks, used both to
// hand the demo HTTP endpoint somewhere to create/look up tasks and as the
// environment.TaskResolver the persistence shim needs on load.
type Registry struct {
	mu    sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tasks: make(map[string]*Task)}
}

// Define registers a task, replacing any existing one with the same name.
func (r *Registry) Define(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.name] = t
}

// ResolveTask implements environment.TaskResolver / queue.TaskResolver.
func (r *Registry) ResolveTask(name string) (ciqtask.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// Get returns the concrete *Task by name, for callers that need to mutate
// it (e.g. SetLastBuiltOn after a dispatch completes).
func (r *Registry) Get(name string) (*Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[name]
	return t, ok
}

// List returns every defined task name, sorted by nothing in particular.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		out = append(out, name)
	}
	return out
}

func (r *Registry) String() string {
	return fmt.Sprintf("demotask.Registry{%d tasks}", len(r.tasks))
}
