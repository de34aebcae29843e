// Package ciqtask defines the queue's view of a task: the narrow capability
// set spec'd as "consumed from tasks". The queue never constructs or owns a
// Task; it only calls these methods, many of them while holding its own
// monitor, so implementations must not block.
package ciqtask

import "time"

// Task is the handle a producer hands to the queue. Two tasks that report the
// same Key are treated as the same queue entry (spec's value-equality
// dedup, resolved per the Design Notes as a stable identity key rather than
// operator-overloaded equality).
type Task interface {
	// Key is the stable identity used for deduplication and as the map key
	// in blockedProjects/buildables.
	Key() string

	// Name is the short display name (used by the persistence shim).
	Name() string

	// FullDisplayName is used in "why" status strings.
	FullDisplayName() string

	// Label returns the assigned node label, or "" if unassigned.
	Label() string

	// LastBuiltOn returns the node name this task last ran on, or "" if
	// never built.
	LastBuiltOn() string

	// IsBuildBlocked reports whether the task itself considers the build
	// blocked (independent of resource availability), plus a reason string
	// for status display.
	IsBuildBlocked() (blocked bool, reason string)

	// ResourceList is the set of named resources this task needs to acquire
	// before it can be considered buildable.
	ResourceList() []string

	// EstimatedDuration returns the expected run time, or -1 if unknown.
	EstimatedDuration() time.Duration

	// QuietPeriod is the delay Add(task) uses when no explicit quiet period
	// is given (spec §6: "add(task) (using task's quiet period)").
	QuietPeriod() time.Duration
}
