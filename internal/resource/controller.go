// Package resource implements the queue's resource controller
// prerequisite (spec §4.1): a predicate answering "can this set of
// resources be acquired right now?", with its own locking discipline so it
// can be queried safely while the queue holds its monitor.
package resource

import (
	"log"
	"sync"

	"golang.org/x/time/rate"
)

// Controller tracks which named resources are held by which activity.
type Controller struct {
	mu   sync.Mutex
	held map[string]string // resource name -> holder activity ID

	denyLogMu       sync.Mutex
	denyLogLimiters map[string]*rate.Limiter
}

// NewController returns an empty Controller.
func NewController() *Controller {
	return &Controller{
		held:            make(map[string]string),
		denyLogLimiters: make(map[string]*rate.Limiter),
	}
}

// CanAcquire reports whether every resource in the list is free or already
// held by activityID. It claims nothing; its only side effect is a
// rate-limited log line on denial. Safe to call while the caller
// holds an unrelated lock (spec: "its internal locking must be compatible
// with being queried under the queue monitor").
func (c *Controller) CanAcquire(activityID string, resources []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		if holder, ok := c.held[r]; ok && holder != activityID {
			c.logDenial(r)
			return false
		}
	}
	return true
}

// Acquire claims every resource in the list for activityID, all-or-nothing.
func (c *Controller) Acquire(activityID string, resources []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range resources {
		if holder, ok := c.held[r]; ok && holder != activityID {
			return false
		}
	}
	for _, r := range resources {
		c.held[r] = activityID
	}
	return true
}

// Release frees every resource held by activityID.
func (c *Controller) Release(activityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for r, holder := range c.held {
		if holder == activityID {
			delete(c.held, r)
		}
	}
}

// BlockingActivity returns the activity currently holding resource, or ""
// if it's free. Used for diagnostic "why" messages (spec §6).
func (c *Controller) BlockingActivity(resource string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.held[resource]
}

// logDenial logs a resource-contention denial, rate-limited per resource so
// a hot resource under contention can't flood the log — the same
// per-key-token-bucket shape as the teacher's TokenBucketLimiter, repointed
// at log volume instead of admission.
func (c *Controller) logDenial(resource string) {
	c.denyLogMu.Lock()
	limiter, ok := c.denyLogLimiters[resource]
	if !ok {
		limiter = rate.NewLimiter(1, 1)
		c.denyLogLimiters[resource] = limiter
	}
	allowed := limiter.Allow()
	c.denyLogMu.Unlock()

	if allowed {
		log.Printf("resource: %q unavailable, acquisition denied", resource)
	}
}
