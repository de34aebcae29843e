// Package environment implements the queue's narrow view of the global
// controller (spec Design Notes: "treat as an environment handle passed
// into queue construction, not a global... {isQuietingDown, agentCount,
// resolveTask}"). The quiescing flag is mirrored from Redis so it is a
// cluster-wide signal rather than a single-process flag, grounded on the
// teacher's Redis-backed leader election state.
package environment

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/queueforge/ciqueue/internal/ciqtask"
	"github.com/queueforge/ciqueue/internal/observability"
)

const quiesceKey = "ciqueue:quiescing"

// TaskResolver looks up a task by its persisted name. The task registry
// itself is out of the queue's scope (spec §1); this is the narrow seam
// the queue uses to reach it.
type TaskResolver interface {
	ResolveTask(name string) (ciqtask.Task, bool)
}

// Handle is the queue's environment handle.
type Handle struct {
	client       *redis.Client
	resolver     TaskResolver
	nodeCounter  func() int
	pollInterval time.Duration

	mu        sync.RWMutex
	quiescing bool
}

// New constructs a Handle against a Redis coordinator. nodeCounter reports
// the current non-controller node count for the "large deployment" rule
// (spec §4.5 S3/S4).
func New(client *redis.Client, resolver TaskResolver, nodeCounter func() int, pollInterval time.Duration) *Handle {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Handle{
		client:       client,
		resolver:     resolver,
		nodeCounter:  nodeCounter,
		pollInterval: pollInterval,
	}
}

// Start launches the background poll loop that refreshes the cached
// quiescing flag from Redis until ctx is cancelled.
func (h *Handle) Start(ctx context.Context) {
	h.refresh(ctx)
	go h.loop(ctx)
}

func (h *Handle) loop(ctx context.Context) {
	ticker := time.NewTicker(h.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.refresh(ctx)
		}
	}
}

func (h *Handle) refresh(ctx context.Context) {
	start := time.Now()
	val, err := h.client.Get(ctx, quiesceKey).Result()
	observability.RedisLatency.Observe(time.Since(start).Seconds())

	if err != nil && err != redis.Nil {
		log.Printf("environment: failed to refresh quiescing flag: %v", err)
		return
	}

	h.mu.Lock()
	h.quiescing = err == nil && val == "1"
	h.mu.Unlock()
}

// IsQuietingDown reports the last-known cluster-wide quiesce state (spec
// §4.5 S1). Non-blocking: returns the cached value, never round-trips to
// Redis inline, since choose() runs under the queue monitor.
func (h *Handle) IsQuietingDown() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.quiescing
}

// SetQuietingDown flips the cluster-wide quiesce flag.
func (h *Handle) SetQuietingDown(ctx context.Context, quiescing bool) error {
	val := "0"
	if quiescing {
		val = "1"
	}
	start := time.Now()
	err := h.client.Set(ctx, quiesceKey, val, 0).Err()
	observability.RedisLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return err
	}
	h.mu.Lock()
	h.quiescing = quiescing
	h.mu.Unlock()
	return nil
}

// AgentCount reports the number of non-controller nodes known to the pool.
func (h *Handle) AgentCount() int {
	if h.nodeCounter == nil {
		return 0
	}
	return h.nodeCounter()
}

// ResolveTask looks up a task by its persisted name (spec §4.8 load path).
func (h *Handle) ResolveTask(name string) (ciqtask.Task, bool) {
	if h.resolver == nil {
		return nil, false
	}
	return h.resolver.ResolveTask(name)
}
