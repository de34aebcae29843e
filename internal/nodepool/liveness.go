package nodepool

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/queueforge/ciqueue/internal/observability"
)

// LivenessMonitor periodically checks for stale node heartbeats and marks
// nodes offline, mirroring coordination.AgentMonitor's staleness sweep.
type LivenessMonitor struct {
	pool      *Pool
	interval  time.Duration
	threshold time.Duration

	onStaleNode func() // nudges the queue's ScheduleMaintenance

	mu         sync.Mutex
	heartbeats map[string]time.Time
}

// NewLivenessMonitor builds a monitor over pool, sweeping every interval and
// marking a node offline once its last heartbeat exceeds threshold.
// onStaleNode, if non-nil, is invoked once per sweep that marks a node
// offline, so the queue can promptly drop parked offers on it.
func NewLivenessMonitor(pool *Pool, interval, threshold time.Duration, onStaleNode func()) *LivenessMonitor {
	return &LivenessMonitor{
		pool:        pool,
		interval:    interval,
		threshold:   threshold,
		onStaleNode: onStaleNode,
		heartbeats:  make(map[string]time.Time),
	}
}

// Heartbeat records a liveness signal for nodeName at clock time t.
func (m *LivenessMonitor) Heartbeat(nodeName string, t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.heartbeats[nodeName] = t
}

// Start launches the sweep loop until ctx is cancelled.
func (m *LivenessMonitor) Start(ctx context.Context) {
	go m.loop(ctx)
}

func (m *LivenessMonitor) loop(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *LivenessMonitor) sweep() {
	now := time.Now()
	m.mu.Lock()
	stale := make([]string, 0)
	for name, last := range m.heartbeats {
		if now.Sub(last) > m.threshold {
			stale = append(stale, name)
		}
	}
	m.mu.Unlock()

	if len(stale) == 0 {
		m.updateConnectedMetric()
		return
	}

	wentOffline := false
	for _, name := range stale {
		n := m.pool.Get(name)
		if n == nil || n.Offline {
			continue
		}
		log.Printf("LivenessMonitor: node %s heartbeat stale, marking OFFLINE", name)
		m.pool.MarkOffline(name, true)
		wentOffline = true
	}
	m.updateConnectedMetric()

	if wentOffline && m.onStaleNode != nil {
		m.onStaleNode()
	}
}

func (m *LivenessMonitor) updateConnectedMetric() {
	active := 0
	for _, n := range m.pool.All() {
		if !n.IsOffline() {
			active++
		}
	}
	observability.ConnectedNodes.Set(float64(active))
}
