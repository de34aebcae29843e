package nodepool

import (
	"context"
	"testing"
	"time"
)

func TestLivenessSweepMarksStaleNodeOffline(t *testing.T) {
	pool := NewPool()
	pool.Upsert(NewNode("agent-1", ModeNormal, false))

	nudged := make(chan struct{}, 1)
	m := NewLivenessMonitor(pool, time.Hour, 10*time.Millisecond, func() {
		select {
		case nudged <- struct{}{}:
		default:
		}
	})
	m.Heartbeat("agent-1", time.Now().Add(-time.Hour))

	m.sweep()

	if !pool.Get("agent-1").IsOffline() {
		t.Fatalf("expected agent-1 marked offline after a stale heartbeat")
	}
	select {
	case <-nudged:
	default:
		t.Fatalf("expected onStaleNode invoked when a node goes offline")
	}
}

func TestLivenessSweepLeavesFreshNodeOnline(t *testing.T) {
	pool := NewPool()
	pool.Upsert(NewNode("agent-1", ModeNormal, false))

	m := NewLivenessMonitor(pool, time.Hour, time.Minute, nil)
	m.Heartbeat("agent-1", time.Now())
	m.sweep()

	if pool.Get("agent-1").IsOffline() {
		t.Fatalf("expected agent-1 to remain online with a fresh heartbeat")
	}
}

func TestLivenessMonitorStartStopsOnContextCancel(t *testing.T) {
	pool := NewPool()
	m := NewLivenessMonitor(pool, time.Millisecond, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	m.Start(ctx)
	cancel()
	// No assertion beyond not hanging: Start's goroutine must observe
	// ctx.Done() and return promptly.
	time.Sleep(20 * time.Millisecond)
}
