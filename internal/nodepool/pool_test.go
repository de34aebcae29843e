package nodepool

import "testing"

func TestPoolUpsertAndGet(t *testing.T) {
	p := NewPool()
	p.Upsert(NewNode("agent-1", ModeNormal, false, "linux"))

	n := p.Get("agent-1")
	if n == nil || !n.HasLabel("linux") {
		t.Fatalf("expected agent-1 registered with the linux label")
	}
	if p.Get("missing") != nil {
		t.Fatalf("expected nil for an unregistered node")
	}
}

func TestPoolMarkOffline(t *testing.T) {
	p := NewPool()
	p.Upsert(NewNode("agent-1", ModeNormal, false))

	p.MarkOffline("agent-1", true)
	if !p.Get("agent-1").IsOffline() {
		t.Fatalf("expected agent-1 marked offline")
	}
	p.MarkOffline("agent-1", false)
	if p.Get("agent-1").IsOffline() {
		t.Fatalf("expected agent-1 marked back online")
	}
}

func TestPoolNonControllerCount(t *testing.T) {
	p := NewPool()
	p.Upsert(NewNode("controller", ModeNormal, true))
	p.Upsert(NewNode("agent-1", ModeNormal, false))
	p.Upsert(NewNode("agent-2", ModeNormal, false))

	if got := p.NonControllerCount(); got != 2 {
		t.Fatalf("expected 2 non-controller nodes, got %d", got)
	}
}

func TestNodeNonExclusive(t *testing.T) {
	normal := NewNode("agent-1", ModeNormal, false)
	exclusive := NewNode("agent-2", ModeExclusive, false)

	if !normal.NonExclusive() {
		t.Fatalf("expected a normal-mode node to accept unlabelled tasks")
	}
	if exclusive.NonExclusive() {
		t.Fatalf("expected an exclusive-mode node to reject unlabelled tasks")
	}
}

func TestNilNodeIsOfflineAndHasNoLabels(t *testing.T) {
	var n *Node
	if !n.IsOffline() {
		t.Fatalf("expected a nil node to report offline")
	}
	if n.HasLabel("anything") {
		t.Fatalf("expected a nil node to have no labels")
	}
}
