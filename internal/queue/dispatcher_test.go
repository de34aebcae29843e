package queue

import (
	"context"
	"testing"
	"time"

	"github.com/queueforge/ciqueue/internal/nodepool"
	"github.com/queueforge/ciqueue/internal/queueclock"
	"github.com/queueforge/ciqueue/internal/resource"
)

func TestPopDispatchesAlreadyBuildableTask(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q, _ := newTestQueue(clock)
	node := nodepool.NewNode("agent-1", nodepool.ModeNormal, false)

	task := &stubTask{key: "proj-a"}
	q.Add(task, 0)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	got, err := q.Pop(ctx, "executor-1", node)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Key() != task.Key() {
		t.Fatalf("expected proj-a dispatched, got %v", got.Key())
	}
	if q.Contains(task) {
		t.Fatalf("expected dispatched task removed from the queue")
	}
}

func TestPopParksUntilTaskArrives(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q, _ := newTestQueue(clock)
	node := nodepool.NewNode("agent-1", nodepool.ModeNormal, false)

	resultCh := make(chan string, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	go func() {
		got, err := q.Pop(ctx, "executor-1", node)
		if err != nil {
			resultCh <- "error: " + err.Error()
			return
		}
		resultCh <- got.Key()
	}()

	// Give the executor a moment to park before enqueueing.
	time.Sleep(50 * time.Millisecond)
	q.Add(&stubTask{key: "proj-late"}, 0)

	select {
	case got := <-resultCh:
		if got != "proj-late" {
			t.Fatalf("expected proj-late dispatched, got %q", got)
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for Pop to return")
	}
}

func TestPopRejectsDoubleParkBySameExecutor(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q, _ := newTestQueue(clock)
	node := nodepool.NewNode("agent-1", nodepool.ModeNormal, false)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go q.Pop(ctx, "executor-1", node)
	time.Sleep(50 * time.Millisecond)

	_, err := q.park("executor-1", node)
	if err == nil {
		t.Fatalf("expected ErrAlreadyParked for a second concurrent park")
	}
}

// TestCleanupRequeuesAssignedItem exercises the abort-with-assignment race
// (spec §4.4 step 7) directly: an offer can end up with assigned != nil at
// the same moment its executor's context is cancelled, and cleanup must put
// the item back.
func TestCleanupRequeuesAssignedItem(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q, _ := newTestQueue(clock)
	node := nodepool.NewNode("agent-1", nodepool.ModeNormal, false)

	task := &stubTask{key: "proj-a"}
	offer, err := q.park("executor-1", node)
	if err != nil {
		t.Fatalf("park failed: %v", err)
	}
	offer.assigned = &Item{Task: task, Stage: StageBuildable}

	q.cleanup("executor-1", offer)

	if !q.Contains(task) {
		t.Fatalf("expected task requeued after abort with a pending assignment")
	}
	if _, stillParked := q.parked["executor-1"]; stillParked {
		t.Fatalf("expected executor-1 removed from the parked table")
	}
}

func TestPopInterruptedWithNothingAssignedReturnsError(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q, _ := newTestQueue(clock)
	node := nodepool.NewNode("agent-1", nodepool.ModeNormal, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := q.Pop(ctx, "executor-1", node)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatalf("expected Pop to return the cancellation error")
		}
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for Pop to unwind")
	}
}

func TestMatchSkipsNewlyBlockedBuildableItem(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	resources := resource.NewController()
	env := &stubEnv{}
	q := New(clock, resources, env, nil, time.Second)
	node := nodepool.NewNode("agent-1", nodepool.ModeNormal, false)

	task := &stubTask{key: "proj-a", resources: []string{"r1"}}
	q.Add(task, 0)
	q.RunMaintenance()
	if item, _ := q.GetItem(task); item.Stage != StageBuildable {
		t.Fatalf("expected task buildable before contention")
	}

	resources.Acquire("someone-else", []string{"r1"})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err := q.Pop(ctx, "executor-1", node)
	if err == nil {
		t.Fatalf("expected Pop to time out since the task is now contended")
	}

	item, ok := q.GetItem(task)
	if !ok || item.Stage != StageBlocked {
		t.Fatalf("expected task demoted to blocked during match, got %+v", item)
	}
}
