package queue

import (
	"testing"
	"time"

	"github.com/queueforge/ciqueue/internal/queueclock"
)

// TestTickerPromotesDueItemsWhileAllExecutorsBusy exercises the reason
// RunMaintenance exists: a tick must move a due waiting item all the way to
// buildable even when nobody is parked to be woken.
func TestTickerPromotesDueItemsWhileAllExecutorsBusy(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q, _ := newTestQueue(clock)

	task := &stubTask{key: "proj-a"}
	q.Add(task, 0)

	ticker := NewTicker(q, 10*time.Millisecond)
	ticker.Start()
	defer ticker.Stop()

	deadline := time.After(time.Second)
	for {
		item, ok := q.GetItem(task)
		if ok && item.Stage == StageBuildable {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for the ticker to promote the due item, last stage=%+v", item)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestTickerStopBlocksUntilLoopExits(t *testing.T) {
	clock := queueclock.NewFake(time.Unix(0, 0))
	q, _ := newTestQueue(clock)

	ticker := NewTicker(q, time.Millisecond)
	ticker.Start()
	ticker.Stop()

	select {
	case <-ticker.done:
	default:
		t.Fatalf("expected ticker.done closed after Stop returns")
	}
}
