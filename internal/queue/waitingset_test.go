package queue

import (
	"testing"
	"time"
)

func TestWaitingSetOrdersByDueThenID(t *testing.T) {
	w := newWaitingSet()
	base := time.Unix(1000, 0)

	w.insert(&Item{Task: &stubTask{key: "b"}, DueAt: base.Add(5 * time.Second), ID: 2})
	w.insert(&Item{Task: &stubTask{key: "a"}, DueAt: base.Add(1 * time.Second), ID: 1})
	w.insert(&Item{Task: &stubTask{key: "c"}, DueAt: base.Add(5 * time.Second), ID: 3})

	got := w.items()
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d items, got %d", len(want), len(got))
	}
	for i, key := range want {
		if got[i].Task.Key() != key {
			t.Fatalf("position %d: expected %q, got %q", i, key, got[i].Task.Key())
		}
	}
}

func TestWaitingSetReinsertReordersOnDueDateChange(t *testing.T) {
	w := newWaitingSet()
	base := time.Unix(1000, 0)

	itemA := &Item{Task: &stubTask{key: "a"}, DueAt: base.Add(10 * time.Second), ID: 1}
	itemB := &Item{Task: &stubTask{key: "b"}, DueAt: base.Add(20 * time.Second), ID: 2}
	w.insert(itemA)
	w.insert(itemB)

	if front := w.front(); front.Task.Key() != "a" {
		t.Fatalf("expected a first, got %q", front.Task.Key())
	}

	itemB.DueAt = base.Add(1 * time.Second)
	w.reinsert(itemB)

	if front := w.front(); front.Task.Key() != "b" {
		t.Fatalf("expected b first after pulling its due date in, got %q", front.Task.Key())
	}
	if w.len() != 2 {
		t.Fatalf("expected reinsert to preserve set size, got %d", w.len())
	}
}

func TestWaitingSetPopFrontRemovesEarliest(t *testing.T) {
	w := newWaitingSet()
	base := time.Unix(1000, 0)
	w.insert(&Item{Task: &stubTask{key: "a"}, DueAt: base, ID: 1})
	w.insert(&Item{Task: &stubTask{key: "b"}, DueAt: base.Add(time.Second), ID: 2})

	popped := w.popFront()
	if popped.Task.Key() != "a" {
		t.Fatalf("expected a popped first, got %q", popped.Task.Key())
	}
	if w.len() != 1 {
		t.Fatalf("expected one item left, got %d", w.len())
	}
	if _, ok := w.get("a"); ok {
		t.Fatalf("expected a removed from the key index")
	}
}

func TestWaitingSetPopFrontOnEmptyReturnsNil(t *testing.T) {
	w := newWaitingSet()
	if w.popFront() != nil {
		t.Fatalf("expected nil popFront on an empty set")
	}
	if w.front() != nil {
		t.Fatalf("expected nil front on an empty set")
	}
}
