package queue

import "container/list"

// waitingSet is the ordered set of WaitingItems, sorted by (DueAt, ID) per
// spec §3. container/list plus a key index gives us the same insert-in-
// sorted-position/front-peek/front-pop shape the spec calls for without
// reaching for a third-party priority-queue library: none of the example
// repos' dependencies offer an ordered-set primitive, and the queue's
// ordering key changes on every Add-triggered due-date pull-in (spec's
// "explicit remove-then-reinsert" Open Question resolution), which a heap
// makes awkward to do in place.
type waitingSet struct {
	order *list.List // of *Item, ascending (DueAt, ID)
	byKey map[string]*list.Element
}

func newWaitingSet() *waitingSet {
	return &waitingSet{
		order: list.New(),
		byKey: make(map[string]*list.Element),
	}
}

func less(a, b *Item) bool {
	if !a.DueAt.Equal(b.DueAt) {
		return a.DueAt.Before(b.DueAt)
	}
	return a.ID < b.ID
}

// insert adds item, preserving sorted order.
func (w *waitingSet) insert(item *Item) {
	for e := w.order.Back(); e != nil; e = e.Prev() {
		if less(e.Value.(*Item), item) {
			w.byKey[item.Task.Key()] = w.order.InsertAfter(item, e)
			return
		}
	}
	w.byKey[item.Task.Key()] = w.order.PushFront(item)
}

// get returns the waiting item for key, if present.
func (w *waitingSet) get(key string) (*Item, bool) {
	e, ok := w.byKey[key]
	if !ok {
		return nil, false
	}
	return e.Value.(*Item), true
}

// remove removes the waiting item for key, if present.
func (w *waitingSet) remove(key string) bool {
	e, ok := w.byKey[key]
	if !ok {
		return false
	}
	w.order.Remove(e)
	delete(w.byKey, key)
	return true
}

// reinsert removes and re-inserts item (same identity, new DueAt) to
// restore sorted-set ordering, per the spec's explicit guidance.
func (w *waitingSet) reinsert(item *Item) {
	w.remove(item.Task.Key())
	w.insert(item)
}

// front returns the earliest-due item without removing it, or nil if empty.
func (w *waitingSet) front() *Item {
	e := w.order.Front()
	if e == nil {
		return nil
	}
	return e.Value.(*Item)
}

// popFront removes and returns the earliest-due item, or nil if empty.
func (w *waitingSet) popFront() *Item {
	e := w.order.Front()
	if e == nil {
		return nil
	}
	item := e.Value.(*Item)
	w.order.Remove(e)
	delete(w.byKey, item.Task.Key())
	return item
}

func (w *waitingSet) len() int {
	return w.order.Len()
}

func (w *waitingSet) items() []*Item {
	out := make([]*Item, 0, w.order.Len())
	for e := w.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Item))
	}
	return out
}
