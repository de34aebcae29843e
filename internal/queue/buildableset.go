package queue

import "container/list"

// buildableSet is the insertion-ordered mapping from Task to BuildableItem
// (spec §3: "FIFO to avoid starvation"). The map+list pairing is the
// standard Go idiom for an ordered map; no pack dependency offers one.
type buildableSet struct {
	order *list.List // of *Item, insertion order
	byKey map[string]*list.Element
}

func newBuildableSet() *buildableSet {
	return &buildableSet{
		order: list.New(),
		byKey: make(map[string]*list.Element),
	}
}

// insert appends item at the tail. A demoted-then-repromoted item re-enters
// at the tail (spec §5 ordering guarantees).
func (b *buildableSet) insert(item *Item) {
	b.byKey[item.Task.Key()] = b.order.PushBack(item)
}

func (b *buildableSet) get(key string) (*Item, bool) {
	e, ok := b.byKey[key]
	if !ok {
		return nil, false
	}
	return e.Value.(*Item), true
}

func (b *buildableSet) remove(key string) bool {
	e, ok := b.byKey[key]
	if !ok {
		return false
	}
	b.order.Remove(e)
	delete(b.byKey, key)
	return true
}

func (b *buildableSet) len() int {
	return b.order.Len()
}

func (b *buildableSet) items() []*Item {
	out := make([]*Item, 0, b.order.Len())
	for e := b.order.Front(); e != nil; e = e.Next() {
		out = append(out, e.Value.(*Item))
	}
	return out
}
