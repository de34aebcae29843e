package nodepool

import "sync"

// Pool is a mutex-guarded registry of known nodes, keyed by name.
type Pool struct {
	mu    sync.RWMutex
	nodes map[string]*Node
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return &Pool{nodes: make(map[string]*Node)}
}

// Upsert adds or replaces a node.
func (p *Pool) Upsert(n *Node) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nodes[n.Name] = n
}

// Get returns the node by name, or nil if unknown.
func (p *Pool) Get(name string) *Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.nodes[name]
}

// MarkOffline flips a node's offline flag.
func (p *Pool) MarkOffline(name string, offline bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n, ok := p.nodes[name]; ok {
		n.Offline = offline
	}
}

// NonControllerCount returns how many registered nodes are not the
// controller node — the selection policy's "large deployment" input
// (spec §4.5 S3/S4: "more than 10 non-controller nodes").
func (p *Pool) NonControllerCount() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := 0
	for _, node := range p.nodes {
		if !node.IsController {
			n++
		}
	}
	return n
}

// All returns a snapshot of every registered node.
func (p *Pool) All() []*Node {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Node, 0, len(p.nodes))
	for _, n := range p.nodes {
		out = append(out, n)
	}
	return out
}
