package navmesh

import "github.com/arl/gogeo/f32/d3"

type nodeFlags uint8

const (
	nodeOpen nodeFlags = 1 << iota
	nodeClosed
	nodeParentDetached // reached this node via a raycast shortcut, not an adjacency step
)

// node is one A*/Dijkstra search state: a polygon reference plus the
// bookkeeping the search needs to reconstruct and re-prioritize a path.
type node struct {
	pos         d3.Vec3
	cost, total float32
	parent      *node
	flags       nodeFlags
	ref         PolyRef
}

// nodePool hands out and recycles search nodes keyed by PolyRef, using
// a fixed-size hash table with chained buckets (first/next index lists)
// rather than a map so a search
// over a large mesh doesn't churn the GC.
type nodePool struct {
	nodes    []node
	first    []int32
	next     []int32
	count    int32
}

func newNodePool(maxNodes, hashSize int32) *nodePool {
	p := &nodePool{
		nodes: make([]node, 0, maxNodes),
		first: make([]int32, hashSize),
		next:  make([]int32, maxNodes),
	}
	for i := range p.first {
		p.first[i] = -1
	}
	return p
}

func (p *nodePool) clear() {
	for i := range p.first {
		p.first[i] = -1
	}
	p.nodes = p.nodes[:0]
	p.count = 0
}

func hashRef(ref PolyRef) uint32 {
	a := uint64(ref)
	a += ^(a << 15)
	a ^= a >> 10
	a += a << 3
	a ^= a >> 6
	a += ^(a << 11)
	a ^= a >> 16
	return uint32(a)
}

func (p *nodePool) bucket(ref PolyRef) uint32 { return hashRef(ref) % uint32(len(p.first)) }

// node returns the existing node for ref, allocating one if needed and
// capacity remains. Returns nil if the pool is exhausted.
func (p *nodePool) node(ref PolyRef) *node {
	b := p.bucket(ref)
	for i := p.first[b]; i != -1; i = p.next[i] {
		if p.nodes[i].ref == ref {
			return &p.nodes[i]
		}
	}
	if int32(len(p.nodes)) >= int32(cap(p.nodes)) {
		return nil
	}
	idx := int32(len(p.nodes))
	p.nodes = append(p.nodes, node{ref: ref, pos: d3.NewVec3()})
	p.next[idx] = p.first[b]
	p.first[b] = idx
	return &p.nodes[idx]
}

func (p *nodePool) findNode(ref PolyRef) *node {
	for i := p.first[p.bucket(ref)]; i != -1; i = p.next[i] {
		if p.nodes[i].ref == ref {
			return &p.nodes[i]
		}
	}
	return nil
}

// nodeQueue is a binary min-heap over node.total, used as the A* open
// list. Pointers are stable because nodePool.nodes never reallocates
// past its initial capacity (capped at maxNodes).
type nodeQueue struct {
	heap []*node
}

func newNodeQueue(capacity int32) *nodeQueue {
	return &nodeQueue{heap: make([]*node, 0, capacity)}
}

func (q *nodeQueue) clear() { q.heap = q.heap[:0] }
func (q *nodeQueue) empty() bool { return len(q.heap) == 0 }
func (q *nodeQueue) top() *node  { return q.heap[0] }

func (q *nodeQueue) push(n *node) {
	q.heap = append(q.heap, n)
	q.bubbleUp(len(q.heap) - 1)
}

func (q *nodeQueue) pop() *node {
	top := q.heap[0]
	last := len(q.heap) - 1
	q.heap[0] = q.heap[last]
	q.heap = q.heap[:last]
	if len(q.heap) > 0 {
		q.trickleDown(0)
	}
	return top
}

// modify re-sorts n after its total cost changed (a cheaper path to an
// already-open node was found).
func (q *nodeQueue) modify(n *node) {
	for i, h := range q.heap {
		if h == n {
			q.bubbleUp(i)
			return
		}
	}
}

func (q *nodeQueue) bubbleUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if q.heap[parent].total <= q.heap[i].total {
			break
		}
		q.heap[parent], q.heap[i] = q.heap[i], q.heap[parent]
		i = parent
	}
}

func (q *nodeQueue) trickleDown(i int) {
	n := len(q.heap)
	for {
		left, right := 2*i+1, 2*i+2
		smallest := i
		if left < n && q.heap[left].total < q.heap[smallest].total {
			smallest = left
		}
		if right < n && q.heap[right].total < q.heap[smallest].total {
			smallest = right
		}
		if smallest == i {
			return
		}
		q.heap[i], q.heap[smallest] = q.heap[smallest], q.heap[i]
		i = smallest
	}
}
