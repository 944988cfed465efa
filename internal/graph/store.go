package graph

import "sync"

// Store holds the authoritative (nodes, edges) pair for the canvas and
// provides atomic update operations. Transform callbacks always observe the
// latest committed value, so overlapping asynchronous operations cannot lose
// updates by closing over stale snapshots.
//
// All operations are synchronous and local. An id that is not present is a
// silent no-op, tolerating races between async completions and user-driven
// deletions.
type Store struct {
	mu    sync.Mutex
	nodes []Node
	edges []Edge
	rev   uint64
}

func NewStore() *Store {
	return &Store{}
}

// SetNodes applies a pure transform over the current node collection.
func (s *Store) SetNodes(transform func([]Node) []Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = transform(s.nodes)
	s.rev++
}

// SetEdges applies a pure transform over the current edge collection.
func (s *Store) SetEdges(transform func([]Edge) []Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges = transform(s.edges)
	s.rev++
}

// AddNode appends a node. Duplicate ids are ignored.
func (s *Store) AddNode(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.nodes {
		if s.nodes[i].ID == n.ID {
			return
		}
	}
	s.nodes = append(s.nodes, n)
	s.rev++
}

// AddEdge appends an edge. Duplicate ids are ignored.
func (s *Store) AddEdge(e Edge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.edges {
		if s.edges[i].ID == e.ID {
			return
		}
	}
	s.edges = append(s.edges, e)
	s.rev++
}

// UpdateNode merges changes into exactly one node via the callback, leaving
// all others untouched. Unknown ids are a silent no-op.
func (s *Store) UpdateNode(id string, merge func(*Node)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.nodes {
		if s.nodes[i].ID == id {
			merge(&s.nodes[i])
			s.rev++
			return
		}
	}
}

// SetAllSelectable broadcasts the selectable view-mode flag onto every node.
func (s *Store) SetAllSelectable(selectable bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.nodes {
		s.nodes[i].Selectable = selectable
	}
	s.rev++
}

// RemoveNodes removes every node whose id is in the set.
func (s *Store) RemoveNodes(ids map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.nodes[:0]
	for _, n := range s.nodes {
		if _, drop := ids[n.ID]; !drop {
			kept = append(kept, n)
		}
	}
	s.nodes = kept
	s.rev++
}

// RemoveEdges removes every edge whose id is in the set.
func (s *Store) RemoveEdges(ids map[string]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.edges[:0]
	for _, e := range s.edges {
		if _, drop := ids[e.ID]; !drop {
			kept = append(kept, e)
		}
	}
	s.edges = kept
	s.rev++
}

// Clear drops all nodes and edges.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = nil
	s.edges = nil
	s.rev++
}

// Node returns a copy of the node with the given id.
func (s *Store) Node(id string) (Node, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Nodes returns a copy of the node collection in insertion order.
func (s *Store) Nodes() []Node {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Edges returns a copy of the edge collection.
func (s *Store) Edges() []Edge {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Edge, len(s.edges))
	copy(out, s.edges)
	return out
}

// Snapshot returns consistent copies of both collections plus the revision
// they belong to.
func (s *Store) Snapshot() ([]Node, []Edge, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	nodes := make([]Node, len(s.nodes))
	copy(nodes, s.nodes)
	edges := make([]Edge, len(s.edges))
	copy(edges, s.edges)
	return nodes, edges, s.rev
}

// Rev returns the current revision. It increases on every mutation.
func (s *Store) Rev() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rev
}

// ChildrenOf returns the ids of direct children: targets of edges whose
// source is the given node.
func (s *Store) ChildrenOf(id string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.edges {
		if e.Source == id {
			out = append(out, e.Target)
		}
	}
	return out
}

// ReachableFrom computes the full descendant closure of a node id (the node
// itself included) by repeatedly following outgoing edges.
func (s *Store) ReachableFrom(id string) map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	reach := map[string]struct{}{id: {}}
	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range s.edges {
			if e.Source != cur {
				continue
			}
			if _, seen := reach[e.Target]; !seen {
				reach[e.Target] = struct{}{}
				queue = append(queue, e.Target)
			}
		}
	}
	return reach
}

// ApplyPositions overwrites node positions from the placement list. Called
// by the layout coordinator only; ids not present are skipped.
func (s *Store) ApplyPositions(placements map[string]Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyPositionsLocked(placements)
}

// ApplyPositionsIfRev applies placements only if the store is still at the
// given revision, making the staleness check and the write one atomic step.
// Returns whether the placement was applied.
func (s *Store) ApplyPositionsIfRev(placements map[string]Position, rev uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rev != rev {
		return false
	}
	s.applyPositionsLocked(placements)
	return true
}

func (s *Store) applyPositionsLocked(placements map[string]Position) {
	for i := range s.nodes {
		if p, ok := placements[s.nodes[i].ID]; ok {
			s.nodes[i].Position = p
		}
	}
	s.rev++
}
