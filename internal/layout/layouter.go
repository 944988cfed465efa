// Package layout assigns 2D positions to the canvas graph. The algorithm is
// a collaborator behind the Layouter interface; the coordinator only cares
// that it is deterministic, so re-running it on an unchanged graph yields
// identical placements.
package layout

import (
	"context"
	"sort"

	"github.com/branchcanvas/engine/internal/graph"
)

// Algorithm selects the placement strategy.
type Algorithm string

const (
	AlgorithmLayered Algorithm = "layered"
	AlgorithmForce   Algorithm = "force"
)

// Direction selects the main axis for layered placement.
type Direction string

const (
	DirectionDown  Direction = "down"
	DirectionRight Direction = "right"
)

// Options parameterize one layout run.
type Options struct {
	Algorithm    Algorithm `json:"algorithm"`
	Direction    Direction `json:"direction"`
	NodeSpacing  float64   `json:"node_spacing"`
	LayerSpacing float64   `json:"layer_spacing"`
}

// DefaultOptions is layered top-down with 80px sibling spacing and 100px
// between layers.
func DefaultOptions() Options {
	return Options{
		Algorithm:    AlgorithmLayered,
		Direction:    DirectionDown,
		NodeSpacing:  80,
		LayerSpacing: 100,
	}
}

func (o Options) withDefaults() Options {
	if o.Algorithm == "" {
		o.Algorithm = AlgorithmLayered
	}
	if o.Direction == "" {
		o.Direction = DirectionDown
	}
	if o.NodeSpacing <= 0 {
		o.NodeSpacing = 80
	}
	if o.LayerSpacing <= 0 {
		o.LayerSpacing = 100
	}
	return o
}

// Layouter computes a position for every node of a graph.
type Layouter interface {
	Layout(ctx context.Context, nodes []graph.Node, edges []graph.Edge, opts Options) (map[string]graph.Position, error)
}

// Layered is the built-in deterministic collaborator. Roots sit on rank 0;
// every other node sits one rank below its parent. Nodes within a rank keep
// a stable order (parent order first, then insertion order), which makes the
// whole placement idempotent.
type Layered struct{}

var _ Layouter = Layered{}

func (Layered) Layout(ctx context.Context, nodes []graph.Node, edges []graph.Edge, opts Options) (map[string]graph.Position, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	opts = opts.withDefaults()

	index := make(map[string]int, len(nodes))
	for i, n := range nodes {
		index[n.ID] = i
	}
	parent := make(map[string]string, len(edges))
	children := make(map[string][]string, len(edges))
	for _, e := range edges {
		if _, ok := index[e.Source]; !ok {
			continue
		}
		if _, ok := index[e.Target]; !ok {
			continue
		}
		parent[e.Target] = e.Source
		children[e.Source] = append(children[e.Source], e.Target)
	}

	// Deterministic child order regardless of edge insertion order.
	for _, c := range children {
		sort.Slice(c, func(i, j int) bool { return index[c[i]] < index[c[j]] })
	}

	// BFS from roots, roots in insertion order.
	rank := make(map[string]int, len(nodes))
	var order []string
	for _, n := range nodes {
		if _, hasParent := parent[n.ID]; !hasParent {
			rank[n.ID] = 0
			order = append(order, n.ID)
		}
	}
	for i := 0; i < len(order); i++ {
		id := order[i]
		for _, child := range children[id] {
			if _, seen := rank[child]; seen {
				continue
			}
			rank[child] = rank[id] + 1
			order = append(order, child)
		}
	}

	// Position within each rank by visit order.
	slot := map[int]int{}
	out := make(map[string]graph.Position, len(order))
	for _, id := range order {
		r := rank[id]
		i := slot[r]
		slot[r]++
		main := float64(r) * opts.LayerSpacing
		cross := float64(i) * opts.NodeSpacing
		if opts.Direction == DirectionRight {
			out[id] = graph.Position{X: main, Y: cross}
		} else {
			out[id] = graph.Position{X: cross, Y: main}
		}
	}
	return out, nil
}
