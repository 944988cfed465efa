package layout

import (
	"context"
	"math"

	"github.com/branchcanvas/engine/internal/graph"
)

// Force is a small force-directed collaborator: spring attraction along
// edges, pairwise repulsion, fixed iteration count. Initial positions are
// derived from node order, not randomness, so the result is deterministic
// and repeat runs on an unchanged graph agree exactly.
type Force struct {
	Iterations int
}

var _ Layouter = Force{}

func (f Force) Layout(ctx context.Context, nodes []graph.Node, edges []graph.Edge, opts Options) (map[string]graph.Position, error) {
	opts = opts.withDefaults()
	iters := f.Iterations
	if iters <= 0 {
		iters = 120
	}

	n := len(nodes)
	pos := make([]graph.Position, n)
	index := make(map[string]int, n)
	for i, node := range nodes {
		index[node.ID] = i
		// seed on a circle, radius grows with node count
		angle := 2 * math.Pi * float64(i) / math.Max(float64(n), 1)
		r := opts.NodeSpacing * math.Max(float64(n)/4, 1)
		pos[i] = graph.Position{X: r * math.Cos(angle), Y: r * math.Sin(angle)}
	}

	type pair struct{ a, b int }
	var springs []pair
	for _, e := range edges {
		ai, aok := index[e.Source]
		bi, bok := index[e.Target]
		if aok && bok {
			springs = append(springs, pair{ai, bi})
		}
	}

	rest := opts.LayerSpacing
	repulse := rest * rest
	for it := 0; it < iters; it++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		disp := make([]graph.Position, n)

		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				dx := pos[i].X - pos[j].X
				dy := pos[i].Y - pos[j].Y
				d2 := dx*dx + dy*dy
				if d2 < 0.01 {
					// coincident seeds push apart along x
					dx, dy, d2 = 1, 0, 1
				}
				f := repulse / d2
				d := math.Sqrt(d2)
				disp[i].X += dx / d * f
				disp[i].Y += dy / d * f
				disp[j].X -= dx / d * f
				disp[j].Y -= dy / d * f
			}
		}

		for _, s := range springs {
			dx := pos[s.b].X - pos[s.a].X
			dy := pos[s.b].Y - pos[s.a].Y
			d := math.Hypot(dx, dy)
			if d < 0.01 {
				continue
			}
			f := (d - rest) * 0.1
			disp[s.a].X += dx / d * f
			disp[s.a].Y += dy / d * f
			disp[s.b].X -= dx / d * f
			disp[s.b].Y -= dy / d * f
		}

		cool := 1 - float64(it)/float64(iters)
		limit := opts.NodeSpacing * cool
		for i := 0; i < n; i++ {
			d := math.Hypot(disp[i].X, disp[i].Y)
			if d > limit && d > 0 {
				disp[i].X = disp[i].X / d * limit
				disp[i].Y = disp[i].Y / d * limit
			}
			pos[i].X += disp[i].X
			pos[i].Y += disp[i].Y
		}
	}

	out := make(map[string]graph.Position, n)
	for id, i := range index {
		out[id] = graph.Position{X: round2(pos[i].X), Y: round2(pos[i].Y)}
	}
	return out, nil
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }

// Select dispatches to the collaborator matching the requested algorithm.
type Select struct {
	Layered Layered
	Force   Force
}

var _ Layouter = Select{}

func (s Select) Layout(ctx context.Context, nodes []graph.Node, edges []graph.Edge, opts Options) (map[string]graph.Position, error) {
	if opts.Algorithm == AlgorithmForce {
		return s.Force.Layout(ctx, nodes, edges, opts)
	}
	return s.Layered.Layout(ctx, nodes, edges, opts)
}
