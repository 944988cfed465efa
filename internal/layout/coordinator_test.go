package layout

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/branchcanvas/engine/internal/graph"
)

// countingLayouter wraps Layered and counts runs, optionally mutating the
// store mid-run to simulate a graph change racing the placement.
type countingLayouter struct {
	runs      atomic.Int64
	midRun    func()
	delegated Layered
}

func (l *countingLayouter) Layout(ctx context.Context, nodes []graph.Node, edges []graph.Edge, opts Options) (map[string]graph.Position, error) {
	l.runs.Add(1)
	if l.midRun != nil {
		l.midRun()
	}
	return l.delegated.Layout(ctx, nodes, edges, opts)
}

func seededStore() *graph.Store {
	s := graph.NewStore()
	s.AddNode(graph.Node{ID: "root"})
	s.AddNode(graph.Node{ID: "child"})
	s.AddEdge(graph.Edge{ID: "e", Source: "root", Target: "child"})
	return s
}

func TestCoordinatorRunNowAppliesPositions(t *testing.T) {
	store := seededStore()
	c := NewCoordinator(store, Layered{}, time.Second, DefaultOptions())

	require.NoError(t, c.RunNow(context.Background(), DefaultOptions()))

	child, ok := store.Node("child")
	require.True(t, ok)
	require.Equal(t, float64(100), child.Position.Y)
}

func TestCoordinatorRunNowOverridesOptions(t *testing.T) {
	store := seededStore()
	c := NewCoordinator(store, Layered{}, time.Second, DefaultOptions())

	opts := DefaultOptions()
	opts.LayerSpacing = 300
	require.NoError(t, c.RunNow(context.Background(), opts))

	child, _ := store.Node("child")
	require.Equal(t, float64(300), child.Position.Y)
	require.Equal(t, float64(300), c.Options().LayerSpacing)
}

func TestCoordinatorDebounceCoalescesRequests(t *testing.T) {
	store := seededStore()
	lay := &countingLayouter{}
	c := NewCoordinator(store, lay, 20*time.Millisecond, DefaultOptions())

	for i := 0; i < 10; i++ {
		c.Request()
	}

	require.Eventually(t, func() bool {
		return lay.runs.Load() >= 1
	}, time.Second, 5*time.Millisecond)

	// the burst collapses into a single run
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int64(1), lay.runs.Load())
}

func TestCoordinatorSkipsSupersededPlacement(t *testing.T) {
	store := seededStore()
	lay := &countingLayouter{}
	lay.midRun = func() {
		// graph mutates while the layouter runs; its placement is stale
		lay.midRun = nil
		store.AddNode(graph.Node{ID: "late"})
	}
	c := NewCoordinator(store, lay, time.Second, DefaultOptions())

	var fits atomic.Int64
	c.OnFit(func(uint64) { fits.Add(1) })

	require.NoError(t, c.RunNow(context.Background(), DefaultOptions()))

	// stale placement dropped, no fit reported
	require.Equal(t, int64(0), fits.Load())
	child, _ := store.Node("child")
	require.Equal(t, graph.Position{}, child.Position)

	// a clean follow-up run lands
	require.NoError(t, c.RunNow(context.Background(), DefaultOptions()))
	require.Equal(t, int64(1), fits.Load())
	child, _ = store.Node("child")
	require.Equal(t, float64(100), child.Position.Y)
}

func TestCoordinatorOnFitReportsRevision(t *testing.T) {
	store := seededStore()
	c := NewCoordinator(store, Layered{}, time.Second, DefaultOptions())

	var gotRev atomic.Uint64
	c.OnFit(func(rev uint64) { gotRev.Store(rev) })

	require.NoError(t, c.RunNow(context.Background(), DefaultOptions()))
	require.Equal(t, store.Rev(), gotRev.Load())
}
