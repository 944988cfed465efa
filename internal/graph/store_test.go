package graph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func testForest(t *testing.T) *Store {
	t.Helper()
	// a -> b -> c, a -> d, plus detached e
	s := NewStore()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.AddNode(Node{ID: id, Kind: KindQuestion, Content: id})
	}
	s.AddEdge(Edge{ID: "ab", Source: "a", Target: "b"})
	s.AddEdge(Edge{ID: "bc", Source: "b", Target: "c"})
	s.AddEdge(Edge{ID: "ad", Source: "a", Target: "d"})
	return s
}

func TestStoreAddIgnoresDuplicateIDs(t *testing.T) {
	s := NewStore()
	s.AddNode(Node{ID: "a", Content: "first"})
	s.AddNode(Node{ID: "a", Content: "second"})
	require.Len(t, s.Nodes(), 1)

	got, ok := s.Node("a")
	require.True(t, ok)
	require.Equal(t, "first", got.Content)

	s.AddEdge(Edge{ID: "e", Source: "a", Target: "a"})
	s.AddEdge(Edge{ID: "e", Source: "x", Target: "y"})
	require.Len(t, s.Edges(), 1)
	require.Equal(t, "a", s.Edges()[0].Source)
}

func TestStoreUpdateNodeMergesInPlace(t *testing.T) {
	s := testForest(t)
	s.UpdateNode("b", func(n *Node) {
		n.Content = "edited"
		n.Selected = true
	})

	got, ok := s.Node("b")
	require.True(t, ok)
	require.Equal(t, "edited", got.Content)
	require.True(t, got.Selected)

	// unknown id is a silent no-op
	s.UpdateNode("zz", func(n *Node) { n.Content = "boom" })
	require.Len(t, s.Nodes(), 5)
}

func TestStoreSetAllSelectable(t *testing.T) {
	s := testForest(t)
	s.SetAllSelectable(true)
	for _, n := range s.Nodes() {
		require.True(t, n.Selectable)
	}
	s.SetAllSelectable(false)
	for _, n := range s.Nodes() {
		require.False(t, n.Selectable)
	}
}

func TestStoreReachableFrom(t *testing.T) {
	s := testForest(t)

	reach := s.ReachableFrom("a")
	require.Len(t, reach, 4)
	for _, id := range []string{"a", "b", "c", "d"} {
		require.Contains(t, reach, id)
	}
	require.NotContains(t, reach, "e")

	leaf := s.ReachableFrom("c")
	require.Len(t, leaf, 1)
	require.Contains(t, leaf, "c")
}

func TestStoreChildrenOf(t *testing.T) {
	s := testForest(t)
	require.ElementsMatch(t, []string{"b", "d"}, s.ChildrenOf("a"))
	require.Empty(t, s.ChildrenOf("e"))
}

func TestStoreRemove(t *testing.T) {
	s := testForest(t)
	s.RemoveEdges(map[string]struct{}{"ab": {}, "bc": {}})
	s.RemoveNodes(map[string]struct{}{"b": {}, "c": {}})

	require.Len(t, s.Nodes(), 3)
	require.Len(t, s.Edges(), 1)
	_, ok := s.Node("b")
	require.False(t, ok)
}

func TestStoreRevisionAdvancesOnWrites(t *testing.T) {
	s := NewStore()
	_, _, rev0 := s.Snapshot()

	s.AddNode(Node{ID: "a"})
	_, _, rev1 := s.Snapshot()
	require.Greater(t, rev1, rev0)

	s.UpdateNode("a", func(n *Node) { n.Content = "x" })
	require.Greater(t, s.Rev(), rev1)
}

func TestStoreSnapshotReturnsCopies(t *testing.T) {
	s := testForest(t)
	nodes, edges, _ := s.Snapshot()
	nodes[0].Content = "mutated"
	edges[0].Source = "mutated"

	fresh, _, _ := s.Snapshot()
	require.NotEqual(t, "mutated", fresh[0].Content)
}

func TestStoreApplyPositions(t *testing.T) {
	s := testForest(t)
	s.ApplyPositions(map[string]Position{
		"a": {X: 10, Y: 20},
		"b": {X: 30, Y: 40},
	})

	a, _ := s.Node("a")
	require.Equal(t, Position{X: 10, Y: 20}, a.Position)
	b, _ := s.Node("b")
	require.Equal(t, Position{X: 30, Y: 40}, b.Position)

	// untouched nodes keep their placeholder positions
	c, _ := s.Node("c")
	require.Equal(t, Position{}, c.Position)
}

func TestStoreApplyPositionsIfRev(t *testing.T) {
	s := testForest(t)
	_, _, rev := s.Snapshot()

	// at the snapshot revision the placement lands and bumps the revision
	require.True(t, s.ApplyPositionsIfRev(map[string]Position{"a": {X: 1, Y: 2}}, rev))
	a, _ := s.Node("a")
	require.Equal(t, Position{X: 1, Y: 2}, a.Position)
	require.Greater(t, s.Rev(), rev)

	// a placement computed against the old revision is refused outright
	require.False(t, s.ApplyPositionsIfRev(map[string]Position{"a": {X: 9, Y: 9}}, rev))
	a, _ = s.Node("a")
	require.Equal(t, Position{X: 1, Y: 2}, a.Position)
}

func TestStoreClear(t *testing.T) {
	s := testForest(t)
	s.Clear()
	require.Empty(t, s.Nodes())
	require.Empty(t, s.Edges())
}
