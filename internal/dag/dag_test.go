package dag

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dpgraph/internal/nodeid"
)

func newGraph(t *testing.T, nodes []nodeid.ID, edges [][2]nodeid.ID) *Graph {
	t.Helper()
	g := New()
	for _, id := range nodes {
		g.AddNode(id)
	}
	for _, e := range edges {
		require.NoError(t, g.AddEdge(e[0], e[1]))
	}
	return g
}

func TestNew(t *testing.T) {
	g := New()
	require.NotNil(t, g)
	assert.NotNil(t, g.nodes)
	assert.Empty(t, g.nodes)
	assert.Equal(t, 0, g.Len())
}

func TestAddNode(t *testing.T) {
	g := New()

	g.AddNode("a")
	assert.Len(t, g.nodes, 1)
	nodeA, ok := g.nodes["a"]
	require.True(t, ok)
	assert.Equal(t, nodeid.ID("a"), nodeA.id)
	assert.NotNil(t, nodeA.deps)
	assert.NotNil(t, nodeA.dependents)

	g.AddNode("a") // Test idempotency
	assert.Len(t, g.nodes, 1)

	g.AddNode("b")
	assert.Equal(t, 2, g.Len())
	assert.True(t, g.Has("b"))
	assert.False(t, g.Has("c"))
}

func TestAddEdge(t *testing.T) {
	t.Run("success case", func(t *testing.T) {
		g := newGraph(t, []nodeid.ID{"a", "b"}, [][2]nodeid.ID{{"a", "b"}})

		nodeA := g.nodes["a"]
		nodeB := g.nodes["b"]

		assert.Contains(t, nodeA.dependents, nodeid.ID("b"))
		assert.Equal(t, nodeB, nodeA.dependents["b"])
		assert.Contains(t, nodeB.deps, nodeid.ID("a"))

		deps, err := g.Dependencies("b")
		require.NoError(t, err)
		assert.Equal(t, []nodeid.ID{"a"}, deps)

		dependents, err := g.Dependents("a")
		require.NoError(t, err)
		assert.Equal(t, []nodeid.ID{"b"}, dependents)
	})

	t.Run("error cases", func(t *testing.T) {
		g := newGraph(t, []nodeid.ID{"a", "b"}, nil)

		err := g.AddEdge("dne", "a")
		assert.ErrorContains(t, err, "source node not found")

		err = g.AddEdge("a", "dne")
		assert.ErrorContains(t, err, "destination node not found")

		err = g.AddEdge("a", "a")
		assert.ErrorContains(t, err, "self-referential edge")

		_, err = g.Dependencies("dne")
		assert.ErrorContains(t, err, "node not found")
		_, err = g.Dependents("dne")
		assert.ErrorContains(t, err, "node not found")
	})
}

func TestDetectCycles(t *testing.T) {
	t.Run("empty graph has no cycles", func(t *testing.T) {
		assert.NoError(t, New().DetectCycles())
	})

	t.Run("valid dag has no cycles", func(t *testing.T) {
		g := newGraph(t,
			[]nodeid.ID{"a", "b", "c", "d"},
			[][2]nodeid.ID{{"a", "b"}, {"b", "c"}, {"a", "c"}, {"c", "d"}},
		)
		assert.NoError(t, g.DetectCycles())
	})

	t.Run("simple direct cycle is detected", func(t *testing.T) {
		g := newGraph(t, []nodeid.ID{"a", "b"}, [][2]nodeid.ID{{"a", "b"}, {"b", "a"}})
		err := g.DetectCycles()
		require.Error(t, err)

		var cycleErr *CycleError
		require.True(t, errors.As(err, &cycleErr))
		assert.Equal(t, []nodeid.ID{"a", "b", "a"}, cycleErr.Path)
		assert.Equal(t, []nodeid.ID{"a", "b"}, cycleErr.Members())
		assert.EqualError(t, err, "cycle detected: a -> b -> a")
	})

	t.Run("cycle in a disjoint component is detected", func(t *testing.T) {
		g := newGraph(t,
			[]nodeid.ID{"a", "b", "x", "y", "z"},
			[][2]nodeid.ID{{"a", "b"}, {"x", "y"}, {"y", "z"}, {"z", "y"}},
		)
		var cycleErr *CycleError
		require.True(t, errors.As(g.DetectCycles(), &cycleErr))
		assert.Equal(t, []nodeid.ID{"y", "z"}, cycleErr.Members())
	})
}

func TestTopologicalOrder(t *testing.T) {
	t.Run("diamond is ordered deterministically", func(t *testing.T) {
		g := newGraph(t,
			[]nodeid.ID{"src", "left", "right", "sink"},
			[][2]nodeid.ID{{"src", "right"}, {"src", "left"}, {"left", "sink"}, {"right", "sink"}},
		)
		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		assert.Equal(t, []nodeid.ID{"src", "left", "right", "sink"}, order)
	})

	t.Run("every node follows its dependencies", func(t *testing.T) {
		g := newGraph(t,
			[]nodeid.ID{"e", "d", "c", "b", "a"},
			[][2]nodeid.ID{{"e", "a"}, {"d", "a"}, {"c", "d"}, {"b", "c"}},
		)
		order, err := g.TopologicalOrder()
		require.NoError(t, err)
		require.Len(t, order, 5)

		pos := make(map[nodeid.ID]int)
		for i, id := range order {
			pos[id] = i
		}
		assert.Less(t, pos["e"], pos["a"])
		assert.Less(t, pos["d"], pos["a"])
		assert.Less(t, pos["c"], pos["d"])
		assert.Less(t, pos["b"], pos["c"])
	})

	t.Run("cycle is reported", func(t *testing.T) {
		g := newGraph(t, []nodeid.ID{"a", "b", "c"}, [][2]nodeid.ID{{"a", "b"}, {"b", "c"}, {"c", "b"}})
		_, err := g.TopologicalOrder()
		assert.ErrorContains(t, err, "cycle detected")
	})
}

func TestDescendants(t *testing.T) {
	g := newGraph(t,
		[]nodeid.ID{"a", "b", "c", "d"},
		[][2]nodeid.ID{{"a", "b"}, {"b", "c"}, {"a", "c"}},
	)
	assert.Equal(t, []nodeid.ID{"b", "c"}, g.Descendants("a"))
	assert.Empty(t, g.Descendants("d"))
	assert.Nil(t, g.Descendants("missing"))
}
