package dag

import (
	"fmt"
	"strings"

	"github.com/vk/dpgraph/internal/nodeid"
)

// CycleError is returned by DetectCycles. Path lists the nodes on the cycle
// in traversal order, starting and ending with the same node.
type CycleError struct {
	Path []nodeid.ID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected: %s", strings.Join(nodeid.Strings(e.Path), " -> "))
}

// Members returns the distinct nodes on the cycle, sorted.
func (e *CycleError) Members() []nodeid.ID {
	seen := make(map[nodeid.ID]struct{}, len(e.Path))
	var out []nodeid.ID
	for _, id := range e.Path {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return nodeid.Sort(out)
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[nodeid.ID]*node),
	}
}

// AddNode adds a new node with the given ID to the graph. If a node with
// the same ID already exists, the function does nothing.
func (g *Graph) AddNode(id nodeid.ID) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if _, ok := g.nodes[id]; ok {
		return
	}

	g.nodes[id] = &node{
		id:         id,
		deps:       make(map[nodeid.ID]*node),
		dependents: make(map[nodeid.ID]*node),
	}
}

// Has reports whether a node with the given ID exists.
func (g *Graph) Has(id nodeid.ID) bool {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// Len returns the number of nodes in the graph.
func (g *Graph) Len() int {
	g.mutex.RLock()
	defer g.mutex.RUnlock()
	return len(g.nodes)
}

// AddEdge creates a directed edge from the `fromID` node to the `toID` node.
// This signifies that `toID` has a dependency on `fromID`. An error is returned
// if either node does not exist or if the edge would create a self-reference.
func (g *Graph) AddEdge(fromID, toID nodeid.ID) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}

	g.mutex.Lock()
	defer g.mutex.Unlock()

	fromNode, ok := g.nodes[fromID]
	if !ok {
		return fmt.Errorf("source node not found: %s", fromID)
	}

	toNode, ok := g.nodes[toID]
	if !ok {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	toNode.deps[fromID] = fromNode
	fromNode.dependents[toID] = toNode

	return nil
}

// Dependencies returns the sorted IDs of the nodes the given node depends on.
func (g *Graph) Dependencies(id nodeid.ID) ([]nodeid.ID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return keys(n.deps), nil
}

// Dependents returns the sorted IDs of the nodes that depend on the given node.
func (g *Graph) Dependents(id nodeid.ID) ([]nodeid.ID, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	n, ok := g.nodes[id]
	if !ok {
		return nil, fmt.Errorf("node not found: %s", id)
	}
	return keys(n.dependents), nil
}

// Descendants returns every node reachable from id, excluding id itself.
func (g *Graph) Descendants(id nodeid.ID) []nodeid.ID {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	start, ok := g.nodes[id]
	if !ok {
		return nil
	}
	seen := make(map[nodeid.ID]*node)
	stack := []*node{start}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for depID, dep := range n.dependents {
			if _, ok := seen[depID]; ok {
				continue
			}
			seen[depID] = dep
			stack = append(stack, dep)
		}
	}
	return keys(seen)
}

// DetectCycles checks the graph for any cycles. It returns a *CycleError
// describing the first cycle found, visiting nodes in lexical order so the
// result is stable.
func (g *Graph) DetectCycles() error {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	// Classic depth-first search with three sets of nodes:
	// permanent: nodes that have been fully visited and are not part of a cycle.
	// temporary: nodes currently in the recursion stack for the current traversal.
	// unvisited: all other nodes.
	permanent := make(map[nodeid.ID]bool)
	temporary := make(map[nodeid.ID]bool)
	var stack []nodeid.ID

	var visit func(n *node) error
	visit = func(n *node) error {
		if permanent[n.id] {
			return nil
		}
		if temporary[n.id] {
			return &CycleError{Path: cyclePath(stack, n.id)}
		}

		temporary[n.id] = true
		stack = append(stack, n.id)

		for _, depID := range keys(n.dependents) {
			if err := visit(n.dependents[depID]); err != nil {
				return err
			}
		}

		stack = stack[:len(stack)-1]
		delete(temporary, n.id)
		permanent[n.id] = true
		return nil
	}

	for _, id := range keys(g.nodes) {
		if !permanent[id] {
			if err := visit(g.nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// cyclePath extracts the closed cycle ending at id from the DFS stack.
func cyclePath(stack []nodeid.ID, id nodeid.ID) []nodeid.ID {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == id {
			path := append([]nodeid.ID(nil), stack[i:]...)
			return append(path, id)
		}
	}
	return []nodeid.ID{id, id}
}

func keys(m map[nodeid.ID]*node) []nodeid.ID {
	out := make([]nodeid.ID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	return nodeid.Sort(out)
}
