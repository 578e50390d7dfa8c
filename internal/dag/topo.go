package dag

import (
	"github.com/vk/dpgraph/internal/nodeid"
)

// TopologicalOrder returns every node such that each node appears after all
// of its dependencies. Ties are broken lexically, so the order is fully
// determined by the graph. A cyclic graph yields a *CycleError.
func (g *Graph) TopologicalOrder() ([]nodeid.ID, error) {
	if err := g.DetectCycles(); err != nil {
		return nil, err
	}

	g.mutex.RLock()
	defer g.mutex.RUnlock()

	remaining := make(map[nodeid.ID]int, len(g.nodes))
	var ready []nodeid.ID
	for id, n := range g.nodes {
		remaining[id] = len(n.deps)
		if len(n.deps) == 0 {
			ready = append(ready, id)
		}
	}
	nodeid.Sort(ready)

	order := make([]nodeid.ID, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var unlocked []nodeid.ID
		for _, depID := range keys(g.nodes[id].dependents) {
			remaining[depID]--
			if remaining[depID] == 0 {
				unlocked = append(unlocked, depID)
			}
		}
		if len(unlocked) > 0 {
			ready = nodeid.Sort(append(ready, unlocked...))
		}
	}
	return order, nil
}
