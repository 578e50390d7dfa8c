// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the Analysis, the declared computation graph a release
// is certified and executed against.
//
// An Analysis is a table of Components keyed by node id. Each Component is
// tagged with its kind, which selects the manifest in the catalog and the
// propagation and evaluation rules; there is no per-kind Go type. Arguments
// are edges to other nodes, options are static values checked against the
// catalog.
package analysis

import (
	"errors"
	"fmt"
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/vk/dpgraph/internal/dag"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/privacy"
)

// Component is one node of the analysis.
type Component struct {
	ID        nodeid.ID
	Kind      string
	Arguments map[string]nodeid.ID
	Options   map[string]cty.Value
	Release   bool
}

// SortedArguments returns the argument names in lexical order.
func (c *Component) SortedArguments() []string {
	names := make([]string, 0, len(c.Arguments))
	for n := range c.Arguments {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Analysis is a computation graph together with the privacy definition and
// budget it must be certified under. It is never mutated after loading.
type Analysis struct {
	Definition privacy.Definition
	// Budget is nil when the analysis leaves the budget to the caller.
	Budget     *privacy.Usage
	Components map[nodeid.ID]*Component
	// BaseDir resolves relative datasource paths. It is not serialized.
	BaseDir string
}

// New returns an empty analysis under the default privacy definition.
func New() *Analysis {
	return &Analysis{
		Definition: privacy.DefaultDefinition(),
		Components: make(map[nodeid.ID]*Component),
	}
}

// Add inserts a component. Duplicate ids are a GraphError.
func (a *Analysis) Add(c *Component) error {
	if _, exists := a.Components[c.ID]; exists {
		return dperr.Graph(dperr.KindDuplicateNode,
			fmt.Sprintf("node id %q is declared more than once", c.ID), c.ID.String())
	}
	if c.Arguments == nil {
		c.Arguments = make(map[string]nodeid.ID)
	}
	if c.Options == nil {
		c.Options = make(map[string]cty.Value)
	}
	a.Components[c.ID] = c
	return nil
}

// IDs returns every node id in lexical order.
func (a *Analysis) IDs() []nodeid.ID {
	ids := make([]nodeid.ID, 0, len(a.Components))
	for id := range a.Components {
		ids = append(ids, id)
	}
	return nodeid.Sort(ids)
}

// ReleaseIDs returns the ids of release points in lexical order.
func (a *Analysis) ReleaseIDs() []nodeid.ID {
	var ids []nodeid.ID
	for _, id := range a.IDs() {
		if a.Components[id].Release {
			ids = append(ids, id)
		}
	}
	return ids
}

// Graph builds the dependency graph. Every argument becomes an edge from
// the referenced node to the consumer. Dangling references and cycles are
// GraphErrors.
func (a *Analysis) Graph() (*dag.Graph, error) {
	g := dag.New()
	for _, id := range a.IDs() {
		g.AddNode(id)
	}

	var errs dperr.List
	for _, id := range a.IDs() {
		c := a.Components[id]
		for _, name := range c.SortedArguments() {
			dep := c.Arguments[name]
			if !g.Has(dep) {
				errs = append(errs, dperr.Graph(dperr.KindDanglingReference,
					fmt.Sprintf("argument %q references unknown node %q", name, dep), id.String()))
				continue
			}
			if err := g.AddEdge(dep, id); err != nil {
				errs = append(errs, dperr.Graph(dperr.KindCycle,
					fmt.Sprintf("argument %q: %v", name, err), id.String()))
			}
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	if err := g.DetectCycles(); err != nil {
		var members []string
		var ce *dag.CycleError
		if errors.As(err, &ce) {
			members = nodeid.Strings(ce.Members())
		}
		return nil, dperr.List{dperr.Graph(dperr.KindCycle, err.Error(), members...)}
	}
	return g, nil
}
