// Package validator certifies an analysis before anything is executed.
//
// Validation runs in four steps: the privacy definition, the catalog check
// of every component (kind, arguments, options), the graph check (dangling
// references, cycles) and topological propagation of Properties followed by
// privacy accounting. It is pure: the analysis is never mutated and the same
// analysis always yields the same report. A failed validation returns a
// dperr.List and no report.
package validator

import (
	"context"
	"errors"
	"fmt"

	"github.com/vk/dpgraph/internal/analysis"
	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/propagate"
	"github.com/vk/dpgraph/internal/properties"
)

// Report is the outcome of a successful validation.
type Report struct {
	// Properties holds exactly one entry per node.
	Properties map[nodeid.ID]*properties.Properties
	// Options holds the decoded options of every node.
	Options map[nodeid.ID]any
	// Order is the deterministic topological evaluation order.
	Order []nodeid.ID
	// Charges lists every mechanism that consumes budget, in Order.
	Charges []privacy.Charge
	// Usage is the composed usage of all charges.
	Usage privacy.Usage
}

// Validator checks analyses against a catalog.
type Validator struct {
	catalog *catalog.Catalog
}

// New returns a validator for cat. It fails when the catalog and the Go
// option structs or propagation rules disagree.
func New(ctx context.Context, cat *catalog.Catalog) (*Validator, error) {
	if err := cat.CheckParity(ctx, options.Types()); err != nil {
		return nil, err
	}
	var errs []error
	for _, kind := range cat.Kinds() {
		if _, ok := propagate.Lookup(kind); !ok {
			errs = append(errs, fmt.Errorf("component '%s': no propagation rule", kind))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Validator{catalog: cat}, nil
}

// Validate certifies a against budget. A nil budget falls back to the
// analysis budget; when both are nil the composed usage is computed but not
// compared.
func (v *Validator) Validate(ctx context.Context, a *analysis.Analysis, budget *privacy.Usage) (*Report, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Validating analysis.", "nodes", len(a.Components))

	if err := a.Definition.Validate(); err != nil {
		return nil, asList(err)
	}
	rule, err := privacy.LookupNeighboring(a.Definition.Neighboring)
	if err != nil {
		return nil, asList(err)
	}
	if budget == nil {
		budget = a.Budget
	}

	opts, errs := v.checkComponents(a)
	g, err := a.Graph()
	if err != nil {
		errs = append(errs, asList(err)...)
	}
	if len(errs) > 0 {
		return nil, errs
	}
	order, err := g.TopologicalOrder()
	if err != nil {
		return nil, dperr.List{dperr.Graph(dperr.KindCycle, err.Error())}
	}

	props := make(map[nodeid.ID]*properties.Properties, len(order))
	failed := make(map[nodeid.ID]bool)
	for _, id := range order {
		comp := a.Components[id]
		manifest, _ := v.catalog.Lookup(comp.Kind)

		inputs := make(map[string]*properties.Properties, len(comp.Arguments))
		skip := false
		for _, name := range comp.SortedArguments() {
			ref := comp.Arguments[name]
			if failed[ref] {
				skip = true
				break
			}
			in := props[ref]
			if want := manifest.Arguments[name].Type; !want.Accepts(in.Shape) {
				errs = append(errs, dperr.Type(dperr.KindTypeMismatch, id.String(),
					"argument '%s' expects %s, but node %s produces %s", name, want, ref, in.Shape))
				skip = true
				break
			}
			inputs[name] = in
		}
		if skip {
			failed[id] = true
			continue
		}

		propagateFn, _ := propagate.Lookup(comp.Kind)
		p, err := propagateFn(&propagate.Context{
			NodeID:      id.String(),
			Kind:        comp.Kind,
			Options:     opts[id],
			Inputs:      inputs,
			Definition:  a.Definition,
			Neighboring: rule,
		})
		if err != nil {
			logger.Debug("Propagation failed.", "node", id, "error", err)
			errs = append(errs, asList(err)...)
			failed[id] = true
			continue
		}
		props[id] = p
		logger.Debug("Node propagated.", "node", id, "kind", comp.Kind, "private", p.Private)
	}

	for _, id := range a.ReleaseIDs() {
		if p, ok := props[id]; ok && p.Private {
			errs = append(errs, dperr.Privacy(dperr.KindUnprotectedRelease,
				"release point exposes private data without a mechanism", id.String()))
		}
	}
	if len(errs) > 0 {
		return nil, errs
	}

	var charges []privacy.Charge
	for _, id := range order {
		if p := props[id]; p.Usage != nil {
			charges = append(charges, privacy.Charge{NodeID: id.String(), Usage: *p.Usage, Lineage: p.Lineage})
		}
	}
	accountant := privacy.NewAccountant(a.Definition)
	usage := accountant.Total(charges)
	if budget != nil {
		if usage, err = accountant.Check(charges, *budget); err != nil {
			logger.Info("Analysis exceeds its budget.", "usage", usage.String(), "budget", budget.String())
			return nil, asList(err)
		}
	}

	logger.Info("Analysis validated.", "nodes", len(order), "mechanisms", len(charges), "usage", usage.String())
	return &Report{
		Properties: props,
		Options:    opts,
		Order:      order,
		Charges:    charges,
		Usage:      usage,
	}, nil
}

// checkComponents checks every component against its manifest and decodes
// its options.
func (v *Validator) checkComponents(a *analysis.Analysis) (map[nodeid.ID]any, dperr.List) {
	opts := make(map[nodeid.ID]any, len(a.Components))
	var errs dperr.List
	for _, id := range a.IDs() {
		comp := a.Components[id]
		manifest, ok := v.catalog.Lookup(comp.Kind)
		if !ok {
			errs = append(errs, dperr.Type(dperr.KindUnknownComponent, id.String(),
				"unknown component kind '%s'", comp.Kind))
			continue
		}
		for _, name := range manifest.SortedArguments() {
			if _, ok := comp.Arguments[name]; !ok {
				errs = append(errs, dperr.Type(dperr.KindMissingArgument, id.String(),
					"component '%s' requires argument '%s'", comp.Kind, name))
			}
		}
		for _, name := range comp.SortedArguments() {
			if _, ok := manifest.Arguments[name]; !ok {
				errs = append(errs, dperr.Type(dperr.KindUnexpectedArgument, id.String(),
					"component '%s' has no argument '%s'", comp.Kind, name))
			}
		}

		obj, optErrs := manifest.ResolveOptions(id.String(), comp.Options)
		if len(optErrs) > 0 {
			errs = append(errs, optErrs...)
			continue
		}
		decoded, err := options.Decode(comp.Kind, obj)
		if err != nil {
			errs = append(errs, dperr.Type(dperr.KindTypeMismatch, id.String(), "%v", err))
			continue
		}
		opts[id] = decoded
	}
	return opts, errs
}

// asList flattens err into a dperr.List.
func asList(err error) dperr.List {
	var l dperr.List
	if errors.As(err, &l) {
		return l
	}
	return dperr.List{err}
}
