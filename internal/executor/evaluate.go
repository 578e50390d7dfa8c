package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/vk/dpgraph/internal/datasource"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/properties"
	"github.com/vk/dpgraph/internal/sampler"
	"github.com/vk/dpgraph/internal/value"
)

// evalContext is everything an evaluator may look at for one node.
type evalContext struct {
	NodeID string
	Kind   string
	// Options are the decoded options, nil for kinds without options.
	Options any
	// Props are the certified properties of the node itself.
	Props      *properties.Properties
	Inputs     map[string]value.Value
	InputProps map[string]*properties.Properties
	Rule       privacy.NeighboringRule
	// Sampler is forked for this node, so draws do not depend on
	// scheduling order under a seeded source.
	Sampler *sampler.Sampler
	Sources *datasource.Registry
}

func (c *evalContext) table(name string) (*value.Table, error) {
	return value.AsTable(c.Inputs[name])
}

// evaluator computes the value of one node from its inputs.
type evaluator func(ctx context.Context, c *evalContext) (value.Value, error)

var evaluators = map[string]evaluator{
	"literal":     evalLiteral,
	"datasource":  evalDatasource,
	"clamp":       evalClamp,
	"impute":      evalImpute,
	"resize":      evalResize,
	"partition":   evalPartition,
	"index":       evalIndex,
	"count":       evalCount,
	"sum":         evalSum,
	"mean":        evalMean,
	"variance":    evalVariance,
	"quantile":    evalQuantile,
	"add":         evalArithmetic(func(a, b float64) (float64, error) { return a + b, nil }),
	"subtract":    evalArithmetic(func(a, b float64) (float64, error) { return a - b, nil }),
	"multiply":    evalArithmetic(func(a, b float64) (float64, error) { return a * b, nil }),
	"divide":      evalArithmetic(divide),
	"laplace":     evalLaplace,
	"gaussian":    evalGaussian,
	"geometric":   evalGeometric,
	"exponential": evalExponential,
}

// Kinds returns every kind with an evaluator, in lexical order.
func Kinds() []string {
	kinds := make([]string, 0, len(evaluators))
	for k := range evaluators {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// evaluate runs the evaluator of id. Every failure is returned as an
// EvaluationError tagged with id.
func (e *Executor) evaluate(ctx context.Context, id nodeid.ID) (value.Value, error) {
	comp := e.analysis.Components[id]
	c := &evalContext{
		NodeID:     id.String(),
		Kind:       comp.Kind,
		Options:    e.report.Options[id],
		Props:      e.report.Properties[id],
		Inputs:     make(map[string]value.Value, len(comp.Arguments)),
		InputProps: make(map[string]*properties.Properties, len(comp.Arguments)),
		Rule:       e.rule,
		Sampler:    e.sampler.Fork(id.String()),
		Sources:    e.sources,
	}
	for name, ref := range comp.Arguments {
		v, err := e.store.GetValue(ctx, ref)
		if err != nil {
			return nil, dperr.Evaluation(c.NodeID, err)
		}
		c.Inputs[name] = v
		c.InputProps[name] = e.report.Properties[ref]
	}

	v, err := evaluators[comp.Kind](ctx, c)
	if err != nil {
		var ee *dperr.EvaluationError
		if errors.As(err, &ee) {
			return nil, err
		}
		return nil, dperr.Evaluation(c.NodeID, err)
	}
	return v, nil
}

func errUpstream(id nodeid.ID) error {
	return fmt.Errorf("skipped because node %s failed", id)
}
