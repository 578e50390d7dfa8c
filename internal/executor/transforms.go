package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/resize"
	"github.com/vk/dpgraph/internal/value"
)

func evalLiteral(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Literal)
	return value.NewVector(slices.Clone(c.Props.Columns), slices.Clone(o.Value)), nil
}

func evalDatasource(ctx context.Context, c *evalContext) (value.Value, error) {
	return c.Sources.Load(ctx, c.Options.(*options.Datasource))
}

func evalClamp(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Clamp)
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	return t.Map(func(col int, v float64) float64 {
		if math.IsNaN(v) {
			return v
		}
		return math.Min(math.Max(v, o.Lower[col]), o.Upper[col])
	}), nil
}

func evalImpute(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Impute)
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	return o.Imputation().Fill(c.Sampler, t)
}

func evalResize(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Resize)
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	plan, err := resize.NewPlan(o.Proportion, c.NodeID)
	if err != nil {
		return nil, err
	}
	return resize.Apply(c.Sampler, t, plan, o.NumberRows, c.Rule, o.Imputation())
}

// evalPartition splits the rows by key. Every category gets a table, empty
// when no row carries it; rows with other keys are dropped.
func evalPartition(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Partition)
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	keys, ok := t.Keys[o.By]
	if !ok {
		return nil, fmt.Errorf("table has no key column %q", o.By)
	}
	rows := make(map[string][]int, len(o.Categories))
	for _, cat := range o.Categories {
		rows[cat] = []int{}
	}
	for i, k := range keys {
		if _, ok := rows[k]; ok {
			rows[k] = append(rows[k], i)
		}
	}
	p := &value.Partitions{By: o.By, Parts: make(map[string]*value.Table, len(rows))}
	for cat, idx := range rows {
		p.Parts[cat] = t.Select(idx)
	}
	return p, nil
}

func evalIndex(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Index)
	p, ok := c.Inputs["data"].(*value.Partitions)
	if !ok {
		return nil, fmt.Errorf("expected partitions, got %T", c.Inputs["data"])
	}
	t, ok := p.Parts[o.Key]
	if !ok {
		return nil, fmt.Errorf("no partition %q", o.Key)
	}
	return t, nil
}

var errDivisionByZero = errors.New("division by zero")

func divide(a, b float64) (float64, error) {
	if b == 0 {
		return 0, errDivisionByZero
	}
	return a / b, nil
}

// evalArithmetic applies fn element-wise to two vectors. A single-column
// operand is broadcast over the other.
func evalArithmetic(fn func(a, b float64) (float64, error)) evaluator {
	return func(_ context.Context, c *evalContext) (value.Value, error) {
		left, err := c.table("left")
		if err != nil {
			return nil, err
		}
		right, err := c.table("right")
		if err != nil {
			return nil, err
		}
		if left.NumRows() != 1 || right.NumRows() != 1 {
			return nil, fmt.Errorf("operands must have exactly one row, got %d and %d", left.NumRows(), right.NumRows())
		}
		lv, rv := left.Vector(), right.Vector()
		width := max(len(lv), len(rv))
		if len(lv) != len(rv) && len(lv) != 1 && len(rv) != 1 {
			return nil, fmt.Errorf("operands have %d and %d columns", len(lv), len(rv))
		}
		out := make([]float64, width)
		for i := range out {
			if out[i], err = fn(broadcast(lv, i), broadcast(rv, i)); err != nil {
				return nil, fmt.Errorf("column %d: %w", i, err)
			}
		}
		return value.NewVector(slices.Clone(c.Props.Columns), out), nil
	}
}

func broadcast(vs []float64, i int) float64 {
	if len(vs) == 1 {
		return vs[0]
	}
	return vs[i]
}
