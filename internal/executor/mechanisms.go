package executor

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/propagate"
	"github.com/vk/dpgraph/internal/sampler"
	"github.com/vk/dpgraph/internal/value"
)

// noise applies draw to every cell of the aggregate input. Inputs that are
// public or already released were not charged and pass through unchanged.
func (c *evalContext) noise(draw func(v float64) (float64, error)) (value.Value, error) {
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	if !c.InputProps["data"].Private {
		return t, nil
	}
	if c.Props.FunctionalUsage == nil {
		return nil, fmt.Errorf("mechanism has no calibrated usage")
	}
	out := make([]float64, t.NumCols())
	for j, v := range t.Vector() {
		if out[j], err = draw(v); err != nil {
			return nil, fmt.Errorf("column %q: %w", t.Names[j], err)
		}
	}
	return value.NewVector(slices.Clone(t.Names), out), nil
}

func evalLaplace(_ context.Context, c *evalContext) (value.Value, error) {
	l1 := c.InputProps["data"].L1()
	return c.noise(func(v float64) (float64, error) {
		return c.Sampler.LaplaceMechanism(v, l1, c.Props.FunctionalUsage.Epsilon)
	})
}

func evalGaussian(_ context.Context, c *evalContext) (value.Value, error) {
	l2 := c.InputProps["data"].L2()
	return c.noise(func(v float64) (float64, error) {
		u := c.Props.FunctionalUsage
		return c.Sampler.GaussianMechanism(v, l2, u.Epsilon, u.Delta)
	})
}

func evalGeometric(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Geometric)
	l1 := c.InputProps["data"].L1()
	return c.noise(func(v float64) (float64, error) {
		if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) {
			return 0, fmt.Errorf("geometric mechanism needs an integer, got %v", v)
		}
		eps := c.Props.FunctionalUsage.Epsilon
		maxTrials := sampler.DefaultMaxTrials(l1, eps)
		if o.MaxTrials != nil {
			maxTrials = *o.MaxTrials
		}
		out, err := c.Sampler.GeometricMechanism(int64(v), l1, eps, maxTrials, o.Lower, o.Upper)
		return float64(out), err
	})
}

// evalExponential selects the candidate closest to the alpha-quantile of
// the only column. Over public data the best candidate is returned exactly.
func evalExponential(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Exponential)
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	if t.NumCols() != 1 {
		return nil, fmt.Errorf("expected one column, got %d", t.NumCols())
	}
	sorted := slices.Clone(t.Cols[0])
	slices.Sort(sorted)
	utilities := quantileUtilities(sorted, o.Candidates, o.Alpha)

	data := c.InputProps["data"]
	var idx int
	if data.Private {
		if c.Props.FunctionalUsage == nil {
			return nil, fmt.Errorf("mechanism has no calibrated usage")
		}
		sens := propagate.UtilitySensitivity(c.Rule, o.Alpha, data.CStability)
		if idx, err = c.Sampler.ExponentialMechanism(c.Props.FunctionalUsage.Epsilon, sens, utilities); err != nil {
			return nil, err
		}
	} else {
		for i, u := range utilities {
			if u > utilities[idx] {
				idx = i
			}
		}
	}
	return value.NewVector(slices.Clone(t.Names), []float64{o.Candidates[idx]}), nil
}

// quantileUtilities scores each candidate x as -|#{v < x} - alpha*n| over
// sorted data.
func quantileUtilities(sorted, candidates []float64, alpha float64) []float64 {
	n := float64(len(sorted))
	out := make([]float64, len(candidates))
	for i, x := range candidates {
		below := float64(sort.SearchFloat64s(sorted, x))
		out[i] = -math.Abs(below - alpha*n)
	}
	return out
}
