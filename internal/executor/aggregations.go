package executor

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/value"
)

var errEmptyDataset = errors.New("empty dataset")

// aggregate applies fn to every column of the data input and returns the
// results as a one-row vector.
func (c *evalContext) aggregate(fn func(col []float64) (float64, error)) (value.Value, error) {
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	out := make([]float64, t.NumCols())
	for j, col := range t.Cols {
		if out[j], err = fn(col); err != nil {
			return nil, fmt.Errorf("column %q: %w", t.Names[j], err)
		}
	}
	return value.NewVector(slices.Clone(t.Names), out), nil
}

func evalCount(_ context.Context, c *evalContext) (value.Value, error) {
	t, err := c.table("data")
	if err != nil {
		return nil, err
	}
	return value.NewVector([]string{"count"}, []float64{float64(t.NumRows())}), nil
}

func evalSum(_ context.Context, c *evalContext) (value.Value, error) {
	return c.aggregate(func(col []float64) (float64, error) {
		return floats.Sum(col), nil
	})
}

func evalMean(_ context.Context, c *evalContext) (value.Value, error) {
	return c.aggregate(func(col []float64) (float64, error) {
		if len(col) == 0 {
			return 0, errEmptyDataset
		}
		return stat.Mean(col, nil), nil
	})
}

func evalVariance(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Variance)
	return c.aggregate(func(col []float64) (float64, error) {
		if len(col) < 2 {
			return 0, fmt.Errorf("variance needs at least 2 records, got %d", len(col))
		}
		if o.FiniteSampleCorrection {
			return stat.Variance(col, nil), nil
		}
		return stat.PopVariance(col, nil), nil
	})
}

func evalQuantile(_ context.Context, c *evalContext) (value.Value, error) {
	o := c.Options.(*options.Quantile)
	return c.aggregate(func(col []float64) (float64, error) {
		if len(col) == 0 {
			return 0, errEmptyDataset
		}
		sorted := slices.Clone(col)
		slices.Sort(sorted)
		return stat.Quantile(o.Alpha, stat.Empirical, sorted, nil), nil
	})
}
