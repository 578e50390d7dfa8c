package propagate

import (
	"slices"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/properties"
)

// aggregate checks the input of an aggregation and returns the skeleton of
// its output: a one-row vector with the input's columns. Sensitivity and
// bounds are left to the caller.
func (c *Context) aggregate(needBounds, needSize bool) (data, out *properties.Properties, err error) {
	data, err = c.records()
	if err != nil {
		return nil, nil, err
	}
	if data.Nullable {
		return nil, nil, c.mismatch("%s requires data without missing values; impute or resize first", c.Kind)
	}
	if needBounds && !data.Bounded() {
		return nil, nil, c.undefined("%s sensitivity needs bounded data; clamp first", c.Kind)
	}
	if needSize && data.NumRecords == nil {
		return nil, nil, c.undefined("%s sensitivity needs a known number of records; resize first", c.Kind)
	}

	out = data.Derive(c.Kind)
	out.Shape = catalog.ShapeVector
	out.DataType = properties.Float
	out.KeyColumns = nil
	out.NumRecords = properties.Int64(1)
	out.Nullable = false
	out.Lower, out.Upper = nil, nil
	out.Sensitivity = nil
	out.CStability = 1
	out.Aggregated = data.Private
	return data, out, nil
}

// sensitivity fills out.Sensitivity with one value per column, scaled by
// the input's c-stability. Public inputs have no sensitivity.
func sensitivity(data, out *properties.Properties, perColumn func(col int) float64) {
	if !data.Private {
		return
	}
	out.Sensitivity = make([]float64, out.NumColumns())
	for i := range out.Sensitivity {
		out.Sensitivity[i] = perColumn(i) * data.CStability
	}
}

func count(c *Context) (*properties.Properties, error) {
	data, out, err := c.aggregate(false, false)
	if err != nil {
		return nil, err
	}
	out.Columns = []string{"count"}
	out.DataType = properties.Int
	if data.NumRecords != nil {
		n := float64(*data.NumRecords)
		out.Lower, out.Upper = []float64{n}, []float64{n}
	}
	sensitivity(data, out, func(int) float64 { return 1 })
	return out, nil
}

func sum(c *Context) (*properties.Properties, error) {
	data, out, err := c.aggregate(true, false)
	if err != nil {
		return nil, err
	}
	if data.NumRecords != nil {
		n := float64(*data.NumRecords)
		out.Lower, out.Upper = make([]float64, out.NumColumns()), make([]float64, out.NumColumns())
		for i := range out.Lower {
			out.Lower[i] = n * data.Lower[i]
			out.Upper[i] = n * data.Upper[i]
		}
	}
	sensitivity(data, out, func(i int) float64 {
		return c.Neighboring.SumSensitivity(data.Lower[i], data.Upper[i])
	})
	return out, nil
}

func mean(c *Context) (*properties.Properties, error) {
	data, out, err := c.aggregate(true, true)
	if err != nil {
		return nil, err
	}
	n := *data.NumRecords
	if n == 0 {
		return nil, c.undefined("mean of zero records")
	}
	out.Lower, out.Upper = slices.Clone(data.Lower), slices.Clone(data.Upper)
	sensitivity(data, out, func(i int) float64 {
		return (data.Upper[i] - data.Lower[i]) / float64(n)
	})
	return out, nil
}

func variance(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Variance)
	data, out, err := c.aggregate(true, true)
	if err != nil {
		return nil, err
	}
	n := *data.NumRecords
	if n < 2 {
		return nil, c.undefined("variance needs at least 2 records, got %d", n)
	}
	sensitivity(data, out, func(i int) float64 {
		return c.Neighboring.VarianceSensitivity(n, data.Lower[i], data.Upper[i], o.FiniteSampleCorrection)
	})
	return out, nil
}

func quantile(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Quantile)
	if !(o.Alpha >= 0 && o.Alpha <= 1) {
		return nil, c.invalidOption("alpha must lie in [0, 1], got %v", o.Alpha)
	}
	data, out, err := c.aggregate(true, false)
	if err != nil {
		return nil, err
	}
	out.Lower, out.Upper = slices.Clone(data.Lower), slices.Clone(data.Upper)
	sensitivity(data, out, func(i int) float64 {
		return data.Upper[i] - data.Lower[i]
	})
	return out, nil
}
