package propagate

import (
	"math"
	"slices"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/properties"
	"github.com/vk/dpgraph/internal/resize"
	"github.com/vk/dpgraph/internal/sampler"
)

// mechanism checks a noise-adding mechanism over the data input and returns
// its output skeleton. Public and released inputs pass through unchanged and
// are not charged.
func (c *Context) mechanism(declared privacy.Usage) (data, out *properties.Properties, err error) {
	data = c.Input("data")
	out = data.Derive(c.Kind)
	out.Shape = catalog.ShapeVector
	out.Sensitivity = nil
	out.Aggregated = false

	if !data.Private {
		if err := declared.Validate(c.NodeID); err != nil {
			return nil, nil, err
		}
		return data, out, nil
	}
	if !data.Aggregated {
		return nil, nil, c.undefined("%s expects an aggregate, got unaggregated records", c.Kind)
	}
	if !data.FiniteSensitivity() {
		return nil, nil, c.undefined("input sensitivity is not finite")
	}
	if data.Nullable {
		return nil, nil, c.mismatch("%s input may contain missing values", c.Kind)
	}
	if err := c.charge(data, out, declared); err != nil {
		return nil, nil, err
	}
	out.Private = false
	out.Released = true
	out.Lower, out.Upper = nil, nil
	return data, out, nil
}

// charge records the declared usage on out together with the functional
// usage noise is calibrated with.
func (c *Context) charge(data, out *properties.Properties, declared privacy.Usage) error {
	if err := c.Definition.CheckUsage(declared, c.NodeID); err != nil {
		return err
	}
	functional := resize.Functional(declared, data.Resizes)
	if err := functional.Validate(c.NodeID); err != nil {
		return c.invalidUsage("functional usage %s after resize is invalid", functional)
	}
	out.Usage = &declared
	out.FunctionalUsage = &functional
	return nil
}

func laplace(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Laplace)
	_, out, err := c.mechanism(privacy.Usage{Epsilon: o.Epsilon})
	return out, err
}

func gaussian(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Gaussian)
	if !(o.Delta > 0) {
		return nil, c.invalidUsage("the gaussian mechanism requires delta > 0, got %v", o.Delta)
	}
	_, out, err := c.mechanism(privacy.Usage{Epsilon: o.Epsilon, Delta: o.Delta})
	return out, err
}

// geometric charges the declared usage plus the mass of the censored
// tails, which is carried to the declared side through the resize lineage.
func geometric(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Geometric)
	if c.Input("data").DataType != properties.Int {
		return nil, c.mismatch("the geometric mechanism requires integer data")
	}
	if o.MaxTrials != nil && *o.MaxTrials < 1 {
		return nil, c.invalidOption("max_trials must be at least 1, got %d", *o.MaxTrials)
	}
	if o.Lower != nil && o.Upper != nil && *o.Lower > *o.Upper {
		return nil, c.invalidOption("lower %d is greater than upper %d", *o.Lower, *o.Upper)
	}

	data, out, err := c.mechanism(privacy.Usage{Epsilon: o.Epsilon, Delta: o.Delta})
	if err != nil {
		return nil, err
	}
	out.DataType = properties.Int
	if o.Lower != nil && o.Upper != nil {
		out.Lower = slices.Repeat([]float64{float64(*o.Lower)}, out.NumColumns())
		out.Upper = slices.Repeat([]float64{float64(*o.Upper)}, out.NumColumns())
	}
	if out.Usage == nil {
		return out, nil
	}

	functional := *out.FunctionalUsage
	l1 := data.L1()
	maxTrials := sampler.DefaultMaxTrials(l1, functional.Epsilon)
	if o.MaxTrials != nil {
		maxTrials = *o.MaxTrials
	}
	mass := sampler.GeometricCensorMass(l1, functional.Epsilon, maxTrials)
	if mass == 0 {
		return out, nil
	}
	if mass >= 1 {
		return nil, c.invalidUsage("max_trials %d is too small to add any noise", maxTrials)
	}
	if c.Definition.Distance == privacy.Pure {
		return nil, c.invalidUsage("max_trials %d leaves censored mass %g, which pure distance cannot absorb", maxTrials, mass)
	}
	functional.Delta += mass
	cost := resize.Cost(functional, data.Resizes)
	usage := privacy.Usage{Epsilon: out.Usage.Epsilon, Delta: cost.Delta}
	if err := usage.Validate(c.NodeID); err != nil {
		return nil, err
	}
	out.Usage = &usage
	out.FunctionalUsage = &functional
	return out, nil
}

// exponential selects a quantile among public candidates. The utility of
// candidate x is -|#{v < x} - alpha*n|.
func exponential(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Exponential)
	if len(o.Candidates) == 0 {
		return nil, c.invalidOption("candidates must not be empty")
	}
	for i, x := range o.Candidates {
		if !finite(x) {
			return nil, c.invalidOption("candidate %d is not finite", i)
		}
	}
	if !(o.Alpha >= 0 && o.Alpha <= 1) {
		return nil, c.invalidOption("alpha must lie in [0, 1], got %v", o.Alpha)
	}
	data, err := c.records()
	if err != nil {
		return nil, err
	}
	if data.NumColumns() != 1 {
		return nil, c.mismatch("the exponential mechanism selects over exactly one column, got %d", data.NumColumns())
	}
	if data.Nullable {
		return nil, c.mismatch("the exponential mechanism requires data without missing values")
	}
	declared := privacy.Usage{Epsilon: o.Epsilon}

	out := data.Derive(c.Kind)
	out.Shape = catalog.ShapeVector
	out.KeyColumns = nil
	out.NumRecords = properties.Int64(1)
	out.Sensitivity = nil
	out.CStability = 1
	lo, hi := minMax(o.Candidates...)
	out.Lower, out.Upper = []float64{lo}, []float64{hi}

	if !data.Private {
		if err := declared.Validate(c.NodeID); err != nil {
			return nil, err
		}
		return out, nil
	}
	utility := UtilitySensitivity(c.Neighboring, o.Alpha, data.CStability)
	if math.IsInf(utility, 0) || math.IsNaN(utility) {
		return nil, c.undefined("utility sensitivity is not finite")
	}
	if err := c.charge(data, out, declared); err != nil {
		return nil, err
	}
	out.Private = false
	out.Released = true
	return out, nil
}

// UtilitySensitivity is the sensitivity of the quantile utility under rule
// for data with the given c-stability.
func UtilitySensitivity(rule privacy.NeighboringRule, alpha, cStability float64) float64 {
	return rule.QuantileUtilitySensitivity(alpha) * cStability
}
