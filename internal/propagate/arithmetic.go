package propagate

import (
	"math"
	"slices"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/properties"
)

type op int

const (
	opAdd op = iota
	opSubtract
	opMultiply
	opDivide
)

// arithmetic returns the rule for an element-wise binary operation.
//
// Operations on public or released values are post-processing. A private
// aggregate may be shifted by a public value, or scaled by one whose bounds
// are known. Two private aggregates may be added or subtracted, and their
// sensitivities add. Everything else has no sensitivity rule.
func arithmetic(kind op) Rule {
	return func(c *Context) (*properties.Properties, error) {
		left, right := c.Input("left"), c.Input("right")
		lc, rc := left.NumColumns(), right.NumColumns()
		if lc != rc && lc != 1 && rc != 1 {
			return nil, c.mismatch("operands have %d and %d columns", lc, rc)
		}
		wide := left
		if rc > lc {
			wide = right
		}
		width := wide.NumColumns()

		out := wide.Derive(c.Kind)
		out.Shape = catalog.ShapeVector
		out.NumRecords = properties.Int64(1)
		out.Nullable = left.Nullable || right.Nullable
		out.DataType = properties.Float
		if left.DataType == properties.Int && right.DataType == properties.Int && kind != opDivide {
			out.DataType = properties.Int
		}
		out.Lower, out.Upper = interval(kind, left, right, width)
		out.Sensitivity = nil
		out.CStability = 1

		switch {
		case !left.Private && !right.Private:
			out.Private = false
			out.Aggregated = false
			out.Released = left.Released || right.Released
			out.Lineage, out.Resizes = nil, nil
			return out, nil

		case left.Private && right.Private:
			if kind != opAdd && kind != opSubtract {
				return nil, c.undefined("%s of two private values has no sensitivity rule", c.Kind)
			}
			for _, p := range []*properties.Properties{left, right} {
				if !p.Aggregated || !p.FiniteSensitivity() {
					return nil, c.undefined("operands must be aggregates with known sensitivity")
				}
			}
			if !slices.Equal(left.Resizes, right.Resizes) {
				return nil, c.undefined("operands were resized differently")
			}
			out.Sensitivity = make([]float64, width)
			for i := range out.Sensitivity {
				out.Sensitivity[i] = at(left.Sensitivity, i) + at(right.Sensitivity, i)
			}
			out.Lineage = commonLineage(left.Lineage, right.Lineage)
			out.Resizes = slices.Clone(left.Resizes)

		default:
			priv, pub := left, right
			if right.Private {
				if kind == opDivide {
					return nil, c.undefined("division by a private value has no sensitivity rule")
				}
				priv, pub = right, left
			}
			if !priv.Aggregated || !priv.FiniteSensitivity() {
				return nil, c.undefined("the private operand must be an aggregate with known sensitivity")
			}
			factors, err := c.scaleFactors(kind, pub, width)
			if err != nil {
				return nil, err
			}
			out.Sensitivity = make([]float64, width)
			for i := range out.Sensitivity {
				out.Sensitivity[i] = at(priv.Sensitivity, i) * factors[i]
			}
			out.Lineage = slices.Clone(priv.Lineage)
			out.Resizes = slices.Clone(priv.Resizes)
		}
		out.Private = true
		out.Aggregated = true
		out.Released = false
		return out, nil
	}
}

// scaleFactors returns how much the public operand can stretch the
// sensitivity of the private one, per column.
func (c *Context) scaleFactors(kind op, pub *properties.Properties, width int) ([]float64, error) {
	factors := make([]float64, width)
	if kind == opAdd || kind == opSubtract {
		for i := range factors {
			factors[i] = 1
		}
		return factors, nil
	}
	if !pub.Bounded() {
		return nil, c.undefined("%s by a public value needs its bounds to be known", c.Kind)
	}
	for i := range factors {
		lo, hi := at(pub.Lower, i), at(pub.Upper, i)
		if kind == opMultiply {
			factors[i] = math.Max(math.Abs(lo), math.Abs(hi))
			continue
		}
		if lo <= 0 && hi >= 0 {
			return nil, c.undefined("divisor may be zero")
		}
		factors[i] = 1 / math.Min(math.Abs(lo), math.Abs(hi))
	}
	return factors, nil
}

// interval computes output bounds with interval arithmetic, or nil when
// either side is unbounded or the result is unbounded.
func interval(kind op, left, right *properties.Properties, width int) (lower, upper []float64) {
	if !left.Bounded() || !right.Bounded() {
		return nil, nil
	}
	lower, upper = make([]float64, width), make([]float64, width)
	for i := 0; i < width; i++ {
		a, b := at(left.Lower, i), at(left.Upper, i)
		x, y := at(right.Lower, i), at(right.Upper, i)
		switch kind {
		case opAdd:
			lower[i], upper[i] = a+x, b+y
		case opSubtract:
			lower[i], upper[i] = a-y, b-x
		case opMultiply:
			lower[i], upper[i] = minMax(a*x, a*y, b*x, b*y)
		case opDivide:
			if x <= 0 && y >= 0 {
				return nil, nil
			}
			lower[i], upper[i] = minMax(a/x, a/y, b/x, b/y)
		}
	}
	return lower, upper
}

func minMax(vs ...float64) (lo, hi float64) {
	lo, hi = vs[0], vs[0]
	for _, v := range vs[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

// at indexes a per-column slice, broadcasting single-column operands.
func at(vs []float64, i int) float64 {
	if len(vs) == 1 {
		return vs[0]
	}
	return vs[i]
}

func commonLineage(a, b []privacy.PartitionKey) []privacy.PartitionKey {
	n := 0
	for n < len(a) && n < len(b) && a[n] == b[n] {
		n++
	}
	return slices.Clone(a[:n])
}
