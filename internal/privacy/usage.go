// Package privacy holds privacy usages, the composition operators over
// them, the neighboring-relation dispatch table and the accountant that
// aggregates mechanism usages against a budget.
package privacy

import (
	"fmt"
	"math"

	"github.com/vk/dpgraph/internal/dperr"
)

// budgetTolerance absorbs float64 rounding when summed usages land exactly
// on the budget, e.g. 0.1 + 0.2 + 0.7.
const budgetTolerance = 1e-9

// Usage is an (epsilon, delta) privacy cost.
type Usage struct {
	Epsilon float64 `json:"epsilon" mapstructure:"epsilon"`
	Delta   float64 `json:"delta" mapstructure:"delta"`
}

func (u Usage) String() string {
	return fmt.Sprintf("(ε=%g, δ=%g)", u.Epsilon, u.Delta)
}

// Validate checks that epsilon is finite and positive and delta lies in
// [0, 1]. Failures are InvalidPrivacyUsage errors attributed to nodeIDs.
func (u Usage) Validate(nodeIDs ...string) error {
	switch {
	case math.IsNaN(u.Epsilon) || math.IsInf(u.Epsilon, 0) || u.Epsilon <= 0:
		return dperr.Privacy(dperr.KindInvalidPrivacyUsage,
			fmt.Sprintf("epsilon must be finite and positive, got %v", u.Epsilon), nodeIDs...)
	case math.IsNaN(u.Delta) || u.Delta < 0 || u.Delta > 1:
		return dperr.Privacy(dperr.KindInvalidPrivacyUsage,
			fmt.Sprintf("delta must lie in [0, 1], got %v", u.Delta), nodeIDs...)
	}
	return nil
}

// Add is the basic sequential composition of two usages.
func (u Usage) Add(o Usage) Usage {
	return Usage{Epsilon: u.Epsilon + o.Epsilon, Delta: u.Delta + o.Delta}
}

// Within reports whether u fits inside budget.
func (u Usage) Within(budget Usage) bool {
	return u.Epsilon <= budget.Epsilon*(1+budgetTolerance) &&
		u.Delta <= budget.Delta*(1+budgetTolerance)
}

// Min returns the component-wise minimum of two usages.
func Min(a, b Usage) Usage {
	return Usage{Epsilon: math.Min(a.Epsilon, b.Epsilon), Delta: math.Min(a.Delta, b.Delta)}
}

// Sequential composes usages of mechanisms run on the same data by summing
// epsilon and delta.
func Sequential(usages ...Usage) Usage {
	var total Usage
	for _, u := range usages {
		total = total.Add(u)
	}
	return total
}

// Parallel composes usages of mechanisms run on disjoint partitions by
// taking the component-wise maximum.
func Parallel(usages ...Usage) Usage {
	var total Usage
	for _, u := range usages {
		total.Epsilon = math.Max(total.Epsilon, u.Epsilon)
		total.Delta = math.Max(total.Delta, u.Delta)
	}
	return total
}

// GroupDeltaFactor returns sum_{i=0}^{c-1} e^{i*epsilon}, the factor by
// which delta grows when neighbors differ in c records.
func GroupDeltaFactor(epsilon float64, c int) float64 {
	var f float64
	for i := 0; i < c; i++ {
		f += math.Exp(float64(i) * epsilon)
	}
	return f
}

// Group scales a usage to datasets differing in c records:
// epsilon becomes c*epsilon and delta grows by GroupDeltaFactor.
func Group(u Usage, c int) Usage {
	if c <= 1 {
		return u
	}
	return Usage{
		Epsilon: float64(c) * u.Epsilon,
		Delta:   GroupDeltaFactor(u.Epsilon, c) * u.Delta,
	}
}

// Advanced composes usages with the heterogeneous advanced composition
// bound at slack delta'. When the basic bound is tighter the basic sum is
// returned and no slack is charged.
func Advanced(usages []Usage, slack float64) Usage {
	basic := Sequential(usages...)
	if slack <= 0 || slack >= 1 || len(usages) == 0 {
		return basic
	}
	var sumSq, sumExp float64
	for _, u := range usages {
		sumSq += u.Epsilon * u.Epsilon
		sumExp += u.Epsilon * math.Expm1(u.Epsilon)
	}
	eps := math.Sqrt(2*math.Log(1/slack)*sumSq) + sumExp
	if eps >= basic.Epsilon {
		return basic
	}
	return Usage{Epsilon: eps, Delta: basic.Delta + slack}
}
