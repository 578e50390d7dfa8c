package privacy

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/sampler"
)

// Neighboring names a neighboring relation between datasets.
type Neighboring string

const (
	// AddRemove neighbors differ by the addition or removal of one record.
	AddRemove Neighboring = "add_remove"
	// ReplaceOne neighbors differ by the substitution of one record.
	ReplaceOne Neighboring = "replace_one"
)

// NeighboringRule holds every formula that depends on the neighboring
// relation. New relations are added with RegisterNeighboring; callers never
// branch on the relation name themselves.
type NeighboringRule struct {
	Name Neighboring

	// SubsampleCount returns m, the number of records filled from private
	// data when a resize keeps a proportion s of a c-fold copy of size total.
	SubsampleCount func(s *sampler.Sampler, total int64, proportion float64) (int64, error)

	// SumSensitivity bounds the change of a column sum whose values lie in
	// [lower, upper].
	SumSensitivity func(lower, upper float64) float64

	// VarianceSensitivity bounds the change of the variance of n values in
	// [lower, upper]. correction selects the n-1 normalization.
	VarianceSensitivity func(n int64, lower, upper float64, correction bool) float64

	// QuantileUtilitySensitivity bounds the change of the exponential
	// mechanism quantile utility at alpha.
	QuantileUtilitySensitivity func(alpha float64) float64
}

var (
	neighboringMu    sync.RWMutex
	neighboringRules = map[Neighboring]NeighboringRule{}
)

// RegisterNeighboring adds or replaces a neighboring rule.
func RegisterNeighboring(rule NeighboringRule) {
	neighboringMu.Lock()
	defer neighboringMu.Unlock()
	neighboringRules[rule.Name] = rule
}

// LookupNeighboring returns the rule registered under name.
func LookupNeighboring(name Neighboring) (NeighboringRule, error) {
	neighboringMu.RLock()
	defer neighboringMu.RUnlock()
	rule, ok := neighboringRules[name]
	if !ok {
		return NeighboringRule{}, dperr.Privacy(dperr.KindInvalidDefinition,
			fmt.Sprintf("unknown neighboring relation %q (known: %v)", name, knownNeighboringLocked()))
	}
	return rule, nil
}

func knownNeighboringLocked() []string {
	names := make([]string, 0, len(neighboringRules))
	for n := range neighboringRules {
		names = append(names, string(n))
	}
	sort.Strings(names)
	return names
}

func init() {
	RegisterNeighboring(NeighboringRule{
		Name: AddRemove,
		SubsampleCount: func(s *sampler.Sampler, total int64, proportion float64) (int64, error) {
			return s.Binomial(total, proportion)
		},
		SumSensitivity: func(lower, upper float64) float64 {
			return math.Max(math.Abs(lower), math.Abs(upper))
		},
		VarianceSensitivity: func(n int64, lower, upper float64, correction bool) float64 {
			fn := float64(n)
			return fn / (fn + 1) / varianceNorm(fn, correction) * (upper - lower) * (upper - lower)
		},
		QuantileUtilitySensitivity: func(alpha float64) float64 {
			return math.Max(alpha, 1-alpha)
		},
	})
	RegisterNeighboring(NeighboringRule{
		Name: ReplaceOne,
		SubsampleCount: func(_ *sampler.Sampler, total int64, proportion float64) (int64, error) {
			return int64(math.Floor(proportion * float64(total))), nil
		},
		SumSensitivity: func(lower, upper float64) float64 {
			return upper - lower
		},
		VarianceSensitivity: func(n int64, lower, upper float64, correction bool) float64 {
			fn := float64(n)
			return (fn - 1) / fn / varianceNorm(fn, correction) * (upper - lower) * (upper - lower)
		},
		QuantileUtilitySensitivity: func(float64) float64 {
			return 1
		},
	})
}

func varianceNorm(n float64, correction bool) float64 {
	if correction {
		return n - 1
	}
	return n
}
