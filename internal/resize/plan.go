// Package resize fixes the number of records of a dataset to a known value
// and remaps privacy usage through subsampling amplification and group
// privacy.
package resize

import (
	"fmt"
	"math"

	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/privacy"
)

// Plan is the static part of a resize: the proportion p split into a copy
// factor C = ceil(p) and a sampling rate S = p / C.
type Plan struct {
	C int
	S float64
}

// NewPlan derives the plan for proportion p. A proportion that leaves the
// usage remap undefined is a PrivacyError at nodeID.
func NewPlan(p float64, nodeID string) (Plan, error) {
	if math.IsNaN(p) || math.IsInf(p, 0) || p <= 0 {
		return Plan{}, dperr.Privacy(dperr.KindInvalidPrivacyUsage,
			fmt.Sprintf("proportion %v leaves the usage remap undefined", p), nodeID)
	}
	c := math.Ceil(p)
	if c > math.MaxInt32 {
		return Plan{}, dperr.Privacy(dperr.KindInvalidPrivacyUsage,
			fmt.Sprintf("proportion %v is too large", p), nodeID)
	}
	return Plan{C: int(c), S: p / c}, nil
}

// FunctionalUsage maps the usage declared against the resize input to the
// usage a mechanism downstream of the resize may calibrate its noise with:
//
//	eps_f   = (1/c) ln((e^eps - 1)/s + 1)
//	delta_f = delta / (s * sum_{i=0}^{c-1} e^{i*eps})
func (p Plan) FunctionalUsage(declared privacy.Usage) privacy.Usage {
	eps := math.Log1p(math.Expm1(declared.Epsilon)/p.S) / float64(p.C)
	delta := declared.Delta / (p.S * privacy.GroupDeltaFactor(declared.Epsilon, p.C))
	return privacy.Usage{Epsilon: eps, Delta: delta}
}

// AmplifiedCost is the inverse of FunctionalUsage: the cost, measured on
// the resize input, of running a mechanism at usage u on its output.
//
//	eps = ln(1 + s(e^{c*eps_u} - 1))
func (p Plan) AmplifiedCost(u privacy.Usage) privacy.Usage {
	eps := math.Log1p(p.S * math.Expm1(float64(p.C)*u.Epsilon))
	delta := u.Delta * p.S * privacy.GroupDeltaFactor(eps, p.C)
	return privacy.Usage{Epsilon: eps, Delta: delta}
}

// Functional folds the remaps of a resize lineage, ordered from the
// resize nearest the source to the one nearest the mechanism.
func Functional(declared privacy.Usage, lineage []Plan) privacy.Usage {
	u := declared
	for _, p := range lineage {
		u = p.FunctionalUsage(u)
	}
	return u
}

// Cost folds a functional usage back through lineage, sink to source, into
// the usage it costs at the source.
func Cost(functional privacy.Usage, lineage []Plan) privacy.Usage {
	u := functional
	for i := len(lineage) - 1; i >= 0; i-- {
		u = lineage[i].AmplifiedCost(u)
	}
	return u
}
