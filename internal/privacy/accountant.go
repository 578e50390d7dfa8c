package privacy

import (
	"fmt"
	"sort"

	"github.com/vk/dpgraph/internal/dperr"
)

// PartitionKey identifies one disjoint partition produced by a partition
// node.
type PartitionKey struct {
	Partition string
	Key       string
}

// Charge is the usage one mechanism node bills to the analysis.
// Lineage lists the partitions its input was selected from, outermost
// first; charges with different keys of the same partition compose in
// parallel.
type Charge struct {
	NodeID  string
	Usage   Usage
	Lineage []PartitionKey
}

// Accountant composes mechanism charges under a privacy definition.
type Accountant struct {
	def Definition
}

// NewAccountant returns an accountant for def.
func NewAccountant(def Definition) *Accountant {
	return &Accountant{def: def}
}

// Total composes every charge into one usage. Charges sharing no partition
// compose sequentially, charges under different keys of one partition
// compose in parallel, and the result is scaled by the group size.
func (a *Accountant) Total(charges []Charge) Usage {
	total := a.compose(charges, 0, a.def.Composition == AdvancedComposition)
	return Group(total, a.def.GroupSize)
}

func (a *Accountant) compose(charges []Charge, depth int, advanced bool) Usage {
	var terms []Usage
	byPartition := make(map[string]map[string][]Charge)
	for _, c := range charges {
		if len(c.Lineage) <= depth {
			terms = append(terms, c.Usage)
			continue
		}
		pk := c.Lineage[depth]
		keys, ok := byPartition[pk.Partition]
		if !ok {
			keys = make(map[string][]Charge)
			byPartition[pk.Partition] = keys
		}
		keys[pk.Key] = append(keys[pk.Key], c)
	}

	partitions := make([]string, 0, len(byPartition))
	for p := range byPartition {
		partitions = append(partitions, p)
	}
	sort.Strings(partitions)
	for _, p := range partitions {
		var perKey []Usage
		for _, group := range byPartition[p] {
			perKey = append(perKey, a.compose(group, depth+1, false))
		}
		terms = append(terms, Parallel(perKey...))
	}

	if advanced {
		return Advanced(terms, a.def.AdvancedDelta)
	}
	return Sequential(terms...)
}

// Check validates every charge, composes them and compares the total with
// budget. An exceeded budget is a BudgetExceeded error naming every
// charging node.
func (a *Accountant) Check(charges []Charge, budget Usage) (Usage, error) {
	if err := budget.Validate(); err != nil {
		return Usage{}, err
	}
	var errs dperr.List
	for _, c := range charges {
		if err := a.def.CheckUsage(c.Usage, c.NodeID); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errs.ErrOrNil(); err != nil {
		return Usage{}, err
	}

	total := a.Total(charges)
	if !total.Within(budget) {
		ids := make([]string, 0, len(charges))
		for _, c := range charges {
			ids = append(ids, c.NodeID)
		}
		return total, dperr.Privacy(dperr.KindBudgetExceeded,
			fmt.Sprintf("composed usage %s exceeds budget %s", total, budget), ids...)
	}
	return total, nil
}
