package privacy

import (
	"fmt"
	"math"

	"github.com/vk/dpgraph/internal/dperr"
)

// Distance is the privacy metric mechanism usages are measured in.
type Distance string

const (
	// Pure is epsilon-DP: every usage must have delta = 0.
	Pure Distance = "pure"
	// Approximate is (epsilon, delta)-DP.
	Approximate Distance = "approximate"
)

// Composition selects how sequential usages are combined.
type Composition string

const (
	BasicComposition    Composition = "basic"
	AdvancedComposition Composition = "advanced"
)

// Definition is the privacy definition an analysis is certified under.
type Definition struct {
	Neighboring   Neighboring `json:"neighboring"`
	Distance      Distance    `json:"distance"`
	GroupSize     int         `json:"group_size"`
	Composition   Composition `json:"composition"`
	AdvancedDelta float64     `json:"advanced_delta"`
}

// DefaultDefinition is used when an analysis declares no privacy definition.
func DefaultDefinition() Definition {
	return Definition{
		Neighboring: AddRemove,
		Distance:    Approximate,
		GroupSize:   1,
		Composition: BasicComposition,
	}
}

// Validate checks every field of the definition.
func (d Definition) Validate() error {
	var errs dperr.List
	if _, err := LookupNeighboring(d.Neighboring); err != nil {
		errs = append(errs, err)
	}
	switch d.Distance {
	case Pure, Approximate:
	default:
		errs = append(errs, invalidDefinition("unknown distance %q", d.Distance))
	}
	if d.GroupSize < 1 {
		errs = append(errs, invalidDefinition("group_size must be at least 1, got %d", d.GroupSize))
	}
	switch d.Composition {
	case BasicComposition:
	case AdvancedComposition:
		if d.Distance == Pure {
			errs = append(errs, invalidDefinition("advanced composition introduces delta and cannot be used with pure distance"))
		}
		if math.IsNaN(d.AdvancedDelta) || d.AdvancedDelta <= 0 || d.AdvancedDelta >= 1 {
			errs = append(errs, invalidDefinition("advanced_delta must lie in (0, 1), got %v", d.AdvancedDelta))
		}
	default:
		errs = append(errs, invalidDefinition("unknown composition %q", d.Composition))
	}
	return errs.ErrOrNil()
}

// CheckUsage validates a mechanism usage against the definition's metric.
func (d Definition) CheckUsage(u Usage, nodeIDs ...string) error {
	if err := u.Validate(nodeIDs...); err != nil {
		return err
	}
	if d.Distance == Pure && u.Delta > 0 {
		return dperr.Privacy(dperr.KindInvalidPrivacyUsage,
			fmt.Sprintf("delta %v is not allowed under pure distance", u.Delta), nodeIDs...)
	}
	return nil
}

func invalidDefinition(format string, args ...any) error {
	return dperr.Privacy(dperr.KindInvalidDefinition, fmt.Sprintf(format, args...))
}
