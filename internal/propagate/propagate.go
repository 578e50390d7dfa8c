// Package propagate derives the static Properties of a node from the
// properties of its inputs and its options.
//
// Rules are kept in a dispatch table keyed on the component kind. Adding a
// kind means adding a manifest, an option struct and one entry here; the
// catalog parity check fails at startup if the three disagree.
package propagate

import (
	"fmt"
	"math"
	"sort"

	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/properties"
)

// Context is everything a rule may look at while deriving one node.
type Context struct {
	NodeID      string
	Kind        string
	Options     any
	Inputs      map[string]*properties.Properties
	Definition  privacy.Definition
	Neighboring privacy.NeighboringRule
}

// Input returns the properties bound to argument name.
func (c *Context) Input(name string) *properties.Properties {
	return c.Inputs[name]
}

// Rule derives the properties of one node.
type Rule func(c *Context) (*properties.Properties, error)

var rules = map[string]Rule{
	"literal":     literal,
	"datasource":  datasource,
	"clamp":       clamp,
	"impute":      impute,
	"resize":      resizeRule,
	"partition":   partition,
	"index":       index,
	"count":       count,
	"sum":         sum,
	"mean":        mean,
	"variance":    variance,
	"quantile":    quantile,
	"add":         arithmetic(opAdd),
	"subtract":    arithmetic(opSubtract),
	"multiply":    arithmetic(opMultiply),
	"divide":      arithmetic(opDivide),
	"laplace":     laplace,
	"gaussian":    gaussian,
	"geometric":   geometric,
	"exponential": exponential,
}

// Lookup returns the rule for kind.
func Lookup(kind string) (Rule, bool) {
	r, ok := rules[kind]
	return r, ok
}

// Kinds returns every kind with a rule, in lexical order.
func Kinds() []string {
	kinds := make([]string, 0, len(rules))
	for k := range rules {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func (c *Context) invalidOption(format string, args ...any) error {
	return dperr.Type(dperr.KindInvalidOption, c.NodeID, format, args...)
}

func (c *Context) mismatch(format string, args ...any) error {
	return dperr.Type(dperr.KindTypeMismatch, c.NodeID, format, args...)
}

func (c *Context) undefined(format string, args ...any) error {
	return dperr.Privacy(dperr.KindUndefinedSensitivity, fmt.Sprintf(format, args...), c.NodeID)
}

func (c *Context) invalidUsage(format string, args ...any) error {
	return dperr.Privacy(dperr.KindInvalidPrivacyUsage, fmt.Sprintf(format, args...), c.NodeID)
}

// records returns the data input and checks it holds unaggregated records.
func (c *Context) records() (*properties.Properties, error) {
	data := c.Input("data")
	if data.Aggregated {
		return nil, c.mismatch("%s expects records, but its input is an aggregate", c.Kind)
	}
	return data, nil
}

func (c *Context) checkBounds(lower, upper []float64, cols int) error {
	if len(lower) != cols || len(upper) != cols {
		return c.invalidOption("lower and upper must have %d entries, got %d and %d", cols, len(lower), len(upper))
	}
	for i := range lower {
		if !finite(lower[i]) || !finite(upper[i]) {
			return c.invalidOption("column %d: bounds must be finite", i)
		}
		if lower[i] > upper[i] {
			return c.invalidOption("column %d: lower %v is greater than upper %v", i, lower[i], upper[i])
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// union widens known bounds to also cover [lower, upper]. Unknown bounds
// stay unknown.
func union(p *properties.Properties, lower, upper []float64) {
	if !p.Bounded() {
		p.Lower, p.Upper = nil, nil
		return
	}
	for i := range p.Lower {
		p.Lower[i] = math.Min(p.Lower[i], lower[i])
		p.Upper[i] = math.Max(p.Upper[i], upper[i])
	}
}
