package catalog

import (
	"sort"

	"github.com/zclconf/go-cty/cty"
)

// Class groups component kinds by their role in the graph.
type Class string

const (
	ClassLiteral     Class = "literal"
	ClassDatasource  Class = "datasource"
	ClassTransform   Class = "transform"
	ClassAggregation Class = "aggregation"
	ClassMechanism   Class = "mechanism"
)

// Shape is the kind of value flowing along an edge.
type Shape string

const (
	ShapeTable      Shape = "table"
	ShapeVector     Shape = "vector"
	ShapePartitions Shape = "partitions"
	ShapeAny        Shape = "any"
)

// Accepts reports whether a value of shape got may be bound where s is
// expected. A vector is a single-row table.
func (s Shape) Accepts(got Shape) bool {
	switch {
	case s == ShapeAny || s == got:
		return true
	case s == ShapeTable && got == ShapeVector:
		return true
	}
	return false
}

// Component is the manifest of one component kind.
type Component struct {
	ID          string
	Name        string
	Description string
	Class       Class
	Arguments   map[string]Argument
	Options     map[string]Option
	Return      Return
	Source      string
}

// Argument is a named input edge.
type Argument struct {
	Name        string
	Type        Shape
	Description string
}

// Option is a static, typed parameter. A nil Default makes the option
// required; a null Default makes it optional without a value.
type Option struct {
	Name        string
	Type        cty.Type
	Default     *cty.Value
	Description string
}

// Required reports whether the option has no default.
func (o Option) Required() bool {
	return o.Default == nil
}

// Return describes the value a component produces.
type Return struct {
	Type        Shape
	Description string
}

// Catalog maps component ids to manifests. It is immutable after loading.
type Catalog struct {
	components map[string]*Component
}

// Lookup returns the manifest for kind.
func (c *Catalog) Lookup(kind string) (*Component, bool) {
	comp, ok := c.components[kind]
	return comp, ok
}

// Kinds returns every component id in lexical order.
func (c *Catalog) Kinds() []string {
	kinds := make([]string, 0, len(c.components))
	for k := range c.components {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// SortedArguments returns the argument names of a component in lexical order.
func (c *Component) SortedArguments() []string {
	return sortedKeys(c.Arguments)
}

// SortedOptions returns the option names of a component in lexical order.
func (c *Component) SortedOptions() []string {
	return sortedKeys(c.Options)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
