// Package properties holds the static metadata derived for every node of an
// analysis: shape, bounds, nullity, sensitivity and privacy bookkeeping.
// Properties are produced once by propagation and never mutated afterwards;
// rules derive new values through Derive.
package properties

import (
	"math"
	"slices"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/resize"
)

// DataType is the element type of a node's values.
type DataType string

const (
	Float DataType = "float"
	Int   DataType = "int"
)

// Properties describes the value a node produces.
type Properties struct {
	Kind     string
	Shape    catalog.Shape
	DataType DataType
	Columns  []string
	// KeyColumns are string columns carried alongside the numeric ones.
	KeyColumns []string
	// NumRecords is nil when the row count is not publicly known.
	NumRecords *int64
	Nullable   bool
	// Lower and Upper are nil when the bounds are unknown.
	Lower []float64
	Upper []float64
	// Sensitivity is the per-column sensitivity of an aggregate.
	Sensitivity []float64
	CStability  float64

	Private    bool
	Aggregated bool
	Released   bool

	// PartitionNode, PartitionBy and Categories are set on partitioned
	// values.
	PartitionNode string
	PartitionBy   string
	Categories    []string

	// Lineage lists the partition keys selected on the way from the source.
	Lineage []privacy.PartitionKey
	// Resizes lists the resize plans applied on the way from the source.
	Resizes []resize.Plan

	// Usage is the usage charged by a mechanism, nil when nothing is charged.
	Usage *privacy.Usage
	// FunctionalUsage is the usage noise is calibrated with.
	FunctionalUsage *privacy.Usage
}

// NumColumns returns the number of numeric columns.
func (p *Properties) NumColumns() int {
	return len(p.Columns)
}

// Bounded reports whether every column has known, finite bounds.
func (p *Properties) Bounded() bool {
	if len(p.Lower) != p.NumColumns() || len(p.Upper) != p.NumColumns() {
		return false
	}
	for i := range p.Lower {
		if math.IsInf(p.Lower[i], 0) || math.IsInf(p.Upper[i], 0) || math.IsNaN(p.Lower[i]) || math.IsNaN(p.Upper[i]) {
			return false
		}
	}
	return true
}

// HasKeyColumn reports whether name is one of the key columns.
func (p *Properties) HasKeyColumn(name string) bool {
	return slices.Contains(p.KeyColumns, name)
}

// L1 is the L1 norm of the sensitivity vector.
func (p *Properties) L1() float64 {
	var s float64
	for _, v := range p.Sensitivity {
		s += math.Abs(v)
	}
	return s
}

// L2 is the L2 norm of the sensitivity vector.
func (p *Properties) L2() float64 {
	var s float64
	for _, v := range p.Sensitivity {
		s += v * v
	}
	return math.Sqrt(s)
}

// FiniteSensitivity reports whether the sensitivity is known and finite.
func (p *Properties) FiniteSensitivity() bool {
	if len(p.Sensitivity) == 0 {
		return false
	}
	for _, v := range p.Sensitivity {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return false
		}
	}
	return true
}

// Derive returns a deep copy of p for kind with mechanism usage cleared.
func (p *Properties) Derive(kind string) *Properties {
	out := &Properties{
		Kind:          kind,
		Shape:         p.Shape,
		DataType:      p.DataType,
		Columns:       slices.Clone(p.Columns),
		KeyColumns:    slices.Clone(p.KeyColumns),
		Nullable:      p.Nullable,
		Lower:         slices.Clone(p.Lower),
		Upper:         slices.Clone(p.Upper),
		Sensitivity:   slices.Clone(p.Sensitivity),
		CStability:    p.CStability,
		Private:       p.Private,
		Aggregated:    p.Aggregated,
		Released:      p.Released,
		PartitionNode: p.PartitionNode,
		PartitionBy:   p.PartitionBy,
		Categories:    slices.Clone(p.Categories),
		Lineage:       slices.Clone(p.Lineage),
		Resizes:       slices.Clone(p.Resizes),
	}
	if p.NumRecords != nil {
		n := *p.NumRecords
		out.NumRecords = &n
	}
	return out
}

// Int64 returns a pointer to n.
func Int64(n int64) *int64 {
	return &n
}
