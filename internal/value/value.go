// Package value defines the runtime values flowing between nodes during
// evaluation.
package value

import (
	"fmt"
	"math"
	"sort"
)

// Value is the output of one evaluated node: either a *Table or a
// *Partitions.
type Value interface {
	isValue()
}

// Table is a column-major numeric table. Missing entries are NaN. Keys holds
// optional string columns used for partitioning; they are carried through
// row selections but never aggregated.
type Table struct {
	Names []string
	Cols  [][]float64
	Keys  map[string][]string
}

func (*Table) isValue() {}

// NewTable builds a table and checks that every column has the same length.
func NewTable(names []string, cols [][]float64, keys map[string][]string) (*Table, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("table has %d column names but %d columns", len(names), len(cols))
	}
	rows := -1
	for i, c := range cols {
		if rows >= 0 && len(c) != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", names[i], len(c), rows)
		}
		rows = len(c)
	}
	for name, k := range keys {
		if rows >= 0 && len(k) != rows {
			return nil, fmt.Errorf("key column %q has %d rows, expected %d", name, len(k), rows)
		}
	}
	return &Table{Names: names, Cols: cols, Keys: keys}, nil
}

// NewVector builds a single-row table, the shape of aggregations and
// mechanism outputs.
func NewVector(names []string, vals []float64) *Table {
	cols := make([][]float64, len(vals))
	for i, v := range vals {
		cols[i] = []float64{v}
	}
	if names == nil {
		names = DefaultNames(len(vals))
	}
	return &Table{Names: names, Cols: cols}
}

// DefaultNames returns c0, c1, ... for n unnamed columns.
func DefaultNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = fmt.Sprintf("c%d", i)
	}
	return names
}

// NumCols returns the number of numeric columns.
func (t *Table) NumCols() int {
	return len(t.Cols)
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if len(t.Cols) == 0 {
		for _, k := range t.Keys {
			return len(k)
		}
		return 0
	}
	return len(t.Cols[0])
}

// Vector returns the first row. It is the payload of single-row tables.
func (t *Table) Vector() []float64 {
	out := make([]float64, len(t.Cols))
	for i, c := range t.Cols {
		if len(c) > 0 {
			out[i] = c[0]
		} else {
			out[i] = math.NaN()
		}
	}
	return out
}

// Select returns a new table with the given rows in order. An index of -1
// produces an empty row: NaN values and empty keys.
func (t *Table) Select(rows []int) *Table {
	out := &Table{Names: t.Names, Cols: make([][]float64, len(t.Cols))}
	for j, c := range t.Cols {
		col := make([]float64, len(rows))
		for i, r := range rows {
			if r < 0 {
				col[i] = math.NaN()
			} else {
				col[i] = c[r]
			}
		}
		out.Cols[j] = col
	}
	if len(t.Keys) > 0 {
		out.Keys = make(map[string][]string, len(t.Keys))
		for name, k := range t.Keys {
			col := make([]string, len(rows))
			for i, r := range rows {
				if r >= 0 {
					col[i] = k[r]
				}
			}
			out.Keys[name] = col
		}
	}
	return out
}

// Map returns a copy of the table with fn applied to every numeric cell.
func (t *Table) Map(fn func(col int, v float64) float64) *Table {
	out := &Table{Names: t.Names, Cols: make([][]float64, len(t.Cols)), Keys: t.Keys}
	for j, c := range t.Cols {
		col := make([]float64, len(c))
		for i, v := range c {
			col[i] = fn(j, v)
		}
		out.Cols[j] = col
	}
	return out
}

// HasNull reports whether any numeric cell is NaN.
func (t *Table) HasNull() bool {
	for _, c := range t.Cols {
		for _, v := range c {
			if math.IsNaN(v) {
				return true
			}
		}
	}
	return false
}

// Partitions is the output of a partition node: one table per category.
type Partitions struct {
	By    string
	Parts map[string]*Table
}

func (*Partitions) isValue() {}

// SortedKeys returns the partition keys in lexical order.
func (p *Partitions) SortedKeys() []string {
	keys := make([]string, 0, len(p.Parts))
	for k := range p.Parts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// AsTable returns v as a table or an error naming the actual shape.
func AsTable(v Value) (*Table, error) {
	switch t := v.(type) {
	case *Table:
		return t, nil
	case *Partitions:
		return nil, fmt.Errorf("expected a table, got partitions by %q", t.By)
	case nil:
		return nil, fmt.Errorf("expected a table, got no value")
	default:
		return nil, fmt.Errorf("expected a table, got %T", v)
	}
}
