// Package datasource loads the private tables an analysis reads.
//
// Every backend returns a value.Table whose numeric columns are the
// declared columns in order and whose key columns are the declared keys.
// Missing numeric cells are NaN. After loading, the table is checked
// against what the datasource declared publicly (nullity, bounds, size),
// because certification relied on those declarations.
package datasource

import (
	"context"
	"fmt"
	"math"

	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/value"
)

// Loader reads one datasource.
type Loader interface {
	Load(ctx context.Context, o *options.Datasource) (*value.Table, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, o *options.Datasource) (*value.Table, error)

func (f LoaderFunc) Load(ctx context.Context, o *options.Datasource) (*value.Table, error) {
	return f(ctx, o)
}

// Registry dispatches loads on the datasource source.
type Registry struct {
	loaders map[options.Source]Loader
}

// NewRegistry returns a registry with the inline loader. Other backends are
// added with Register.
func NewRegistry() *Registry {
	return &Registry{loaders: map[options.Source]Loader{
		options.SourceInline: Inline{},
	}}
}

// Register binds source to l, replacing any previous loader.
func (r *Registry) Register(source options.Source, l Loader) {
	r.loaders[source] = l
}

// Load reads o through the loader for its source and checks the result
// against the declared contract.
func (r *Registry) Load(ctx context.Context, o *options.Datasource) (*value.Table, error) {
	l, ok := r.loaders[options.Source(o.Source)]
	if !ok {
		return nil, fmt.Errorf("no loader configured for source %q", o.Source)
	}
	t, err := l.Load(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("load %s datasource: %w", o.Source, err)
	}
	if err := Check(o, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Check verifies that t honours what o declares.
func Check(o *options.Datasource, t *value.Table) error {
	if t.NumCols() != len(o.Columns) {
		return fmt.Errorf("datasource returned %d columns, declared %d", t.NumCols(), len(o.Columns))
	}
	for _, k := range o.Keys {
		if _, ok := t.Keys[k]; !ok {
			return fmt.Errorf("datasource returned no key column %q", k)
		}
	}
	if o.NumRecords != nil && int64(t.NumRows()) != *o.NumRecords {
		return fmt.Errorf("datasource returned %d rows, declared num_records is %d", t.NumRows(), *o.NumRecords)
	}
	for j, col := range t.Cols {
		for i, v := range col {
			switch {
			case math.IsNaN(v):
				if !o.Nullable {
					return fmt.Errorf("column %q row %d is missing, but the datasource is not nullable", o.Columns[j], i)
				}
			case math.IsInf(v, 0):
				return fmt.Errorf("column %q row %d is not finite", o.Columns[j], i)
			case o.Lower != nil && (v < o.Lower[j] || v > o.Upper[j]):
				return fmt.Errorf("column %q row %d lies outside the declared bounds [%v, %v]", o.Columns[j], i, o.Lower[j], o.Upper[j])
			}
		}
	}
	return nil
}

// Inline serves rows embedded in the analysis.
type Inline struct{}

func (Inline) Load(_ context.Context, o *options.Datasource) (*value.Table, error) {
	cols := make([][]float64, len(o.Columns))
	for j := range cols {
		cols[j] = make([]float64, len(o.Rows))
		for i, row := range o.Rows {
			if j >= len(row) {
				return nil, fmt.Errorf("row %d has %d values, expected %d", i, len(row), len(o.Columns))
			}
			cols[j][i] = row[j]
		}
	}
	var keys map[string][]string
	if len(o.Keys) > 0 {
		keys = make(map[string][]string, len(o.Keys))
		for _, k := range o.Keys {
			keys[k] = append([]string(nil), o.KeyRows[k]...)
		}
	}
	return value.NewTable(append([]string(nil), o.Columns...), cols, keys)
}
