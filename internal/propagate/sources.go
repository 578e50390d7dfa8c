package propagate

import (
	"slices"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/properties"
	"github.com/vk/dpgraph/internal/value"
)

func literal(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Literal)
	if len(o.Value) == 0 {
		return nil, c.invalidOption("value must not be empty")
	}
	names := o.Names
	switch len(names) {
	case 0:
		names = value.DefaultNames(len(o.Value))
	case len(o.Value):
	default:
		return nil, c.invalidOption("names has %d entries but value has %d", len(names), len(o.Value))
	}
	return &properties.Properties{
		Kind:       c.Kind,
		Shape:      catalog.ShapeVector,
		DataType:   properties.Float,
		Columns:    slices.Clone(names),
		NumRecords: properties.Int64(1),
		Lower:      slices.Clone(o.Value),
		Upper:      slices.Clone(o.Value),
		CStability: 1,
	}, nil
}

func datasource(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Datasource)

	switch options.Source(o.Source) {
	case options.SourceInline:
	case options.SourceCSV:
		if o.Path == "" {
			return nil, c.invalidOption("the csv source requires a path")
		}
	case options.SourcePostgres:
		if o.Query == "" {
			return nil, c.invalidOption("the postgres source requires a query")
		}
	default:
		return nil, c.invalidOption("unknown source %q (known: inline, csv, postgres)", o.Source)
	}
	if options.Source(o.Source) != options.SourceInline && (len(o.Rows) > 0 || len(o.KeyRows) > 0) {
		return nil, c.invalidOption("rows and key_rows are only read by the inline source")
	}

	if len(o.Columns) == 0 {
		return nil, c.invalidOption("columns must not be empty")
	}
	seen := make(map[string]bool, len(o.Columns)+len(o.Keys))
	for _, name := range append(slices.Clone(o.Columns), o.Keys...) {
		if seen[name] {
			return nil, c.invalidOption("column %q is declared more than once", name)
		}
		seen[name] = true
	}
	if o.MaxContributions < 1 {
		return nil, c.invalidOption("max_contributions must be at least 1, got %d", o.MaxContributions)
	}
	if o.NumRecords != nil && *o.NumRecords < 0 {
		return nil, c.invalidOption("num_records must not be negative, got %d", *o.NumRecords)
	}
	if o.Lower != nil || o.Upper != nil {
		if err := c.checkBounds(o.Lower, o.Upper, len(o.Columns)); err != nil {
			return nil, err
		}
	}

	numRecords := o.NumRecords
	if options.Source(o.Source) == options.SourceInline {
		for i, row := range o.Rows {
			if len(row) != len(o.Columns) {
				return nil, c.invalidOption("row %d has %d values, expected %d", i, len(row), len(o.Columns))
			}
		}
		for name, keys := range o.KeyRows {
			if !slices.Contains(o.Keys, name) {
				return nil, c.invalidOption("key_rows has column %q which is not listed in keys", name)
			}
			if len(keys) != len(o.Rows) {
				return nil, c.invalidOption("key column %q has %d rows, expected %d", name, len(keys), len(o.Rows))
			}
		}
		for _, name := range o.Keys {
			if _, ok := o.KeyRows[name]; !ok {
				return nil, c.invalidOption("key column %q has no key_rows entry", name)
			}
		}
		if o.Public && numRecords == nil {
			numRecords = properties.Int64(int64(len(o.Rows)))
		}
	}

	return &properties.Properties{
		Kind:       c.Kind,
		Shape:      catalog.ShapeTable,
		DataType:   properties.Float,
		Columns:    slices.Clone(o.Columns),
		KeyColumns: slices.Clone(o.Keys),
		NumRecords: numRecords,
		Nullable:   o.Nullable,
		Lower:      slices.Clone(o.Lower),
		Upper:      slices.Clone(o.Upper),
		CStability: float64(o.MaxContributions),
		Private:    !o.Public,
	}, nil
}
