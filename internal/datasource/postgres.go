package datasource

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/value"
)

// Postgres runs the datasource query on a connection pool. Result columns
// are matched to declared columns by name. NULL numeric cells are missing
// values.
type Postgres struct {
	Pool *pgxpool.Pool
}

// NewPostgres connects a pool to dsn.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

// Close releases the pool.
func (p *Postgres) Close() {
	p.Pool.Close()
}

func (p *Postgres) Load(ctx context.Context, o *options.Datasource) (*value.Table, error) {
	rows, err := p.Pool.Query(ctx, o.Query)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	index := make(map[string]int)
	for i, fd := range rows.FieldDescriptions() {
		index[fd.Name] = i
	}
	find := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("query result has no column %q", name)
		}
		return i, nil
	}
	numIdx := make([]int, len(o.Columns))
	for j, name := range o.Columns {
		if numIdx[j], err = find(name); err != nil {
			return nil, err
		}
	}
	keyIdx := make([]int, len(o.Keys))
	for j, name := range o.Keys {
		if keyIdx[j], err = find(name); err != nil {
			return nil, err
		}
	}

	cols := make([][]float64, len(o.Columns))
	keys := make(map[string][]string, len(o.Keys))
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		for j, i := range numIdx {
			v, err := toFloat(vals[i])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", o.Columns[j], err)
			}
			cols[j] = append(cols[j], v)
		}
		for j, i := range keyIdx {
			keys[o.Keys[j]] = append(keys[o.Keys[j]], toKey(vals[i]))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("Postgres datasource loaded.", "columns", len(cols))
	return value.NewTable(append([]string(nil), o.Columns...), cols, keys)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case nil:
		return math.NaN(), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil {
			return 0, err
		}
		if !f.Valid {
			return math.NaN(), nil
		}
		return f.Float64, nil
	default:
		return 0, fmt.Errorf("unsupported value of type %T", v)
	}
}

func toKey(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}
