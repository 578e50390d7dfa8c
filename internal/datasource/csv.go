package datasource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"strconv"
	"strings"

	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/value"
)

// nullTokens are cell values read as missing.
var nullTokens = map[string]bool{"": true, "na": true, "nan": true, "null": true}

// CSV reads comma separated files with a header row from FS. Columns are
// selected by header name; extra columns are ignored.
type CSV struct {
	FS fs.FS
}

func (c CSV) Load(ctx context.Context, o *options.Datasource) (*value.Table, error) {
	f, err := c.FS.Open(o.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("read header of %s: %w", o.Path, err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	lookup := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("%s has no column %q", o.Path, name)
		}
		return i, nil
	}
	numIdx := make([]int, len(o.Columns))
	for j, name := range o.Columns {
		if numIdx[j], err = lookup(name); err != nil {
			return nil, err
		}
	}
	keyIdx := make([]int, len(o.Keys))
	for j, name := range o.Keys {
		if keyIdx[j], err = lookup(name); err != nil {
			return nil, err
		}
	}

	cols := make([][]float64, len(o.Columns))
	keys := make(map[string][]string, len(o.Keys))
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", o.Path, err)
		}
		for j, i := range numIdx {
			v, err := parseCell(rec[i])
			if err != nil {
				return nil, fmt.Errorf("%s line %d column %q: %w", o.Path, line, o.Columns[j], err)
			}
			cols[j] = append(cols[j], v)
		}
		for j, i := range keyIdx {
			keys[o.Keys[j]] = append(keys[o.Keys[j]], rec[i])
		}
	}
	t, err := value.NewTable(append([]string(nil), o.Columns...), cols, keys)
	if err != nil {
		return nil, err
	}
	ctxlog.FromContext(ctx).Debug("CSV datasource loaded.", "path", o.Path, "columns", t.NumCols())
	return t, nil
}

func parseCell(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if nullTokens[strings.ToLower(s)] {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
