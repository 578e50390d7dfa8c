// Package release holds the outcome of one successful execution and its
// encodings.
//
// The byte form is a protobuf google.protobuf.Struct with the fields
// `values` (node id → released value) and `usage` (epsilon, delta). A table
// is encoded as {names, columns, keys}; partitions as {by, parts}. Missing
// numbers travel as null.
package release

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"sigs.k8s.io/yaml"

	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/value"
)

// Release maps every release point of an analysis to its value.
type Release struct {
	Values map[nodeid.ID]value.Value
	// Usage is the composed usage the release consumed.
	Usage privacy.Usage
}

// IDs returns the released node ids in lexical order.
func (r *Release) IDs() []nodeid.ID {
	ids := make([]nodeid.ID, 0, len(r.Values))
	for id := range r.Values {
		ids = append(ids, id)
	}
	return nodeid.Sort(ids)
}

// Format selects a human-readable rendering.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Encode serializes r deterministically.
func Encode(r *Release) ([]byte, error) {
	s, err := structpb.NewStruct(toMap(r))
	if err != nil {
		return nil, fmt.Errorf("failed to encode release: %w", err)
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(s)
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) (*Release, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("failed to decode release: %w", err)
	}
	return fromMap(s.AsMap())
}

// Render renders r as indented JSON or as YAML.
func Render(r *Release, format Format) ([]byte, error) {
	doc := toMap(r)
	switch format {
	case FormatJSON, "":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(out, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(doc)
	default:
		return nil, fmt.Errorf("unknown output format %q (known: json, yaml)", format)
	}
}

func toMap(r *Release) map[string]any {
	values := make(map[string]any, len(r.Values))
	for id, v := range r.Values {
		values[id.String()] = valueToMap(v)
	}
	return map[string]any{
		"values": values,
		"usage": map[string]any{
			"epsilon": r.Usage.Epsilon,
			"delta":   r.Usage.Delta,
		},
	}
}

func valueToMap(v value.Value) map[string]any {
	switch t := v.(type) {
	case *value.Table:
		names := make([]any, len(t.Names))
		for i, n := range t.Names {
			names[i] = n
		}
		cols := make([]any, len(t.Cols))
		for i, c := range t.Cols {
			col := make([]any, len(c))
			for j, x := range c {
				if math.IsNaN(x) {
					col[j] = nil
				} else {
					col[j] = x
				}
			}
			cols[i] = col
		}
		m := map[string]any{"names": names, "columns": cols}
		if len(t.Keys) > 0 {
			keys := make(map[string]any, len(t.Keys))
			for name, k := range t.Keys {
				col := make([]any, len(k))
				for j, s := range k {
					col[j] = s
				}
				keys[name] = col
			}
			m["keys"] = keys
		}
		return m
	case *value.Partitions:
		parts := make(map[string]any, len(t.Parts))
		for k, p := range t.Parts {
			parts[k] = valueToMap(p)
		}
		return map[string]any{"by": t.By, "parts": parts}
	default:
		return nil
	}
}

func fromMap(m map[string]any) (*Release, error) {
	r := &Release{Values: map[nodeid.ID]value.Value{}}
	values, _ := m["values"].(map[string]any)
	ids := make([]string, 0, len(values))
	for id := range values {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		raw, ok := values[id].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("value %q: expected an object", id)
		}
		v, err := valueFromMap(raw)
		if err != nil {
			return nil, fmt.Errorf("value %q: %w", id, err)
		}
		r.Values[nodeid.ID(id)] = v
	}
	if usage, ok := m["usage"].(map[string]any); ok {
		r.Usage.Epsilon, _ = usage["epsilon"].(float64)
		r.Usage.Delta, _ = usage["delta"].(float64)
	}
	return r, nil
}

func valueFromMap(m map[string]any) (value.Value, error) {
	if rawParts, ok := m["parts"].(map[string]any); ok {
		by, _ := m["by"].(string)
		p := &value.Partitions{By: by, Parts: make(map[string]*value.Table, len(rawParts))}
		for k, raw := range rawParts {
			pm, ok := raw.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("partition %q: expected an object", k)
			}
			v, err := valueFromMap(pm)
			if err != nil {
				return nil, fmt.Errorf("partition %q: %w", k, err)
			}
			t, err := value.AsTable(v)
			if err != nil {
				return nil, err
			}
			p.Parts[k] = t
		}
		return p, nil
	}

	rawNames, _ := m["names"].([]any)
	names := make([]string, len(rawNames))
	for i, n := range rawNames {
		s, ok := n.(string)
		if !ok {
			return nil, fmt.Errorf("column name %d is not a string", i)
		}
		names[i] = s
	}
	rawCols, _ := m["columns"].([]any)
	cols := make([][]float64, len(rawCols))
	for i, rc := range rawCols {
		cells, ok := rc.([]any)
		if !ok {
			return nil, fmt.Errorf("column %d is not a list", i)
		}
		cols[i] = make([]float64, len(cells))
		for j, c := range cells {
			switch x := c.(type) {
			case nil:
				cols[i][j] = math.NaN()
			case float64:
				cols[i][j] = x
			default:
				return nil, fmt.Errorf("column %d row %d is not a number", i, j)
			}
		}
	}
	var keys map[string][]string
	if rawKeys, ok := m["keys"].(map[string]any); ok {
		keys = make(map[string][]string, len(rawKeys))
		for name, rk := range rawKeys {
			cells, _ := rk.([]any)
			col := make([]string, len(cells))
			for j, c := range cells {
				col[j], _ = c.(string)
			}
			keys[name] = col
		}
	}
	return value.NewTable(names, cols, keys)
}
