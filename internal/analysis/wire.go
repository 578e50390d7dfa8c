// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the byte-buffer wire format of an Analysis: a protobuf
// google.protobuf.Struct with the fields `nodes`, `privacy_definition` and
// `budget`.
package analysis

import (
	"fmt"
	"math"
	"math/big"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/privacy"
)

const (
	fieldNodes      = "nodes"
	fieldDefinition = "privacy_definition"
	fieldBudget     = "budget"
)

// Encode serializes an analysis deterministically.
func Encode(a *Analysis) ([]byte, error) {
	s, err := ToStruct(a)
	if err != nil {
		return nil, err
	}
	return proto.MarshalOptions{Deterministic: true}.Marshal(s)
}

// Decode parses bytes produced by Encode.
func Decode(b []byte) (*Analysis, error) {
	s := &structpb.Struct{}
	if err := proto.Unmarshal(b, s); err != nil {
		return nil, fmt.Errorf("failed to decode analysis: %w", err)
	}
	return FromStruct(s)
}

// ToStruct converts an analysis to its protobuf Struct form.
func ToStruct(a *Analysis) (*structpb.Struct, error) {
	nodes := make(map[string]any, len(a.Components))
	for _, id := range a.IDs() {
		c := a.Components[id]
		args := make(map[string]any, len(c.Arguments))
		for name, ref := range c.Arguments {
			args[name] = ref.String()
		}
		opts := make(map[string]any, len(c.Options))
		for name, v := range c.Options {
			g, err := ctyToGo(v)
			if err != nil {
				return nil, fmt.Errorf("node %s, option %q: %w", id, name, err)
			}
			opts[name] = g
		}
		nodes[id.String()] = map[string]any{
			"kind":      c.Kind,
			"arguments": args,
			"options":   opts,
			"release":   c.Release,
		}
	}

	root := map[string]any{
		fieldNodes: nodes,
		fieldDefinition: map[string]any{
			"neighboring":    string(a.Definition.Neighboring),
			"distance":       string(a.Definition.Distance),
			"group_size":     float64(a.Definition.GroupSize),
			"composition":    string(a.Definition.Composition),
			"advanced_delta": a.Definition.AdvancedDelta,
		},
	}
	if a.Budget != nil {
		root[fieldBudget] = map[string]any{
			"epsilon": a.Budget.Epsilon,
			"delta":   a.Budget.Delta,
		}
	}
	return structpb.NewStruct(root)
}

// FromStruct converts the protobuf Struct form back into an analysis.
func FromStruct(s *structpb.Struct) (*Analysis, error) {
	root := s.AsMap()
	a := New()

	if raw, ok := root[fieldDefinition]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s must be an object", fieldDefinition)
		}
		def := privacy.DefaultDefinition()
		if v, ok := m["neighboring"].(string); ok && v != "" {
			def.Neighboring = privacy.Neighboring(v)
		}
		if v, ok := m["distance"].(string); ok && v != "" {
			def.Distance = privacy.Distance(v)
		}
		if raw, ok := m["group_size"]; ok {
			v, ok := raw.(float64)
			if !ok || v < 1 || v != math.Trunc(v) || v > math.MaxInt32 {
				return nil, fmt.Errorf("%s.group_size must be a positive integer, got %v", fieldDefinition, raw)
			}
			def.GroupSize = int(v)
		}
		if v, ok := m["composition"].(string); ok && v != "" {
			def.Composition = privacy.Composition(v)
		}
		if v, ok := m["advanced_delta"].(float64); ok {
			def.AdvancedDelta = v
		}
		a.Definition = def
	}

	if raw, ok := root[fieldBudget]; ok {
		m, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s must be an object", fieldBudget)
		}
		eps, _ := m["epsilon"].(float64)
		delta, _ := m["delta"].(float64)
		a.Budget = &privacy.Usage{Epsilon: eps, Delta: delta}
	}

	var rawNodes map[string]any
	if raw, ok := root[fieldNodes]; ok {
		if rawNodes, ok = raw.(map[string]any); !ok {
			return nil, fmt.Errorf("%s must be an object", fieldNodes)
		}
	}
	ids := make([]string, 0, len(rawNodes))
	for id := range rawNodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, rawID := range ids {
		c, err := decodeNode(rawID, rawNodes[rawID])
		if err != nil {
			return nil, err
		}
		if err := a.Add(c); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func decodeNode(rawID string, raw any) (*Component, error) {
	id, err := nodeid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("node %q: %w", rawID, err)
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("node %s must be an object", id)
	}
	kind, _ := m["kind"].(string)
	if kind == "" {
		return nil, fmt.Errorf("node %s has no kind", id)
	}
	c := &Component{
		ID:        id,
		Kind:      kind,
		Arguments: make(map[string]nodeid.ID),
		Options:   make(map[string]cty.Value),
	}
	c.Release, _ = m["release"].(bool)

	if args, ok := m["arguments"].(map[string]any); ok {
		for name, v := range args {
			ref, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("node %s, argument %q must be a node id", id, name)
			}
			refID, err := nodeid.Parse(ref)
			if err != nil {
				return nil, fmt.Errorf("node %s, argument %q: %w", id, name, err)
			}
			c.Arguments[name] = refID
		}
	}
	if opts, ok := m["options"].(map[string]any); ok {
		for name, v := range opts {
			c.Options[name] = goToCty(v)
		}
	}
	return c, nil
}

// ctyToGo converts a known cty value into the plain Go values structpb
// accepts.
func ctyToGo(v cty.Value) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsKnown() {
		return nil, fmt.Errorf("value is unknown")
	}
	ty := v.Type()
	switch {
	case ty == cty.String:
		return v.AsString(), nil
	case ty == cty.Bool:
		return v.True(), nil
	case ty == cty.Number:
		f, _ := v.AsBigFloat().Float64()
		return f, nil
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		out := make([]any, 0, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			_, ev := it.Element()
			g, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		}
		return out, nil
	case ty.IsMapType() || ty.IsObjectType():
		out := make(map[string]any, v.LengthInt())
		for it := v.ElementIterator(); it.Next(); {
			k, ev := it.Element()
			g, err := ctyToGo(ev)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = g
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported value type %s", ty.FriendlyName())
}

// goToCty converts a decoded structpb value into cty. Sequences become
// tuples and mappings become objects; the catalog converts them to the
// declared option types.
func goToCty(v any) cty.Value {
	switch t := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType)
	case string:
		return cty.StringVal(t)
	case bool:
		return cty.BoolVal(t)
	case float64:
		if math.IsNaN(t) {
			return cty.NullVal(cty.Number)
		}
		return cty.NumberVal(new(big.Float).SetFloat64(t))
	case []any:
		if len(t) == 0 {
			return cty.EmptyTupleVal
		}
		elems := make([]cty.Value, len(t))
		for i, e := range t {
			elems[i] = goToCty(e)
		}
		return cty.TupleVal(elems)
	case map[string]any:
		if len(t) == 0 {
			return cty.EmptyObjectVal
		}
		attrs := make(map[string]cty.Value, len(t))
		for k, e := range t {
			attrs[k] = goToCty(e)
		}
		return cty.ObjectVal(attrs)
	}
	return cty.NullVal(cty.DynamicPseudoType)
}
