// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file decodes an Analysis from HCL.
//
// Each `component "<kind>" "<id>"` block is one node. Attributes whose
// expression is exactly a `node.<id>` reference are arguments; every other
// attribute is a literal option, except `release` which marks the node as a
// release point. References anywhere else inside an option are rejected so
// that every edge of the graph is visible in the component header.
package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/nodeid"
	"github.com/vk/dpgraph/internal/privacy"
)

const releaseAttr = "release"

type hclRoot struct {
	Definition *hclDefinition  `hcl:"privacy_definition,block"`
	Budget     *hclBudget      `hcl:"budget,block"`
	Components []*hclComponent `hcl:"component,block"`
}

type hclDefinition struct {
	Neighboring   string  `hcl:"neighboring,optional"`
	Distance      string  `hcl:"distance,optional"`
	GroupSize     int     `hcl:"group_size,optional"`
	Composition   string  `hcl:"composition,optional"`
	AdvancedDelta float64 `hcl:"advanced_delta,optional"`
}

type hclBudget struct {
	Epsilon float64 `hcl:"epsilon"`
	Delta   float64 `hcl:"delta,optional"`
}

type hclComponent struct {
	Kind string   `hcl:"kind,label"`
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

// LoadFile reads and decodes an analysis file. Relative datasource paths
// resolve against the file's directory.
func LoadFile(ctx context.Context, path string) (*Analysis, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read analysis file: %w", err)
	}
	a, err := ParseHCL(ctx, src, path)
	if err != nil {
		return nil, err
	}
	a.BaseDir = filepath.Dir(path)
	return a, nil
}

// ParseHCL decodes an analysis from HCL source.
func ParseHCL(ctx context.Context, src []byte, filename string) (*Analysis, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing analysis.", "file", filename)

	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, diags
	}

	root := &hclRoot{}
	if diags := gohcl.DecodeBody(file.Body, nil, root); diags.HasErrors() {
		return nil, diags
	}

	a := New()
	if d := root.Definition; d != nil {
		def := privacy.DefaultDefinition()
		if d.Neighboring != "" {
			def.Neighboring = privacy.Neighboring(d.Neighboring)
		}
		if d.Distance != "" {
			def.Distance = privacy.Distance(d.Distance)
		}
		if d.GroupSize != 0 {
			def.GroupSize = d.GroupSize
		}
		if d.Composition != "" {
			def.Composition = privacy.Composition(d.Composition)
		}
		def.AdvancedDelta = d.AdvancedDelta
		a.Definition = def
	}
	if b := root.Budget; b != nil {
		a.Budget = &privacy.Usage{Epsilon: b.Epsilon, Delta: b.Delta}
	}

	var errs dperr.List
	for _, hc := range root.Components {
		comp, compDiags := decodeComponent(hc)
		diags = append(diags, compDiags...)
		if compDiags.HasErrors() {
			continue
		}
		if err := a.Add(comp); err != nil {
			errs = append(errs, err)
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}
	if err := errs.ErrOrNil(); err != nil {
		return nil, err
	}

	logger.Debug("Analysis parsed.", "file", filename, "nodes", len(a.Components))
	return a, nil
}

func decodeComponent(hc *hclComponent) (*Component, hcl.Diagnostics) {
	id, err := nodeid.Parse(hc.ID)
	if err != nil {
		return nil, hcl.Diagnostics{{
			Severity: hcl.DiagError,
			Summary:  "Invalid node id",
			Detail:   fmt.Sprintf("Component %q: %v.", hc.ID, err),
			Subject:  hc.Body.MissingItemRange().Ptr(),
		}}
	}

	attrs, diags := hc.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, diags
	}

	comp := &Component{
		ID:        id,
		Kind:      hc.Kind,
		Arguments: make(map[string]nodeid.ID),
		Options:   make(map[string]cty.Value),
	}
	for name, attr := range attrs {
		if name == releaseAttr {
			diags = append(diags, gohcl.DecodeExpression(attr.Expr, nil, &comp.Release)...)
			continue
		}

		if traversal, travDiags := hcl.AbsTraversalForExpr(attr.Expr); !travDiags.HasErrors() && traversal.RootName() == nodeid.ReferenceRoot {
			ref, err := nodeid.FromTraversal(traversal)
			if err != nil {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid node reference",
					Detail:   fmt.Sprintf("Argument %q: %v.", name, err),
					Subject:  attr.Expr.Range().Ptr(),
				})
				continue
			}
			comp.Arguments[name] = ref
			continue
		}

		if vars := attr.Expr.Variables(); len(vars) > 0 {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Options must be literal values",
				Detail:   fmt.Sprintf("Option %q refers to %q. Node references must be the whole attribute value.", name, vars[0].RootName()),
				Subject:  attr.Expr.Range().Ptr(),
			})
			continue
		}
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if valDiags.HasErrors() {
			continue
		}
		comp.Options[name] = val
	}
	return comp, diags
}
