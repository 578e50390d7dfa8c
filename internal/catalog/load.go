package catalog

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/fsutil"
)

//go:embed manifests/*.hcl
var embedded embed.FS

// Default loads the manifests embedded in the binary.
func Default(ctx context.Context) (*Catalog, error) {
	sub, err := fs.Sub(embedded, "manifests")
	if err != nil {
		return nil, err
	}
	return Load(ctx, sub)
}

// LoadDir loads manifests from a directory on disk.
func LoadDir(ctx context.Context, dir string) (*Catalog, error) {
	return Load(ctx, os.DirFS(dir))
}

// Load parses every .hcl file in fsys into a catalog.
func Load(ctx context.Context, fsys fs.FS) (*Catalog, error) {
	logger := ctxlog.FromContext(ctx)

	paths, err := fsutil.FindFilesByExtension(fsys, ".", ".hcl")
	if err != nil {
		return nil, fmt.Errorf("failed to walk catalog: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("catalog contains no .hcl manifests")
	}

	parser := hclparse.NewParser()
	cat := &Catalog{components: make(map[string]*Component)}
	var diags hcl.Diagnostics
	for _, path := range paths {
		src, err := fs.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("failed to read manifest %s: %w", path, err)
		}
		file, parseDiags := parser.ParseHCL(src, path)
		diags = append(diags, parseDiags...)
		if parseDiags.HasErrors() {
			continue
		}
		comps, compDiags := parseManifest(file, path)
		diags = append(diags, compDiags...)
		for _, comp := range comps {
			if prev, exists := cat.components[comp.ID]; exists {
				diags = append(diags, &hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Duplicate component definition",
					Detail:   fmt.Sprintf("Component '%s' is already defined in %s.", comp.ID, prev.Source),
				})
				continue
			}
			cat.components[comp.ID] = comp
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	logger.Debug("Catalog loaded.", "components", len(cat.components), "files", len(paths))
	return cat, nil
}

type manifestRoot struct {
	Components []*manifestComponent `hcl:"component,block"`
}

type manifestComponent struct {
	ID   string   `hcl:"id,label"`
	Body hcl.Body `hcl:",remain"`
}

var componentBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "name", Required: true},
		{Name: "description"},
		{Name: "class", Required: true},
	},
	Blocks: []hcl.BlockHeaderSchema{
		{Type: "argument", LabelNames: []string{"name"}},
		{Type: "option", LabelNames: []string{"name"}},
		{Type: "return"},
	},
}

var argumentBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "description"},
	},
}

var optionBodySchema = &hcl.BodySchema{
	Attributes: []hcl.AttributeSchema{
		{Name: "type", Required: true},
		{Name: "default"},
		{Name: "description"},
	},
}

func parseManifest(file *hcl.File, path string) ([]*Component, hcl.Diagnostics) {
	var root manifestRoot
	diags := gohcl.DecodeBody(file.Body, nil, &root)
	if diags.HasErrors() {
		return nil, diags
	}

	comps := make([]*Component, 0, len(root.Components))
	for _, mc := range root.Components {
		content, contentDiags := mc.Body.Content(componentBodySchema)
		diags = append(diags, contentDiags...)
		if contentDiags.HasErrors() {
			continue
		}

		comp := &Component{
			ID:        mc.ID,
			Arguments: make(map[string]Argument),
			Options:   make(map[string]Option),
			Return:    Return{Type: ShapeAny},
			Source:    path,
		}
		diags = append(diags, decodeString(content.Attributes["name"], &comp.Name)...)
		diags = append(diags, decodeString(content.Attributes["description"], &comp.Description)...)
		var class string
		diags = append(diags, decodeString(content.Attributes["class"], &class)...)
		comp.Class = Class(class)
		switch comp.Class {
		case ClassLiteral, ClassDatasource, ClassTransform, ClassAggregation, ClassMechanism:
		default:
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Unknown component class",
				Detail:   fmt.Sprintf("Component '%s' declares class '%s'.", comp.ID, class),
				Subject:  content.Attributes["class"].Expr.Range().Ptr(),
			})
		}

		for _, block := range content.Blocks {
			switch block.Type {
			case "argument":
				arg, argDiags := parseArgument(block)
				diags = append(diags, argDiags...)
				if argDiags.HasErrors() {
					continue
				}
				if _, exists := comp.Arguments[arg.Name]; exists {
					diags = append(diags, duplicate("argument", arg.Name, block))
					continue
				}
				comp.Arguments[arg.Name] = arg
			case "option":
				opt, optDiags := parseOption(block)
				diags = append(diags, optDiags...)
				if optDiags.HasErrors() {
					continue
				}
				if _, exists := comp.Options[opt.Name]; exists {
					diags = append(diags, duplicate("option", opt.Name, block))
					continue
				}
				comp.Options[opt.Name] = opt
			case "return":
				ret, retDiags := parseReturn(block)
				diags = append(diags, retDiags...)
				comp.Return = ret
			}
		}
		comps = append(comps, comp)
	}
	return comps, diags
}

func parseArgument(block *hcl.Block) (Argument, hcl.Diagnostics) {
	content, diags := block.Body.Content(argumentBodySchema)
	if diags.HasErrors() {
		return Argument{}, diags
	}
	arg := Argument{Name: block.Labels[0]}
	shape, shapeDiags := parseShape(content.Attributes["type"])
	diags = append(diags, shapeDiags...)
	arg.Type = shape
	diags = append(diags, decodeString(content.Attributes["description"], &arg.Description)...)
	return arg, diags
}

func parseReturn(block *hcl.Block) (Return, hcl.Diagnostics) {
	content, diags := block.Body.Content(argumentBodySchema)
	if diags.HasErrors() {
		return Return{}, diags
	}
	var ret Return
	shape, shapeDiags := parseShape(content.Attributes["type"])
	diags = append(diags, shapeDiags...)
	ret.Type = shape
	diags = append(diags, decodeString(content.Attributes["description"], &ret.Description)...)
	return ret, diags
}

func parseOption(block *hcl.Block) (Option, hcl.Diagnostics) {
	content, diags := block.Body.Content(optionBodySchema)
	if diags.HasErrors() {
		return Option{}, diags
	}
	opt := Option{Name: block.Labels[0]}

	ty, typeDiags := typeexpr.TypeConstraint(content.Attributes["type"].Expr)
	diags = append(diags, typeDiags...)
	if typeDiags.HasErrors() {
		return Option{}, diags
	}
	opt.Type = ty
	diags = append(diags, decodeString(content.Attributes["description"], &opt.Description)...)

	if attr, exists := content.Attributes["default"]; exists {
		// Defaults are literals; no evaluation context is offered.
		val, valDiags := attr.Expr.Value(nil)
		diags = append(diags, valDiags...)
		if valDiags.HasErrors() {
			return Option{}, diags
		}
		converted, err := convert.Convert(val, ty)
		if err != nil {
			diags = append(diags, &hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid default value type",
				Detail:   fmt.Sprintf("The default value for '%s' is not compatible with its type, '%s': %s.", opt.Name, ty.FriendlyName(), err),
				Subject:  attr.Expr.Range().Ptr(),
			})
			return Option{}, diags
		}
		opt.Default = &converted
	}
	return opt, diags
}

func parseShape(attr *hcl.Attribute) (Shape, hcl.Diagnostics) {
	var raw string
	diags := decodeString(attr, &raw)
	if diags.HasErrors() {
		return "", diags
	}
	switch s := Shape(raw); s {
	case ShapeTable, ShapeVector, ShapePartitions, ShapeAny:
		return s, diags
	}
	return "", append(diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  "Unsupported shape",
		Detail:   fmt.Sprintf("The shape '%s' is not valid. Supported shapes are: table, vector, partitions, any.", raw),
		Subject:  attr.Expr.Range().Ptr(),
	})
}

func decodeString(attr *hcl.Attribute, target *string) hcl.Diagnostics {
	if attr == nil {
		return nil
	}
	return gohcl.DecodeExpression(attr.Expr, nil, target)
}

func duplicate(what, name string, block *hcl.Block) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  fmt.Sprintf("Duplicate %s definition", what),
		Detail:   fmt.Sprintf("An %s named '%s' has already been defined.", what, name),
		Subject:  &block.DefRange,
	}
}
