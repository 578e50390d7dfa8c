package propagate

import (
	"math"
	"slices"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/properties"
	"github.com/vk/dpgraph/internal/resize"
)

func clamp(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Clamp)
	data := c.Input("data")
	if err := c.checkBounds(o.Lower, o.Upper, data.NumColumns()); err != nil {
		return nil, err
	}
	out := data.Derive(c.Kind)
	if data.Bounded() {
		for i := range out.Lower {
			out.Lower[i] = math.Min(math.Max(data.Lower[i], o.Lower[i]), o.Upper[i])
			out.Upper[i] = math.Min(math.Max(data.Upper[i], o.Lower[i]), o.Upper[i])
		}
	} else {
		out.Lower = slices.Clone(o.Lower)
		out.Upper = slices.Clone(o.Upper)
	}
	return out, nil
}

func impute(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Impute)
	data, err := c.records()
	if err != nil {
		return nil, err
	}
	if err := o.Imputation().Validate(data.NumColumns()); err != nil {
		return nil, c.invalidOption("%v", err)
	}
	out := data.Derive(c.Kind)
	out.Nullable = false
	union(out, o.Lower, o.Upper)
	return out, nil
}

func resizeRule(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Resize)
	data, err := c.records()
	if err != nil {
		return nil, err
	}
	if o.NumberRows < 0 {
		return nil, c.invalidOption("number_rows must not be negative, got %d", o.NumberRows)
	}
	plan, err := resize.NewPlan(o.Proportion, c.NodeID)
	if err != nil {
		return nil, err
	}
	if err := o.Imputation().Validate(data.NumColumns()); err != nil {
		return nil, c.invalidOption("%v", err)
	}

	out := data.Derive(c.Kind)
	out.NumRecords = properties.Int64(o.NumberRows)
	out.Nullable = false
	union(out, o.Lower, o.Upper)
	if data.Private {
		out.Resizes = append(out.Resizes, plan)
	}
	return out, nil
}

func partition(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Partition)
	data, err := c.records()
	if err != nil {
		return nil, err
	}
	if !data.HasKeyColumn(o.By) {
		return nil, c.mismatch("input has no key column %q (key columns: %v)", o.By, data.KeyColumns)
	}
	if len(o.Categories) == 0 {
		return nil, c.invalidOption("categories must not be empty")
	}
	seen := make(map[string]bool, len(o.Categories))
	for _, cat := range o.Categories {
		if seen[cat] {
			return nil, c.invalidOption("category %q is listed more than once", cat)
		}
		seen[cat] = true
	}

	out := data.Derive(c.Kind)
	out.Shape = catalog.ShapePartitions
	out.NumRecords = nil
	out.PartitionNode = c.NodeID
	out.PartitionBy = o.By
	out.Categories = slices.Clone(o.Categories)
	return out, nil
}

func index(c *Context) (*properties.Properties, error) {
	o := c.Options.(*options.Index)
	data := c.Input("data")
	if !slices.Contains(data.Categories, o.Key) {
		return nil, c.invalidOption("key %q is not one of the partition categories %v", o.Key, data.Categories)
	}
	out := data.Derive(c.Kind)
	out.Shape = catalog.ShapeTable
	out.Lineage = append(out.Lineage, privacy.PartitionKey{Partition: data.PartitionNode, Key: o.Key})
	out.PartitionNode = ""
	out.PartitionBy = ""
	out.Categories = nil
	return out, nil
}
