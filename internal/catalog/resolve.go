package catalog

import (
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/vk/dpgraph/internal/dperr"
)

// ResolveOptions checks the options given to a node against the manifest,
// converts them to their declared types and fills in defaults. The result
// is an object holding exactly the manifest's options.
func (c *Component) ResolveOptions(nodeID string, given map[string]cty.Value) (cty.Value, dperr.List) {
	var errs dperr.List
	for _, name := range sortedKeys(given) {
		if _, ok := c.Options[name]; !ok {
			errs = append(errs, dperr.Type(dperr.KindInvalidOption, nodeID,
				"component '%s' has no option '%s'", c.ID, name))
		}
	}

	attrs := make(map[string]cty.Value, len(c.Options))
	for _, name := range c.SortedOptions() {
		opt := c.Options[name]
		raw, ok := given[name]
		if !ok {
			if opt.Required() {
				errs = append(errs, dperr.Type(dperr.KindInvalidOption, nodeID,
					"component '%s' requires option '%s' of type %s", c.ID, name, opt.Type.FriendlyName()))
				continue
			}
			attrs[name] = *opt.Default
			continue
		}
		val, err := convert.Convert(raw, opt.Type)
		if err != nil {
			errs = append(errs, dperr.Type(dperr.KindTypeMismatch, nodeID,
				"option '%s' must be %s: %s", name, opt.Type.FriendlyName(), err))
			continue
		}
		if val.IsNull() && opt.Required() {
			errs = append(errs, dperr.Type(dperr.KindInvalidOption, nodeID,
				"option '%s' is required and cannot be null", name))
			continue
		}
		attrs[name] = val
	}
	if len(errs) > 0 {
		return cty.NilVal, errs
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(attrs), nil
}
