package catalog

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/dpgraph/internal/ctxlog"
)

// CheckParity performs a strict parity check between the manifests and the
// Go option structs implementing them. optionTypes maps every implemented
// kind to its option struct type, or nil when the kind takes no options.
// Struct fields are matched to manifest options through their `cty` tag.
func (c *Catalog) CheckParity(ctx context.Context, optionTypes map[string]reflect.Type) error {
	logger := ctxlog.FromContext(ctx)
	var errs []string

	for _, kind := range c.Kinds() {
		if _, ok := optionTypes[kind]; !ok {
			errs = append(errs, fmt.Sprintf("component '%s': manifest has no Go implementation", kind))
		}
	}
	implemented := make([]string, 0, len(optionTypes))
	for kind := range optionTypes {
		implemented = append(implemented, kind)
	}
	sort.Strings(implemented)

	for _, kind := range implemented {
		comp, ok := c.components[kind]
		if !ok {
			errs = append(errs, fmt.Sprintf("component '%s': Go implementation has no manifest", kind))
			continue
		}
		optType := optionTypes[kind]
		if optType == nil {
			if len(comp.Options) > 0 {
				errs = append(errs, fmt.Sprintf("component '%s': manifest declares options, but Go implementation has no option struct", kind))
			}
			continue
		}
		if optType.Kind() == reflect.Ptr {
			optType = optType.Elem()
		}

		goOptions := make(map[string]reflect.StructField)
		for i := 0; i < optType.NumField(); i++ {
			field := optType.Field(i)
			if !field.IsExported() {
				continue
			}
			if name := field.Tag.Get("cty"); name != "" && name != "-" {
				goOptions[name] = field
			}
		}

		for _, name := range sortedKeys(goOptions) {
			if _, ok := comp.Options[name]; !ok {
				errs = append(errs, fmt.Sprintf("component '%s': Go struct has field for option '%s' which is not declared in manifest", kind, name))
			}
		}
		for _, name := range comp.SortedOptions() {
			opt := comp.Options[name]
			field, ok := goOptions[name]
			if !ok {
				errs = append(errs, fmt.Sprintf("component '%s': manifest declares option '%s' which is not found in Go struct", kind, name))
				continue
			}
			if opt.Type.Equals(cty.DynamicPseudoType) {
				logger.Warn("Manifest option has 'type = any', which disables static type checking.", "component", kind, "option", name)
				continue
			}
			goType, err := gocty.ImpliedType(reflect.Zero(field.Type).Interface())
			if err != nil {
				errs = append(errs, fmt.Sprintf("component '%s', option '%s': could not imply cty type from Go field type %s: %v", kind, name, field.Type, err))
				continue
			}
			if !opt.Type.Equals(goType) {
				errs = append(errs, fmt.Sprintf("component '%s', option '%s': type mismatch. Manifest requires '%s' but Go struct field '%s' provides '%s'",
					kind, name, opt.Type.FriendlyName(), field.Name, goType.FriendlyName()))
			}
			if opt.Default != nil && opt.Default.IsNull() && !nullable(field.Type) {
				errs = append(errs, fmt.Sprintf("component '%s', option '%s': manifest default is null but Go struct field '%s' cannot hold null", kind, name, field.Name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog validation failed:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

func nullable(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Ptr, reflect.Slice, reflect.Map, reflect.Interface:
		return true
	}
	return false
}
