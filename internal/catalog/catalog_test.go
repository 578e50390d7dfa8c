package catalog

import (
	"context"
	"reflect"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/dpgraph/internal/dperr"
)

func TestDefault(t *testing.T) {
	t.Parallel()

	cat, err := Default(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{
		"add", "clamp", "count", "datasource", "divide", "exponential", "gaussian",
		"geometric", "impute", "index", "laplace", "literal", "mean", "multiply",
		"partition", "quantile", "resize", "subtract", "sum", "variance",
	}, cat.Kinds())

	laplace, ok := cat.Lookup("laplace")
	require.True(t, ok)
	assert.Equal(t, ClassMechanism, laplace.Class)
	assert.Equal(t, []string{"data"}, laplace.SortedArguments())
	assert.Equal(t, ShapeVector, laplace.Arguments["data"].Type)
	assert.True(t, laplace.Options["epsilon"].Required())
	assert.Equal(t, ShapeVector, laplace.Return.Type)

	ds, ok := cat.Lookup("datasource")
	require.True(t, ok)
	assert.Equal(t, cty.List(cty.List(cty.Number)), ds.Options["rows"].Type)
	require.NotNil(t, ds.Options["lower"].Default)
	assert.True(t, ds.Options["lower"].Default.IsNull())
	assert.True(t, ds.Options["source"].Default.RawEquals(cty.StringVal("inline")))

	_, ok = cat.Lookup("median")
	assert.False(t, ok)
}

const testManifest = `
component "scale" {
  name  = "Scale"
  class = "transform"

  argument "data" {
    type = "table"
  }
  option "factor" {
    type = number
  }
  option "bounds" {
    type    = list(number)
    default = null
  }
  option "label" {
    type    = string
    default = "x"
  }
  return {
    type = "table"
  }
}
`

func loadTest(t *testing.T) *Catalog {
	t.Helper()
	cat, err := Load(context.Background(), fstest.MapFS{"scale.hcl": {Data: []byte(testManifest)}})
	require.NoError(t, err)
	return cat
}

func TestLoadErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fsys fstest.MapFS
		want string
	}{
		{
			name: "empty catalog",
			fsys: fstest.MapFS{"readme.md": {Data: []byte("")}},
			want: "no .hcl manifests",
		},
		{
			name: "duplicate component",
			fsys: fstest.MapFS{
				"a.hcl": {Data: []byte(testManifest)},
				"b.hcl": {Data: []byte(testManifest)},
			},
			want: "Duplicate component definition",
		},
		{
			name: "unknown class",
			fsys: fstest.MapFS{"a.hcl": {Data: []byte(`component "x" {
  name  = "X"
  class = "sorcery"
}`)}},
			want: "Unknown component class",
		},
		{
			name: "unknown shape",
			fsys: fstest.MapFS{"a.hcl": {Data: []byte(`component "x" {
  name  = "X"
  class = "transform"
  argument "data" {
    type = "matrix"
  }
}`)}},
			want: "Unsupported shape",
		},
		{
			name: "default of the wrong type",
			fsys: fstest.MapFS{"a.hcl": {Data: []byte(`component "x" {
  name  = "X"
  class = "transform"
  option "n" {
    type    = number
    default = "many"
  }
}`)}},
			want: "Invalid default value type",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Load(context.Background(), tt.fsys)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestResolveOptions(t *testing.T) {
	t.Parallel()

	comp, ok := loadTest(t).Lookup("scale")
	require.True(t, ok)

	t.Run("defaults and conversion", func(t *testing.T) {
		t.Parallel()
		got, errs := comp.ResolveOptions("n1", map[string]cty.Value{
			"factor": cty.StringVal("2.5"),
		})
		require.Empty(t, errs)
		factor, _ := got.GetAttr("factor").AsBigFloat().Float64()
		assert.Equal(t, 2.5, factor)
		assert.True(t, got.GetAttr("bounds").IsNull())
		assert.True(t, got.GetAttr("label").RawEquals(cty.StringVal("x")))
	})

	t.Run("tuple converts to list", func(t *testing.T) {
		t.Parallel()
		got, errs := comp.ResolveOptions("n1", map[string]cty.Value{
			"factor": cty.NumberIntVal(1),
			"bounds": cty.TupleVal([]cty.Value{cty.NumberIntVal(0), cty.NumberIntVal(1)}),
		})
		require.Empty(t, errs)
		assert.Equal(t, cty.List(cty.Number), got.GetAttr("bounds").Type())
	})

	t.Run("missing, unknown and mistyped options", func(t *testing.T) {
		t.Parallel()
		_, errs := comp.ResolveOptions("n1", map[string]cty.Value{
			"colour": cty.StringVal("red"),
			"label":  cty.ListValEmpty(cty.String),
		})
		require.Len(t, errs, 3)
		assert.True(t, dperr.HasKind(errs, dperr.KindInvalidOption))
		assert.True(t, dperr.HasKind(errs, dperr.KindTypeMismatch))
		assert.Contains(t, errs.Error(), "has no option 'colour'")
		assert.Contains(t, errs.Error(), "requires option 'factor'")
	})
}

type scaleOptions struct {
	Factor float64   `cty:"factor"`
	Bounds []float64 `cty:"bounds"`
	Label  string    `cty:"label"`
}

func TestCheckParity(t *testing.T) {
	t.Parallel()

	cat := loadTest(t)
	ctx := context.Background()

	require.NoError(t, cat.CheckParity(ctx, map[string]reflect.Type{
		"scale": reflect.TypeOf(scaleOptions{}),
	}))

	type wrongType struct {
		Factor string    `cty:"factor"`
		Bounds []float64 `cty:"bounds"`
		Label  string    `cty:"label"`
		Extra  bool      `cty:"extra"`
	}
	err := cat.CheckParity(ctx, map[string]reflect.Type{
		"scale": reflect.TypeOf(wrongType{}),
		"blur":  nil,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "catalog validation failed")
	assert.Contains(t, err.Error(), "option 'factor': type mismatch")
	assert.Contains(t, err.Error(), "option 'extra' which is not declared in manifest")
	assert.Contains(t, err.Error(), "component 'blur': Go implementation has no manifest")

	type nonNullable struct {
		Factor float64 `cty:"factor"`
		Bounds float64 `cty:"bounds"`
		Label  string  `cty:"label"`
	}
	err = cat.CheckParity(ctx, map[string]reflect.Type{"scale": reflect.TypeOf(nonNullable{})})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot hold null")

	err = cat.CheckParity(ctx, map[string]reflect.Type{})
	assert.ErrorContains(t, err, "manifest has no Go implementation")
}

func TestShapeAccepts(t *testing.T) {
	t.Parallel()

	assert.True(t, ShapeTable.Accepts(ShapeVector))
	assert.True(t, ShapeAny.Accepts(ShapePartitions))
	assert.False(t, ShapeVector.Accepts(ShapeTable))
	assert.False(t, ShapeTable.Accepts(ShapePartitions))
}
