package options

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/dpgraph/internal/catalog"
)

func TestDefaultCatalogParity(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	cat, err := catalog.Default(ctx)
	require.NoError(t, err)
	require.NoError(t, cat.CheckParity(ctx, Types()))
	assert.Equal(t, cat.Kinds(), Kinds())
}

func TestDecode(t *testing.T) {
	t.Parallel()

	t.Run("null numbers decode to nil pointers", func(t *testing.T) {
		t.Parallel()
		got, err := Decode("geometric", cty.ObjectVal(map[string]cty.Value{
			"epsilon":    cty.NumberFloatVal(0.5),
			"delta":      cty.NumberIntVal(0),
			"max_trials": cty.NullVal(cty.Number),
			"lower":      cty.NumberIntVal(0),
			"upper":      cty.NullVal(cty.Number),
		}))
		require.NoError(t, err)
		o, ok := got.(*Geometric)
		require.True(t, ok)
		assert.Equal(t, 0.5, o.Epsilon)
		assert.Nil(t, o.MaxTrials)
		require.NotNil(t, o.Lower)
		assert.Equal(t, int64(0), *o.Lower)
		assert.Nil(t, o.Upper)
	})

	t.Run("padding options", func(t *testing.T) {
		t.Parallel()
		got, err := Decode("resize", cty.ObjectVal(map[string]cty.Value{
			"number_rows":  cty.NumberIntVal(20),
			"proportion":   cty.NumberFloatVal(1.5),
			"distribution": cty.StringVal("uniform"),
			"lower":        cty.ListVal([]cty.Value{cty.NumberIntVal(0)}),
			"upper":        cty.ListVal([]cty.Value{cty.NumberIntVal(100)}),
			"shift":        cty.NullVal(cty.List(cty.Number)),
			"scale":        cty.NullVal(cty.List(cty.Number)),
		}))
		require.NoError(t, err)
		o := got.(*Resize)
		assert.Equal(t, int64(20), o.NumberRows)
		im := o.Imputation()
		assert.Equal(t, []float64{0}, im.Lower)
		assert.Equal(t, []float64{100}, im.Upper)
		assert.Nil(t, im.Shift)
		assert.NoError(t, im.Validate(1))
	})

	t.Run("kinds without options", func(t *testing.T) {
		t.Parallel()
		got, err := Decode("count", cty.EmptyObjectVal)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("unknown kind", func(t *testing.T) {
		t.Parallel()
		_, err := Decode("median", cty.EmptyObjectVal)
		assert.ErrorContains(t, err, `"median"`)
	})

	t.Run("mistyped value", func(t *testing.T) {
		t.Parallel()
		_, err := Decode("partition", cty.ObjectVal(map[string]cty.Value{
			"by":         cty.StringVal("region"),
			"categories": cty.NumberIntVal(1),
		}))
		assert.Error(t, err)
	})
}
