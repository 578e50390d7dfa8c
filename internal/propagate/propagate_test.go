package propagate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/properties"
	"github.com/vk/dpgraph/internal/resize"
)

func newContext(t *testing.T, kind string, opts any, inputs map[string]*properties.Properties, def privacy.Definition) *Context {
	t.Helper()
	rule, err := privacy.LookupNeighboring(def.Neighboring)
	require.NoError(t, err)
	return &Context{
		NodeID:      "n",
		Kind:        kind,
		Options:     opts,
		Inputs:      inputs,
		Definition:  def,
		Neighboring: rule,
	}
}

func run(t *testing.T, kind string, opts any, inputs map[string]*properties.Properties, def privacy.Definition) (*properties.Properties, error) {
	t.Helper()
	r, ok := Lookup(kind)
	require.True(t, ok, "no rule for %s", kind)
	return r(newContext(t, kind, opts, inputs, def))
}

// records is a private, bounded, non-null table of n rows.
func records(n *int64, lower, upper []float64) *properties.Properties {
	return &properties.Properties{
		Kind:       "clamp",
		Shape:      catalog.ShapeTable,
		DataType:   properties.Float,
		Columns:    []string{"x", "y"}[:len(lower)],
		NumRecords: n,
		Lower:      lower,
		Upper:      upper,
		CStability: 1,
		Private:    true,
	}
}

func aggregate(sens ...float64) *properties.Properties {
	return &properties.Properties{
		Kind:        "sum",
		Shape:       catalog.ShapeVector,
		DataType:    properties.Float,
		Columns:     []string{"x", "y"}[:len(sens)],
		NumRecords:  properties.Int64(1),
		Sensitivity: sens,
		CStability:  1,
		Private:     true,
		Aggregated:  true,
	}
}

func public(lower, upper float64) *properties.Properties {
	return &properties.Properties{
		Kind:       "literal",
		Shape:      catalog.ShapeVector,
		DataType:   properties.Float,
		Columns:    []string{"c0"},
		NumRecords: properties.Int64(1),
		Lower:      []float64{lower},
		Upper:      []float64{upper},
		CStability: 1,
	}
}

func definition(n privacy.Neighboring) privacy.Definition {
	def := privacy.DefaultDefinition()
	def.Neighboring = n
	return def
}

func TestEveryCatalogKindHasARule(t *testing.T) {
	t.Parallel()
	assert.Equal(t, options.Kinds(), Kinds())
}

func TestAggregationSensitivity(t *testing.T) {
	t.Parallel()

	n := properties.Int64(10)
	tests := []struct {
		name  string
		kind  string
		opts  any
		rel   privacy.Neighboring
		cStab float64
		want  []float64
	}{
		{name: "count", kind: "count", rel: privacy.AddRemove, cStab: 1, want: []float64{1}},
		{name: "count with c-stability", kind: "count", rel: privacy.AddRemove, cStab: 3, want: []float64{3}},
		{name: "sum add/remove", kind: "sum", rel: privacy.AddRemove, cStab: 1, want: []float64{4, 10}},
		{name: "sum replace one", kind: "sum", rel: privacy.ReplaceOne, cStab: 1, want: []float64{6, 5}},
		{name: "sum with c-stability", kind: "sum", rel: privacy.ReplaceOne, cStab: 2, want: []float64{12, 10}},
		{name: "mean", kind: "mean", rel: privacy.AddRemove, cStab: 1, want: []float64{0.6, 0.5}},
		{
			name: "variance add/remove", kind: "variance", opts: &options.Variance{FiniteSampleCorrection: true},
			rel: privacy.AddRemove, cStab: 1, want: []float64{10.0 / 11 / 9 * 36, 10.0 / 11 / 9 * 25},
		},
		{
			name: "variance replace one", kind: "variance", opts: &options.Variance{FiniteSampleCorrection: false},
			rel: privacy.ReplaceOne, cStab: 1, want: []float64{9.0 / 10 / 10 * 36, 9.0 / 10 / 10 * 25},
		},
		{name: "quantile", kind: "quantile", opts: &options.Quantile{Alpha: 0.5}, rel: privacy.AddRemove, cStab: 1, want: []float64{6, 5}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			data := records(n, []float64{-2, 5}, []float64{4, 10})
			data.CStability = tt.cStab
			out, err := run(t, tt.kind, tt.opts, map[string]*properties.Properties{"data": data}, definition(tt.rel))
			require.NoError(t, err)
			require.Len(t, out.Sensitivity, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], out.Sensitivity[i], 1e-12, "column %d", i)
			}
			assert.Equal(t, catalog.ShapeVector, out.Shape)
			assert.True(t, out.Aggregated)
			assert.Equal(t, 1.0, out.CStability)
		})
	}
}

func TestAggregationOfPublicData(t *testing.T) {
	t.Parallel()

	data := records(properties.Int64(3), []float64{0}, []float64{1})
	data.Private = false
	out, err := run(t, "sum", nil, map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
	require.NoError(t, err)
	assert.False(t, out.Private)
	assert.False(t, out.Aggregated)
	assert.Nil(t, out.Sensitivity)
	assert.Equal(t, []float64{0}, out.Lower)
	assert.Equal(t, []float64{3}, out.Upper)
}

func TestArithmetic(t *testing.T) {
	t.Parallel()

	released := &properties.Properties{Kind: "laplace", Shape: catalog.ShapeVector, Columns: []string{"x"}, Released: true}
	tests := []struct {
		name     string
		kind     string
		left     *properties.Properties
		right    *properties.Properties
		want     []float64
		private  bool
		released bool
		err      dperr.Kind
	}{
		{name: "private plus public", kind: "add", left: aggregate(2), right: public(5, 5), want: []float64{2}, private: true},
		{name: "private minus private", kind: "subtract", left: aggregate(2), right: aggregate(3), want: []float64{5}, private: true},
		{name: "public times private", kind: "multiply", left: public(-4, 3), right: aggregate(2), want: []float64{8}, private: true},
		{name: "private over public", kind: "divide", left: aggregate(2), right: public(4, 8), want: []float64{0.5}, private: true},
		{name: "broadcast", kind: "multiply", left: aggregate(1, 2), right: public(3, 3), want: []float64{3, 6}, private: true},
		{name: "released plus public", kind: "add", left: released, right: public(1, 1), released: true},
		{name: "public over private", kind: "divide", left: public(1, 1), right: aggregate(1), err: dperr.KindUndefinedSensitivity},
		{name: "divisor may be zero", kind: "divide", left: aggregate(1), right: public(-1, 1), err: dperr.KindUndefinedSensitivity},
		{name: "private times private", kind: "multiply", left: aggregate(1), right: aggregate(1), err: dperr.KindUndefinedSensitivity},
		{name: "unbounded scale", kind: "multiply", left: aggregate(1), right: released, err: dperr.KindUndefinedSensitivity},
		{name: "width mismatch", kind: "add", left: aggregate(1, 2), right: &properties.Properties{Columns: []string{"a", "b", "c"}}, err: dperr.KindTypeMismatch},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			out, err := run(t, tt.kind, nil, map[string]*properties.Properties{"left": tt.left, "right": tt.right}, privacy.DefaultDefinition())
			if tt.err != "" {
				require.Error(t, err)
				assert.True(t, dperr.HasKind(err, tt.err), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.private, out.Private)
			assert.Equal(t, tt.released, out.Released)
			if tt.want == nil {
				assert.Nil(t, out.Sensitivity)
				return
			}
			require.Len(t, out.Sensitivity, len(tt.want))
			for i := range tt.want {
				assert.InDelta(t, tt.want[i], out.Sensitivity[i], 1e-12)
			}
		})
	}
}

func TestArithmeticRejectsDifferentResizes(t *testing.T) {
	t.Parallel()

	left, right := aggregate(1), aggregate(1)
	left.Resizes = []resize.Plan{{C: 1, S: 0.5}}
	_, err := run(t, "add", nil, map[string]*properties.Properties{"left": left, "right": right}, privacy.DefaultDefinition())
	assert.True(t, dperr.HasKind(err, dperr.KindUndefinedSensitivity))
}

func TestArithmeticLineage(t *testing.T) {
	t.Parallel()

	left, right := aggregate(1), aggregate(1)
	left.Lineage = []privacy.PartitionKey{{Partition: "p", Key: "a"}, {Partition: "q", Key: "x"}}
	right.Lineage = []privacy.PartitionKey{{Partition: "p", Key: "a"}, {Partition: "q", Key: "y"}}
	out, err := run(t, "add", nil, map[string]*properties.Properties{"left": left, "right": right}, privacy.DefaultDefinition())
	require.NoError(t, err)
	assert.Equal(t, []privacy.PartitionKey{{Partition: "p", Key: "a"}}, out.Lineage)
}

func TestMechanisms(t *testing.T) {
	t.Parallel()

	t.Run("laplace charges the declared usage", func(t *testing.T) {
		t.Parallel()
		out, err := run(t, "laplace", &options.Laplace{Epsilon: 0.3},
			map[string]*properties.Properties{"data": aggregate(1)}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Equal(t, &privacy.Usage{Epsilon: 0.3}, out.Usage)
		assert.Equal(t, &privacy.Usage{Epsilon: 0.3}, out.FunctionalUsage)
		assert.True(t, out.Released)
		assert.False(t, out.Private)
	})

	t.Run("public input is not charged", func(t *testing.T) {
		t.Parallel()
		out, err := run(t, "laplace", &options.Laplace{Epsilon: 0.3},
			map[string]*properties.Properties{"data": public(1, 1)}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Nil(t, out.Usage)
	})

	t.Run("gaussian requires delta", func(t *testing.T) {
		t.Parallel()
		_, err := run(t, "gaussian", &options.Gaussian{Epsilon: 0.3},
			map[string]*properties.Properties{"data": aggregate(1)}, privacy.DefaultDefinition())
		assert.True(t, dperr.HasKind(err, dperr.KindInvalidPrivacyUsage))
	})

	t.Run("infinite sensitivity", func(t *testing.T) {
		t.Parallel()
		_, err := run(t, "laplace", &options.Laplace{Epsilon: 0.3},
			map[string]*properties.Properties{"data": aggregate(math.Inf(1))}, privacy.DefaultDefinition())
		assert.True(t, dperr.HasKind(err, dperr.KindUndefinedSensitivity))
	})

	t.Run("resize lineage remaps the functional usage", func(t *testing.T) {
		t.Parallel()
		data := aggregate(1)
		plan, err := resize.NewPlan(1.5, "r")
		require.NoError(t, err)
		data.Resizes = []resize.Plan{plan}
		declared := privacy.Usage{Epsilon: 1, Delta: 1e-6}
		out, err := run(t, "gaussian", &options.Gaussian{Epsilon: 1, Delta: 1e-6},
			map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Equal(t, declared, *out.Usage)
		assert.Equal(t, plan.FunctionalUsage(declared), *out.FunctionalUsage)
		assert.Less(t, out.FunctionalUsage.Epsilon, declared.Epsilon)
	})

	t.Run("geometric needs integers", func(t *testing.T) {
		t.Parallel()
		_, err := run(t, "geometric", &options.Geometric{Epsilon: 1},
			map[string]*properties.Properties{"data": aggregate(1)}, privacy.DefaultDefinition())
		assert.True(t, dperr.HasKind(err, dperr.KindTypeMismatch))
	})

	t.Run("exponential utility sensitivity", func(t *testing.T) {
		t.Parallel()
		data := records(nil, []float64{0}, []float64{1})
		out, err := run(t, "exponential", &options.Exponential{Epsilon: 1, Candidates: []float64{3, 1, 2}, Alpha: 0.25},
			map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Equal(t, []float64{1}, out.Lower)
		assert.Equal(t, []float64{3}, out.Upper)
		assert.Equal(t, &privacy.Usage{Epsilon: 1}, out.Usage)

		rule, err := privacy.LookupNeighboring(privacy.AddRemove)
		require.NoError(t, err)
		assert.Equal(t, 0.75, UtilitySensitivity(rule, 0.25, 1))
	})

	t.Run("exponential over two columns", func(t *testing.T) {
		t.Parallel()
		data := records(nil, []float64{0, 0}, []float64{1, 1})
		_, err := run(t, "exponential", &options.Exponential{Epsilon: 1, Candidates: []float64{1}, Alpha: 0.5},
			map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
		assert.True(t, dperr.HasKind(err, dperr.KindTypeMismatch))
	})
}

func TestTransforms(t *testing.T) {
	t.Parallel()

	t.Run("clamp tightens known bounds", func(t *testing.T) {
		t.Parallel()
		data := records(nil, []float64{-5}, []float64{5})
		out, err := run(t, "clamp", &options.Clamp{Lower: []float64{0}, Upper: []float64{10}},
			map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Equal(t, []float64{0}, out.Lower)
		assert.Equal(t, []float64{5}, out.Upper)
		assert.Equal(t, []float64{-5}, data.Lower, "inputs are never mutated")
	})

	t.Run("clamp rejects inverted bounds", func(t *testing.T) {
		t.Parallel()
		_, err := run(t, "clamp", &options.Clamp{Lower: []float64{1}, Upper: []float64{0}},
			map[string]*properties.Properties{"data": records(nil, []float64{0}, []float64{1})}, privacy.DefaultDefinition())
		assert.True(t, dperr.HasKind(err, dperr.KindInvalidOption))
	})

	t.Run("impute clears nullity and widens bounds", func(t *testing.T) {
		t.Parallel()
		data := records(nil, []float64{0}, []float64{1})
		data.Nullable = true
		out, err := run(t, "impute", &options.Impute{Distribution: "uniform", Lower: []float64{-1}, Upper: []float64{0.5}},
			map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.False(t, out.Nullable)
		assert.Equal(t, []float64{-1}, out.Lower)
		assert.Equal(t, []float64{1}, out.Upper)
	})

	t.Run("resize records its plan", func(t *testing.T) {
		t.Parallel()
		out, err := run(t, "resize", &options.Resize{NumberRows: 7, Proportion: 2.5, Distribution: "uniform", Lower: []float64{0}, Upper: []float64{1}},
			map[string]*properties.Properties{"data": records(nil, []float64{0}, []float64{1})}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Equal(t, int64(7), *out.NumRecords)
		assert.Equal(t, []resize.Plan{{C: 3, S: 2.5 / 3}}, out.Resizes)
	})

	t.Run("partition and index", func(t *testing.T) {
		t.Parallel()
		data := records(nil, []float64{0}, []float64{1})
		data.KeyColumns = []string{"region"}
		parts, err := run(t, "partition", &options.Partition{By: "region", Categories: []string{"a", "b"}},
			map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Equal(t, catalog.ShapePartitions, parts.Shape)

		out, err := run(t, "index", &options.Index{Key: "b"},
			map[string]*properties.Properties{"data": parts}, privacy.DefaultDefinition())
		require.NoError(t, err)
		assert.Equal(t, catalog.ShapeTable, out.Shape)
		assert.Equal(t, []privacy.PartitionKey{{Partition: "n", Key: "b"}}, out.Lineage)

		_, err = run(t, "index", &options.Index{Key: "c"},
			map[string]*properties.Properties{"data": parts}, privacy.DefaultDefinition())
		assert.True(t, dperr.HasKind(err, dperr.KindInvalidOption))

		_, err = run(t, "partition", &options.Partition{By: "city", Categories: []string{"a"}},
			map[string]*properties.Properties{"data": data}, privacy.DefaultDefinition())
		assert.True(t, dperr.HasKind(err, dperr.KindTypeMismatch))
	})
}

func TestDatasource(t *testing.T) {
	t.Parallel()

	base := func() *options.Datasource {
		return &options.Datasource{
			Source:           "inline",
			Columns:          []string{"x"},
			Rows:             [][]float64{{1}, {2}},
			MaxContributions: 2,
		}
	}

	out, err := run(t, "datasource", base(), nil, privacy.DefaultDefinition())
	require.NoError(t, err)
	assert.True(t, out.Private)
	assert.Nil(t, out.NumRecords, "private row counts are not public")
	assert.Equal(t, 2.0, out.CStability)

	pub := base()
	pub.Public = true
	out, err = run(t, "datasource", pub, nil, privacy.DefaultDefinition())
	require.NoError(t, err)
	assert.False(t, out.Private)
	assert.Equal(t, int64(2), *out.NumRecords)

	tests := []struct {
		name   string
		mutate func(o *options.Datasource)
	}{
		{name: "unknown source", mutate: func(o *options.Datasource) { o.Source = "s3" }},
		{name: "csv without path", mutate: func(o *options.Datasource) { o.Source = "csv"; o.Rows = nil }},
		{name: "rows outside inline", mutate: func(o *options.Datasource) { o.Source = "postgres"; o.Query = "select 1" }},
		{name: "no columns", mutate: func(o *options.Datasource) { o.Columns = nil; o.Rows = nil }},
		{name: "duplicate column", mutate: func(o *options.Datasource) { o.Keys = []string{"x"} }},
		{name: "ragged row", mutate: func(o *options.Datasource) { o.Rows = [][]float64{{1, 2}} }},
		{name: "zero contributions", mutate: func(o *options.Datasource) { o.MaxContributions = 0 }},
		{name: "missing key rows", mutate: func(o *options.Datasource) { o.Keys = []string{"k"} }},
		{name: "half bounds", mutate: func(o *options.Datasource) { o.Lower = []float64{0} }},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			o := base()
			tt.mutate(o)
			_, err := run(t, "datasource", o, nil, privacy.DefaultDefinition())
			require.Error(t, err)
			assert.True(t, dperr.HasKind(err, dperr.KindInvalidOption), "got %v", err)
		})
	}
}

func TestLiteral(t *testing.T) {
	t.Parallel()

	out, err := run(t, "literal", &options.Literal{Value: []float64{1, 2}}, nil, privacy.DefaultDefinition())
	require.NoError(t, err)
	assert.Equal(t, []string{"c0", "c1"}, out.Columns)
	assert.False(t, out.Private)

	_, err = run(t, "literal", &options.Literal{Value: []float64{1}, Names: []string{"a", "b"}}, nil, privacy.DefaultDefinition())
	assert.True(t, dperr.HasKind(err, dperr.KindInvalidOption))
}
