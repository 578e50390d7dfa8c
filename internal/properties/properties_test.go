package properties

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/resize"
)

func TestBounded(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		props Properties
		want  bool
	}{
		{name: "known", props: Properties{Columns: []string{"a"}, Lower: []float64{0}, Upper: []float64{1}}, want: true},
		{name: "unknown", props: Properties{Columns: []string{"a"}}, want: false},
		{name: "short", props: Properties{Columns: []string{"a", "b"}, Lower: []float64{0}, Upper: []float64{1}}, want: false},
		{name: "infinite", props: Properties{Columns: []string{"a"}, Lower: []float64{math.Inf(-1)}, Upper: []float64{1}}, want: false},
		{name: "nan", props: Properties{Columns: []string{"a"}, Lower: []float64{0}, Upper: []float64{math.NaN()}}, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.props.Bounded())
		})
	}
}

func TestSensitivityNorms(t *testing.T) {
	t.Parallel()

	p := Properties{Sensitivity: []float64{3, 4}}
	assert.Equal(t, 7.0, p.L1())
	assert.Equal(t, 5.0, p.L2())
	assert.True(t, p.FiniteSensitivity())

	assert.False(t, (&Properties{}).FiniteSensitivity())
	assert.False(t, (&Properties{Sensitivity: []float64{math.Inf(1)}}).FiniteSensitivity())
	assert.False(t, (&Properties{Sensitivity: []float64{-1}}).FiniteSensitivity())
}

func TestDerive(t *testing.T) {
	t.Parallel()

	usage := privacy.Usage{Epsilon: 1}
	p := &Properties{
		Kind:            "sum",
		Shape:           catalog.ShapeVector,
		Columns:         []string{"a"},
		NumRecords:      Int64(4),
		Lower:           []float64{0},
		Upper:           []float64{1},
		Sensitivity:     []float64{1},
		CStability:      1,
		Private:         true,
		Aggregated:      true,
		Lineage:         []privacy.PartitionKey{{Partition: "p", Key: "a"}},
		Resizes:         []resize.Plan{{C: 1, S: 0.5}},
		Usage:           &usage,
		FunctionalUsage: &usage,
	}
	out := p.Derive("laplace")

	assert.Equal(t, "laplace", out.Kind)
	assert.Nil(t, out.Usage)
	assert.Nil(t, out.FunctionalUsage)

	want := *p
	want.Kind = "laplace"
	want.Usage, want.FunctionalUsage = nil, nil
	if diff := cmp.Diff(&want, out); diff != "" {
		t.Errorf("Derive() mismatch (-want +got):\n%s", diff)
	}

	out.Lower[0] = -1
	*out.NumRecords = 9
	out.Lineage[0].Key = "b"
	assert.Equal(t, []float64{0}, p.Lower)
	assert.Equal(t, int64(4), *p.NumRecords)
	assert.Equal(t, "a", p.Lineage[0].Key)
}
