// Package options defines the Go structs that component options decode
// into. Fields are matched to manifest options through their `cty` tag, and
// catalog.CheckParity verifies the two stay in step.
package options

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/vk/dpgraph/internal/resize"
)

type Literal struct {
	Value []float64 `cty:"value"`
	Names []string  `cty:"names"`
}

// Source names a datasource backend.
type Source string

const (
	SourceInline   Source = "inline"
	SourceCSV      Source = "csv"
	SourcePostgres Source = "postgres"
)

type Datasource struct {
	Source           string              `cty:"source"`
	Path             string              `cty:"path"`
	Query            string              `cty:"query"`
	Columns          []string            `cty:"columns"`
	Keys             []string            `cty:"keys"`
	Rows             [][]float64         `cty:"rows"`
	KeyRows          map[string][]string `cty:"key_rows"`
	Public           bool                `cty:"public"`
	Nullable         bool                `cty:"nullable"`
	MaxContributions int64               `cty:"max_contributions"`
	NumRecords       *int64              `cty:"num_records"`
	Lower            []float64           `cty:"lower"`
	Upper            []float64           `cty:"upper"`
}

type Clamp struct {
	Lower []float64 `cty:"lower"`
	Upper []float64 `cty:"upper"`
}

type Impute struct {
	Distribution string    `cty:"distribution"`
	Lower        []float64 `cty:"lower"`
	Upper        []float64 `cty:"upper"`
	Shift        []float64 `cty:"shift"`
	Scale        []float64 `cty:"scale"`
}

// Imputation converts the options into imputation parameters.
func (o *Impute) Imputation() resize.Imputation {
	return resize.Imputation{
		Distribution: resize.Distribution(o.Distribution),
		Lower:        o.Lower,
		Upper:        o.Upper,
		Shift:        o.Shift,
		Scale:        o.Scale,
	}
}

type Resize struct {
	NumberRows   int64     `cty:"number_rows"`
	Proportion   float64   `cty:"proportion"`
	Distribution string    `cty:"distribution"`
	Lower        []float64 `cty:"lower"`
	Upper        []float64 `cty:"upper"`
	Shift        []float64 `cty:"shift"`
	Scale        []float64 `cty:"scale"`
}

// Imputation converts the padding options into imputation parameters.
func (o *Resize) Imputation() resize.Imputation {
	return resize.Imputation{
		Distribution: resize.Distribution(o.Distribution),
		Lower:        o.Lower,
		Upper:        o.Upper,
		Shift:        o.Shift,
		Scale:        o.Scale,
	}
}

type Partition struct {
	By         string   `cty:"by"`
	Categories []string `cty:"categories"`
}

type Index struct {
	Key string `cty:"key"`
}

type Variance struct {
	FiniteSampleCorrection bool `cty:"finite_sample_correction"`
}

type Quantile struct {
	Alpha float64 `cty:"alpha"`
}

type Laplace struct {
	Epsilon float64 `cty:"epsilon"`
}

type Gaussian struct {
	Epsilon float64 `cty:"epsilon"`
	Delta   float64 `cty:"delta"`
}

type Geometric struct {
	Epsilon   float64 `cty:"epsilon"`
	Delta     float64 `cty:"delta"`
	MaxTrials *int64  `cty:"max_trials"`
	Lower     *int64  `cty:"lower"`
	Upper     *int64  `cty:"upper"`
}

type Exponential struct {
	Epsilon    float64   `cty:"epsilon"`
	Candidates []float64 `cty:"candidates"`
	Alpha      float64   `cty:"alpha"`
}

// factories maps every implemented kind to a constructor for its option
// struct. Kinds without options map to nil.
var factories = map[string]func() any{
	"literal":     func() any { return new(Literal) },
	"datasource":  func() any { return new(Datasource) },
	"clamp":       func() any { return new(Clamp) },
	"impute":      func() any { return new(Impute) },
	"resize":      func() any { return new(Resize) },
	"partition":   func() any { return new(Partition) },
	"index":       func() any { return new(Index) },
	"count":       nil,
	"sum":         nil,
	"mean":        nil,
	"variance":    func() any { return new(Variance) },
	"quantile":    func() any { return new(Quantile) },
	"add":         nil,
	"subtract":    nil,
	"multiply":    nil,
	"divide":      nil,
	"laplace":     func() any { return new(Laplace) },
	"gaussian":    func() any { return new(Gaussian) },
	"geometric":   func() any { return new(Geometric) },
	"exponential": func() any { return new(Exponential) },
}

// Kinds returns every kind with an option definition, in lexical order.
func Kinds() []string {
	kinds := make([]string, 0, len(factories))
	for k := range factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Types returns the option struct type of every kind, nil for kinds without
// options, in the form catalog.CheckParity expects.
func Types() map[string]reflect.Type {
	types := make(map[string]reflect.Type, len(factories))
	for kind, f := range factories {
		if f == nil {
			types[kind] = nil
			continue
		}
		types[kind] = reflect.TypeOf(f()).Elem()
	}
	return types
}

// Decode converts a resolved option object into the option struct of kind.
// It returns nil for kinds without options.
func Decode(kind string, obj cty.Value) (any, error) {
	f, ok := factories[kind]
	if !ok {
		return nil, fmt.Errorf("no options defined for component kind %q", kind)
	}
	if f == nil {
		return nil, nil
	}
	target := f()
	if err := gocty.FromCtyValue(obj, target); err != nil {
		return nil, err
	}
	return target, nil
}
