// Package dpgraph certifies and executes differentially private analyses.
//
// An analysis is a graph of components (datasources, transforms,
// aggregations and noise mechanisms) exchanged as an opaque byte buffer.
// ValidateAnalysis proves, without touching any data, that every release
// point is protected by a mechanism and computes the composed privacy
// usage. ComputeRelease validates again, refuses analyses over budget
// before drawing any randomness, evaluates the graph and returns the
// released values as bytes.
package dpgraph

import (
	"context"
	"os"
	"sync"

	"github.com/vk/dpgraph/internal/analysis"
	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/datasource"
	"github.com/vk/dpgraph/internal/executor"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/release"
	"github.com/vk/dpgraph/internal/sampler"
	"github.com/vk/dpgraph/internal/validator"
)

// Budget is an (epsilon, delta) privacy budget or usage.
type Budget struct {
	Epsilon float64
	Delta   float64
}

var defaultValidator = sync.OnceValues(func() (*validator.Validator, error) {
	ctx := context.Background()
	cat, err := catalog.Default(ctx)
	if err != nil {
		return nil, err
	}
	return validator.New(ctx, cat)
})

// ValidateAnalysis decodes and certifies an analysis against its own
// budget. The error, when not nil, lists every problem found.
func ValidateAnalysis(b []byte) error {
	_, _, err := validate(context.Background(), b, nil)
	return err
}

// ComputePrivacyUsage returns the composed usage an analysis would consume,
// without executing it.
func ComputePrivacyUsage(b []byte) (Budget, error) {
	_, report, err := validate(context.Background(), b, nil)
	if err != nil {
		return Budget{}, err
	}
	return Budget(report.Usage), nil
}

// ComputeRelease certifies the analysis against the smaller of budget and
// the analysis' own budget, evaluates it with the operating system's
// entropy and returns the encoded release. No partial release is ever
// returned.
func ComputeRelease(b []byte, budget Budget) ([]byte, error) {
	return computeRelease(context.Background(), b, budget, sampler.NewCryptoSource())
}

func computeRelease(ctx context.Context, b []byte, budget Budget, src sampler.Source) ([]byte, error) {
	limit := privacy.Usage(budget)
	a, report, err := validate(ctx, b, &limit)
	if err != nil {
		return nil, err
	}
	s, err := sampler.New(src)
	if err != nil {
		return nil, err
	}
	sources := datasource.NewRegistry()
	sources.Register(options.SourceCSV, datasource.CSV{FS: os.DirFS(".")})
	exec, err := executor.New(a, report, s, executor.WithDatasources(sources))
	if err != nil {
		return nil, err
	}
	r, err := exec.Execute(ctx)
	if err != nil {
		return nil, err
	}
	return release.Encode(r)
}

// validate decodes b and validates it against the smaller of budget and the
// analysis budget.
func validate(ctx context.Context, b []byte, budget *privacy.Usage) (*analysis.Analysis, *validator.Report, error) {
	v, err := defaultValidator()
	if err != nil {
		return nil, nil, err
	}
	a, err := analysis.Decode(b)
	if err != nil {
		return nil, nil, err
	}
	if budget != nil && a.Budget != nil {
		tightest := privacy.Min(*budget, *a.Budget)
		budget = &tightest
	}
	report, err := v.Validate(ctx, a, budget)
	if err != nil {
		return nil, nil, err
	}
	return a, report, nil
}
