package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"slices"

	"github.com/vk/dpgraph/internal/analysis"
	"github.com/vk/dpgraph/internal/catalog"
	"github.com/vk/dpgraph/internal/ctxlog"
	"github.com/vk/dpgraph/internal/datasource"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/executor"
	"github.com/vk/dpgraph/internal/ledger"
	"github.com/vk/dpgraph/internal/metrics"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/release"
	"github.com/vk/dpgraph/internal/sampler"
	"github.com/vk/dpgraph/internal/validator"
)

// ErrLoad marks analyses that could not be read or parsed.
var ErrLoad = errors.New("cannot load analysis")

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	ctx        context.Context
	logger     *slog.Logger
	config     *Config
	catalog    *catalog.Catalog
	validator  *validator.Validator
	ledger     ledger.Ledger
	metrics    *metrics.Metrics
	postgres   *datasource.Postgres
	httpServer *http.Server
}

// New builds an App whose logs go to logW. The catalog is checked against
// the option structs, the propagation rules and the evaluators before
// anything else happens. Close must be called to release the ledger, the
// database pool and the health check server.
func New(ctx context.Context, logW io.Writer, cfg *Config) (*App, error) {
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, logW)
	ctx = ctxlog.WithLogger(ctx, logger)
	logger.Debug("Logger configured successfully.")

	cat, err := loadCatalog(ctx, cfg.CatalogDir)
	if err != nil {
		return nil, err
	}
	v, err := validator.New(ctx, cat)
	if err != nil {
		return nil, fmt.Errorf("catalog does not match the propagation rules: %w", err)
	}
	if missing := missingEvaluators(cat); len(missing) > 0 {
		return nil, fmt.Errorf("catalog kinds without an evaluator: %v", missing)
	}
	logger.Debug("Catalog validation passed.", "kinds", len(cat.Kinds()))

	a := &App{
		ctx:       ctx,
		logger:    logger,
		config:    cfg,
		catalog:   cat,
		validator: v,
		metrics:   metrics.New(),
	}
	if a.ledger, err = openLedger(cfg.Ledger.Path); err != nil {
		return nil, err
	}
	if cfg.Database.URL != "" {
		if a.postgres, err = datasource.NewPostgres(ctx, cfg.Database.URL); err != nil {
			_ = a.ledger.Close()
			return nil, err
		}
		logger.Debug("PostgreSQL datasource configured.")
	}
	a.healthCheckServer()
	return a, nil
}

func loadCatalog(ctx context.Context, dir string) (*catalog.Catalog, error) {
	if dir == "" {
		return catalog.Default(ctx)
	}
	cat, err := catalog.LoadDir(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog from %s: %w", dir, err)
	}
	return cat, nil
}

func missingEvaluators(cat *catalog.Catalog) []string {
	known := executor.Kinds()
	var missing []string
	for _, kind := range cat.Kinds() {
		if !slices.Contains(known, kind) {
			missing = append(missing, kind)
		}
	}
	return missing
}

func openLedger(path string) (ledger.Ledger, error) {
	if path == "" {
		return ledger.NewMemory(), nil
	}
	return ledger.OpenBadger(path)
}

// Catalog returns the component catalog in use.
func (a *App) Catalog() *catalog.Catalog {
	return a.catalog
}

// Metrics returns the application's collectors.
func (a *App) Metrics() *metrics.Metrics {
	return a.metrics
}

// Ledger returns the spend ledger.
func (a *App) Ledger() ledger.Ledger {
	return a.ledger
}

// Close releases everything New acquired.
func (a *App) Close() error {
	var errs []error
	errs = append(errs, a.closeHealthCheckServer())
	if a.postgres != nil {
		a.postgres.Close()
	}
	errs = append(errs, a.ledger.Close())
	return errors.Join(errs...)
}

// Validate loads the analysis at path and certifies it against budget, or
// against the analysis' own budget when budget is nil.
func (a *App) Validate(ctx context.Context, path string, budget *privacy.Usage) (*analysis.Analysis, *validator.Report, error) {
	return a.validate(a.withLogger(ctx, path), path, budget)
}

func (a *App) withLogger(ctx context.Context, path string) context.Context {
	return ctxlog.With(ctxlog.WithLogger(ctx, a.logger), "analysis", path)
}

func (a *App) validate(ctx context.Context, path string, budget *privacy.Usage) (*analysis.Analysis, *validator.Report, error) {
	an, err := analysis.LoadFile(ctx, path)
	if err != nil {
		a.metrics.ObserveValidation(metrics.OutcomeRejected)
		return nil, nil, fmt.Errorf("%w %s: %w", ErrLoad, path, err)
	}
	report, err := a.validator.Validate(ctx, an, budget)
	if err != nil {
		a.metrics.ObserveValidation(metrics.OutcomeRejected)
		return nil, nil, err
	}
	a.metrics.ObserveValidation(metrics.OutcomeOK)
	return an, report, nil
}

// Release validates the analysis at path, checks the lifetime budget of the
// datasets it reads, executes it and records the spend. Nothing is charged
// when any step fails.
func (a *App) Release(ctx context.Context, path string, budget *privacy.Usage) (*release.Release, error) {
	ctx = a.withLogger(ctx, path)
	logger := ctxlog.FromContext(ctx)
	an, report, err := a.validate(ctx, path, budget)
	if err != nil {
		a.metrics.ObserveRelease(metrics.OutcomeRejected, privacy.Usage{})
		return nil, err
	}

	datasets := ledger.Datasets(an, report)
	lifetime := a.config.Lifetime()
	if err := ledger.Check(ctx, a.ledger, datasets, report.Usage, lifetime); err != nil {
		a.metrics.ObserveRelease(metrics.OutcomeRejected, privacy.Usage{})
		return nil, err
	}

	r, err := a.execute(ctx, an, report)
	if err != nil {
		a.metrics.ObserveRelease(metrics.OutcomeFailed, privacy.Usage{})
		return nil, err
	}
	if err := a.ledger.Charge(ctx, datasets, r.Usage, lifetime); err != nil {
		a.metrics.ObserveRelease(metrics.OutcomeRejected, privacy.Usage{})
		return nil, err
	}
	a.metrics.ObserveRelease(metrics.OutcomeOK, r.Usage)
	logger.Info("Spend recorded.", "datasets", datasets, "usage", r.Usage.String())
	return r, nil
}

func (a *App) execute(ctx context.Context, an *analysis.Analysis, report *validator.Report) (*release.Release, error) {
	s, err := a.newSampler()
	if err != nil {
		return nil, err
	}
	sources := datasource.NewRegistry()
	sources.Register(options.SourceCSV, datasource.CSV{FS: os.DirFS(an.BaseDir)})
	if a.postgres != nil {
		sources.Register(options.SourcePostgres, a.postgres)
	}
	exec, err := executor.New(an, report, s,
		executor.WithWorkers(a.config.Workers),
		executor.WithDatasources(sources),
	)
	if err != nil {
		return nil, err
	}
	return exec.Execute(ctx)
}

func (a *App) newSampler() (*sampler.Sampler, error) {
	src := sampler.NewCryptoSource()
	if a.config.Seed != "" {
		seed, err := a.config.SeedBytes()
		if err != nil {
			return nil, err
		}
		a.logger.Warn("Using a seeded entropy source; releases are reproducible and not private.")
		src = sampler.NewSeededSource(seed)
	}
	var opts []sampler.Option
	if a.config.Precision > 0 {
		opts = append(opts, sampler.WithPrecision(a.config.Precision))
	}
	return sampler.New(src, opts...)
}

// IsValidationError reports whether err came from certifying an analysis
// rather than from running it.
func IsValidationError(err error) bool {
	if errors.Is(err, ErrLoad) {
		return true
	}
	var evalErr *dperr.EvaluationError
	if errors.As(err, &evalErr) {
		return false
	}
	var (
		graphErr *dperr.GraphError
		typeErr  *dperr.TypeError
		privErr  *dperr.PrivacyError
	)
	return errors.As(err, &graphErr) || errors.As(err, &typeErr) || errors.As(err, &privErr)
}
