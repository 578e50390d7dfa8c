package app

import (
	"context"
	"io"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/privacy"
	dptestutil "github.com/vk/dpgraph/internal/testutil"
)

const seed = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func validConfig() Config {
	return Config{
		Log:     LogConfig{Level: "debug", Format: "text"},
		Workers: 4,
		Seed:    seed,
		Output:  OutputConfig{Format: "json"},
	}
}

func newApp(t *testing.T, mutate func(*Config)) (*App, *dptestutil.SafeBuffer) {
	t.Helper()
	c := validConfig()
	if mutate != nil {
		mutate(&c)
	}
	cfg, err := NewConfig(c)
	require.NoError(t, err)
	logs := &dptestutil.SafeBuffer{}
	a, err := New(context.Background(), logs, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a, logs
}

const ages = `age
20
35
50
61
`

const analysisHCL = `
budget {
  epsilon = 1
}

component "datasource" "ages" {
  source  = "csv"
  path    = "ages.csv"
  columns = ["age"]
}

component "clamp" "bounded" {
  data  = node.ages
  lower = [0]
  upper = [100]
}

component "sum" "total" {
  data = node.bounded
}

component "laplace" "noisy_total" {
  data    = node.total
  epsilon = 0.5
  release = true
}
`

func writeAnalysis(t *testing.T) string {
	t.Helper()
	dir := dptestutil.WriteFiles(t, map[string]string{
		"ages.csv":     ages,
		"analysis.hcl": analysisHCL,
	})
	return filepath.Join(dir, "analysis.hcl")
}

func TestNewConfig(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "bad level", mutate: func(c *Config) { c.Log.Level = "verbose" }, wantErr: "invalid log level"},
		{name: "bad format", mutate: func(c *Config) { c.Log.Format = "xml" }, wantErr: "invalid log format"},
		{name: "no workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: "workers must be at least 1"},
		{name: "short seed", mutate: func(c *Config) { c.Seed = "abcd" }, wantErr: "seed must be 32 hex-encoded bytes"},
		{name: "bad port", mutate: func(c *Config) { c.HealthcheckPort = 70000 }, wantErr: "invalid healthcheck port"},
		{name: "bad lifetime", mutate: func(c *Config) { c.Ledger.LifetimeDelta = 2 }, wantErr: "invalid lifetime budget"},
		{name: "bad output", mutate: func(c *Config) { c.Output.Format = "toml" }, wantErr: "unknown output format"},
	}
	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := validConfig()
			tc.mutate(&c)
			cfg, err := NewConfig(c)
			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(c, *cfg); diff != "" {
				t.Errorf("config changed (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLifetime(t *testing.T) {
	t.Parallel()

	c := validConfig()
	assert.True(t, privacy.Usage{Epsilon: 1e9, Delta: 5}.Within(c.Lifetime()), "no lifetime epsilon means no limit")

	c.Ledger = LedgerConfig{LifetimeEpsilon: 2, LifetimeDelta: 1e-6}
	assert.Equal(t, privacy.Usage{Epsilon: 2, Delta: 1e-6}, c.Lifetime())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	a, logs := newApp(t, nil)
	_, report, err := a.Validate(context.Background(), writeAnalysis(t), nil)
	require.NoError(t, err)
	assert.Equal(t, privacy.Usage{Epsilon: 0.5}, report.Usage)
	assert.Contains(t, logs.String(), "Analysis validated.")

	_, _, err = a.Validate(context.Background(), writeAnalysis(t), &privacy.Usage{Epsilon: 0.1})
	require.Error(t, err)
	assert.True(t, dperr.HasKind(err, dperr.KindBudgetExceeded))
	assert.True(t, IsValidationError(err))
}

func TestRelease(t *testing.T) {
	t.Parallel()

	path := writeAnalysis(t)
	first, _ := newApp(t, nil)
	second, _ := newApp(t, nil)

	r1, err := first.Release(context.Background(), path, nil)
	require.NoError(t, err)
	r2, err := second.Release(context.Background(), path, nil)
	require.NoError(t, err)
	if diff := cmp.Diff(r1, r2); diff != "" {
		t.Errorf("seeded releases differ (-first +second):\n%s", diff)
	}

	spent, err := first.Ledger().Spent(context.Background(), "csv:ages.csv")
	require.NoError(t, err)
	assert.Equal(t, privacy.Usage{Epsilon: 0.5}, spent)
	assert.Contains(t, scrape(t, first), "dpgraph_epsilon_spent_total 0.5")
}

func TestReleaseLifetimeBudget(t *testing.T) {
	t.Parallel()

	path := writeAnalysis(t)
	a, _ := newApp(t, func(c *Config) {
		c.Ledger = LedgerConfig{Path: t.TempDir(), LifetimeEpsilon: 1.2}
	})
	ctx := context.Background()

	_, err := a.Release(ctx, path, nil)
	require.NoError(t, err)
	_, err = a.Release(ctx, path, nil)
	require.NoError(t, err)
	_, err = a.Release(ctx, path, nil)
	require.Error(t, err)
	assert.True(t, dperr.HasKind(err, dperr.KindBudgetExceeded))

	spent, err := a.Ledger().Spent(ctx, "csv:ages.csv")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, spent.Epsilon, 1e-12, "the refused release is not charged")

	body := scrape(t, a)
	assert.Contains(t, body, `dpgraph_releases_total{outcome="ok"} 2`)
	assert.Contains(t, body, `dpgraph_releases_total{outcome="rejected"} 1`)
}

func TestReleaseEvaluationFailure(t *testing.T) {
	t.Parallel()

	dir := dptestutil.WriteFiles(t, map[string]string{
		"ages.csv":     "age\n20\n",
		"analysis.hcl": strings.ReplaceAll(analysisHCL, "ages.csv", "missing.csv"),
	})
	a, _ := newApp(t, nil)
	_, err := a.Release(context.Background(), filepath.Join(dir, "analysis.hcl"), nil)
	require.Error(t, err)
	assert.False(t, IsValidationError(err))
	assert.True(t, dperr.HasKind(err, dperr.KindRuntime))

	spent, err := a.Ledger().Spent(context.Background(), "csv:missing.csv")
	require.NoError(t, err)
	assert.Equal(t, privacy.Usage{}, spent)
}

func TestNewRejectsBrokenCatalog(t *testing.T) {
	t.Parallel()

	cfg, err := NewConfig(validConfig())
	require.NoError(t, err)
	cfg.CatalogDir = dptestutil.WriteFiles(t, map[string]string{
		"median.hcl": `
component "median" {
  name  = "Median"
  class = "aggregation"
  argument "data" {
    type        = "table"
    description = "Input records."
  }
  return {
    type        = "vector"
    description = "The median."
  }
}
`,
	})
	_, err = New(context.Background(), io.Discard, cfg)
	require.Error(t, err)
}

func TestRoutes(t *testing.T) {
	t.Parallel()

	a, _ := newApp(t, nil)
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, 200, rec.Code)
	assert.Equal(t, "OK\n", rec.Body.String())
}

func scrape(t *testing.T, a *App) string {
	t.Helper()
	rec := httptest.NewRecorder()
	a.routes().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}
