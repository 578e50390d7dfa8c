package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

const analysisHCL = `
budget {
  epsilon = 1
}

component "datasource" "ages" {
  columns = ["age"]
  rows    = [[20], [35], [50], [61]]
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

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Execute(context.Background(), &stdout, &stderr, args)
	return stdout.String(), err
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr), "expected an ExitError, got %v", err)
	return exitErr.Code
}

func TestValidateCommand(t *testing.T) {
	path := writeFile(t, "analysis.hcl", analysisHCL)

	out, err := execute(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis is valid: 4 nodes, 1 mechanisms, 1 release points.")
	assert.Contains(t, out, "Privacy usage: (ε=0.5, δ=0)")

	_, err = execute(t, "validate", path, "--epsilon", "0.25")
	require.Error(t, err)
	assert.Equal(t, ExitValidation, exitCode(t, err))
	assert.ErrorContains(t, err, "analysis is invalid")

	_, err = execute(t, "validate", path, "--epsilon", "-1")
	assert.Equal(t, ExitConfig, exitCode(t, err))
}

func TestValidateCommandReportsEveryError(t *testing.T) {
	path := writeFile(t, "analysis.hcl", `
component "count" "n" {
  data = node.missing
}

component "laplace" "noisy" {
  data    = node.n
  epsilon = 1
  release = true
}

component "median" "m" {
  data = node.n
}
`)
	_, err := execute(t, "validate", path)
	require.Error(t, err)
	assert.Equal(t, ExitValidation, exitCode(t, err))
	assert.ErrorContains(t, err, "missing")
	assert.ErrorContains(t, err, "median")
}

func TestReleaseCommand(t *testing.T) {
	path := writeFile(t, "analysis.hcl", analysisHCL)

	first, err := execute(t, "release", path, "--seed", seed)
	require.NoError(t, err)
	second, err := execute(t, "release", path, "--seed", seed)
	require.NoError(t, err)
	assert.JSONEq(t, first, second, "seeded releases are reproducible")
	assert.Contains(t, first, `"noisy_total"`)

	yamlOut, err := execute(t, "release", path, "--seed", seed, "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, yamlOut, "noisy_total:")
	assert.Contains(t, yamlOut, "epsilon: 0.5")
}

func TestReleaseCommandLedger(t *testing.T) {
	path := writeFile(t, "analysis.hcl", analysisHCL)
	ledgerDir := t.TempDir()
	args := []string{"release", path, "--ledger", ledgerDir, "--lifetime-epsilon", "0.75"}

	_, err := execute(t, args...)
	require.NoError(t, err)
	_, err = execute(t, args...)
	require.Error(t, err)
	assert.Equal(t, ExitValidation, exitCode(t, err))
	assert.ErrorContains(t, err, "lifetime budget")
}

func TestReleaseCommandEvaluationFailure(t *testing.T) {
	path := writeFile(t, "analysis.hcl", `
component "datasource" "ages" {
  source  = "csv"
  path    = "absent.csv"
  columns = ["age"]
}

component "count" "n" {
  data = node.ages
}

component "geometric" "noisy_n" {
  data    = node.n
  epsilon = 1
  release = true
}
`)
	out, err := execute(t, "release", path)
	require.Error(t, err)
	assert.Equal(t, ExitEvaluation, exitCode(t, err))
	assert.Empty(t, out, "a failed release prints nothing")
}

func TestCatalogCommand(t *testing.T) {
	out, err := execute(t, "catalog")
	require.NoError(t, err)
	for _, kind := range []string{"datasource", "laplace", "exponential", "partition"} {
		assert.Contains(t, out, kind)
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "dpgraph ")
}

func TestUsageErrors(t *testing.T) {
	testCases := []struct {
		name string
		args []string
	}{
		{name: "unknown command", args: []string{"publish"}},
		{name: "missing analysis", args: []string{"validate"}},
		{name: "unknown flag", args: []string{"release", "a.hcl", "--no-such-flag"}},
		{name: "bad output", args: []string{"release", "a.hcl", "-o", "xml"}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := execute(t, tc.args...)
			require.Error(t, err)
			assert.Equal(t, ExitConfig, exitCode(t, err))
		})
	}
}
