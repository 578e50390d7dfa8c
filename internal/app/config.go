package app

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/release"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Log             LogConfig      `mapstructure:"log"`
	Workers         int            `mapstructure:"workers"`
	CatalogDir      string         `mapstructure:"catalog_dir"`
	Seed            string         `mapstructure:"seed"`
	Precision       uint           `mapstructure:"precision"`
	Ledger          LedgerConfig   `mapstructure:"ledger"`
	HealthcheckPort int            `mapstructure:"healthcheck_port"`
	Database        DatabaseConfig `mapstructure:"database"`
	Output          OutputConfig   `mapstructure:"output"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LedgerConfig configures the cumulative spend ledger. An empty Path keeps
// the ledger in memory; a zero lifetime epsilon disables the lifetime limit.
type LedgerConfig struct {
	Path            string  `mapstructure:"path"`
	LifetimeEpsilon float64 `mapstructure:"lifetime_epsilon"`
	LifetimeDelta   float64 `mapstructure:"lifetime_delta"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type OutputConfig struct {
	Format string `mapstructure:"format"`
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	var errs []error
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Log.Level))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.Log.Format))
	}
	if cfg.Workers < 1 {
		errs = append(errs, fmt.Errorf("workers must be at least 1, got %d", cfg.Workers))
	}
	if cfg.Seed != "" {
		if _, err := cfg.SeedBytes(); err != nil {
			errs = append(errs, err)
		}
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > math.MaxUint16 {
		errs = append(errs, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort))
	}
	if l := cfg.Ledger; l.LifetimeEpsilon < 0 || l.LifetimeDelta < 0 || l.LifetimeDelta > 1 {
		errs = append(errs, fmt.Errorf("invalid lifetime budget (ε=%g, δ=%g)", l.LifetimeEpsilon, l.LifetimeDelta))
	}
	switch release.Format(cfg.Output.Format) {
	case release.FormatJSON, release.FormatYAML:
	default:
		errs = append(errs, fmt.Errorf("unknown output format %q (known: json, yaml)", cfg.Output.Format))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// SeedBytes decodes the hex seed. A seeded run is reproducible and must
// only be used for tests and replays.
func (c *Config) SeedBytes() ([32]byte, error) {
	var seed [32]byte
	b, err := hex.DecodeString(c.Seed)
	if err != nil || len(b) != len(seed) {
		return seed, fmt.Errorf("seed must be %d hex-encoded bytes", len(seed))
	}
	copy(seed[:], b)
	return seed, nil
}

// Lifetime returns the per-dataset lifetime budget, unlimited when no
// lifetime epsilon is configured.
func (c *Config) Lifetime() privacy.Usage {
	if c.Ledger.LifetimeEpsilon == 0 {
		return privacy.Usage{Epsilon: math.Inf(1), Delta: math.Inf(1)}
	}
	return privacy.Usage{Epsilon: c.Ledger.LifetimeEpsilon, Delta: c.Ledger.LifetimeDelta}
}
