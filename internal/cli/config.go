package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/vk/dpgraph/internal/app"
	"github.com/vk/dpgraph/internal/executor"
)

const (
	envPrefix    = "DPGRAPH"
	maxWalkDepth = 25
)

var configNames = []string{"dpgraph.yaml", "dpgraph.yml"}

// flagKeys maps persistent flags to configuration keys.
var flagKeys = map[string]string{
	"log-level":        "log.level",
	"log-format":       "log.format",
	"workers":          "workers",
	"catalog-dir":      "catalog_dir",
	"seed":             "seed",
	"precision":        "precision",
	"ledger":           "ledger.path",
	"lifetime-epsilon": "ledger.lifetime_epsilon",
	"lifetime-delta":   "ledger.lifetime_delta",
	"healthcheck-port": "healthcheck_port",
	"database-url":     "database.url",
	"output":           "output.format",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("workers", executor.DefaultWorkers)
	v.SetDefault("catalog_dir", "")
	v.SetDefault("seed", "")
	v.SetDefault("precision", 0)
	v.SetDefault("ledger.path", "")
	v.SetDefault("ledger.lifetime_epsilon", 0.0)
	v.SetDefault("ledger.lifetime_delta", 0.0)
	v.SetDefault("healthcheck_port", 0)
	v.SetDefault("database.url", "")
	v.SetDefault("output.format", "json")
}

// LoadConfig resolves configuration with the precedence
// flags > env > config file > defaults and validates it.
func LoadConfig(explicitConfigPath string, flags *pflag.FlagSet) (*app.Config, string, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath, err := findConfigFile(explicitConfigPath)
	if err != nil {
		return nil, "", err
	}
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, configPath, fmt.Errorf("reading config file: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, configPath, err
				}
			}
		}
	}

	var raw app.Config
	if err := v.Unmarshal(&raw); err != nil {
		return nil, configPath, fmt.Errorf("unmarshaling config: %w", err)
	}
	raw.Log.Level = strings.ToLower(raw.Log.Level)
	raw.Log.Format = strings.ToLower(raw.Log.Format)
	raw.Output.Format = strings.ToLower(raw.Output.Format)

	cfg, err := app.NewConfig(raw)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

// findConfigFile returns explicitPath when given, otherwise walks up from
// the working directory looking for a config file, stopping at a
// repository root. An empty result means defaults apply.
func findConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	dir, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getting cwd: %w", err)
	}
	for i := 0; i < maxWalkDepth; i++ {
		for _, name := range configNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
		if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", nil
}
