package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/spf13/cobra"

	"github.com/vk/dpgraph/internal/app"
	"github.com/vk/dpgraph/internal/privacy"
)

// command carries the state shared by every subcommand of one invocation.
type command struct {
	stdout, stderr io.Writer

	cfgFile    string
	cfg        *app.Config
	configPath string
}

// NewRootCommand builds the command tree. Output goes to stdout, logs to
// stderr.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &command{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "dpgraph",
		Short: "Certify and execute differentially private analyses",
		Long: `dpgraph - certify and execute differentially private analyses

An analysis is a graph of components written in HCL. dpgraph validates that
every released value is protected by a noise mechanism and that the total
privacy usage fits the budget, then evaluates the graph and prints the
released values.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			var err error
			c.cfg, c.configPath, err = LoadConfig(c.cfgFile, cmd.Flags())
			if err != nil {
				return configError("loading configuration", err)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default: auto-discover dpgraph.yaml)")
	flags.String("log-level", "info", "logging level: debug, info, warn, error")
	flags.String("log-format", "text", "log output format: text or json")
	flags.Int("workers", 0, "number of concurrent evaluation workers")
	flags.String("catalog-dir", "", "directory of component manifests overriding the built-in catalog")
	flags.String("seed", "", "hex-encoded 32-byte entropy seed (reproducible, not private)")
	flags.Uint("precision", 0, "mantissa bits for arbitrary-precision sampling")
	flags.String("ledger", "", "directory of the persistent privacy ledger (default: in memory)")
	flags.Float64("lifetime-epsilon", 0, "lifetime epsilon per dataset (0 disables the limit)")
	flags.Float64("lifetime-delta", 0, "lifetime delta per dataset")
	flags.Int("healthcheck-port", 0, "port for the health and metrics server, 0 is disabled")
	flags.String("database-url", "", "PostgreSQL connection string for postgres datasources")

	root.AddCommand(c.validateCommand(), c.releaseCommand(), c.catalogCommand(), versionCommand(stdout))
	return root
}

// Execute runs the command tree with args.
func Execute(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			return err
		}
		// Cobra's own errors are argument and flag problems.
		return &ExitError{Code: ExitConfig, Message: err.Error()}
	}
	return nil
}

// newApp builds the application for one command.
func (c *command) newApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, c.stderr, c.cfg)
	if err != nil {
		return nil, configError("starting dpgraph", err)
	}
	return a, nil
}

// budgetFlags registers --epsilon and --delta and returns a function
// producing the budget they describe, or nil when --epsilon is unset.
func budgetFlags(cmd *cobra.Command) func() *privacy.Usage {
	epsilon := cmd.Flags().Float64("epsilon", math.NaN(), "budget epsilon overriding the analysis budget")
	delta := cmd.Flags().Float64("delta", 0, "budget delta, used with --epsilon")
	return func() *privacy.Usage {
		if !cmd.Flags().Changed("epsilon") {
			return nil
		}
		return &privacy.Usage{Epsilon: *epsilon, Delta: *delta}
	}
}

func validateBudget(budget *privacy.Usage) error {
	if budget == nil {
		return nil
	}
	if err := budget.Validate(); err != nil {
		return configError("invalid budget", err)
	}
	return nil
}

func (c *command) printf(format string, args ...any) {
	fmt.Fprintf(c.stdout, format, args...)
}
