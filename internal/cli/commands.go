package cli

import (
	"fmt"
	"io"
	"runtime/debug"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/vk/dpgraph/internal/release"
)

// Set via ldflags at build time.
var version = "dev"

func (c *command) validateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate ANALYSIS",
		Short: "Certify an analysis without executing it",
		Example: `  # Validate against the budget declared in the analysis
  dpgraph validate analysis.hcl

  # Validate against an explicit budget
  dpgraph validate analysis.hcl --epsilon 1 --delta 1e-6`,
		Args: cobra.ExactArgs(1),
	}
	budget := budgetFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := validateBudget(budget()); err != nil {
			return err
		}
		a, err := c.newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		an, report, err := a.Validate(cmd.Context(), args[0], budget())
		if err != nil {
			return runError("analysis is invalid", err)
		}
		c.printf("Analysis is valid: %d nodes, %d mechanisms, %d release points.\n",
			len(report.Order), len(report.Charges), len(an.ReleaseIDs()))
		c.printf("Privacy usage: %s\n", report.Usage)
		return nil
	}
	return cmd
}

func (c *command) releaseCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release ANALYSIS",
		Short: "Validate and execute an analysis, printing the released values",
		Example: `  # Release as JSON
  dpgraph release analysis.hcl

  # Release as YAML and record the spend in a persistent ledger
  dpgraph release analysis.hcl --output yaml --ledger .dpgraph-ledger --lifetime-epsilon 10`,
		Args: cobra.ExactArgs(1),
	}
	cmd.Flags().StringP("output", "o", "json", "output format: json or yaml")
	budget := budgetFlags(cmd)
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := validateBudget(budget()); err != nil {
			return err
		}
		a, err := c.newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.Release(cmd.Context(), args[0], budget())
		if err != nil {
			return runError("release failed", err)
		}
		out, err := release.Render(r, release.Format(c.cfg.Output.Format))
		if err != nil {
			return &ExitError{Code: ExitGeneral, Message: "rendering release", Err: err}
		}
		_, err = c.stdout.Write(out)
		return err
	}
	return cmd
}

func (c *command) catalogCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "List the component kinds an analysis may use",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			cat := a.Catalog()
			w := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tCLASS\tARGUMENTS\tDESCRIPTION")
			for _, kind := range cat.Kinds() {
				comp, _ := cat.Lookup(kind)
				fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", kind, comp.Class, comp.SortedArguments(), comp.Description)
			}
			return w.Flush()
		},
	}
}

func versionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the dpgraph version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			v := version
			if v == "dev" {
				if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
					v = info.Main.Version
				}
			}
			fmt.Fprintf(stdout, "dpgraph %s\n", v)
		},
	}
}
