// Package cli implements the labcore command line.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"labcore/internal/core"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigFile string
	EnvFile    string
	Format     string // "json" | "text"
	Storage    string
	DBPath     string

	clock core.Clock
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the labcore root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "labcore",
		Short: "Reagent inventory and experiment execution",
		Long: `labcore tracks laboratory reagents, defines experiment recipes and
executes them against the ledger, recording every run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flag", fmt.Errorf("format %q must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().StringVarP(&opts.ConfigFile, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file with LABCORE_* overrides")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Storage, "storage", "", "storage driver override (memory|sqlite|postgres)")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db", "", "sqlite database path override")

	cmd.AddCommand(newReagentCommand(opts))
	cmd.AddCommand(newInventoryCommand(opts))
	cmd.AddCommand(newRecipeCommand(opts))
	cmd.AddCommand(newExperimentCommand(opts))
	cmd.AddCommand(newIndicatorsCommand(opts))
	cmd.AddCommand(newCatalogCommand(opts))
	cmd.AddCommand(newDemoCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newImportCommand(opts))
	cmd.AddCommand(newArchiveCommand(opts))
	cmd.AddCommand(newServeCommand(opts))

	return cmd
}
