// Package cli is the simforge command line: generate, doctor, materials,
// history, init and version.
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/spf13/cobra"
)

// Command groups shown in help output.
const (
	GroupPipeline      = "pipeline"
	GroupConfiguration = "configuration"
)

var rootCmd = &cobra.Command{
	Use:   "simforge",
	Short: "Turn plain-language requests into baked Blender simulations",
	Long: `simforge plans a physics simulation from a plain-language request, enriches it
with real material properties, generates a Blender script, validates it, runs it
headless and scores the result. Low scores can be refined automatically.

Configuration precedence (highest to lowest):
  1. Environment variables (SIMFORGE_*)
  2. .env file in the current directory
  3. Project config (.simforge/config.yml)
  4. User config (~/.config/simforge/config.yml)
  5. Built-in defaults`,
	Example: `  # Generate a simulation
  simforge generate "20 wooden blocks falling onto a concrete floor"

  # Generate and refine up to 3 times
  simforge generate "a silk cloth draped over a sphere" --refine --max-iterations 3

  # Check that Blender and the language model are ready
  simforge doctor`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupPipeline, Title: "Pipeline Commands:"},
		&cobra.Group{ID: GroupConfiguration, Title: "Configuration Commands:"},
	)
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to project config file (default .simforge/config.yml)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})
}

// Execute runs the root command and returns the process exit code. Errors not
// already reported by a command are printed here.
func Execute(ctx context.Context) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	switch {
	case !stderrors.As(err, &ee):
		simerrors.FprintError(os.Stderr, err)
	case ee.code == ExitInvalidArguments && !ee.reported:
		fmt.Fprintf(os.Stderr, "Error: %v\nRun '%s --help' for usage.\n", err, rootCmd.Name())
	case !ee.reported:
		simerrors.FprintError(os.Stderr, ee.err)
	}
	return ExitCodeFor(err)
}

// usageArgs reports positional argument errors as bad invocations.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}
