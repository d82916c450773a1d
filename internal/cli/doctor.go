package cli

import (
	"fmt"

	"github.com/ariel-frischer/simforge/internal/health"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:     "doctor",
	Aliases: []string{"doc"},
	Short:   "Check that Blender, the language model and the output directory are ready (doc)",
	Long: `Run every readiness check concurrently and report each result:
  - the language model command resolves on PATH
  - Blender starts and reports its version
  - the output directory exists or can be created, and is writable
  - the material table loads`,
	Example: `  simforge doctor`,
	Args:    usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.close()

		report := health.RunHealthChecks(cmd.Context(), health.DefaultProbeTimeout, a.probes()...)
		fmt.Fprint(cmd.OutOrStdout(), health.FormatReport(report))
		if !report.Passed {
			return reported(ExitMissingDependencies, fmt.Errorf("%d readiness check(s) failed", len(report.Failed())))
		}
		return nil
	},
}

func init() {
	doctorCmd.GroupID = GroupConfiguration
	rootCmd.AddCommand(doctorCmd)
}
