package cli

import (
	"fmt"
	"io"

	"github.com/ariel-frischer/simforge/internal/version"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Display version information (v)",
	Long:    "Display version, commit, build date, and Go version information for simforge",
	Example: `  # Show version info
  simforge version

  # Plain output (for scripts)
  simforge version --plain`,
	Args: usageArgs(cobra.NoArgs),
	Run: func(cmd *cobra.Command, _ []string) {
		plain, _ := cmd.Flags().GetBool("plain")
		info := version.Current()
		if plain {
			printPlainVersion(cmd.OutOrStdout(), info)
			return
		}
		printPrettyVersion(cmd.OutOrStdout(), info)
	},
}

func init() {
	versionCmd.GroupID = GroupConfiguration
	versionCmd.Flags().Bool("plain", false, "Plain output without formatting")
	rootCmd.AddCommand(versionCmd)
}

func printPlainVersion(w io.Writer, info version.Info) {
	fmt.Fprintf(w, "simforge %s\n", info.Version)
	fmt.Fprintf(w, "commit: %s\n", info.Commit)
	fmt.Fprintf(w, "built: %s\n", info.BuildDate)
	fmt.Fprintf(w, "go: %s\n", info.GoVersion)
	fmt.Fprintf(w, "platform: %s\n", info.Platform)
}

func printPrettyVersion(w io.Writer, info version.Info) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	v := info.Version
	if version.IsDevBuild() {
		v = yellow(v + " (development build)")
	}
	fmt.Fprintf(w, "%s %s\n", cyan("simforge"), v)
	rows := []struct{ label, value string }{
		{"Commit", info.ShortCommit()},
		{"Built", info.BuildDate},
		{"Go", info.GoVersion},
		{"Platform", info.Platform},
	}
	for _, r := range rows {
		fmt.Fprintf(w, "  %s %s\n", dim(fmt.Sprintf("%-9s", r.label+":")), r.value)
	}
}
