package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ariel-frischer/simforge/internal/config"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a commented configuration file",
	Long: `Write the default configuration, with every key documented, to the user config
(~/.config/simforge/config.yml) or, with --project, to .simforge/config.yml.

An existing file is left unchanged unless --force is given.`,
	Example: `  # User-level config
  simforge init

  # Project config that overrides the user config
  simforge init --project`,
	Args: usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		project, _ := cmd.Flags().GetBool("project")
		force, _ := cmd.Flags().GetBool("force")

		path := config.ProjectConfigPath()
		if !project {
			p, err := config.UserConfigPath()
			if err != nil {
				return fmt.Errorf("locating user config: %w", err)
			}
			path = p
		}
		return writeConfigTemplate(cmd, path, force)
	},
}

func init() {
	initCmd.GroupID = GroupConfiguration
	initCmd.Flags().BoolP("project", "p", false, "Create project-level config (.simforge/config.yml)")
	initCmd.Flags().BoolP("force", "f", false, "Overwrite an existing config file")
	rootCmd.AddCommand(initCmd)
}

func writeConfigTemplate(cmd *cobra.Command, path string, force bool) error {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	out := cmd.OutOrStdout()

	if _, err := os.Stat(path); err == nil && !force {
		fmt.Fprintf(out, "%s %s already exists (use --force to overwrite)\n", yellow("⚠"), path)
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(config.GetDefaultConfigTemplate()), 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	fmt.Fprintf(out, "%s Created %s\n", green("✓"), path)
	return nil
}
