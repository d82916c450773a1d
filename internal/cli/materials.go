package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/ariel-frischer/simforge/internal/materials"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var materialsCmd = &cobra.Command{
	Use:     "materials [name]",
	Aliases: []string{"mat"},
	Short:   "List material profiles or show one (mat)",
	Long: `Without arguments, list every material in the configured table grouped by
family. With a name, show the profile the enricher would use for it: an exact
match, the first profile containing the name, or the default.`,
	Example: `  # List all materials
  simforge materials

  # Show a profile
  simforge materials metal_steel

  # Fuzzy lookup
  simforge materials oak`,
	Args: usageArgs(cobra.MaximumNArgs(1)),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		table, err := loadTable(cfg)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			listMaterials(out, table, materialsSource(cfg))
			return nil
		}
		showMaterial(out, table, args[0])
		return nil
	},
}

func init() {
	materialsCmd.GroupID = GroupConfiguration
	rootCmd.AddCommand(materialsCmd)
}

func listMaterials(w io.Writer, table *materials.Table, source string) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintf(w, "%d materials %s\n", table.Len(), dim("("+source+")"))
	for _, family := range table.Families() {
		fmt.Fprintf(w, "\n%s\n", cyan(strings.ToUpper(family.Name[:1])+family.Name[1:]))
		for _, name := range family.Materials {
			fmt.Fprintf(w, "  %s\n", name)
		}
	}
}

func showMaterial(w io.Writer, table *materials.Table, name string) {
	cyan := color.New(color.FgCyan).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	p, match := table.Lookup(name)
	switch match {
	case materials.MatchExact:
		fmt.Fprintf(w, "%s\n", cyan(p.Name))
	case materials.MatchFuzzy:
		fmt.Fprintf(w, "%s %s\n", cyan(p.Name), dim(fmt.Sprintf("(matched %q)", name)))
	default:
		fmt.Fprintf(w, "%s %s\n", cyan(p.Name), yellow(fmt.Sprintf("(no material matches %q, using default)", name)))
	}

	fmt.Fprintf(w, "  density:          %g kg/m³\n", p.Density)
	fmt.Fprintf(w, "  friction:         %g\n", p.Friction)
	fmt.Fprintf(w, "  restitution:      %g\n", p.Restitution)
	fmt.Fprintf(w, "  linear damping:   %g\n", p.LinearDamping)
	fmt.Fprintf(w, "  angular damping:  %g\n", p.AngularDamping)
	fmt.Fprintf(w, "  collision shape:  %s\n", p.CollisionShape)
	fmt.Fprintf(w, "  collision margin: %g\n", p.CollisionMargin)

	for _, warning := range materials.CheckRealism(p) {
		fmt.Fprintf(w, "  %s %s\n", yellow("⚠"), warning)
	}
}
