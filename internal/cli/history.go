package cli

import (
	"fmt"
	"io"

	"github.com/ariel-frischer/simforge/internal/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:          "history",
	Short:        "View past pipeline runs",
	Long:         `View a log of simforge runs with timestamp, session, category, quality score, refinements and duration.`,
	SilenceUsage: true,
	Args:         usageArgs(cobra.NoArgs),
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		return runHistory(cmd, cfg.Paths.StateDir)
	},
}

func init() {
	historyCmd.GroupID = GroupConfiguration
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 20, "Show the N most recent runs (0 for all)")
	historyCmd.Flags().BoolP("failed", "f", false, "Show only failed runs")
	historyCmd.Flags().Bool("clear", false, "Clear all history")
}

// runHistory runs the history command against stateDir.
func runHistory(cmd *cobra.Command, stateDir string) error {
	clearFlag, _ := cmd.Flags().GetBool("clear")
	failedOnly, _ := cmd.Flags().GetBool("failed")
	limit, _ := cmd.Flags().GetInt("limit")
	out := cmd.OutOrStdout()

	if limit < 0 {
		return usageError(fmt.Errorf("limit must not be negative, got %d", limit))
	}

	if clearFlag {
		if err := history.Save(stateDir, &history.File{}); err != nil {
			return fmt.Errorf("clearing history: %w", err)
		}
		fmt.Fprintln(out, "History cleared.")
		return nil
	}

	f, err := history.Load(stateDir)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	entries := filterEntries(f, failedOnly, limit)
	if len(entries) == 0 {
		if failedOnly {
			fmt.Fprintln(out, "No failed runs.")
		} else {
			fmt.Fprintln(out, "No history available.")
		}
		return nil
	}
	displayEntries(out, entries)
	return nil
}

// filterEntries returns up to limit entries, newest first.
func filterEntries(f *history.File, failedOnly bool, limit int) []history.Entry {
	if !failedOnly {
		return f.Recent(limit)
	}
	var result []history.Entry
	for _, e := range f.Recent(0) {
		if e.Success {
			continue
		}
		result = append(result, e)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}

func displayEntries(w io.Writer, entries []history.Entry) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	for _, e := range entries {
		status := green("ok  ")
		if !e.Success {
			status = red("fail")
		}
		category := e.Category
		if category == "" {
			category = "-"
		}
		fmt.Fprintf(w, "%s  %s  %s  %-12s  score=%.2f  refined=%d  %s\n",
			cyan(e.Timestamp.Format("2006-01-02 15:04:05")),
			e.SessionID,
			status,
			category,
			e.Score,
			e.RefinementCount,
			e.Duration,
		)
		fmt.Fprintf(w, "    %s\n", dim(truncate(e.Request, 72)))
		if e.Error != "" {
			fmt.Fprintf(w, "    %s\n", red(truncate(e.Error, 72)))
		}
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
