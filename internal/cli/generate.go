package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/health"
	"github.com/ariel-frischer/simforge/internal/notify"
	"github.com/ariel-frischer/simforge/internal/pipeline"
	"github.com/ariel-frischer/simforge/internal/progress"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// stageOrder is the display order of stage timings.
var stageOrder = []string{
	pipeline.StagePlan,
	pipeline.StageEnrich,
	pipeline.StageGenerate,
	pipeline.StageValidate,
	pipeline.StageExecute,
	pipeline.StageAssess,
	pipeline.StageRefine,
}

var generateCmd = &cobra.Command{
	Use:     "generate <request>",
	Aliases: []string{"gen", "g"},
	Short:   "Generate a baked simulation from a plain-language request (gen, g)",
	Long: `Generate a baked Blender simulation from a plain-language request.

The request is planned by the language model, enriched with material
properties, rendered into a Blender script, validated, executed headless and
scored. With --refine, results below the good-enough score are sent back to
the language model for parameter changes; a change is kept only when it
improves the score.`,
	Example: `  # Rigid body scene written to ./output
  simforge generate "20 wooden blocks falling onto a concrete floor"

  # Choose the output file
  simforge generate "smoke rising from a chimney" -o out/smoke.blend

  # Refine up to 3 times
  simforge generate "a flag waving in the wind" --refine --max-iterations 3

  # Print the expected duration without running Blender
  simforge generate "water filling a glass" --estimate

  # Machine-readable result
  simforge generate "a bouncing rubber ball" --json`,
	Args: usageArgs(cobra.MinimumNArgs(1)),
	RunE: runGenerate,
}

func init() {
	generateCmd.GroupID = GroupPipeline
	generateCmd.Flags().StringP("output", "o", "", "Output .blend file (default <paths.output_dir>/simulation_<timestamp>.blend)")
	generateCmd.Flags().BoolP("refine", "r", false, "Refine results that score below quality.good_enough")
	generateCmd.Flags().Int("max-iterations", 0, "Maximum refinement iterations (0-10, default refinement.max_iterations)")
	generateCmd.Flags().Bool("estimate", false, "Print the estimated processing time and exit")
	generateCmd.Flags().Bool("json", false, "Print the result as JSON")
	generateCmd.Flags().Bool("skip-preflight", false, "Skip the Blender and language model readiness checks")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	request := strings.TrimSpace(strings.Join(args, " "))
	if request == "" {
		return usageError(fmt.Errorf("request must not be empty"))
	}
	output, _ := cmd.Flags().GetString("output")
	estimate, _ := cmd.Flags().GetBool("estimate")
	asJSON, _ := cmd.Flags().GetBool("json")
	skipPreflight, _ := cmd.Flags().GetBool("skip-preflight")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := applyRefinementFlags(cmd, a); err != nil {
		return err
	}

	o, err := a.orchestrator()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if estimate {
		d := o.EstimateDuration(ctx, request)
		fmt.Fprintf(out, "Estimated processing time: %s\n", d)
		return nil
	}

	if !skipPreflight {
		report := o.CheckReady(ctx)
		if !report.Passed {
			fmt.Fprint(cmd.ErrOrStderr(), health.FormatReport(report))
			return reported(ExitMissingDependencies, fmt.Errorf("preflight checks failed"))
		}
	}

	ro := pipeline.RunOptions{OutputPath: output}
	var display *progress.Display
	if !asJSON {
		display = progress.NewDisplay(os.Stdout)
		ro.Progress = display.Update
	}

	res := o.Run(ctx, request, ro)
	a.notifier().OnRunComplete(ctx, notificationRun(request, res))

	if display != nil {
		if res.Success {
			display.Finish(true, "Simulation complete")
		} else {
			display.Finish(false, "Simulation failed")
		}
	}

	if asJSON {
		if err := writeResultJSON(out, res); err != nil {
			return err
		}
	} else {
		printSummary(out, res)
	}

	if err := res.Err(); err != nil {
		if !asJSON {
			simerrors.FprintError(cmd.ErrOrStderr(), err)
		}
		return reported(ExitCodeFor(err), err)
	}
	return nil
}

// applyRefinementFlags lets --refine and --max-iterations override the
// loaded configuration. A positive --max-iterations implies --refine.
func applyRefinementFlags(cmd *cobra.Command, a *app) error {
	if cmd.Flags().Changed("max-iterations") {
		n, _ := cmd.Flags().GetInt("max-iterations")
		if n < 0 || n > 10 {
			return usageError(fmt.Errorf("--max-iterations must be between 0 and 10, got %d", n))
		}
		a.cfg.Refinement.MaxIterations = n
		a.cfg.Refinement.Enabled = n > 0
	}
	if cmd.Flags().Changed("refine") {
		a.cfg.Refinement.Enabled, _ = cmd.Flags().GetBool("refine")
	}
	return nil
}

func notificationRun(request string, res *pipeline.Result) notify.Run {
	run := notify.Run{
		Request:  request,
		Success:  res.Success,
		Output:   res.OutputPath,
		Duration: res.TotalTime,
		Err:      res.Err(),
	}
	if res.Assessment != nil {
		run.Score = res.Assessment.Score
	}
	return run
}

// resultView adds error messages, which Result keeps out of its own JSON.
type resultView struct {
	*pipeline.Result
	Errors []string `json:"errors,omitempty"`
}

func writeResultJSON(w io.Writer, res *pipeline.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resultView{Result: res, Errors: res.ErrorMessages()}); err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	return nil
}

// printSummary writes the human-readable run summary.
func printSummary(w io.Writer, res *pipeline.Result) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	dim := color.New(color.Faint).SprintFunc()

	fmt.Fprintln(w)
	if res.Success {
		fmt.Fprintf(w, "%s %s\n", cyan("Output:     "), res.OutputPath)
	}
	if !res.Plan.IsZero() {
		fmt.Fprintf(w, "%s %s (%d objects, %d frames)\n", cyan("Simulation: "),
			res.Plan.Category(), res.Plan.TotalObjects(), res.Plan.DurationFrames())
	}
	if res.Assessment != nil {
		reason := ""
		if res.Decision != nil {
			reason = fmt.Sprintf(" (%s)", res.Decision.Reason)
		}
		fmt.Fprintf(w, "%s %s%s\n", cyan("Quality:    "), scoreColor(res.Assessment.Score), reason)
	}
	if res.Refinement != nil {
		s := res.Refinement.Summary
		fmt.Fprintf(w, "%s %d accepted, %.2f -> %.2f %s\n", cyan("Refinement: "),
			res.RefinementCount, s.Original, s.Refined, dim("("+string(res.Refinement.Stop)+")"))
	}
	fmt.Fprintf(w, "%s %s\n", cyan("Total time: "), res.TotalTime.Round(time.Millisecond))
	if timings := formatStageTimes(res.StageTimes); timings != "" {
		fmt.Fprintf(w, "  %s\n", dim(timings))
	}

	if res.Assessment != nil && len(res.Assessment.Issues) > 0 {
		fmt.Fprintln(w, "\nIssues:")
		for _, issue := range res.Assessment.Issues {
			fmt.Fprintf(w, "  %s %s\n", yellow("•"), issue)
		}
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintln(w, "\nWarnings:")
		for _, warning := range res.Warnings {
			fmt.Fprintf(w, "  %s %s\n", yellow("⚠"), warning)
		}
	}
	if res.Success {
		fmt.Fprintf(w, "\n%s Session %s\n", green("✓"), res.SessionID)
	}
}

func scoreColor(score float64) string {
	text := fmt.Sprintf("%.2f", score)
	switch {
	case score >= 0.9:
		return color.New(color.FgGreen).Sprint(text)
	case score >= 0.8:
		return color.New(color.FgYellow).Sprint(text)
	default:
		return color.New(color.FgRed).Sprint(text)
	}
}

// formatStageTimes lists the recorded stage times in pipeline order.
func formatStageTimes(times map[string]time.Duration) string {
	var parts []string
	for _, name := range stageOrder {
		if d, ok := times[name]; ok {
			parts = append(parts, fmt.Sprintf("%s %s", name, d.Round(time.Millisecond)))
		}
	}
	return strings.Join(parts, ", ")
}
