package blender

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/ariel-frischer/simforge/internal/codegen"
	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"go.uber.org/zap"
)

// Runner runs one script. *Engine is the production implementation.
type Runner interface {
	Execute(ctx context.Context, scriptPath, outputPath string) (RunResult, error)
}

// Outcome describes a finished execution.
type Outcome struct {
	Success    bool          `json:"success"`
	OutputPath string        `json:"output_path"`
	Stdout     string        `json:"stdout"`
	Stderr     string        `json:"stderr"`
	Duration   time.Duration `json:"duration"`
	FrameCount int           `json:"frame_count"`
	ExitCode   int           `json:"exit_code"`
}

// Frame counts are printed by generated scripts in one of these forms.
var framePatterns = []*regexp.Regexp{
	regexp.MustCompile(`frames (\d+)-(\d+)`),
	regexp.MustCompile(`frame_end=(\d+)`),
	regexp.MustCompile(`Saved:.*?(\d+) frames`),
}

// Executor writes an artifact to a temporary script, runs it, and checks
// that the output file exists.
type Executor struct {
	runner    Runner
	scriptDir string
	logger    *zap.Logger
}

// NewExecutor creates an executor. Scripts are written to scriptDir, or the
// system temp directory when it is empty.
func NewExecutor(runner Runner, scriptDir string, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{runner: runner, scriptDir: scriptDir, logger: logger}
}

// Run executes a. The temporary script is removed on every path. A failed
// outcome is always accompanied by an Execution error.
func (x *Executor) Run(ctx context.Context, a codegen.Artifact) (Outcome, error) {
	out := Outcome{OutputPath: a.OutputPath}

	if dir := filepath.Dir(a.OutputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return out, simerrors.OutputNotWritable(dir, err)
		}
	}

	script, err := os.CreateTemp(x.scriptDir, "blender_script_*.py")
	if err != nil {
		return out, simerrors.NewResourceError(fmt.Sprintf("creating script file: %v", err), "disk")
	}
	defer os.Remove(script.Name())
	if _, err := script.WriteString(a.Code); err != nil {
		script.Close()
		return out, simerrors.NewResourceError(fmt.Sprintf("writing script file: %v", err), "disk")
	}
	if err := script.Close(); err != nil {
		return out, simerrors.NewResourceError(fmt.Sprintf("writing script file: %v", err), "disk")
	}

	x.logger.Info("executing script",
		zap.String("template", a.TemplateID),
		zap.String("output", a.OutputPath),
		zap.Int("estimated_seconds", a.EstimatedSeconds))

	res, err := x.runner.Execute(ctx, script.Name(), a.OutputPath)
	out.Stdout, out.Stderr, out.Duration, out.ExitCode = res.Stdout, res.Stderr, res.Duration, res.ExitCode
	if err != nil {
		return out, err
	}

	if res.ExitCode != 0 {
		return out, simerrors.NewExecutionError(
			fmt.Sprintf("Blender execution failed with exit code %d", res.ExitCode), res.Stderr, res.ExitCode)
	}
	if _, err := os.Stat(a.OutputPath); err != nil {
		return out, simerrors.OutputMissing(a.OutputPath, res.Stdout)
	}

	out.Success = true
	out.FrameCount = FrameCount(res.Stdout)
	x.logger.Info("execution finished",
		zap.Duration("duration", out.Duration),
		zap.Int("frames", out.FrameCount))
	return out, nil
}

// FrameCount extracts the simulated frame count from Blender's output. The
// first pattern that matches wins and its largest number is returned; 0 means
// no pattern matched.
func FrameCount(stdout string) int {
	for _, re := range framePatterns {
		m := re.FindStringSubmatch(stdout)
		if m == nil {
			continue
		}
		best := 0
		for _, g := range m[1:] {
			if n, err := strconv.Atoi(g); err == nil && n > best {
				best = n
			}
		}
		return best
	}
	return 0
}
