package blender

import (
	"context"
	_ "embed"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"os"
	"strings"
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/plan"
	"github.com/ariel-frischer/simforge/internal/quality"
	"go.uber.org/zap"
)

// DefaultInspectTimeout bounds one inspection.
const DefaultInspectTimeout = 60 * time.Second

const resultMarker = "INSPECTION_RESULT:"

//go:embed scripts/inspect.py
var inspectScript string

// Inspector opens a produced file in Blender and reports what the scene holds.
type Inspector struct {
	executable string
	newCommand CommandFunc
	timeout    time.Duration
	scriptDir  string
	logger     *zap.Logger
}

// NewInspector creates an inspector for executable. Inspection scripts are
// written to scriptDir, or the system temp directory when it is empty.
func NewInspector(executable, scriptDir string, logger *zap.Logger, opts ...Option) *Inspector {
	if executable == "" {
		executable = DefaultExecutable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions(opts)
	if o.timeout <= 0 {
		o.timeout = DefaultInspectTimeout
	}
	return &Inspector{
		executable: executable,
		newCommand: o.newCommand,
		timeout:    o.timeout,
		scriptDir:  scriptDir,
		logger:     logger,
	}
}

// Inspect reports the contents of the .blend file at path. The plan selects
// the physics checks and supplies the expected object count.
func (i *Inspector) Inspect(ctx context.Context, path string, p plan.WorkPlan) (quality.Inspection, error) {
	if _, err := os.Stat(path); err != nil {
		return quality.Inspection{}, simerrors.OutputMissing(path, "")
	}

	script, err := os.CreateTemp(i.scriptDir, "inspect_*.py")
	if err != nil {
		return quality.Inspection{}, simerrors.NewResourceError(fmt.Sprintf("creating inspection script: %v", err), "disk")
	}
	defer os.Remove(script.Name())
	_, werr := script.WriteString(inspectScript)
	if cerr := script.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		return quality.Inspection{}, simerrors.NewResourceError(fmt.Sprintf("writing inspection script: %v", werr), "disk")
	}

	runCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	cmd := i.newCommand(i.executable, path, "--background", "--python", script.Name(), "--", "--category", string(p.Category()))
	res, err := run(runCtx, cmd, i.executable)
	if err != nil {
		if stderrors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return quality.Inspection{}, simerrors.NewTimeoutError("scene inspection", max(1, int(i.timeout/time.Second)))
		}
		return quality.Inspection{}, err
	}
	if res.ExitCode != 0 {
		return quality.Inspection{}, simerrors.NewExecutionError(
			fmt.Sprintf("Blender inspection failed with exit code %d", res.ExitCode), res.Stderr, res.ExitCode)
	}

	in, err := ParseInspection(res.Stdout)
	if err != nil {
		return quality.Inspection{}, err
	}
	in.ExpectedObjectCount = p.TotalObjects()
	i.logger.Debug("scene inspected",
		zap.Int("objects", in.ObjectCount),
		zap.Int("expected", in.ExpectedObjectCount),
		zap.Bool("camera", in.HasCamera))
	return in, nil
}

// ParseInspection extracts the JSON document that follows the result marker
// in Blender's stdout.
func ParseInspection(stdout string) (quality.Inspection, error) {
	_, rest, ok := strings.Cut(stdout, resultMarker)
	if !ok {
		return quality.Inspection{}, simerrors.NewExecutionError("could not parse inspection results", stdout, 0)
	}
	line, _, _ := strings.Cut(rest, "\n")

	var in quality.Inspection
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &in); err != nil {
		e := simerrors.NewExecutionError(fmt.Sprintf("could not parse inspection results: %v", err), stdout, 0)
		e.Err = err
		return quality.Inspection{}, e
	}
	return in, nil
}
