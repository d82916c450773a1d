package plan

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Edit is one suggested parameter change from the refinement advisor.
type Edit struct {
	Parameter string `json:"parameter" yaml:"parameter"`
	NewValue  string `json:"new_value" yaml:"new_value"`
	Reasoning string `json:"reasoning,omitempty" yaml:"reasoning,omitempty"`
}

func (e Edit) String() string {
	return fmt.Sprintf("%s=%s", e.Parameter, e.NewValue)
}

// Builder derives a new WorkPlan from an existing one. The source plan is never
// touched; Build validates the result as a fresh plan.
type Builder struct {
	spec Spec
}

// NewBuilder starts a builder from a copy of p.
func NewBuilder(p WorkPlan) *Builder {
	return &Builder{spec: p.Spec()}
}

func (b *Builder) SetGravity(g float64) *Builder {
	b.spec.Params.Gravity = g
	return b
}

func (b *Builder) SetSubsteps(n int) *Builder {
	b.spec.Params.SubstepsPerFrame = n
	return b
}

func (b *Builder) SetSolverIterations(n int) *Builder {
	b.spec.Params.SolverIterations = n
	return b
}

func (b *Builder) SetTimeScale(s float64) *Builder {
	b.spec.Params.TimeScale = s
	return b
}

func (b *Builder) SetFluidResolution(n int) *Builder {
	b.spec.Params.FluidResolution = n
	return b
}

func (b *Builder) SetQualitySteps(n int) *Builder {
	b.spec.Params.QualitySteps = n
	return b
}

func (b *Builder) SetDuration(frames int) *Builder {
	b.spec.DurationFrames = frames
	return b
}

// SetScaleAll sets the scale of every component.
func (b *Builder) SetScaleAll(s float64) *Builder {
	for i := range b.spec.Components {
		b.spec.Components[i].Scale = s
	}
	return b
}

// Build validates the edited draft and returns it as a new plan.
func (b *Builder) Build() (WorkPlan, error) {
	return New(b.spec)
}

// EditResult reports how a list of edits was dispatched.
type EditResult struct {
	Applied []Edit
	Skipped []Edit
}

// ApplyEdits applies edits to a copy of p through the named-parameter dispatcher.
// Edits with an unknown parameter name or an unparseable value are logged and
// skipped. The returned error is non-nil only when the edited plan fails validation.
func ApplyEdits(p WorkPlan, edits []Edit, logger *zap.Logger) (WorkPlan, EditResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := NewBuilder(p)
	var res EditResult
	for _, e := range edits {
		if err := b.apply(e); err != nil {
			logger.Warn("skipping plan edit",
				zap.String("parameter", e.Parameter),
				zap.String("new_value", e.NewValue),
				zap.Error(err))
			res.Skipped = append(res.Skipped, e)
			continue
		}
		logger.Info("applied plan edit",
			zap.String("parameter", e.Parameter),
			zap.String("new_value", e.NewValue),
			zap.String("reasoning", e.Reasoning))
		res.Applied = append(res.Applied, e)
	}
	next, err := b.Build()
	if err != nil {
		return WorkPlan{}, res, fmt.Errorf("applying %d edit(s): %w", len(res.Applied), err)
	}
	return next, res, nil
}

// apply routes one edit by substring of its normalized name. Order matters:
// "substeps_per_frame" must reach the substep case before the frame case.
func (b *Builder) apply(e Edit) error {
	name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(e.Parameter)), " ", "_")
	value := strings.TrimSpace(e.NewValue)

	switch {
	case strings.Contains(name, "gravity"):
		f, err := parseFloat(value)
		if err != nil {
			return err
		}
		b.SetGravity(f)
	case strings.Contains(name, "substep"):
		n, err := parseInt(value)
		if err != nil {
			return err
		}
		b.SetSubsteps(n)
	case strings.Contains(name, "solver"), strings.Contains(name, "iteration"):
		n, err := parseInt(value)
		if err != nil {
			return err
		}
		b.SetSolverIterations(n)
	case strings.Contains(name, "resolution"):
		n, err := parseInt(value)
		if err != nil {
			return err
		}
		b.SetFluidResolution(n)
	case strings.Contains(name, "duration"), strings.Contains(name, "frame"):
		n, err := parseInt(value)
		if err != nil {
			return err
		}
		b.SetDuration(n)
	case strings.Contains(name, "time") && strings.Contains(name, "scale"):
		f, err := parseFloat(value)
		if err != nil {
			return err
		}
		b.SetTimeScale(f)
	case strings.Contains(name, "scale"):
		f, err := parseFloat(value)
		if err != nil {
			return err
		}
		b.SetScaleAll(f)
	default:
		return fmt.Errorf("unknown parameter %q", e.Parameter)
	}
	return nil
}

func parseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

// parseInt accepts "12" and "12.0"; advisors often send integers as floats.
func parseInt(s string) (int, error) {
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int(f), nil
}
