package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/plan"
	"go.uber.org/zap"
)

const advisorInstructions = `You are an expert in physics simulation and 3D animation.
Analyze the quality issues of a Blender simulation and suggest precise parameter changes.

Guidelines:
- Be specific: "duration_frames" -> "250", not "make it longer".
- Fix critical issues first: missing physics, camera or lighting.
- Suggest only realistic values for the simulation type.
- Supported parameters: gravity, substeps_per_frame, solver_iterations, time_scale,
  resolution_max, quality_steps, duration_frames, object_scale.

Reply with a single JSON object and nothing else:
{
  "identified_issues": ["..."],
  "suggested_changes": [{"parameter": "substeps_per_frame", "new_value": "20", "reasoning": "..."}],
  "priority": "critical|high|medium|low"
}

`

type adviceReply struct {
	IdentifiedIssues []string    `json:"identified_issues"`
	SuggestedChanges []plan.Edit `json:"suggested_changes"`
	Priority         string      `json:"priority"`
}

// Advisor asks the model for plan edits that address quality issues.
type Advisor struct {
	model  Completer
	logger *zap.Logger
}

// NewAdvisor creates an advisor backed by model.
func NewAdvisor(model Completer, logger *zap.Logger) *Advisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Advisor{model: model, logger: logger}
}

// Suggest returns the model's edits for p. Edits are not applied or checked
// here.
func (a *Advisor) Suggest(ctx context.Context, p plan.WorkPlan, issues []string) ([]plan.Edit, error) {
	reply, err := a.model.Complete(ctx, advisorInstructions+advisorPrompt(p, issues))
	if err != nil {
		return nil, err
	}

	raw, err := extractJSON(reply)
	if err != nil {
		return nil, simerrors.NewAPIError(fmt.Sprintf("unusable refinement reply: %v", err), err)
	}
	var r adviceReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return nil, simerrors.NewAPIError(fmt.Sprintf("unusable refinement reply: %v", err), err)
	}

	edits := make([]plan.Edit, 0, len(r.SuggestedChanges))
	for _, e := range r.SuggestedChanges {
		if strings.TrimSpace(e.Parameter) == "" {
			continue
		}
		edits = append(edits, e)
	}
	a.logger.Info("refinement suggested",
		zap.Int("edits", len(edits)),
		zap.String("priority", r.Priority),
		zap.Strings("identified_issues", r.IdentifiedIssues))
	return edits, nil
}

func advisorPrompt(p plan.WorkPlan, issues []string) string {
	params := p.Params()
	var b strings.Builder
	b.WriteString("Current simulation plan:\n")
	fmt.Fprintf(&b, "- Type: %s\n", p.Category())
	fmt.Fprintf(&b, "- Objects: %d groups, %d total\n", len(p.Components()), p.TotalObjects())
	fmt.Fprintf(&b, "- Duration: %d frames\n", p.DurationFrames())
	fmt.Fprintf(&b, "- Physics: gravity=%g, substeps=%d, solver_iterations=%d, time_scale=%g",
		params.Gravity, params.SubstepsPerFrame, params.SolverIterations, params.TimeScale)
	if params.FluidResolution > 0 {
		fmt.Fprintf(&b, ", resolution_max=%d", params.FluidResolution)
	}
	b.WriteString("\n\nQuality issues found:\n")
	if len(issues) == 0 {
		b.WriteString("None\n")
	}
	for _, issue := range issues {
		fmt.Fprintf(&b, "- %s\n", issue)
	}
	return b.String()
}
