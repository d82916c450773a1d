package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/plan"
	"go.uber.org/zap"
)

const plannerInstructions = `You are an expert in physics simulations and Blender 3D animation.
Parse the simulation request below into a structured plan.

Guidelines:
1. Identify the simulation type: {{CATEGORIES}}.
2. Extract all objects mentioned, including static ground or obstacles.
3. Infer reasonable defaults for unspecified parameters.
4. Rigid body defaults to 250 frames, fluids to 150 frames, cloth to 200 frames.
5. Always include a static ground plane for falling objects.
6. Use simple material names: wood, metal, stone, rubber, glass, plastic, fabric.

Examples:
"20 wooden blocks falling on concrete floor" -> rigid_body, 20 cubes (wood), 1 plane (concrete, static), 250 frames
"Smoke rising from a sphere" -> fluid_smoke, 1 sphere (emitter), 150 frames
"Red cloth draped over a sphere" -> cloth, 1 plane (fabric), 1 sphere (static collision), 200 frames

Reply with a single JSON object and nothing else:
{
  "simulation_type": "rigid_body",
  "objects": [
    {"name": "block", "object_type": "{{SHAPES}}", "count": 1, "material": "wood", "scale": 1.0, "is_static": false}
  ],
  "duration_frames": 250,
  "physics_settings": {"gravity": -9.81, "substeps_per_frame": 10, "solver_iterations": 10, "time_scale": 1.0, "resolution_max": 128}
}

Request: `

// planReply is the JSON shape the planner asks the model for. Optional
// fields are pointers so defaults apply only to what the model left out.
type planReply struct {
	SimulationType string `json:"simulation_type"`
	Objects        []struct {
		Name       string   `json:"name"`
		ObjectType string   `json:"object_type"`
		Count      int      `json:"count"`
		Material   string   `json:"material"`
		Scale      *float64 `json:"scale"`
		IsStatic   bool     `json:"is_static"`
	} `json:"objects"`
	DurationFrames  int `json:"duration_frames"`
	PhysicsSettings struct {
		Gravity          *float64 `json:"gravity"`
		SubstepsPerFrame *int     `json:"substeps_per_frame"`
		SolverIterations *int     `json:"solver_iterations"`
		TimeScale        *float64 `json:"time_scale"`
		ResolutionMax    *int     `json:"resolution_max"`
	} `json:"physics_settings"`
}

// Planner turns a natural-language request into a WorkPlan.
type Planner struct {
	model  Completer
	logger *zap.Logger
	now    func() time.Time
}

// NewPlanner creates a planner backed by model.
func NewPlanner(model Completer, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{model: model, logger: logger, now: time.Now}
}

// Plan asks the model for a plan. Replies that are not a valid plan yield a
// Requirements error; model failures pass through unchanged.
func (p *Planner) Plan(ctx context.Context, request string) (plan.WorkPlan, error) {
	if strings.TrimSpace(request) == "" {
		return plan.WorkPlan{}, simerrors.UnparseableRequest(request, fmt.Errorf("request is empty"))
	}
	p.logger.Info("planning request", zap.String("request", request))

	reply, err := p.model.Complete(ctx, plannerPrompt(request))
	if err != nil {
		return plan.WorkPlan{}, err
	}

	wp, err := p.parse(reply, request)
	if err != nil {
		return plan.WorkPlan{}, simerrors.UnparseableRequest(request, err)
	}
	p.logger.Info("plan created",
		zap.String("category", string(wp.Category())),
		zap.Int("components", len(wp.Components())),
		zap.Int("frames", wp.DurationFrames()))
	return wp, nil
}

// plannerPrompt fills the category and shape vocabularies into the
// instructions and appends the quoted request.
func plannerPrompt(request string) string {
	categories := make([]string, 0, len(plan.Categories()))
	for _, c := range plan.Categories() {
		categories = append(categories, string(c))
	}
	shapes := make([]string, 0, len(plan.Shapes()))
	for _, s := range plan.Shapes() {
		shapes = append(shapes, string(s))
	}
	r := strings.NewReplacer(
		"{{CATEGORIES}}", strings.Join(categories, ", "),
		"{{SHAPES}}", strings.Join(shapes, "|"),
	)
	return r.Replace(plannerInstructions) + fmt.Sprintf("%q", request)
}

func (p *Planner) parse(reply, request string) (plan.WorkPlan, error) {
	raw, err := extractJSON(reply)
	if err != nil {
		return plan.WorkPlan{}, err
	}
	var r planReply
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return plan.WorkPlan{}, fmt.Errorf("decoding plan: %w", err)
	}

	category, err := plan.ParseCategory(r.SimulationType)
	if err != nil {
		return plan.WorkPlan{}, err
	}

	spec := plan.Spec{
		Category:       category,
		Params:         plan.DefaultParams(),
		DurationFrames: r.DurationFrames,
		FrameRate:      plan.DefaultFrameRate,
		Request:        request,
		CreatedAt:      p.now(),
	}
	for _, o := range r.Objects {
		c := plan.ComponentSpec{
			Name:     o.Name,
			Shape:    plan.Shape(o.ObjectType),
			Count:    o.Count,
			Material: o.Material,
			Scale:    1,
			Static:   o.IsStatic,
		}
		if o.Scale != nil {
			c.Scale = *o.Scale
		}
		spec.Components = append(spec.Components, c)
	}

	ps := r.PhysicsSettings
	if ps.Gravity != nil {
		spec.Params.Gravity = *ps.Gravity
	}
	if ps.SubstepsPerFrame != nil {
		spec.Params.SubstepsPerFrame = *ps.SubstepsPerFrame
	}
	if ps.SolverIterations != nil {
		spec.Params.SolverIterations = *ps.SolverIterations
	}
	if ps.TimeScale != nil {
		spec.Params.TimeScale = *ps.TimeScale
	}
	if category.IsFluid() {
		spec.Params.FluidResolution = plan.DefaultFluidResolution
		if ps.ResolutionMax != nil {
			spec.Params.FluidResolution = *ps.ResolutionMax
		}
	}
	return plan.New(spec)
}

// extractJSON returns the outermost JSON object in a model reply, which may
// wrap it in prose or a fenced code block.
func extractJSON(reply string) (string, error) {
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in model reply")
	}
	return reply[start : end+1], nil
}
