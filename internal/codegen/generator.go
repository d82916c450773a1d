// Package codegen renders an enriched plan into a Blender Python script.
package codegen

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/plan"
	"go.uber.org/zap"
)

//go:embed templates/*.py.tmpl
var templateFS embed.FS

// Artifact is a generated script and what is known about it before it runs.
type Artifact struct {
	Code       string  `json:"code"`
	TemplateID string  `json:"template_used"`
	Complexity float64 `json:"complexity_score"`
	// EstimatedSeconds is a rough execution time for the operator.
	EstimatedSeconds int    `json:"estimated_execution_time"`
	OutputPath       string `json:"output_path"`
}

// templateIDs maps each category to its template. Fire reuses the smoke
// template with a different flow type.
var templateIDs = map[plan.Category]string{
	plan.RigidBody:   "rigid_body",
	plan.FluidSmoke:  "fluid_smoke",
	plan.FluidFire:   "fluid_smoke",
	plan.FluidLiquid: "fluid_liquid",
	plan.Cloth:       "cloth",
}

// TemplateFor returns the template ID for category and whether one exists.
func TemplateFor(c plan.Category) (string, bool) {
	id, ok := templateIDs[c]
	return id, ok
}

// Generator renders scripts from the embedded templates.
type Generator struct {
	templates *template.Template
	logger    *zap.Logger
}

// NewGenerator parses the embedded templates.
func NewGenerator(logger *zap.Logger) (*Generator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	t, err := template.New("codegen").Funcs(funcs).ParseFS(templateFS, "templates/*.py.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing script templates: %w", err)
	}
	return &Generator{templates: t, logger: logger}, nil
}

// Generate renders the script that builds, bakes and saves the scene to outputPath.
func (g *Generator) Generate(ctx context.Context, e plan.EnrichedPlan, outputPath string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}
	p := e.Plan()
	id, ok := TemplateFor(p.Category())
	if !ok {
		return Artifact{}, simerrors.NewValidationError(simerrors.ValidationTemplate,
			fmt.Sprintf("no template for simulation type: %s", p.Category()),
			map[string]any{"simulation_type": string(p.Category())})
	}

	g.logger.Info("generating script",
		zap.String("category", string(p.Category())),
		zap.Int("objects", p.TotalObjects()),
		zap.Int("frames", p.DurationFrames()))

	var buf bytes.Buffer
	if err := g.templates.ExecuteTemplate(&buf, id+".py.tmpl", newScene(e, outputPath)); err != nil {
		return Artifact{}, fmt.Errorf("rendering %s template: %w", id, err)
	}

	a := Artifact{
		Code:             buf.String(),
		TemplateID:       id,
		Complexity:       Complexity(p),
		EstimatedSeconds: EstimateSeconds(p),
		OutputPath:       outputPath,
	}
	g.logger.Debug("generated script",
		zap.Int("code_length", len(a.Code)),
		zap.Float64("complexity", a.Complexity))
	return a, nil
}

// Complexity scores how demanding a plan is, in [0, 1].
func Complexity(p plan.WorkPlan) float64 {
	var score float64
	switch p.Category() {
	case plan.RigidBody:
		score = 0.2
	case plan.Cloth:
		score = 0.4
	case plan.FluidSmoke:
		score = 0.5
	case plan.FluidFire:
		score = 0.6
	case plan.FluidLiquid:
		score = 0.7
	default:
		score = 0.3
	}

	switch n := p.TotalObjects(); {
	case n > 100:
		score += 0.2
	case n > 50:
		score += 0.1
	}
	if p.DurationFrames() > 300 {
		score += 0.1
	}
	if p.Params().FluidResolution > 200 {
		score += 0.2
	}
	return math.Min(math.Round(score*100)/100, 1.0)
}

// EstimateSeconds returns a rough execution time for p.
func EstimateSeconds(p plan.WorkPlan) int {
	frames := float64(p.DurationFrames())
	res := float64(p.Params().FluidResolution)
	if res == 0 {
		res = plan.DefaultFluidResolution
	}

	t := 10.0
	switch p.Category() {
	case plan.RigidBody:
		t += frames * 0.1
	case plan.FluidSmoke, plan.FluidFire:
		t += frames * (res / 64) * 0.5
	case plan.FluidLiquid:
		t += frames * (res / 32)
	case plan.Cloth:
		t += frames * 0.2
	}
	if p.TotalObjects() > 100 {
		t *= 1.5
	}
	return int(t)
}

var materialColors = []struct {
	key   string
	color [4]float64
}{
	{"wood", [4]float64{0.6, 0.4, 0.2, 1}},
	{"metal", [4]float64{0.7, 0.7, 0.7, 1}},
	{"steel", [4]float64{0.5, 0.5, 0.6, 1}},
	{"aluminum", [4]float64{0.8, 0.8, 0.8, 1}},
	{"copper", [4]float64{0.9, 0.5, 0.3, 1}},
	{"gold", [4]float64{1.0, 0.8, 0.2, 1}},
	{"glass", [4]float64{0.9, 0.9, 1.0, 1}},
	{"rubber", [4]float64{0.2, 0.2, 0.2, 1}},
	{"plastic", [4]float64{0.7, 0.3, 0.3, 1}},
	{"stone", [4]float64{0.5, 0.5, 0.5, 1}},
	{"concrete", [4]float64{0.6, 0.6, 0.6, 1}},
	{"fabric", [4]float64{0.8, 0.2, 0.2, 1}},
	{"cloth", [4]float64{0.7, 0.3, 0.5, 1}},
}

// MaterialColor maps a material tag to an RGBA viewport colour. The first
// key contained in the tag wins; unknown tags are grey.
func MaterialColor(material string) [4]float64 {
	m := strings.ToLower(material)
	for _, c := range materialColors {
		if strings.Contains(m, c.key) {
			return c.color
		}
	}
	return [4]float64{0.7, 0.7, 0.7, 1}
}

var funcs = template.FuncMap{
	"py":    pyFloat,
	"pystr": strconv.Quote,
	"vec3":  func(v [3]float64) string { return pyTuple(v[:]) },
	"vec4":  func(v [4]float64) string { return pyTuple(v[:]) },
}

func pyFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func pyTuple(v []float64) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = pyFloat(f)
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
