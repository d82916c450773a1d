package pipeline

import (
	"context"

	"github.com/ariel-frischer/simforge/internal/blender"
	"github.com/ariel-frischer/simforge/internal/codegen"
	"github.com/ariel-frischer/simforge/internal/history"
	"github.com/ariel-frischer/simforge/internal/materials"
	"github.com/ariel-frischer/simforge/internal/plan"
	"github.com/ariel-frischer/simforge/internal/quality"
	"github.com/ariel-frischer/simforge/internal/syntax"
)

// Planner turns a natural-language request into a WorkPlan.
type Planner interface {
	Plan(ctx context.Context, request string) (plan.WorkPlan, error)
}

// Enricher attaches material profiles and normalizes physics.
type Enricher interface {
	Enrich(ctx context.Context, p plan.WorkPlan) (materials.Enrichment, error)
}

// Generator renders an enriched plan into an engine script.
type Generator interface {
	Generate(ctx context.Context, e plan.EnrichedPlan, outputPath string) (codegen.Artifact, error)
}

// Validator checks a script and applies local fixes.
type Validator interface {
	Validate(a codegen.Artifact) syntax.Report
	Autofix(a codegen.Artifact) codegen.Artifact
}

// Executor runs a script in the engine and reports what it produced.
type Executor interface {
	Run(ctx context.Context, a codegen.Artifact) (blender.Outcome, error)
}

// Inspector reads a produced file back for assessment.
type Inspector interface {
	Inspect(ctx context.Context, path string, p plan.WorkPlan) (quality.Inspection, error)
}

// Advisor suggests plan edits for quality issues.
type Advisor interface {
	Suggest(ctx context.Context, p plan.WorkPlan, issues []string) ([]plan.Edit, error)
}

// HistoryRecorder stores a summary of each run.
type HistoryRecorder interface {
	Record(entry history.Entry)
}

// Collaborators are the orchestrator's external dependencies. Advisor and
// History are optional: without an advisor refinement never runs.
type Collaborators struct {
	Planner   Planner
	Enricher  Enricher
	Generator Generator
	Validator Validator
	Executor  Executor
	Inspector Inspector
	Advisor   Advisor
	History   HistoryRecorder
}
