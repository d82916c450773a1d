package materials

import (
	"context"
	"fmt"
	"math"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/plan"
	"go.uber.org/zap"
)

// Physics limits applied during enrichment.
const (
	MaxGravityMagnitude = 50.0
	MinSubstepsWarning  = 5
	MinSolverWarning    = 5
	MinFluidResolution  = 32
	MaxFluidResolution  = 512

	// Category adjustments.
	MinRigidDuration    = 100
	RigidDuration       = 250
	MaxSmokeDuration    = 200
	SmokeDuration       = 150
	DefaultClothQuality = 5
)

// Enrichment is the enricher's output.
type Enrichment struct {
	Plan     plan.EnrichedPlan
	Warnings []string
}

// Enricher attaches material profiles to every component and normalizes
// physics parameters for the plan's category.
type Enricher struct {
	table  *Table
	logger *zap.Logger
}

// NewEnricher returns an enricher backed by table. A nil table uses the
// built-in one.
func NewEnricher(table *Table, logger *zap.Logger) *Enricher {
	if table == nil {
		table = DefaultTable()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{table: table, logger: logger}
}

// Table returns the enricher's material table.
func (e *Enricher) Table() *Table { return e.table }

// Enrich resolves one profile per component, rejects impossible physics and
// applies category adjustments. The input plan is not modified.
func (e *Enricher) Enrich(ctx context.Context, p plan.WorkPlan) (Enrichment, error) {
	if err := ctx.Err(); err != nil {
		return Enrichment{}, err
	}

	var warnings []string
	components := p.Components()
	profiles := make([]plan.MaterialProfile, len(components))
	for i, c := range components {
		profile, match := e.table.Lookup(c.Material)
		switch match {
		case MatchFuzzy:
			e.logger.Info("fuzzy matched material", zap.String("requested", c.Material), zap.String("matched", profile.Name))
		case MatchDefault:
			e.logger.Warn("unknown material, using default", zap.String("requested", c.Material), zap.String("fallback", profile.Name))
			if c.Material != "" && c.Material != plan.DefaultMaterial {
				warnings = append(warnings, fmt.Sprintf("Unknown material '%s' for %s, using %s", c.Material, c.Name, profile.Name))
			}
		}
		profiles[i] = profile
		e.logger.Debug("applied material",
			zap.String("component", c.Name),
			zap.String("material", profile.Name),
			zap.Float64("density", profile.Density),
			zap.Float64("friction", profile.Friction))
	}

	adjusted, physicsWarnings, err := e.normalizePhysics(p)
	if err != nil {
		return Enrichment{}, err
	}
	warnings = append(warnings, physicsWarnings...)

	enriched, err := plan.NewEnriched(adjusted, profiles)
	if err != nil {
		return Enrichment{}, err
	}
	return Enrichment{Plan: enriched, Warnings: warnings}, nil
}

// normalizePhysics validates the parameter block and returns a plan with the
// category adjustments applied.
func (e *Enricher) normalizePhysics(p plan.WorkPlan) (plan.WorkPlan, []string, error) {
	params := p.Params()
	category := p.Category()
	b := plan.NewBuilder(p)
	var warnings []string

	if params.Gravity > 0 {
		return plan.WorkPlan{}, nil, simerrors.PhysicsInvalid(
			"Gravity should be negative (pulls downward)",
			map[string]any{"gravity": params.Gravity})
	}
	if math.Abs(params.Gravity) > MaxGravityMagnitude {
		warnings = append(warnings, fmt.Sprintf("Very high gravity (%g m/s²) may cause instability", params.Gravity))
	}

	switch {
	case category == plan.RigidBody:
		if params.SubstepsPerFrame < MinSubstepsWarning {
			warnings = append(warnings, fmt.Sprintf("Low substeps (%d) may cause instability", params.SubstepsPerFrame))
		}
		if params.SolverIterations < MinSolverWarning {
			warnings = append(warnings, fmt.Sprintf("Low solver iterations (%d) may cause instability", params.SolverIterations))
		}
		if p.DurationFrames() < MinRigidDuration {
			b.SetDuration(RigidDuration)
			e.logger.Info("increased rigid body duration", zap.Int("frames", RigidDuration))
		}

	case category.IsFluid():
		res := params.FluidResolution
		if res == 0 {
			res = plan.DefaultFluidResolution
			b.SetFluidResolution(res)
			e.logger.Info("set default fluid resolution", zap.Int("resolution", res))
		}
		if res < MinFluidResolution {
			return plan.WorkPlan{}, nil, simerrors.PhysicsInvalid(
				fmt.Sprintf("Fluid resolution too low (minimum %d)", MinFluidResolution),
				map[string]any{"resolution_max": res})
		}
		if res > MaxFluidResolution {
			warnings = append(warnings, fmt.Sprintf("Very high fluid resolution (%d) will be very slow", res))
		}
		if category != plan.FluidLiquid && p.DurationFrames() > MaxSmokeDuration {
			b.SetDuration(SmokeDuration)
			e.logger.Info("reduced fluid duration", zap.Int("frames", SmokeDuration))
		}

	case category == plan.Cloth:
		if params.QualitySteps == 0 {
			b.SetQualitySteps(DefaultClothQuality)
			e.logger.Info("set cloth quality steps", zap.Int("steps", DefaultClothQuality))
		}
	}

	adjusted, err := b.Build()
	if err != nil {
		return plan.WorkPlan{}, nil, simerrors.PhysicsInvalid(err.Error(), nil)
	}
	return adjusted, warnings, nil
}
