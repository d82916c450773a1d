package plan

import "fmt"

// Lint thresholds.
const (
	longDurationFrames  = 500
	highObjectCount     = 500
	highFluidResolution = 256
)

// Lint returns non-fatal warnings about a plan that is valid but likely to be
// slow or to look wrong.
func (p WorkPlan) Lint() []string {
	var warnings []string

	if p.spec.Category == RigidBody {
		hasGround := false
		for _, c := range p.spec.Components {
			if c.Static {
				hasGround = true
				break
			}
		}
		if !hasGround {
			warnings = append(warnings, "Rigid body simulation should have a static ground plane")
		}
	}

	if p.spec.DurationFrames > longDurationFrames {
		warnings = append(warnings, fmt.Sprintf("Long animation (%d frames) may take time to bake", p.spec.DurationFrames))
	}

	if total := p.TotalObjects(); total > highObjectCount {
		warnings = append(warnings, fmt.Sprintf("High object count (%d) may cause performance issues", total))
	}

	if p.spec.Category.IsFluid() && p.spec.Params.FluidResolution > highFluidResolution {
		warnings = append(warnings, fmt.Sprintf("High fluid resolution (%d) will be slow to bake", p.spec.Params.FluidResolution))
	}

	return warnings
}
