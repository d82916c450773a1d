package plan

import "fmt"

// MaterialProfile holds the physical properties resolved for one component.
type MaterialProfile struct {
	Name            string  `json:"name" yaml:"name"`
	Density         float64 `json:"density" yaml:"density"`
	Friction        float64 `json:"friction" yaml:"friction"`
	Restitution     float64 `json:"restitution" yaml:"restitution"`
	LinearDamping   float64 `json:"linear_damping" yaml:"linear_damping"`
	AngularDamping  float64 `json:"angular_damping" yaml:"angular_damping"`
	CollisionShape  string  `json:"collision_shape" yaml:"collision_shape"`
	CollisionMargin float64 `json:"collision_margin" yaml:"collision_margin"`
}

// EnrichedPlan is a WorkPlan with exactly one MaterialProfile per component,
// in component order.
type EnrichedPlan struct {
	plan     WorkPlan
	profiles []MaterialProfile
}

// NewEnriched pairs p with its profiles.
func NewEnriched(p WorkPlan, profiles []MaterialProfile) (EnrichedPlan, error) {
	if p.IsZero() {
		return EnrichedPlan{}, fmt.Errorf("enriching empty plan")
	}
	if len(profiles) != len(p.spec.Components) {
		return EnrichedPlan{}, fmt.Errorf("plan has %d component(s) but %d material profile(s)",
			len(p.spec.Components), len(profiles))
	}
	return EnrichedPlan{
		plan:     p,
		profiles: append([]MaterialProfile(nil), profiles...),
	}, nil
}

// Plan returns the underlying plan.
func (e EnrichedPlan) Plan() WorkPlan { return e.plan }

// Profiles returns a copy of the per-component profiles.
func (e EnrichedPlan) Profiles() []MaterialProfile {
	return append([]MaterialProfile(nil), e.profiles...)
}

// Profile returns the profile of component i.
func (e EnrichedPlan) Profile(i int) MaterialProfile { return e.profiles[i] }

// WithPlan keeps the resolved profiles but swaps in a revised plan. Refinement
// edits never add or remove components, so the pairing stays valid.
func (e EnrichedPlan) WithPlan(p WorkPlan) (EnrichedPlan, error) {
	return NewEnriched(p, e.profiles)
}
