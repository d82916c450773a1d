// Package plan defines the WorkPlan model: the validated, immutable description of
// a requested simulation. A WorkPlan is only ever produced by New or by a Builder;
// its accessors hand out copies so no caller can mutate a plan another stage holds.
package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Category is the closed set of simulation kinds.
type Category string

const (
	RigidBody   Category = "rigid_body"
	FluidSmoke  Category = "fluid_smoke"
	FluidFire   Category = "fluid_fire"
	FluidLiquid Category = "fluid_liquid"
	Cloth       Category = "cloth"
	SoftBody    Category = "soft_body"
)

// Categories returns every category in declaration order.
func Categories() []Category {
	return []Category{RigidBody, FluidSmoke, FluidFire, FluidLiquid, Cloth, SoftBody}
}

// IsFluid reports whether the category is simulated with a fluid domain.
func (c Category) IsFluid() bool {
	return c == FluidSmoke || c == FluidFire || c == FluidLiquid
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := maxDurationFrames[c]
	return ok
}

// ParseCategory normalizes and validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown simulation category %q", s)
	}
	return c, nil
}

// Shape is the primitive mesh a component is built from.
type Shape string

const (
	Cube     Shape = "cube"
	Sphere   Shape = "sphere"
	Cylinder Shape = "cylinder"
	Cone     Shape = "cone"
	Plane    Shape = "plane"
	Torus    Shape = "torus"
	Monkey   Shape = "monkey"
)

// Shapes returns every shape in declaration order.
func Shapes() []Shape {
	return []Shape{Cube, Sphere, Cylinder, Cone, Plane, Torus, Monkey}
}

// MaxDuration is the upper bound on DurationFrames for every category.
const MaxDuration = 1000

// maxDurationFrames holds the per-category sanity bound on duration.
// Fluids bake per voxel per frame, so their bound is tighter.
var maxDurationFrames = map[Category]int{
	RigidBody:   MaxDuration,
	FluidSmoke:  600,
	FluidFire:   600,
	FluidLiquid: 500,
	Cloth:       MaxDuration,
	SoftBody:    MaxDuration,
}

// MaxDurationFor returns the sanity bound on duration for the category.
func MaxDurationFor(c Category) int {
	if n, ok := maxDurationFrames[c]; ok {
		return n
	}
	return MaxDuration
}

// Defaults used when the planner omits a value.
const (
	DefaultGravity          = -9.81
	DefaultSubsteps         = 10
	DefaultSolverIterations = 10
	DefaultTimeScale        = 1.0
	DefaultFrameRate        = 24
	DefaultFluidResolution  = 128
	DefaultMaterial         = "default"
)

// ComponentSpec describes one group of identical objects in the scene.
type ComponentSpec struct {
	Name     string  `json:"name" yaml:"name" validate:"required"`
	Shape    Shape   `json:"object_type" yaml:"object_type" validate:"required,oneof=cube sphere cylinder cone plane torus monkey"`
	Count    int     `json:"count" yaml:"count" validate:"min=1,max=1000"`
	Material string  `json:"material" yaml:"material"`
	Scale    float64 `json:"scale" yaml:"scale" validate:"gt=0,lte=100"`
	Static   bool    `json:"is_static" yaml:"is_static"`
}

// Params is the global physics parameter block.
// FluidResolution and QualitySteps are zero when unset.
type Params struct {
	Gravity          float64 `json:"gravity" yaml:"gravity"`
	SubstepsPerFrame int     `json:"substeps_per_frame" yaml:"substeps_per_frame" validate:"min=1,max=20"`
	SolverIterations int     `json:"solver_iterations" yaml:"solver_iterations" validate:"min=1,max=100"`
	TimeScale        float64 `json:"time_scale" yaml:"time_scale" validate:"gt=0"`
	FluidResolution  int     `json:"resolution_max,omitempty" yaml:"resolution_max,omitempty" validate:"gte=0"`
	QualitySteps     int     `json:"quality_steps,omitempty" yaml:"quality_steps,omitempty" validate:"gte=0"`
}

// DefaultParams returns the parameter block used when the planner specifies nothing.
func DefaultParams() Params {
	return Params{
		Gravity:          DefaultGravity,
		SubstepsPerFrame: DefaultSubsteps,
		SolverIterations: DefaultSolverIterations,
		TimeScale:        DefaultTimeScale,
	}
}

// Spec is the mutable draft form of a WorkPlan. Collaborators fill a Spec and
// New validates and freezes it.
type Spec struct {
	Category       Category        `json:"simulation_type" yaml:"simulation_type" validate:"required,oneof=rigid_body fluid_smoke fluid_fire fluid_liquid cloth soft_body"`
	Components     []ComponentSpec `json:"objects" yaml:"objects" validate:"required,min=1,dive"`
	Params         Params          `json:"physics_settings" yaml:"physics_settings"`
	DurationFrames int             `json:"duration_frames" yaml:"duration_frames" validate:"min=1,max=1000"`
	FrameRate      int             `json:"frame_rate" yaml:"frame_rate" validate:"min=1,max=240"`
	Request        string          `json:"request,omitempty" yaml:"request,omitempty"`
	CreatedAt      time.Time       `json:"created_at" yaml:"created_at"`
}

// WorkPlan is a validated, immutable simulation plan.
type WorkPlan struct {
	spec Spec
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists every field that failed plan validation.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid plan: " + strings.Join(e.Problems, "; ")
}

// New validates spec and returns the frozen plan. The spec's slices are copied,
// so later changes to spec do not leak into the plan.
func New(spec Spec) (WorkPlan, error) {
	if spec.FrameRate == 0 {
		spec.FrameRate = DefaultFrameRate
	}
	if spec.CreatedAt.IsZero() {
		spec.CreatedAt = time.Now()
	}
	for i := range spec.Components {
		if spec.Components[i].Material == "" {
			spec.Components[i].Material = DefaultMaterial
		}
	}
	if err := validateSpec(spec); err != nil {
		return WorkPlan{}, err
	}
	return WorkPlan{spec: cloneSpec(spec)}, nil
}

func validateSpec(spec Spec) error {
	var problems []string
	if err := validate.Struct(spec); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return err
		}
		for _, fe := range fieldErrs {
			problems = append(problems, describeFieldError(fe))
		}
	}
	if spec.Category.Valid() && spec.DurationFrames > MaxDurationFor(spec.Category) {
		problems = append(problems, fmt.Sprintf("duration_frames %d exceeds %s bound of %d",
			spec.DurationFrames, spec.Category, MaxDurationFor(spec.Category)))
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Spec.")
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s failed %s", field, fe.Tag())
	}
}

func cloneSpec(s Spec) Spec {
	s.Components = append([]ComponentSpec(nil), s.Components...)
	return s
}

// Spec returns an independent draft copy of the plan.
func (p WorkPlan) Spec() Spec { return cloneSpec(p.spec) }

func (p WorkPlan) Category() Category   { return p.spec.Category }
func (p WorkPlan) Params() Params       { return p.spec.Params }
func (p WorkPlan) DurationFrames() int  { return p.spec.DurationFrames }
func (p WorkPlan) FrameRate() int       { return p.spec.FrameRate }
func (p WorkPlan) Request() string      { return p.spec.Request }
func (p WorkPlan) CreatedAt() time.Time { return p.spec.CreatedAt }

// Components returns a copy of the ordered component list.
func (p WorkPlan) Components() []ComponentSpec {
	return append([]ComponentSpec(nil), p.spec.Components...)
}

// TotalObjects is the sum of component counts.
func (p WorkPlan) TotalObjects() int {
	total := 0
	for _, c := range p.spec.Components {
		total += c.Count
	}
	return total
}

// IsZero reports whether p was never built.
func (p WorkPlan) IsZero() bool { return len(p.spec.Components) == 0 }

// MarshalJSON encodes the plan in its draft form.
func (p WorkPlan) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.spec)
}

// UnmarshalJSON decodes and validates a plan.
func (p *WorkPlan) UnmarshalJSON(data []byte) error {
	var spec Spec
	if err := json.Unmarshal(data, &spec); err != nil {
		return err
	}
	built, err := New(spec)
	if err != nil {
		return err
	}
	*p = built
	return nil
}

// String summarizes the plan for logs.
func (p WorkPlan) String() string {
	return fmt.Sprintf("%s: %d component(s), %d object(s), %d frames",
		p.spec.Category, len(p.spec.Components), p.TotalObjects(), p.spec.DurationFrames)
}
