package codegen

import (
	"fmt"
	"math"
	"strings"

	"github.com/ariel-frischer/simforge/internal/plan"
)

type camera struct {
	Location    [3]float64
	Rotation    [3]float64
	FocalLength float64
}

type light struct {
	Type     string
	Energy   float64
	Location [3]float64
	Rotation [3]float64
}

// Scene defaults. Rotations are in degrees.
var (
	defaultCamera = camera{Location: [3]float64{7, -7, 5}, Rotation: [3]float64{63, 0, 45}, FocalLength: 50}
	defaultLight  = light{Type: "SUN", Energy: 1.5, Location: [3]float64{5, 5, 10}, Rotation: [3]float64{45, 0, 45}}
)

// Emitter and cloth parameters.
const (
	flowDensity     = 1.5
	flowTemperature = 2.0
	flowVelocity    = 0.5
	clothMassPerM2  = 0.3
	spawnHeight     = 5.0
	spacing         = 2.5
)

// object is one concrete scene object. Components with Count > 1 expand
// into several objects.
type object struct {
	Name     string
	Shape    string
	Location [3]float64
	Scale    float64
	Static   bool
	Material string
	Color    [4]float64

	Mass            float64
	Friction        float64
	Restitution     float64
	LinearDamping   float64
	AngularDamping  float64
	CollisionShape  string
	CollisionMargin float64

	FlowType    string
	FlowDensity float64
	Temperature float64
	Velocity    float64
	MassPerM2   float64
}

type scene struct {
	Category   string
	OutputPath string
	CacheDir   string

	FrameStart int
	FrameEnd   int
	FrameRate  int

	Gravity          float64
	Substeps         int
	SolverIterations int
	TimeScale        float64
	Resolution       int
	QualitySteps     int

	Camera  camera
	Light   light
	Objects []object
}

func newScene(e plan.EnrichedPlan, outputPath string) scene {
	p := e.Plan()
	params := p.Params()

	s := scene{
		Category:         string(p.Category()),
		OutputPath:       outputPath,
		CacheDir:         strings.TrimSuffix(outputPath, ".blend") + "_cache",
		FrameStart:       1,
		FrameEnd:         p.DurationFrames(),
		FrameRate:        p.FrameRate(),
		Gravity:          params.Gravity,
		Substeps:         params.SubstepsPerFrame,
		SolverIterations: params.SolverIterations,
		TimeScale:        params.TimeScale,
		Resolution:       params.FluidResolution,
		QualitySteps:     params.QualitySteps,
		Camera:           defaultCamera,
		Light:            defaultLight,
	}
	if s.Resolution == 0 {
		s.Resolution = plan.DefaultFluidResolution
	}
	if s.QualitySteps == 0 {
		s.QualitySteps = 5
	}

	flowType := "SMOKE"
	if p.Category() == plan.FluidFire {
		flowType = "FIRE"
	}

	for ci, c := range p.Components() {
		profile := e.Profile(ci)
		for i := 0; i < c.Count; i++ {
			s.Objects = append(s.Objects, object{
				Name:            objectName(c, i),
				Shape:           string(c.Shape),
				Location:        layout(c, i),
				Scale:           c.Scale,
				Static:          c.Static,
				Material:        profile.Name,
				Color:           MaterialColor(c.Material),
				Mass:            mass(profile.Density, c.Scale),
				Friction:        profile.Friction,
				Restitution:     profile.Restitution,
				LinearDamping:   profile.LinearDamping,
				AngularDamping:  profile.AngularDamping,
				CollisionShape:  profile.CollisionShape,
				CollisionMargin: profile.CollisionMargin,
				FlowType:        flowType,
				FlowDensity:     flowDensity,
				Temperature:     flowTemperature,
				Velocity:        flowVelocity,
				MassPerM2:       clothMassPerM2,
			})
		}
	}
	return s
}

func objectName(c plan.ComponentSpec, i int) string {
	if c.Count == 1 {
		return c.Name
	}
	return fmt.Sprintf("%s_%d", c.Name, i)
}

// layout places static objects at the origin and spreads dynamic ones on a
// square grid above it, each one half a unit higher than the last.
func layout(c plan.ComponentSpec, i int) [3]float64 {
	if c.Static {
		return [3]float64{0, 0, 0}
	}
	grid := int(math.Ceil(math.Sqrt(float64(c.Count))))
	offset := float64(grid) * spacing / 2 * c.Scale
	x := float64(i%grid)*spacing*c.Scale - offset
	y := float64(i/grid)*spacing*c.Scale - offset
	z := spawnHeight + float64(i)*0.5
	return [3]float64{round(x), round(y), round(z)}
}

// mass approximates mass in kg from density and a unit cube scaled by s.
func mass(density, s float64) float64 {
	return round(density * s * s * s / 1000)
}

func round(f float64) float64 {
	return math.Round(f*1e4) / 1e4
}
