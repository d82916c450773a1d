// Package quality turns raw scene inspection data into a scored QualityAssessment
// and decides whether a result is good enough or should be refined.
package quality

import (
	"fmt"
	"math"

	"github.com/ariel-frischer/simforge/internal/plan"
)

// Inspection is the raw scene data reported by the inspector.
// Optional fields are pointers so "absent" is distinguishable from zero.
type Inspection struct {
	ObjectCount    int       `json:"object_count"`
	MeshCount      int       `json:"mesh_count"`
	HasCamera      bool      `json:"has_camera"`
	CameraLocation []float64 `json:"camera_location,omitempty"`
	LightCount     int       `json:"light_count"`
	LightingEnergy *float64  `json:"lighting_energy,omitempty"`
	FrameStart     int       `json:"frame_start"`
	FrameEnd       int       `json:"frame_end"`
	FrameRange     int       `json:"frame_range"`

	HasRigidBodyWorld  bool      `json:"has_rigidbody_world"`
	Gravity            []float64 `json:"gravity,omitempty"`
	Substeps           int       `json:"substeps,omitempty"`
	RigidBodyCount     *int      `json:"rigid_body_count,omitempty"`
	ActiveRigidBodies  int       `json:"active_rigid_bodies,omitempty"`
	PassiveRigidBodies int       `json:"passive_rigid_bodies,omitempty"`

	HasFluidDomain bool `json:"has_fluid_domain"`
	FluidFlowCount int  `json:"fluid_flow_count"`

	ClothCount     int `json:"cloth_count"`
	CollisionCount int `json:"collision_count"`
	SoftBodyCount  int `json:"soft_body_count"`

	ExpectedObjectCount int `json:"expected_object_count"`
}

// Assessment is the scored evaluation of one produced file against its plan.
type Assessment struct {
	ObjectCountMatch bool     `json:"object_count_correct" yaml:"object_count_correct"`
	HasPhysicsSetup  bool     `json:"has_physics_setup" yaml:"has_physics_setup"`
	HasCamera        bool     `json:"has_camera" yaml:"has_camera"`
	HasLighting      bool     `json:"has_lighting" yaml:"has_lighting"`
	Score            float64  `json:"quality_score" yaml:"quality_score"`
	Issues           []string `json:"issues" yaml:"issues"`
	RigidBodyCount   *int     `json:"rigid_body_count,omitempty" yaml:"rigid_body_count,omitempty"`
	LightingEnergy   *float64 `json:"lighting_intensity,omitempty" yaml:"lighting_intensity,omitempty"`
}

// Scoring weights and tolerances.
const (
	weightCount    = 0.2
	weightCamera   = 0.2
	weightLighting = 0.1
	weightPhysics  = 0.4
	weightFrames   = 0.1

	// Camera and light objects are counted by the inspector but not planned.
	objectCountTolerance = 2
	frameTolerance       = 5

	partialCount    = 0.5
	partialLighting = 0.5
	partialFrames   = 0.8
)

// Assess scores an inspection against the plan that produced it. Issues are
// ordered count, camera, lighting, physics, frames.
func Assess(in Inspection, p plan.WorkPlan) Assessment {
	a := Assessment{
		RigidBodyCount: in.RigidBodyCount,
		LightingEnergy: in.LightingEnergy,
	}

	expected := p.TotalObjects()
	a.ObjectCountMatch = absInt(in.ObjectCount-expected) <= objectCountTolerance
	countScore := 1.0
	if !a.ObjectCountMatch {
		countScore = partialCount
		a.Issues = append(a.Issues, fmt.Sprintf("Object count mismatch: expected ~%d, got %d", expected, in.ObjectCount))
	}

	a.HasCamera = in.HasCamera
	cameraScore := 1.0
	if !a.HasCamera {
		cameraScore = 0
		a.Issues = append(a.Issues, "No camera found in scene")
	}

	a.HasLighting = in.LightCount > 0
	lightingScore := 1.0
	if !a.HasLighting {
		lightingScore = partialLighting
		a.Issues = append(a.Issues, "No lighting found in scene")
	}

	var physicsIssue string
	a.HasPhysicsSetup, physicsIssue = physicsSetup(in, p.Category())
	if physicsIssue != "" {
		a.Issues = append(a.Issues, physicsIssue)
	}
	physicsScore := 0.0
	if a.HasPhysicsSetup {
		physicsScore = 1
	}

	framesScore := 1.0
	if absInt(in.FrameRange-p.DurationFrames()) > frameTolerance {
		framesScore = partialFrames
		a.Issues = append(a.Issues, fmt.Sprintf("Frame range mismatch: expected %d, got %d", p.DurationFrames(), in.FrameRange))
	}

	score := countScore*weightCount +
		cameraScore*weightCamera +
		lightingScore*weightLighting +
		physicsScore*weightPhysics +
		framesScore*weightFrames
	a.Score = clamp01(round3(score))
	return a
}

// physicsSetup reports whether the category's simulation setup is present and
// the issue to raise when it is absent or empty.
func physicsSetup(in Inspection, c plan.Category) (bool, string) {
	switch {
	case c == plan.RigidBody:
		if !in.HasRigidBodyWorld {
			return false, "Rigid body world not configured"
		}
		if in.RigidBodyCount != nil && *in.RigidBodyCount == 0 {
			return true, "No rigid body objects found"
		}
		return true, ""
	case c.IsFluid():
		if !in.HasFluidDomain {
			return false, "Fluid domain not found"
		}
		if in.FluidFlowCount == 0 {
			return true, "No fluid emitters found"
		}
		return true, ""
	case c == plan.Cloth:
		if in.ClothCount == 0 {
			return false, "No cloth objects found"
		}
		return true, ""
	case c == plan.SoftBody:
		if in.SoftBodyCount == 0 {
			return false, "No soft body objects found"
		}
		return true, ""
	}
	return false, fmt.Sprintf("Unknown simulation category %q", c)
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// round3 removes float noise from the weighted sum so 0.2+0.2+... compares exactly.
func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
