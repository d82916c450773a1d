package quality

import "fmt"

// Quality thresholds.
const (
	DefaultThreshold  = 0.8
	DefaultGoodEnough = 0.9
)

// Priority ranks why refinement was requested.
type Priority string

const (
	PriorityNone      Priority = "none"
	PriorityCritical  Priority = "critical"
	PriorityImportant Priority = "important"
	PriorityNormal    Priority = "normal"
)

// Decision is the gate's verdict on one assessment.
type Decision struct {
	ShouldRefine bool     `json:"should_refine"`
	Priority     Priority `json:"priority"`
	Reason       string   `json:"reason"`
}

// Gate decides whether an assessment warrants refinement.
type Gate struct {
	Threshold float64
}

// NewGate returns a gate with the given threshold, or the default when
// threshold is not in (0, 1].
func NewGate(threshold float64) Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return Gate{Threshold: threshold}
}

// Decide applies the ordered rules; the first match wins. Existential failures
// (physics, camera) outrank quality-of-result failures (lighting, count), and the
// composite score is the catch-all.
func (g Gate) Decide(a Assessment) Decision {
	threshold := g.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	switch {
	case a.Score >= threshold:
		return Decision{ShouldRefine: false, Priority: PriorityNone, Reason: "meets threshold"}
	case !a.HasPhysicsSetup:
		return Decision{ShouldRefine: true, Priority: PriorityCritical, Reason: "critical: missing setup"}
	case !a.HasCamera:
		return Decision{ShouldRefine: true, Priority: PriorityCritical, Reason: "critical: missing camera"}
	case !a.HasLighting:
		return Decision{ShouldRefine: true, Priority: PriorityImportant, Reason: "important: missing lighting"}
	case !a.ObjectCountMatch:
		return Decision{ShouldRefine: true, Priority: PriorityImportant, Reason: "important: count mismatch"}
	case len(a.Issues) > 0:
		return Decision{ShouldRefine: true, Priority: PriorityNormal, Reason: fmt.Sprintf("%d issues found", len(a.Issues))}
	default:
		return Decision{ShouldRefine: true, Priority: PriorityNormal, Reason: "below threshold"}
	}
}
