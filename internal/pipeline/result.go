package pipeline

import (
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/plan"
	"github.com/ariel-frischer/simforge/internal/quality"
	"github.com/ariel-frischer/simforge/internal/refine"
)

// Result is the envelope returned by one pipeline run. The orchestrator is
// its only writer and does not touch it after Run returns.
type Result struct {
	Success    bool          `json:"success"`
	SessionID  string        `json:"session_id"`
	Timestamp  time.Time     `json:"timestamp"`
	Request    string        `json:"request"`
	Plan       plan.WorkPlan `json:"plan"`
	OutputPath string        `json:"output_path,omitempty"`
	FrameCount int           `json:"frame_count,omitempty"`

	// Assessment and Decision are nil when the run never reached assessment.
	Assessment *quality.Assessment `json:"quality,omitempty"`
	Decision   *quality.Decision   `json:"decision,omitempty"`

	StageTimes map[string]time.Duration `json:"stage_times"`
	TotalTime  time.Duration            `json:"total_time"`

	Errors   []*simerrors.PipelineError `json:"-"`
	Warnings []string                   `json:"warnings"`

	RefinementCount int               `json:"refinement_count"`
	Refinement      *RefinementReport `json:"refinement,omitempty"`
}

// RefinementReport describes what the refinement loop did.
type RefinementReport struct {
	Iterations []refine.Iteration `json:"iterations"`
	Stop       refine.StopReason  `json:"stop_reason"`
	Summary    refine.Summary     `json:"summary"`
}

// Err returns the first error, or nil for a successful run.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// ErrorMessages returns the error messages in order.
func (r *Result) ErrorMessages() []string {
	msgs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		msgs[i] = e.Error()
	}
	return msgs
}

func (r *Result) fail(err error) {
	r.Success = false
	r.Errors = append(r.Errors, simerrors.Classify(err))
}

func (r *Result) warn(msgs ...string) {
	r.Warnings = append(r.Warnings, msgs...)
}

// setTimes replaces the recorded times for every stage in times and
// recomputes the total.
func (r *Result) setTimes(times map[string]time.Duration) {
	for name, d := range times {
		r.StageTimes[name] = d
	}
	var total time.Duration
	for _, d := range r.StageTimes {
		total += d
	}
	r.TotalTime = total
}
