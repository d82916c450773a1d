// Package refine implements the bounded refinement loop: ask an advisor for plan
// edits, re-run the downstream stages on the edited plan, and keep the result
// only if its quality score strictly improves.
package refine

import (
	"context"
	"fmt"
	"time"

	"github.com/ariel-frischer/simforge/internal/plan"
	"github.com/ariel-frischer/simforge/internal/quality"
	"go.uber.org/zap"
)

// DefaultMaxIterations bounds refinement when the config leaves it unset.
const DefaultMaxIterations = 2

// Candidate is one complete downstream result: the plan it was built from,
// where the produced file lives, and how it scored.
type Candidate struct {
	Plan         plan.EnrichedPlan
	ArtifactPath string
	Assessment   quality.Assessment
	// StageTimes holds the elapsed time of each downstream stage that produced
	// this candidate.
	StageTimes map[string]time.Duration
	Warnings   []string
}

// Score is the candidate's composite quality score.
func (c Candidate) Score() float64 { return c.Assessment.Score }

// Advisor suggests plan edits for a list of quality issues.
type Advisor interface {
	Suggest(ctx context.Context, p plan.WorkPlan, issues []string) ([]plan.Edit, error)
}

// Downstream regenerates, validates, executes and reassesses an edited plan.
// It is the same code path the main run uses after enrichment.
type Downstream func(ctx context.Context, p plan.EnrichedPlan) (Candidate, error)

// State is a step of the refinement state machine.
type State int

const (
	Assessed State = iota
	RequestRefinement
	Regenerate
	Accept
	Reject
	Done
)

func (s State) String() string {
	switch s {
	case Assessed:
		return "assessed"
	case RequestRefinement:
		return "request_refinement"
	case Regenerate:
		return "regenerate"
	case Accept:
		return "accept"
	case Reject:
		return "reject"
	default:
		return "done"
	}
}

// StopReason says why the loop ended.
type StopReason string

const (
	StopMaxIterations   StopReason = "max iterations reached"
	StopGoodEnough      StopReason = "quality good enough"
	StopNoImprovement   StopReason = "no quality improvement"
	StopNoChanges       StopReason = "no applicable edits suggested"
	StopIterationFailed StopReason = "refinement iteration failed"
	StopCancelled       StopReason = "cancelled"
	StopDisabled        StopReason = "refinement disabled"
)

// Iteration records one pass through the loop.
type Iteration struct {
	Number      int         `json:"number"`
	ScoreBefore float64     `json:"score_before"`
	ScoreAfter  float64     `json:"score_after"`
	Accepted    bool        `json:"accepted"`
	Applied     []plan.Edit `json:"applied,omitempty"`
	Skipped     []plan.Edit `json:"skipped,omitempty"`
	Err         string      `json:"error,omitempty"`
}

// Outcome is the loop's final result.
type Outcome struct {
	Best Candidate
	// Accepted counts accepted iterations.
	Accepted   int
	Iterations []Iteration
	Warnings   []string
	Stop       StopReason
}

// Config bounds the loop.
type Config struct {
	MaxIterations int
	GoodEnough    float64
}

// Loop drives refinement. It keeps no state between calls to Run.
type Loop struct {
	advisor    Advisor
	downstream Downstream
	cfg        Config
	logger     *zap.Logger

	// OnIteration is called at the start of every iteration.
	OnIteration func(n int)
}

// NewLoop creates a loop. A non-positive MaxIterations disables refinement;
// a GoodEnough outside (0, 1] falls back to the default.
func NewLoop(advisor Advisor, downstream Downstream, cfg Config, logger *zap.Logger) *Loop {
	if cfg.GoodEnough <= 0 || cfg.GoodEnough > 1 {
		cfg.GoodEnough = quality.DefaultGoodEnough
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loop{advisor: advisor, downstream: downstream, cfg: cfg, logger: logger}
}

// Run refines baseline until a terminal condition holds. It never fails:
// iteration errors become warnings and the best candidate so far is kept.
// Accepted iterations strictly improve the score.
func (l *Loop) Run(ctx context.Context, baseline Candidate) Outcome {
	out := Outcome{Best: baseline}
	if l.cfg.MaxIterations <= 0 {
		out.Stop = StopDisabled
		return out
	}

	var (
		state   = Assessed
		n       int
		iter    Iteration
		edited  plan.EnrichedPlan
		attempt Candidate
	)

	for state != Done {
		l.logger.Debug("refinement state", zap.Stringer("state", state), zap.Int("iteration", n))

		switch state {
		case Assessed:
			switch {
			case out.Best.Score() >= l.cfg.GoodEnough:
				out.Stop = StopGoodEnough
				state = Done
			case n >= l.cfg.MaxIterations:
				out.Stop = StopMaxIterations
				state = Done
			case ctx.Err() != nil:
				out.Stop = StopCancelled
				out.Warnings = append(out.Warnings, fmt.Sprintf("refinement iteration %d cancelled, using previous result", n+1))
				state = Done
			default:
				n++
				iter = Iteration{Number: n, ScoreBefore: out.Best.Score()}
				if l.OnIteration != nil {
					l.OnIteration(n)
				}
				state = RequestRefinement
			}

		case RequestRefinement:
			var err error
			var changed bool
			edited, changed, err = l.requestRefinement(ctx, out.Best, &iter)
			switch {
			case err != nil:
				l.fail(&out, &iter, err)
				state = Done
			case !changed:
				out.Iterations = append(out.Iterations, iter)
				out.Stop = StopNoChanges
				state = Done
			default:
				state = Regenerate
			}

		case Regenerate:
			var err error
			attempt, err = l.downstream(ctx, edited)
			if err != nil {
				l.fail(&out, &iter, err)
				state = Done
				continue
			}
			iter.ScoreAfter = attempt.Score()
			if attempt.Score() > out.Best.Score() {
				state = Accept
			} else {
				state = Reject
			}

		case Accept:
			l.logger.Info("refinement accepted",
				zap.Int("iteration", n),
				zap.Float64("before", iter.ScoreBefore),
				zap.Float64("after", iter.ScoreAfter))
			iter.Accepted = true
			out.Iterations = append(out.Iterations, iter)
			out.Best = attempt
			out.Accepted++
			state = Assessed

		case Reject:
			l.logger.Info("refinement rejected",
				zap.Int("iteration", n),
				zap.Float64("best", iter.ScoreBefore),
				zap.Float64("attempt", iter.ScoreAfter))
			out.Iterations = append(out.Iterations, iter)
			out.Stop = StopNoImprovement
			state = Done
		}
	}
	return out
}

// requestRefinement asks the advisor for edits and applies them to the best
// plan. changed is false when no edit could be applied.
func (l *Loop) requestRefinement(ctx context.Context, best Candidate, iter *Iteration) (plan.EnrichedPlan, bool, error) {
	current := best.Plan.Plan()
	edits, err := l.advisor.Suggest(ctx, current, best.Assessment.Issues)
	if err != nil {
		return plan.EnrichedPlan{}, false, fmt.Errorf("requesting refinement: %w", err)
	}

	next, res, err := plan.ApplyEdits(current, edits, l.logger)
	iter.Applied, iter.Skipped = res.Applied, res.Skipped
	if err != nil {
		return plan.EnrichedPlan{}, false, err
	}
	if len(res.Applied) == 0 {
		l.logger.Info("advisor suggested no applicable edits", zap.Int("suggested", len(edits)))
		return plan.EnrichedPlan{}, false, nil
	}

	edited, err := best.Plan.WithPlan(next)
	if err != nil {
		return plan.EnrichedPlan{}, false, err
	}
	return edited, true, nil
}

func (l *Loop) fail(out *Outcome, iter *Iteration, err error) {
	l.logger.Warn("refinement iteration failed", zap.Int("iteration", iter.Number), zap.Error(err))
	iter.Err = err.Error()
	out.Iterations = append(out.Iterations, *iter)
	out.Warnings = append(out.Warnings, fmt.Sprintf("refinement iteration %d failed, using previous result", iter.Number))
	out.Stop = StopIterationFailed
}
