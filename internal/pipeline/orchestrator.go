// Package pipeline runs a simulation request through the fixed stage sequence
// plan, enrich, generate, validate, execute and assess, then optionally
// refines the result while its quality score keeps improving.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ariel-frischer/simforge/internal/codegen"
	"github.com/ariel-frischer/simforge/internal/config"
	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/ariel-frischer/simforge/internal/health"
	"github.com/ariel-frischer/simforge/internal/history"
	"github.com/ariel-frischer/simforge/internal/plan"
	"github.com/ariel-frischer/simforge/internal/quality"
	"github.com/ariel-frischer/simforge/internal/refine"
	"github.com/ariel-frischer/simforge/internal/stage"
	"github.com/ariel-frischer/simforge/internal/syntax"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Stage names. They key Result.StageTimes and the statistics registry.
const (
	StagePlan     = "plan"
	StageEnrich   = "enrich"
	StageGenerate = "generate"
	StageValidate = "validate"
	StageExecute  = "execute"
	StageAssess   = "assess"
	StageRefine   = "refine"
)

// Duration estimate constants, in seconds.
const (
	estimateOverhead = 30
	estimateFallback = 60
)

// Options are the orchestrator's tunables.
type Options struct {
	// OutputDir receives simulation_<timestamp>.blend when a run names no
	// output path.
	OutputDir string
	// Threshold is the quality gate threshold.
	Threshold float64
	// GoodEnough stops refinement once reached.
	GoodEnough float64
	// MaxIterations bounds refinement; zero disables it.
	MaxIterations int
	// ExecuteTimeout is the hard limit on one engine run.
	ExecuteTimeout time.Duration
	// Probes back CheckReady.
	Probes []health.Probe
}

// OptionsFromConfig derives Options from a loaded configuration.
func OptionsFromConfig(cfg *config.Configuration) Options {
	return Options{
		OutputDir:      cfg.Paths.OutputDir,
		Threshold:      cfg.Quality.Threshold,
		GoodEnough:     cfg.Quality.GoodEnough,
		MaxIterations:  cfg.MaxIterations(),
		ExecuteTimeout: cfg.Blender.Timeout,
	}
}

// RunOptions are per-run settings.
type RunOptions struct {
	// OutputPath overrides the default output file.
	OutputPath string
	// Progress receives checkpoint updates; may be nil.
	Progress ProgressFunc
}

// Orchestrator sequences the stages and owns the refinement loop. Runs are
// sequential; statistics accumulate across runs until ResetStats.
type Orchestrator struct {
	c      Collaborators
	opts   Options
	gate   quality.Gate
	stats  *stage.Registry
	logger *zap.Logger

	now   func() time.Time
	newID func() string
}

// New creates an orchestrator.
func New(c Collaborators, opts Options, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GoodEnough <= 0 || opts.GoodEnough > 1 {
		opts.GoodEnough = quality.DefaultGoodEnough
	}
	return &Orchestrator{
		c:      c,
		opts:   opts,
		gate:   quality.NewGate(opts.Threshold),
		stats:  stage.NewRegistry(),
		logger: logger,
		now:    time.Now,
		newID:  func() string { return uuid.NewString()[:8] },
	}
}

// run holds the state of one Run call.
type run struct {
	o        *Orchestrator
	res      *Result
	log      *zap.Logger
	progress *progressReporter
	// base carries logging and statistics; each stage group adds its own timer.
	base *stage.Runner
	// frames maps each produced file to its detected frame count.
	frames map[string]int
}

// Run executes the pipeline for request. It always returns a Result; failures
// are reported in Result.Errors, never by panicking.
func (o *Orchestrator) Run(ctx context.Context, request string, ro RunOptions) *Result {
	res := &Result{
		SessionID:  o.newID(),
		Timestamp:  o.now(),
		Request:    request,
		StageTimes: make(map[string]time.Duration),
		Warnings:   []string{},
	}
	log := o.logger.With(zap.String("session_id", res.SessionID))
	r := &run{
		o:        o,
		res:      res,
		log:      log,
		progress: newProgressReporter(ro.Progress, log),
		base:     o.runner(log),
		frames:   make(map[string]int),
	}

	outputPath := ro.OutputPath
	if outputPath == "" {
		outputPath = o.defaultOutputPath(res.Timestamp)
	}

	log.Info("pipeline started", zap.String("request", request), zap.String("output", outputPath))
	r.execute(ctx, outputPath)

	if res.Success {
		log.Info("pipeline completed",
			zap.Duration("total", res.TotalTime),
			zap.Float64("score", res.Assessment.Score),
			zap.Int("refinements", res.RefinementCount))
	} else {
		log.Error("pipeline failed", zap.Error(res.Err()))
	}
	o.record(res)
	return res
}

func (r *run) execute(ctx context.Context, outputPath string) {
	o, res := r.o, r.res
	times := newTimings()
	runner := r.timed(times.record)
	defer func() { res.setTimes(times.values) }()

	r.progress.report("Planning simulation", progressPlan)
	wp, err := stage.Run(ctx, runner, stage.NewFunc(StagePlan, o.c.Planner.Plan), res.Request, 0)
	if err != nil {
		res.fail(err)
		return
	}
	res.Plan = wp
	res.warn(wp.Lint()...)

	r.progress.report("Validating physics", progressEnrich)
	enrichment, err := stage.Run(ctx, runner, stage.NewFunc(StageEnrich, o.c.Enricher.Enrich), wp, 0)
	if err != nil {
		res.fail(err)
		return
	}
	res.Plan = enrichment.Plan.Plan()
	res.warn(enrichment.Warnings...)

	baseline, err := r.downstream(ctx, enrichment.Plan, outputPath, r.progress)
	res.setTimes(baseline.StageTimes)
	res.warn(baseline.Warnings...)
	if err != nil {
		res.fail(err)
		return
	}
	r.adopt(baseline)

	if r.shouldRefine(baseline) {
		r.refine(ctx, baseline, outputPath)
	}

	res.Success = true
	r.progress.report("Complete", progressComplete)
}

// adopt makes c the run's current best result.
func (r *run) adopt(c refine.Candidate) {
	a := c.Assessment
	d := r.o.gate.Decide(a)
	r.res.Plan = c.Plan.Plan()
	r.res.OutputPath = c.ArtifactPath
	r.res.FrameCount = r.frames[c.ArtifactPath]
	r.res.Assessment = &a
	r.res.Decision = &d
}

func (r *run) shouldRefine(baseline refine.Candidate) bool {
	o := r.o
	switch {
	case o.opts.MaxIterations <= 0 || o.c.Advisor == nil:
		return false
	case baseline.Score() >= o.opts.GoodEnough:
		r.log.Info("quality good enough, skipping refinement", zap.Float64("score", baseline.Score()))
		return false
	case !r.res.Decision.ShouldRefine:
		r.log.Info("quality gate passed, skipping refinement", zap.String("reason", r.res.Decision.Reason))
		return false
	}
	r.log.Info("attempting refinement",
		zap.Float64("score", baseline.Score()),
		zap.String("priority", string(r.res.Decision.Priority)),
		zap.String("reason", r.res.Decision.Reason))
	return true
}

// downstream runs generate, validate, execute and assess for one enriched
// plan. The returned candidate carries the times of the stages that ran,
// even on failure. progress may be nil.
func (r *run) downstream(ctx context.Context, ep plan.EnrichedPlan, outputPath string, progress *progressReporter) (refine.Candidate, error) {
	o := r.o
	times := newTimings()
	runner := r.timed(times.record)
	cand := refine.Candidate{Plan: ep, StageTimes: times.values}
	wp := ep.Plan()

	progress.report("Generating code", progressGenerate)
	generate := stage.NewFunc(StageGenerate, func(ctx context.Context, e plan.EnrichedPlan) (codegen.Artifact, error) {
		return o.c.Generator.Generate(ctx, e, outputPath)
	})
	artifact, err := stage.Run(ctx, runner, generate, ep, 0)
	if err != nil {
		return cand, err
	}

	progress.report("Validating syntax", progressValidate)
	checked, err := stage.Run(ctx, runner, stage.NewFunc(StageValidate, r.validate), artifact, 0)
	if err != nil {
		return cand, err
	}
	cand.Warnings = append(cand.Warnings, checked.report.Warnings...)

	progress.report("Executing in Blender", progressExecute)
	outcome, err := stage.Run(ctx, runner, stage.NewFunc(StageExecute, o.c.Executor.Run), checked.artifact, o.opts.ExecuteTimeout)
	if err != nil {
		return cand, err
	}
	if !outcome.Success {
		return cand, simerrors.NewExecutionError("Blender execution did not succeed", outcome.Stderr, outcome.ExitCode).WithStage(StageExecute)
	}
	cand.ArtifactPath = outcome.OutputPath
	r.frames[outcome.OutputPath] = outcome.FrameCount

	progress.report("Validating quality", progressAssess)
	assess := stage.NewFunc(StageAssess, func(ctx context.Context, path string) (quality.Assessment, error) {
		in, err := o.c.Inspector.Inspect(ctx, path, wp)
		if err != nil {
			return quality.Assessment{}, err
		}
		return quality.Assess(in, wp), nil
	})
	cand.Assessment, err = stage.Run(ctx, runner, assess, outcome.OutputPath, 0)
	if err != nil {
		return cand, err
	}
	r.log.Info("quality assessed",
		zap.Float64("score", cand.Assessment.Score),
		zap.Strings("issues", cand.Assessment.Issues))
	return cand, nil
}

type validated struct {
	artifact codegen.Artifact
	report   syntax.Report
}

// validate checks a and, when it is invalid, tries exactly one autofix.
func (r *run) validate(_ context.Context, a codegen.Artifact) (validated, error) {
	o := r.o
	report := o.c.Validator.Validate(a)
	if report.Valid {
		return validated{artifact: a, report: report}, nil
	}

	r.log.Info("script failed validation, attempting autofix", zap.Strings("errors", report.Errors))
	fixed := o.c.Validator.Autofix(a)
	report = o.c.Validator.Validate(fixed)
	if !report.Valid {
		return validated{}, simerrors.SyntaxInvalid(report.Errors)
	}
	return validated{artifact: fixed, report: report}, nil
}

// refine runs the refinement loop from baseline. Each iteration writes to its
// own file; the best one ends up at outputPath and the rest are removed.
// An iteration's advisor time travels with its candidate, so only accepted
// iterations count toward the total.
func (r *run) refine(ctx context.Context, baseline refine.Candidate, outputPath string) {
	o, res := r.o, r.res

	iteration := 0
	advice := newTimings()
	downstream := func(ctx context.Context, ep plan.EnrichedPlan) (refine.Candidate, error) {
		cand, err := r.downstream(ctx, ep, attemptPath(outputPath, iteration), nil)
		for name, d := range advice.values {
			cand.StageTimes[name] += d
		}
		return cand, err
	}
	advisor := stagedAdvisor{
		advisor: o.c.Advisor,
		runner:  r.timed(func(name string, d time.Duration) { advice.record(name, d) }),
	}

	loop := refine.NewLoop(advisor, downstream, refine.Config{
		MaxIterations: o.opts.MaxIterations,
		GoodEnough:    o.opts.GoodEnough,
	}, r.log.Named("refine"))
	loop.OnIteration = func(n int) {
		iteration = n
		advice = newTimings()
		r.progress.report(fmt.Sprintf("Refining simulation (iteration %d)", n), progressRefine)
	}

	out := loop.Run(ctx, baseline)
	res.warn(out.Warnings...)
	res.RefinementCount = out.Accepted
	res.Refinement = &RefinementReport{
		Iterations: out.Iterations,
		Stop:       out.Stop,
		Summary:    refine.Summarize(baseline.Score(), out.Best.Score()),
	}

	if out.Accepted > 0 {
		best := out.Best
		res.setTimes(best.StageTimes)
		r.adopt(best)
		if best.ArtifactPath != outputPath {
			if err := os.Rename(best.ArtifactPath, outputPath); err != nil {
				r.log.Warn("could not move refined output into place", zap.Error(err))
				res.warn(fmt.Sprintf("refined output left at %s", best.ArtifactPath))
			} else {
				r.frames[outputPath] = r.frames[best.ArtifactPath]
				res.OutputPath = outputPath
			}
		}
	}

	for _, it := range out.Iterations {
		path := attemptPath(outputPath, it.Number)
		if path != res.OutputPath {
			_ = os.Remove(path)
		}
	}
	r.log.Info("refinement finished",
		zap.String("stop", string(out.Stop)),
		zap.Int("accepted", out.Accepted),
		zap.Float64("score", res.Assessment.Score))
}

// stagedAdvisor runs advisor calls through the stage runner so they are
// timed, logged and classified like every other stage.
type stagedAdvisor struct {
	advisor Advisor
	runner  *stage.Runner
}

func (a stagedAdvisor) Suggest(ctx context.Context, p plan.WorkPlan, issues []string) ([]plan.Edit, error) {
	suggest := stage.NewFunc(StageRefine, func(ctx context.Context, p plan.WorkPlan) ([]plan.Edit, error) {
		return a.advisor.Suggest(ctx, p, issues)
	})
	return stage.Run(ctx, a.runner, suggest, p, 0)
}

// attemptPath is the output file for refinement iteration n:
// out/sim.blend becomes out/sim.refine1.blend.
func attemptPath(outputPath string, n int) string {
	ext := filepath.Ext(outputPath)
	return fmt.Sprintf("%s.refine%d%s", strings.TrimSuffix(outputPath, ext), n, ext)
}

func (o *Orchestrator) defaultOutputPath(ts time.Time) string {
	return filepath.Join(o.opts.OutputDir, fmt.Sprintf("simulation_%s.blend", ts.Format("20060102_150405")))
}

// runner builds the middleware chain shared by a run: logging outermost,
// then statistics.
func (o *Orchestrator) runner(log *zap.Logger) *stage.Runner {
	return stage.NewRunner(
		stage.Logging(log),
		stage.Instrument(o.stats, stage.Hooks{}),
	)
}

// timed derives a runner from the run's chain that reports successful stage
// durations to record.
func (r *run) timed(record func(stage string, elapsed time.Duration)) *stage.Runner {
	return r.base.With(stage.Instrument(nil, stage.Hooks{OnSuccess: record}))
}

func (o *Orchestrator) record(res *Result) {
	if o.c.History == nil {
		return
	}
	entry := history.Entry{
		Timestamp:       res.Timestamp,
		SessionID:       res.SessionID,
		Request:         res.Request,
		Success:         res.Success,
		RefinementCount: res.RefinementCount,
		OutputPath:      res.OutputPath,
		Duration:        res.TotalTime.Round(time.Millisecond).String(),
	}
	if !res.Plan.IsZero() {
		entry.Category = string(res.Plan.Category())
	}
	if res.Assessment != nil {
		entry.Score = res.Assessment.Score
	}
	if err := res.Err(); err != nil {
		entry.Error = err.Error()
	}
	o.c.History.Record(entry)
}

// Stats returns a snapshot of every stage's statistics.
func (o *Orchestrator) Stats() []stage.Snapshot {
	return o.stats.Snapshots()
}

// ResetStats clears all stage statistics.
func (o *Orchestrator) ResetStats() {
	o.stats.Reset()
}

// CheckReady runs the readiness probes concurrently.
func (o *Orchestrator) CheckReady(ctx context.Context) *health.HealthReport {
	return health.RunHealthChecks(ctx, health.DefaultProbeTimeout, o.opts.Probes...)
}

// EstimateDuration plans and enriches request and returns the expected
// processing time. Any failure yields a fixed fallback.
func (o *Orchestrator) EstimateDuration(ctx context.Context, request string) time.Duration {
	fallback := estimateFallback * time.Second

	wp, err := o.c.Planner.Plan(ctx, request)
	if err != nil {
		o.logger.Warn("could not estimate duration", zap.Error(err))
		return fallback
	}
	enrichment, err := o.c.Enricher.Enrich(ctx, wp)
	if err != nil {
		o.logger.Warn("could not estimate duration", zap.Error(err))
		return fallback
	}
	secs := codegen.EstimateSeconds(enrichment.Plan.Plan()) + estimateOverhead
	return time.Duration(secs) * time.Second
}

// timings accumulates successful stage durations.
type timings struct {
	values map[string]time.Duration
}

func newTimings() *timings {
	return &timings{values: make(map[string]time.Duration)}
}

func (t *timings) record(stage string, elapsed time.Duration) {
	t.values[stage] += elapsed
}
