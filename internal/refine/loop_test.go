package refine

import (
	"context"
	"errors"
	"testing"

	"github.com/ariel-frischer/simforge/internal/plan"
	"github.com/ariel-frischer/simforge/internal/quality"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAdvisor struct {
	edits  []plan.Edit
	err    error
	calls  int
	issues [][]string
}

func (f *fakeAdvisor) Suggest(_ context.Context, _ plan.WorkPlan, issues []string) ([]plan.Edit, error) {
	f.calls++
	f.issues = append(f.issues, issues)
	return f.edits, f.err
}

// scripted returns a downstream that yields the given scores in order and
// records the plans it was asked to build.
func scripted(scores []float64, errAt int) (Downstream, *[]plan.EnrichedPlan) {
	var seen []plan.EnrichedPlan
	return func(_ context.Context, p plan.EnrichedPlan) (Candidate, error) {
		seen = append(seen, p)
		i := len(seen)
		if i == errAt {
			return Candidate{}, errors.New("blender exited with code 1")
		}
		return Candidate{
			Plan:         p,
			ArtifactPath: "/tmp/out.blend",
			Assessment:   quality.Assessment{Score: scores[i-1], Issues: []string{"still imperfect"}},
		}, nil
	}, &seen
}

func baseline(t *testing.T, score float64) Candidate {
	t.Helper()
	p, err := plan.New(plan.Spec{
		Category: plan.RigidBody,
		Components: []plan.ComponentSpec{
			{Name: "block", Shape: plan.Cube, Count: 5, Material: "wood", Scale: 1},
			{Name: "ground", Shape: plan.Plane, Count: 1, Material: "concrete", Scale: 10, Static: true},
		},
		Params:         plan.DefaultParams(),
		DurationFrames: 250,
	})
	require.NoError(t, err)
	e, err := plan.NewEnriched(p, make([]plan.MaterialProfile, 2))
	require.NoError(t, err)
	return Candidate{
		Plan:         e,
		ArtifactPath: "/tmp/base.blend",
		Assessment:   quality.Assessment{Score: score, Issues: []string{"No lighting found in scene"}},
	}
}

var substeps = []plan.Edit{{Parameter: "substeps_per_frame", NewValue: "15", Reasoning: "stability"}}

func TestLoop_Run(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		base           float64
		scores         []float64
		errAt          int
		maxIterations  int
		edits          []plan.Edit
		advisorErr     error
		wantBest       float64
		wantAccepted   int
		wantIterations int
		wantStop       StopReason
		wantWarnings   []string
	}{
		"accept then regression stops": {
			base:           0.6,
			scores:         []float64{0.81, 0.72},
			maxIterations:  3,
			edits:          substeps,
			wantBest:       0.81,
			wantAccepted:   1,
			wantIterations: 2,
			wantStop:       StopNoImprovement,
		},
		"two improvements hit max": {
			base:           0.5,
			scores:         []float64{0.6, 0.7, 0.75},
			maxIterations:  2,
			edits:          substeps,
			wantBest:       0.7,
			wantAccepted:   2,
			wantIterations: 2,
			wantStop:       StopMaxIterations,
		},
		"good enough ends early": {
			base:           0.5,
			scores:         []float64{0.92, 0.99},
			maxIterations:  5,
			edits:          substeps,
			wantBest:       0.92,
			wantAccepted:   1,
			wantIterations: 1,
			wantStop:       StopGoodEnough,
		},
		"tie is rejected": {
			base:           0.5,
			scores:         []float64{0.5},
			maxIterations:  2,
			edits:          substeps,
			wantBest:       0.5,
			wantIterations: 1,
			wantStop:       StopNoImprovement,
		},
		"downstream failure keeps previous result": {
			base:           0.5,
			scores:         []float64{0.6, 0.0},
			errAt:          2,
			maxIterations:  3,
			edits:          substeps,
			wantBest:       0.6,
			wantAccepted:   1,
			wantIterations: 2,
			wantStop:       StopIterationFailed,
			wantWarnings:   []string{"refinement iteration 2 failed, using previous result"},
		},
		"advisor failure": {
			base:           0.5,
			maxIterations:  2,
			advisorErr:     errors.New("rate limited"),
			wantBest:       0.5,
			wantIterations: 1,
			wantStop:       StopIterationFailed,
			wantWarnings:   []string{"refinement iteration 1 failed, using previous result"},
		},
		"only unknown edits": {
			base:           0.5,
			maxIterations:  2,
			edits:          []plan.Edit{{Parameter: "camera_fov", NewValue: "40"}},
			wantBest:       0.5,
			wantIterations: 1,
			wantStop:       StopNoChanges,
		},
		"edit producing invalid plan": {
			base:           0.5,
			maxIterations:  2,
			edits:          []plan.Edit{{Parameter: "substeps", NewValue: "99"}},
			wantBest:       0.5,
			wantIterations: 1,
			wantStop:       StopIterationFailed,
			wantWarnings:   []string{"refinement iteration 1 failed, using previous result"},
		},
		"disabled": {
			base:          0.5,
			maxIterations: 0,
			wantBest:      0.5,
			wantStop:      StopDisabled,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			advisor := &fakeAdvisor{edits: tc.edits, err: tc.advisorErr}
			downstream, seen := scripted(tc.scores, tc.errAt)
			loop := NewLoop(advisor, downstream, Config{MaxIterations: tc.maxIterations}, nil)

			var started []int
			loop.OnIteration = func(n int) { started = append(started, n) }

			base := baseline(t, tc.base)
			out := loop.Run(context.Background(), base)

			assert.InDelta(t, tc.wantBest, out.Best.Score(), 1e-9)
			assert.Equal(t, tc.wantAccepted, out.Accepted)
			assert.Len(t, out.Iterations, tc.wantIterations)
			assert.Equal(t, tc.wantStop, out.Stop)
			assert.Equal(t, tc.wantWarnings, out.Warnings)
			assert.Len(t, started, tc.wantIterations)

			// Invariants: bounded, strictly improving, at most N+1 assessments.
			if tc.maxIterations > 0 {
				assert.LessOrEqual(t, len(out.Iterations), tc.maxIterations)
				assert.LessOrEqual(t, len(*seen)+1, tc.maxIterations+1)
			}
			for _, it := range out.Iterations {
				if it.Accepted {
					assert.Greater(t, it.ScoreAfter, it.ScoreBefore)
				}
			}
			assert.Equal(t, 250, base.Plan.Plan().DurationFrames())
			assert.Equal(t, plan.DefaultSubsteps, base.Plan.Plan().Params().SubstepsPerFrame, "baseline plan must not be mutated")
		})
	}
}

func TestLoop_RefinesFromBestPlan(t *testing.T) {
	t.Parallel()

	advisor := &fakeAdvisor{edits: []plan.Edit{{Parameter: "duration_frames", NewValue: "300"}}}
	downstream, seen := scripted([]float64{0.6, 0.7}, 0)
	loop := NewLoop(advisor, downstream, Config{MaxIterations: 2}, nil)

	out := loop.Run(context.Background(), baseline(t, 0.5))
	require.Equal(t, 2, out.Accepted)
	require.Len(t, *seen, 2)

	assert.Equal(t, 300, (*seen)[0].Plan().DurationFrames())
	assert.Equal(t, 300, out.Best.Plan.Plan().DurationFrames())
	assert.Equal(t, []string{"No lighting found in scene"}, advisor.issues[0])
	assert.Equal(t, []string{"still imperfect"}, advisor.issues[1], "second request uses the accepted candidate's issues")
}

func TestLoop_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	advisor := &fakeAdvisor{edits: substeps}
	downstream, seen := scripted([]float64{0.9}, 0)
	out := NewLoop(advisor, downstream, Config{MaxIterations: 2}, nil).Run(ctx, baseline(t, 0.5))

	assert.Equal(t, StopCancelled, out.Stop)
	assert.Zero(t, advisor.calls)
	assert.Empty(t, *seen)
	assert.Len(t, out.Warnings, 1)
}

func TestSummarize(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		original, refined float64
		want              Summary
	}{
		"improved": {
			original: 0.6, refined: 0.81,
			want: Summary{Original: 0.6, Refined: 0.81, Improvement: 0.21, ImprovementPercent: 35, Successful: true},
		},
		"regressed": {
			original: 0.81, refined: 0.72,
			want: Summary{Original: 0.81, Refined: 0.72, Improvement: -0.09, ImprovementPercent: -11.1},
		},
		"zero original": {
			original: 0, refined: 0.5,
			want: Summary{Refined: 0.5, Improvement: 0.5, Successful: true},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, Summarize(tc.original, tc.refined))
		})
	}
}
