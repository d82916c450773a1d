package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEdits_Dispatch(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		edit  Edit
		check func(t *testing.T, p WorkPlan)
	}{
		"gravity": {
			edit:  Edit{Parameter: "gravity", NewValue: "-4.9"},
			check: func(t *testing.T, p WorkPlan) { assert.Equal(t, -4.9, p.Params().Gravity) },
		},
		"substeps per frame goes to substeps not duration": {
			edit: Edit{Parameter: "substeps_per_frame", NewValue: "15"},
			check: func(t *testing.T, p WorkPlan) {
				assert.Equal(t, 15, p.Params().SubstepsPerFrame)
				assert.Equal(t, 250, p.DurationFrames())
			},
		},
		"solver iterations with spaces": {
			edit:  Edit{Parameter: "Solver Iterations", NewValue: "20"},
			check: func(t *testing.T, p WorkPlan) { assert.Equal(t, 20, p.Params().SolverIterations) },
		},
		"resolution": {
			edit:  Edit{Parameter: "resolution_max", NewValue: "64"},
			check: func(t *testing.T, p WorkPlan) { assert.Equal(t, 64, p.Params().FluidResolution) },
		},
		"duration as float": {
			edit:  Edit{Parameter: "duration_frames", NewValue: "300.0"},
			check: func(t *testing.T, p WorkPlan) { assert.Equal(t, 300, p.DurationFrames()) },
		},
		"frame alias": {
			edit:  Edit{Parameter: "frame_count", NewValue: "120"},
			check: func(t *testing.T, p WorkPlan) { assert.Equal(t, 120, p.DurationFrames()) },
		},
		"time scale": {
			edit:  Edit{Parameter: "time_scale", NewValue: "0.5"},
			check: func(t *testing.T, p WorkPlan) { assert.Equal(t, 0.5, p.Params().TimeScale) },
		},
		"object scale applies to every component": {
			edit: Edit{Parameter: "object_scale", NewValue: "2"},
			check: func(t *testing.T, p WorkPlan) {
				for _, c := range p.Components() {
					assert.Equal(t, 2.0, c.Scale)
				}
			},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			base := mustPlan(t, blocksSpec())

			next, res, err := ApplyEdits(base, []Edit{tc.edit}, nil)
			require.NoError(t, err)
			assert.Len(t, res.Applied, 1)
			assert.Empty(t, res.Skipped)
			tc.check(t, next)

			assert.Equal(t, blocksSpec().Components, base.Components(), "base plan must be untouched")
			assert.Equal(t, DefaultParams(), base.Params())
		})
	}
}

func TestApplyEdits_SkipsUnknownAndUnparseable(t *testing.T) {
	t.Parallel()

	base := mustPlan(t, blocksSpec())
	edits := []Edit{
		{Parameter: "camera_angle", NewValue: "45"},
		{Parameter: "gravity", NewValue: "strong"},
		{Parameter: "substeps", NewValue: "12.5"},
		{Parameter: "solver_iterations", NewValue: "30"},
	}

	next, res, err := ApplyEdits(base, edits, nil)
	require.NoError(t, err)
	assert.Equal(t, []Edit{edits[3]}, res.Applied)
	assert.Equal(t, edits[:3], res.Skipped)
	assert.Equal(t, 30, next.Params().SolverIterations)
	assert.Equal(t, DefaultGravity, next.Params().Gravity)
}

func TestApplyEdits_InvalidResult(t *testing.T) {
	t.Parallel()

	base := mustPlan(t, blocksSpec())
	_, res, err := ApplyEdits(base, []Edit{{Parameter: "substeps", NewValue: "50"}}, nil)
	require.Error(t, err)
	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Len(t, res.Applied, 1)
}

func TestApplyEdits_NoEdits(t *testing.T) {
	t.Parallel()

	base := mustPlan(t, blocksSpec())
	next, res, err := ApplyEdits(base, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, res.Applied)
	assert.Equal(t, base.Spec(), next.Spec())
}
