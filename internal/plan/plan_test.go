package plan

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func blocksSpec() Spec {
	return Spec{
		Category: RigidBody,
		Components: []ComponentSpec{
			{Name: "wooden_block", Shape: Cube, Count: 20, Material: "wood", Scale: 1},
			{Name: "ground", Shape: Plane, Count: 1, Material: "concrete", Scale: 10, Static: true},
		},
		Params:         DefaultParams(),
		DurationFrames: 250,
		Request:        "20 wooden blocks falling on a concrete floor",
	}
}

func mustPlan(t *testing.T, spec Spec) WorkPlan {
	t.Helper()
	p, err := New(spec)
	require.NoError(t, err)
	return p
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate      func(s *Spec)
		wantErr     bool
		errContains string
	}{
		"valid plan": {
			mutate: func(s *Spec) {},
		},
		"no components": {
			mutate:      func(s *Spec) { s.Components = nil },
			wantErr:     true,
			errContains: "Components is required",
		},
		"zero count": {
			mutate:      func(s *Spec) { s.Components[0].Count = 0 },
			wantErr:     true,
			errContains: "Components[0].Count must be at least 1",
		},
		"non-positive scale": {
			mutate:      func(s *Spec) { s.Components[1].Scale = 0 },
			wantErr:     true,
			errContains: "Components[1].Scale must be greater than 0",
		},
		"unknown shape": {
			mutate:      func(s *Spec) { s.Components[0].Shape = "pyramid" },
			wantErr:     true,
			errContains: "Shape must be one of",
		},
		"unknown category": {
			mutate:      func(s *Spec) { s.Category = "plasma" },
			wantErr:     true,
			errContains: "Category must be one of",
		},
		"substeps out of range": {
			mutate:      func(s *Spec) { s.Params.SubstepsPerFrame = 21 },
			wantErr:     true,
			errContains: "SubstepsPerFrame must be at most 20",
		},
		"zero duration": {
			mutate:      func(s *Spec) { s.DurationFrames = 0 },
			wantErr:     true,
			errContains: "DurationFrames must be at least 1",
		},
		"duration beyond category bound": {
			mutate: func(s *Spec) {
				s.Category = FluidLiquid
				s.DurationFrames = 700
			},
			wantErr:     true,
			errContains: "exceeds fluid_liquid bound of 500",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			spec := blocksSpec()
			tc.mutate(&spec)

			p, err := New(spec)
			if tc.wantErr {
				require.Error(t, err)
				var verr *ValidationError
				require.ErrorAs(t, err, &verr)
				assert.Contains(t, err.Error(), tc.errContains)
				assert.True(t, p.IsZero())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 21, p.TotalObjects())
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	spec := blocksSpec()
	spec.FrameRate = 0
	spec.Components[0].Material = ""

	p := mustPlan(t, spec)
	assert.Equal(t, DefaultFrameRate, p.FrameRate())
	assert.Equal(t, DefaultMaterial, p.Components()[0].Material)
	assert.False(t, p.CreatedAt().IsZero())
}

func TestWorkPlan_Immutable(t *testing.T) {
	t.Parallel()

	spec := blocksSpec()
	p := mustPlan(t, spec)

	spec.Components[0].Count = 99
	assert.Equal(t, 20, p.Components()[0].Count, "source spec must not alias the plan")

	comps := p.Components()
	comps[0].Count = 42
	assert.Equal(t, 20, p.Components()[0].Count, "accessor must return a copy")

	draft := p.Spec()
	draft.Components[0].Name = "changed"
	assert.Equal(t, "wooden_block", p.Components()[0].Name)
}

func TestWorkPlan_JSONRoundTrip(t *testing.T) {
	t.Parallel()

	spec := blocksSpec()
	spec.CreatedAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	p := mustPlan(t, spec)

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"simulation_type":"rigid_body"`)

	var decoded WorkPlan
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, p.Spec(), decoded.Spec())

	var invalid WorkPlan
	err = json.Unmarshal([]byte(`{"simulation_type":"rigid_body","objects":[],"duration_frames":10}`), &invalid)
	assert.Error(t, err)
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	c, err := ParseCategory(" Fluid_Smoke ")
	require.NoError(t, err)
	assert.Equal(t, FluidSmoke, c)
	assert.True(t, c.IsFluid())

	_, err = ParseCategory("plasma")
	assert.Error(t, err)
	assert.Len(t, Categories(), 6)
}

func TestLint(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		mutate       func(s *Spec)
		wantWarnings []string
	}{
		"clean plan": {
			mutate: func(s *Spec) {},
		},
		"rigid body without ground": {
			mutate:       func(s *Spec) { s.Components = s.Components[:1] },
			wantWarnings: []string{"Rigid body simulation should have a static ground plane"},
		},
		"long and crowded": {
			mutate: func(s *Spec) {
				s.DurationFrames = 600
				s.Components[0].Count = 600
			},
			wantWarnings: []string{
				"Long animation (600 frames) may take time to bake",
				"High object count (601) may cause performance issues",
			},
		},
		"high fluid resolution": {
			mutate: func(s *Spec) {
				s.Category = FluidSmoke
				s.DurationFrames = 150
				s.Params.FluidResolution = 300
			},
			wantWarnings: []string{"High fluid resolution (300) will be slow to bake"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			spec := blocksSpec()
			tc.mutate(&spec)
			assert.Equal(t, tc.wantWarnings, mustPlan(t, spec).Lint())
		})
	}
}

func TestEnriched(t *testing.T) {
	t.Parallel()

	p := mustPlan(t, blocksSpec())
	profiles := []MaterialProfile{{Name: "wood_pine", Density: 500}, {Name: "concrete", Density: 2400}}

	e, err := NewEnriched(p, profiles)
	require.NoError(t, err)
	assert.Equal(t, "concrete", e.Profile(1).Name)

	profiles[0].Name = "mutated"
	assert.Equal(t, "wood_pine", e.Profile(0).Name)

	_, err = NewEnriched(p, profiles[:1])
	assert.ErrorContains(t, err, "2 component(s) but 1 material profile(s)")

	_, err = NewEnriched(WorkPlan{}, nil)
	assert.Error(t, err)

	longer, err := NewBuilder(p).SetDuration(400).Build()
	require.NoError(t, err)
	swapped, err := e.WithPlan(longer)
	require.NoError(t, err)
	assert.Equal(t, 400, swapped.Plan().DurationFrames())
	assert.Equal(t, 250, e.Plan().DurationFrames())
}
