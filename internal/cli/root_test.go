package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Structure(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "simforge", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotEmpty(t, rootCmd.Example)
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, rootCmd.PersistentFlags().Lookup("debug"))
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	groups := map[string]bool{}
	for _, g := range rootCmd.Groups() {
		groups[g.ID] = true
	}

	want := []string{"generate", "doctor", "materials", "history", "init", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
		assert.True(t, groups[cmd.GroupID], "%s has unknown group %q", name, cmd.GroupID)
	}
}

func TestGenerateCmd_Flags(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"output", "refine", "max-iterations", "estimate", "json", "skip-preflight"} {
		assert.NotNil(t, generateCmd.Flags().Lookup(name), name)
	}
	assert.Equal(t, "o", generateCmd.Flags().Lookup("output").Shorthand)
}

func TestExitCodeFor(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want int
	}{
		"nil":           {err: nil, want: ExitSuccess},
		"syntax":        {err: simerrors.SyntaxInvalid([]string{"bad"}), want: ExitValidationFailed},
		"execution":     {err: simerrors.NewExecutionError("boom", "", 1), want: ExitExecutionFailed},
		"api":           {err: simerrors.NewAPIError("rate limited", nil), want: ExitExecutionFailed},
		"requirements":  {err: simerrors.UnparseableRequest("?", errors.New("no json")), want: ExitInvalidArguments},
		"configuration": {err: simerrors.EngineNotFound("blender"), want: ExitMissingDependencies},
		"resource":      {err: simerrors.NewResourceError("disk full", "disk"), want: ExitMissingDependencies},
		"timeout":       {err: simerrors.NewTimeoutError("execute", 300), want: ExitTimeout},
		"cancelled":     {err: simerrors.Classify(context.Canceled), want: ExitCancelled},
		"wrapped":       {err: fmt.Errorf("stage: %w", simerrors.NewTimeoutError("execute", 1)), want: ExitTimeout},
		"unclassified":  {err: errors.New("something odd"), want: ExitValidationFailed},
		"reported":      {err: reported(ExitMissingDependencies, errors.New("preflight")), want: ExitMissingDependencies},
		"usage":         {err: usageError(errors.New("bad flag")), want: ExitInvalidArguments},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExitCodeFor(tt.err))
		})
	}
}

func TestExitError_Unwraps(t *testing.T) {
	t.Parallel()

	inner := simerrors.NewExecutionError("boom", "", 2)
	err := reported(ExitExecutionFailed, inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, inner.Error(), err.Error())
	assert.Equal(t, "exit status 4", (&exitError{code: 4}).Error())
}
