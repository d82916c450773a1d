package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolated returns options that ignore the real user config and .env file.
func isolated(t *testing.T) LoadOptions {
	t.Helper()
	dir := t.TempDir()
	return LoadOptions{
		UserConfigPath:    filepath.Join(dir, "user.yml"),
		ProjectConfigPath: filepath.Join(dir, "project.yml"),
		EnvFile:           filepath.Join(dir, ".env"),
		SkipWarnings:      true,
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoad_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := LoadWithOptions(isolated(t))
	require.NoError(t, err)

	assert.Equal(t, "claude -p {{PROMPT}}", cfg.LLM.Command)
	assert.Equal(t, 2*time.Minute, cfg.LLM.Timeout)
	assert.Equal(t, 3, cfg.LLM.MaxAttempts)
	assert.Equal(t, 2*time.Second, cfg.LLM.InitialBackoff)
	assert.Equal(t, "blender", cfg.Blender.Executable)
	assert.Equal(t, 5*time.Minute, cfg.Blender.Timeout)
	assert.Equal(t, time.Minute, cfg.Blender.InspectTimeout)
	assert.Equal(t, "./output", cfg.Paths.OutputDir)
	assert.Equal(t, 0.8, cfg.Quality.Threshold)
	assert.Equal(t, 0.9, cfg.Quality.GoodEnough)
	assert.False(t, cfg.Refinement.Enabled)
	assert.Equal(t, 2, cfg.Refinement.MaxIterations)
	assert.Zero(t, cfg.MaxIterations())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 500, cfg.History.MaxEntries)
	assert.False(t, cfg.Notifications.Enabled)
	assert.Equal(t, "both", cfg.Notifications.Type)
	assert.Equal(t, 30*time.Second, cfg.Notifications.MinDuration)
	assert.NotContains(t, cfg.Paths.StateDir, "~")
}

func TestLoad_ProjectOverridesUser(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	writeFile(t, opts.UserConfigPath, "blender:\n  executable: /opt/blender/blender\n  timeout: 10m\nquality:\n  threshold: 0.6\n")
	writeFile(t, opts.ProjectConfigPath, "blender:\n  timeout: 90s\nrefinement:\n  enabled: true\n  max_iterations: 4\n")

	cfg, err := LoadWithOptions(opts)
	require.NoError(t, err)
	assert.Equal(t, "/opt/blender/blender", cfg.Blender.Executable)
	assert.Equal(t, 90*time.Second, cfg.Blender.Timeout)
	assert.Equal(t, 0.6, cfg.Quality.Threshold)
	assert.Equal(t, 4, cfg.MaxIterations())
}

func TestLoad_EnvOverridesFiles(t *testing.T) {
	opts := isolated(t)
	writeFile(t, opts.ProjectConfigPath, "llm:\n  max_attempts: 5\n")
	writeFile(t, opts.EnvFile, "SIMFORGE_LLM_MAX_ATTEMPTS=7\nSIMFORGE_LOGGING_LEVEL=debug\nOTHER_VAR=ignored\n")
	t.Setenv("SIMFORGE_LOGGING_LEVEL", "warn")
	t.Setenv("SIMFORGE_BLENDER_TIMEOUT", "45s")
	t.Setenv("SIMFORGE_MATERIALS_FILE", "/tmp/materials.yaml")

	cfg, err := LoadWithOptions(opts)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.LLM.MaxAttempts, ".env beats project config")
	assert.Equal(t, "warn", cfg.Logging.Level, "environment beats .env")
	assert.Equal(t, 45*time.Second, cfg.Blender.Timeout)
	assert.Equal(t, "/tmp/materials.yaml", cfg.MaterialsFile)

	_, set := os.LookupEnv("SIMFORGE_LLM_MAX_ATTEMPTS")
	assert.False(t, set, ".env must not leak into the process environment")
}

func TestLoad_Invalid(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		project   string
		wantField string
		wantLine  int
	}{
		"attempts out of range": {
			project:   "llm:\n  max_attempts: 0\n",
			wantField: "llm.max_attempts",
		},
		"missing placeholder": {
			project:   "llm:\n  command: claude -p\n",
			wantField: "llm.command",
		},
		"threshold above good enough": {
			project:   "quality:\n  threshold: 0.95\n  good_enough: 0.9\n",
			wantField: "quality.threshold",
		},
		"unknown log format": {
			project:   "logging:\n  format: xml\n",
			wantField: "logging.format",
		},
		"too many iterations": {
			project:   "refinement:\n  max_iterations: 11\n",
			wantField: "refinement.max_iterations",
		},
		"syntax error": {
			project:  "blender:\n  executable: [unclosed\n",
			wantLine: 3,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			opts := isolated(t)
			writeFile(t, opts.ProjectConfigPath, tt.project)

			_, err := LoadWithOptions(opts)
			require.Error(t, err)
			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr), "got %T: %v", err, err)
			if tt.wantField != "" {
				assert.Equal(t, tt.wantField, vErr.Field)
			}
			if tt.wantLine != 0 {
				assert.Positive(t, vErr.Line)
			}
		})
	}
}

func TestLoad_LegacyJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, LegacyProjectConfigPath()), `{"blender": {"executable": "/legacy/blender"}}`)
	t.Chdir(dir)

	var warnings bytes.Buffer
	cfg, err := LoadWithOptions(LoadOptions{
		UserConfigPath: filepath.Join(dir, "none.yml"),
		WarningWriter:  &warnings,
	})
	require.NoError(t, err)
	assert.Equal(t, "/legacy/blender", cfg.Blender.Executable)
	assert.Contains(t, warnings.String(), "deprecated JSON config")
}

func TestDefaultConfigTemplate_Loads(t *testing.T) {
	t.Parallel()

	opts := isolated(t)
	writeFile(t, opts.ProjectConfigPath, GetDefaultConfigTemplate())
	cfg, err := LoadWithOptions(opts)
	require.NoError(t, err)

	defaults, err := LoadWithOptions(isolated(t))
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg)
}

func TestEnvTransform(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"SIMFORGE_LLM_MAX_ATTEMPTS":        "llm.max_attempts",
		"SIMFORGE_BLENDER_INSPECT_TIMEOUT": "blender.inspect_timeout",
		"SIMFORGE_PATHS_OUTPUT_DIR":        "paths.output_dir",
		"SIMFORGE_MATERIALS_FILE":          "materials_file",
		"SIMFORGE_HISTORY_MAX_ENTRIES":     "history.max_entries",
		"SIMFORGE_NOTIFICATIONS_ENABLED":   "notifications.enabled",
	}
	for in, want := range tests {
		assert.Equal(t, want, envTransform(in), in)
	}
}

func TestExtractLineColumn(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		msg       string
		line, col int
	}{
		"line and column": {msg: "yaml: line 5: column 3: bad", line: 5, col: 3},
		"line only":       {msg: "yaml: line 2: did not find expected key", line: 2, col: 1},
		"no position":     {msg: "something else"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			line, col := extractLineColumn(tt.msg)
			assert.Equal(t, tt.line, line)
			assert.Equal(t, tt.col, col)
		})
	}
}
