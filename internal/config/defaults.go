package config

import "time"

// GetDefaultConfigTemplate returns a commented config file with every option
// at its default.
func GetDefaultConfigTemplate() string {
	return `# simforge configuration
# Environment overrides use the SIMFORGE_ prefix, e.g. SIMFORGE_BLENDER_EXECUTABLE.

# Language model agent
llm:
  command: "claude -p {{PROMPT}}"   # Agent command; {{PROMPT}} is replaced by the prompt
  args: []                          # Extra arguments appended to the command
  timeout: 2m                       # Per-attempt timeout
  max_attempts: 3                   # Attempts per call (1-10)
  initial_backoff: 2s               # First retry delay, doubled per attempt

# Blender
blender:
  executable: blender               # Path or name on PATH
  timeout: 5m                       # Hard limit for one simulation bake
  inspect_timeout: 1m               # Hard limit for one scene inspection

paths:
  output_dir: ./output              # Where .blend files are written
  state_dir: ~/.simforge/state      # Run history and other state

quality:
  threshold: 0.8                    # Scores below this recommend refinement
  good_enough: 0.9                  # Refinement stops at or above this score

refinement:
  enabled: false                    # Run the refinement loop after assessment
  max_iterations: 2                 # Upper bound on refinement iterations (0-10)

logging:
  level: info                       # debug | info | warn | error
  format: console                   # console | json
  file: ""                          # Also write logs to this file

history:
  max_entries: 500                  # Oldest runs are pruned beyond this

# Desktop notification when a run finishes
notifications:
  enabled: false                    # Opt-in; never sent in CI or without a terminal
  type: both                        # sound | visual | both
  sound_file: ""                    # Custom sound (default: platform sound)
  on_success: true
  on_failure: true
  min_duration: 30s                 # Skip runs shorter than this

materials_file: ""                  # YAML material table replacing the built-in one
`
}

// GetDefaults returns the default configuration values keyed by config path.
func GetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"llm.command":         "claude -p {{PROMPT}}",
		"llm.args":            []string{},
		"llm.timeout":         (2 * time.Minute).String(),
		"llm.max_attempts":    3,
		"llm.initial_backoff": (2 * time.Second).String(),

		// blender.timeout bounds the bake; the process is killed when it expires.
		"blender.executable":      "blender",
		"blender.timeout":         (5 * time.Minute).String(),
		"blender.inspect_timeout": time.Minute.String(),

		"paths.output_dir": "./output",
		"paths.state_dir":  "~/.simforge/state",

		"quality.threshold":   0.8,
		"quality.good_enough": 0.9,

		"refinement.enabled":        false,
		"refinement.max_iterations": 2,

		"logging.level":  "info",
		"logging.format": "console",
		"logging.file":   "",

		"history.max_entries": 500,

		"notifications.enabled":      false,
		"notifications.type":         "both",
		"notifications.sound_file":   "",
		"notifications.on_success":   true,
		"notifications.on_failure":   true,
		"notifications.min_duration": (30 * time.Second).String(),

		"materials_file": "",
	}
}
