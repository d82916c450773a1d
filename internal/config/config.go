// simforge - natural-language to baked simulation pipeline
// Author: Ariel Frischer
// Source: https://github.com/ariel-frischer/simforge

// Package config provides hierarchical configuration for simforge using koanf.
// Configuration is loaded with priority: environment variables > .env file >
// project config (.simforge/config.yml) > user config
// (~/.config/simforge/config.yml) > defaults. The loaded value is passed
// explicitly to the components that need it.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIMFORGE_"

// Configuration is the complete simforge configuration.
type Configuration struct {
	LLM        LLMConfig        `koanf:"llm"`
	Blender    BlenderConfig    `koanf:"blender"`
	Paths      PathsConfig      `koanf:"paths"`
	Quality    QualityConfig    `koanf:"quality"`
	Refinement RefinementConfig `koanf:"refinement"`
	Logging    LoggingConfig    `koanf:"logging"`
	History    HistoryConfig    `koanf:"history"`

	Notifications NotificationsConfig `koanf:"notifications"`

	// MaterialsFile replaces the built-in material table when set.
	MaterialsFile string `koanf:"materials_file"`
}

// LLMConfig configures the language model agent command.
type LLMConfig struct {
	// Command is a template with a {{PROMPT}} placeholder,
	// e.g. "claude -p {{PROMPT}}".
	Command        string        `koanf:"command" validate:"required"`
	Args           []string      `koanf:"args"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxAttempts    int           `koanf:"max_attempts" validate:"min=1,max=10"`
	InitialBackoff time.Duration `koanf:"initial_backoff" validate:"gte=0"`
}

// BlenderConfig configures the content engine.
type BlenderConfig struct {
	Executable     string        `koanf:"executable" validate:"required"`
	Timeout        time.Duration `koanf:"timeout" validate:"gt=0"`
	InspectTimeout time.Duration `koanf:"inspect_timeout" validate:"gt=0"`
}

type PathsConfig struct {
	OutputDir string `koanf:"output_dir" validate:"required"`
	StateDir  string `koanf:"state_dir" validate:"required"`
}

// QualityConfig holds the gate threshold and the score at which refinement
// stops early.
type QualityConfig struct {
	Threshold  float64 `koanf:"threshold" validate:"gt=0,lte=1"`
	GoodEnough float64 `koanf:"good_enough" validate:"gt=0,lte=1"`
}

type RefinementConfig struct {
	Enabled       bool `koanf:"enabled"`
	MaxIterations int  `koanf:"max_iterations" validate:"min=0,max=10"`
}

type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=console json"`
	// File receives logs in addition to stderr when set.
	File string `koanf:"file"`
}

type HistoryConfig struct {
	MaxEntries int `koanf:"max_entries" validate:"min=1"`
}

// NotificationsConfig controls desktop notifications for finished runs.
type NotificationsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Type      string `koanf:"type" validate:"oneof=sound visual both"`
	SoundFile string `koanf:"sound_file"`
	OnSuccess bool   `koanf:"on_success"`
	OnFailure bool   `koanf:"on_failure"`

	// MinDuration skips notifications for runs shorter than this.
	MinDuration time.Duration `koanf:"min_duration" validate:"gte=0"`
}

// LoadOptions configures how configuration is loaded.
type LoadOptions struct {
	// ProjectConfigPath overrides .simforge/config.yml.
	ProjectConfigPath string
	// UserConfigPath overrides ~/.config/simforge/config.yml.
	UserConfigPath string
	// EnvFile overrides the .env file in the working directory.
	EnvFile string
	// WarningWriter receives deprecation warnings (default: os.Stderr).
	WarningWriter io.Writer
	SkipWarnings  bool
}

// Load loads configuration using the default locations and an optional
// project config override.
func Load(projectConfigPath string) (*Configuration, error) {
	return LoadWithOptions(LoadOptions{ProjectConfigPath: projectConfigPath})
}

// LoadWithOptions loads configuration with custom options.
func LoadWithOptions(opts LoadOptions) (*Configuration, error) {
	k := koanf.New(".")
	warningWriter := opts.WarningWriter
	if warningWriter == nil {
		warningWriter = os.Stderr
	}

	loadDefaults(k)

	if err := loadUserConfig(k, opts.UserConfigPath); err != nil {
		return nil, err
	}
	if err := loadProjectConfig(k, opts.ProjectConfigPath, warningWriter, opts.SkipWarnings); err != nil {
		return nil, err
	}
	if err := loadEnvFile(k, opts.EnvFile); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment config: %w", err)
	}

	return finalizeConfig(k)
}

func loadDefaults(k *koanf.Koanf) {
	for key, value := range GetDefaults() {
		k.Set(key, value)
	}
}

func loadUserConfig(k *koanf.Koanf, override string) error {
	path := override
	if path == "" {
		path, _ = UserConfigPath()
	}
	if !fileExists(path) {
		return nil
	}
	if err := loadYAMLConfig(k, path, "user"); err != nil {
		return fmt.Errorf("loading user YAML config: %w", err)
	}
	return nil
}

// loadProjectConfig prefers the YAML project config and falls back to the
// legacy JSON file with a warning.
func loadProjectConfig(k *koanf.Koanf, customPath string, warningWriter io.Writer, skipWarnings bool) error {
	yamlPath := ProjectConfigPath()
	if customPath != "" {
		yamlPath = customPath
	}
	legacyPath := LegacyProjectConfigPath()

	switch {
	case fileExists(yamlPath):
		if err := loadYAMLConfig(k, yamlPath, "project"); err != nil {
			return fmt.Errorf("loading project YAML config: %w", err)
		}
		if fileExists(legacyPath) && !skipWarnings {
			fmt.Fprintf(warningWriter, "Warning: Legacy JSON config found at %s (ignored, using %s)\n\n", legacyPath, yamlPath)
		}
	case customPath == "" && fileExists(legacyPath):
		if err := k.Load(file.Provider(legacyPath), json.Parser()); err != nil {
			return fmt.Errorf("failed to load legacy project config %s: %w", legacyPath, err)
		}
		if !skipWarnings {
			fmt.Fprintf(warningWriter, "Warning: Using deprecated JSON config at %s\n", legacyPath)
			fmt.Fprintf(warningWriter, "  Move its settings to %s.\n\n", ProjectConfigPath())
		}
	}
	return nil
}

// loadYAMLConfig validates and loads a YAML config file.
func loadYAMLConfig(k *koanf.Koanf, path, configType string) error {
	if err := ValidateYAMLSyntax(path); err != nil {
		return fmt.Errorf("validating YAML syntax for %s config: %w", configType, err)
	}
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
	}
	return nil
}

// loadEnvFile applies SIMFORGE_ entries from a .env file. They sit below real
// environment variables and never modify the process environment.
func loadEnvFile(k *koanf.Koanf, path string) error {
	if path == "" {
		path = ".env"
	}
	if !fileExists(path) {
		return nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	for name, value := range values {
		if !strings.HasPrefix(name, EnvPrefix) {
			continue
		}
		k.Set(envTransform(name), value)
	}
	return nil
}

func finalizeConfig(k *koanf.Koanf) (*Configuration, error) {
	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := ValidateConfigValues(&cfg, "config"); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.Paths.OutputDir = expandHomePath(cfg.Paths.OutputDir)
	cfg.Paths.StateDir = expandHomePath(cfg.Paths.StateDir)
	cfg.Logging.File = expandHomePath(cfg.Logging.File)
	cfg.MaterialsFile = expandHomePath(cfg.MaterialsFile)
	cfg.Notifications.SoundFile = expandHomePath(cfg.Notifications.SoundFile)
	return &cfg, nil
}

// MaxIterations is the refinement bound in effect: zero when refinement is
// disabled.
func (c *Configuration) MaxIterations() int {
	if !c.Refinement.Enabled {
		return 0
	}
	return c.Refinement.MaxIterations
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// sections are the nested config blocks; the first underscore after one of
// these names separates section from key.
var sections = []string{"llm", "blender", "paths", "quality", "refinement", "logging", "history", "notifications"}

// envTransform converts environment variable names to config keys.
// Example: SIMFORGE_LLM_MAX_ATTEMPTS -> llm.max_attempts,
// SIMFORGE_MATERIALS_FILE -> materials_file.
func envTransform(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// expandHomePath expands ~ to the user's home directory.
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if homeDir, err := os.UserHomeDir(); err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
