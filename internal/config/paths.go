package config

import (
	"os"
	"path/filepath"
)

// UserConfigPath returns the path to the user-level config file, following
// os.UserConfigDir (XDG_CONFIG_HOME on Linux).
func UserConfigPath() (string, error) {
	dir, err := UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// UserConfigDir returns the path to the user-level config directory.
func UserConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "simforge"), nil
}

// ProjectConfigPath returns .simforge/config.yml relative to the current directory.
func ProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.yml")
}

// ProjectConfigDir returns the project-level config directory.
func ProjectConfigDir() string {
	return ".simforge"
}

// LegacyProjectConfigPath returns the legacy project-level JSON config file.
func LegacyProjectConfigPath() string {
	return filepath.Join(ProjectConfigDir(), "config.json")
}
