// Package history records a summary of every pipeline run in a YAML file in
// the state directory.
package history

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the history file inside the state directory.
const FileName = "history.yaml"

// Entry summarizes one pipeline run.
type Entry struct {
	Timestamp       time.Time `yaml:"timestamp"`
	SessionID       string    `yaml:"session_id"`
	Request         string    `yaml:"request"`
	Category        string    `yaml:"category,omitempty"`
	Success         bool      `yaml:"success"`
	Score           float64   `yaml:"score"`
	RefinementCount int       `yaml:"refinement_count"`
	OutputPath      string    `yaml:"output_path,omitempty"`
	Duration        string    `yaml:"duration"`
	// Error is the first pipeline error, empty on success.
	Error string `yaml:"error,omitempty"`
}

// File is the on-disk history document.
type File struct {
	Entries []Entry `yaml:"entries"`
}

// Path returns the history file path for stateDir.
func Path(stateDir string) string {
	return filepath.Join(stateDir, FileName)
}

// Load reads the history file. A missing file yields an empty history.
func Load(stateDir string) (*File, error) {
	data, err := os.ReadFile(Path(stateDir))
	if os.IsNotExist(err) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading history file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing history file: %w", err)
	}
	return &f, nil
}

// Save writes the history atomically through a temp file and rename.
func Save(stateDir string, f *File) error {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding history: %w", err)
	}

	tmp, err := os.CreateTemp(stateDir, FileName+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp history file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing history: %w", err)
	}
	if err := os.Rename(tmpName, Path(stateDir)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replacing history file: %w", err)
	}
	return nil
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (f *File) Recent(n int) []Entry {
	count := len(f.Entries)
	if n > 0 && n < count {
		count = n
	}
	out := make([]Entry, 0, count)
	for i := len(f.Entries) - 1; i >= 0 && len(out) < count; i-- {
		out = append(out, f.Entries[i])
	}
	return out
}
