package history

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// Writer appends run summaries with automatic pruning.
type Writer struct {
	// StateDir is the directory containing the history file.
	StateDir string
	// MaxEntries is the maximum number of entries to retain; zero keeps all.
	MaxEntries int

	mu     sync.Mutex
	logger *zap.Logger
}

// NewWriter creates a new history writer.
func NewWriter(stateDir string, maxEntries int, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		StateDir:   stateDir,
		MaxEntries: maxEntries,
		logger:     logger,
	}
}

// Record adds an entry to the history file. Failures are logged and never
// reach the caller: a run's outcome does not depend on its bookkeeping.
func (w *Writer) Record(entry Entry) {
	if err := w.Append(entry); err != nil {
		w.logger.Warn("failed to record run history", zap.String("session_id", entry.SessionID), zap.Error(err))
	}
}

// Append loads the history, appends entry, prunes the oldest entries past
// MaxEntries and saves.
func (w *Writer) Append(entry Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := Load(w.StateDir)
	if err != nil {
		return fmt.Errorf("loading history: %w", err)
	}

	f.Entries = append(f.Entries, entry)
	if w.MaxEntries > 0 && len(f.Entries) > w.MaxEntries {
		excess := len(f.Entries) - w.MaxEntries
		f.Entries = f.Entries[excess:]
	}

	if err := Save(w.StateDir, f); err != nil {
		return fmt.Errorf("saving history: %w", err)
	}
	return nil
}
