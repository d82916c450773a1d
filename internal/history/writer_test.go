package history

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(id string) Entry {
	return Entry{
		Timestamp: time.Now(),
		SessionID: id,
		Request:   "a ball bouncing",
		Category:  "rigid_body",
		Success:   true,
		Score:     0.9,
		Duration:  "12s",
	}
}

func TestWriter_Append(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existing    int
		maxEntries  int
		wantEntries int
		wantOldest  string
	}{
		"empty history": {
			maxEntries:  500,
			wantEntries: 1,
			wantOldest:  "new",
		},
		"no pruning needed": {
			existing:    5,
			maxEntries:  10,
			wantEntries: 6,
			wantOldest:  "run-0",
		},
		"prune oldest when max exceeded": {
			existing:    10,
			maxEntries:  10,
			wantEntries: 10,
			wantOldest:  "run-1",
		},
		"prune multiple when well over max": {
			existing:    12,
			maxEntries:  10,
			wantEntries: 10,
			wantOldest:  "run-3",
		},
		"zero max keeps everything": {
			existing:    7,
			wantEntries: 8,
			wantOldest:  "run-0",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			stateDir := t.TempDir()
			if tc.existing > 0 {
				f := &File{}
				for i := range tc.existing {
					f.Entries = append(f.Entries, run(fmt.Sprintf("run-%d", i)))
				}
				require.NoError(t, Save(stateDir, f))
			}

			w := NewWriter(stateDir, tc.maxEntries, nil)
			require.NoError(t, w.Append(run("new")))

			loaded, err := Load(stateDir)
			require.NoError(t, err)
			require.Len(t, loaded.Entries, tc.wantEntries)
			assert.Equal(t, tc.wantOldest, loaded.Entries[0].SessionID)
			assert.Equal(t, "new", loaded.Entries[len(loaded.Entries)-1].SessionID)
		})
	}
}

func TestWriter_ConcurrentRecord(t *testing.T) {
	t.Parallel()

	stateDir := t.TempDir()
	w := NewWriter(stateDir, 100, nil)

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range 5 {
				w.Record(run(fmt.Sprintf("%d-%d", i, j)))
			}
		}()
	}
	wg.Wait()

	loaded, err := Load(stateDir)
	require.NoError(t, err)
	assert.Len(t, loaded.Entries, 50)
}

func TestWriter_RecordIsNonFatal(t *testing.T) {
	t.Parallel()

	// A regular file where the state directory should be.
	blocker := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	w := NewWriter(blocker, 10, nil)
	assert.Error(t, w.Append(run("x")))
	assert.NotPanics(t, func() { w.Record(run("x")) })
}

func TestLoad_Corrupt(t *testing.T) {
	t.Parallel()

	stateDir := t.TempDir()
	require.NoError(t, os.WriteFile(Path(stateDir), []byte("entries: [unclosed"), 0o644))
	_, err := Load(stateDir)
	assert.Error(t, err)
}

func TestFile_Recent(t *testing.T) {
	t.Parallel()

	f := &File{Entries: []Entry{run("a"), run("b"), run("c")}}
	tests := map[string]struct {
		n    int
		want []string
	}{
		"newest first":      {n: 2, want: []string{"c", "b"}},
		"all":               {n: 0, want: []string{"c", "b", "a"}},
		"more than we have": {n: 10, want: []string{"c", "b", "a"}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			var got []string
			for _, e := range f.Recent(tc.n) {
				got = append(got, e.SessionID)
			}
			assert.Equal(t, tc.want, got)
		})
	}
}
