package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu     sync.Mutex
	visual []Notification
	sounds []string
	err    error
}

func (s *recordingSender) SendVisual(_ context.Context, n Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visual = append(s.visual, n)
	return s.err
}

func (s *recordingSender) SendSound(_ context.Context, f string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sounds = append(s.sounds, f)
	return s.err
}

func (s *recordingSender) VisualAvailable() bool { return true }
func (s *recordingSender) SoundAvailable() bool  { return true }

func newTestHandler(cfg Config, sender Sender, interactive, ci bool) *Handler {
	h := NewHandlerWithSender(cfg, sender, nil)
	h.interactive = func() bool { return interactive }
	h.ci = func() bool { return ci }
	return h
}

func enabledConfig() Config {
	cfg := DefaultConfig()
	cfg.Enabled = true
	cfg.MinDuration = 0
	return cfg
}

func TestHandler_OnRunComplete(t *testing.T) {
	t.Parallel()

	long := Run{Request: "20 wooden blocks falling", Success: true, Score: 0.92, Duration: 2 * time.Minute}

	tests := map[string]struct {
		config      func() Config
		run         Run
		interactive bool
		ci          bool
		wantVisual  int
		wantSounds  int
	}{
		"disabled": {
			config:      DefaultConfig,
			run:         long,
			interactive: true,
		},
		"success both": {
			config:      enabledConfig,
			run:         long,
			interactive: true,
			wantVisual:  1,
			wantSounds:  1,
		},
		"ci suppresses": {
			config:      enabledConfig,
			run:         long,
			interactive: true,
			ci:          true,
		},
		"no terminal": {
			config: enabledConfig,
			run:    long,
		},
		"short run": {
			config: func() Config {
				c := enabledConfig()
				c.MinDuration = 5 * time.Minute
				return c
			},
			run:         long,
			interactive: true,
		},
		"visual only": {
			config: func() Config {
				c := enabledConfig()
				c.Type = OutputVisual
				return c
			},
			run:         long,
			interactive: true,
			wantVisual:  1,
		},
		"success muted": {
			config: func() Config {
				c := enabledConfig()
				c.OnSuccess = false
				return c
			},
			run:         long,
			interactive: true,
		},
		"failure": {
			config: func() Config {
				c := enabledConfig()
				c.Type = OutputSound
				return c
			},
			run:         Run{Request: "smoke", Err: errors.New("blender exited with status 1")},
			interactive: true,
			wantSounds:  1,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			sender := &recordingSender{}
			h := newTestHandler(tt.config(), sender, tt.interactive, tt.ci)
			h.OnRunComplete(context.Background(), tt.run)
			assert.Len(t, sender.visual, tt.wantVisual)
			assert.Len(t, sender.sounds, tt.wantSounds)
		})
	}
}

func TestHandler_Messages(t *testing.T) {
	t.Parallel()

	h := newTestHandler(enabledConfig(), &recordingSender{}, true, false)

	n, ok := h.notification(Run{Request: "a bouncing ball", Success: true, Score: 0.876, Duration: 90 * time.Second})
	require.True(t, ok)
	assert.Equal(t, KindSuccess, n.Kind)
	assert.Equal(t, `"a bouncing ball" scored 0.88 in 1.5m`, n.Message)

	n, ok = h.notification(Run{Request: strings.Repeat("x", 100), Err: errors.New("timed out")})
	require.True(t, ok)
	assert.Equal(t, KindFailure, n.Kind)
	assert.Contains(t, n.Message, "...")
	assert.True(t, strings.HasSuffix(n.Message, ": timed out"))
}

func TestHandler_SenderErrorsAreSwallowed(t *testing.T) {
	t.Parallel()

	sender := &recordingSender{err: errors.New("no display")}
	h := newTestHandler(enabledConfig(), sender, true, false)
	assert.NotPanics(t, func() {
		h.OnRunComplete(context.Background(), Run{Success: true, Duration: time.Minute})
	})
	assert.Len(t, sender.visual, 1)
	assert.Len(t, sender.sounds, 1)
}

func TestValidOutputType(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidOutputType("both"))
	assert.True(t, ValidOutputType("sound"))
	assert.False(t, ValidOutputType("email"))
}
