package notify

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// dispatchTimeout bounds a notification, long enough for a sound to play.
const dispatchTimeout = 5 * time.Second

// Run describes a finished pipeline run.
type Run struct {
	Request  string
	Success  bool
	Score    float64
	Output   string
	Duration time.Duration
	Err      error
}

// Handler decides whether a finished run is worth a notification and sends it.
type Handler struct {
	config Config
	sender Sender
	logger *zap.Logger

	// interactive and ci are replaced in tests.
	interactive func() bool
	ci          func() bool
}

// NewHandler returns a handler using the platform sender.
func NewHandler(config Config, logger *zap.Logger) *Handler {
	return NewHandlerWithSender(config, NewSender(), logger)
}

// NewHandlerWithSender returns a handler using sender.
func NewHandlerWithSender(config Config, sender Sender, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		config:      config,
		sender:      sender,
		logger:      logger,
		interactive: isInteractive,
		ci:          isCI,
	}
}

// OnRunComplete notifies about a finished run when the configuration asks
// for it. Failures to notify are logged and never returned.
func (h *Handler) OnRunComplete(ctx context.Context, run Run) {
	n, ok := h.notification(run)
	if !ok {
		return
	}
	h.dispatch(ctx, n)
}

// notification builds the message for run, or reports false when the run
// should not notify.
func (h *Handler) notification(run Run) (Notification, bool) {
	if !h.enabled() {
		return Notification{}, false
	}
	if h.config.MinDuration > 0 && run.Duration < h.config.MinDuration {
		h.logger.Debug("notification skipped, run was short",
			zap.Duration("duration", run.Duration), zap.Duration("min", h.config.MinDuration))
		return Notification{}, false
	}
	if (run.Success && !h.config.OnSuccess) || (!run.Success && !h.config.OnFailure) {
		return Notification{}, false
	}

	subject := truncate(run.Request, 60)
	if run.Success {
		return Notification{
			Title:   "simforge: simulation ready",
			Message: fmt.Sprintf("%q scored %.2f in %s", subject, run.Score, formatDuration(run.Duration)),
			Kind:    KindSuccess,
		}, true
	}
	reason := "unknown error"
	if run.Err != nil {
		reason = truncate(run.Err.Error(), 120)
	}
	return Notification{
		Title:   "simforge: simulation failed",
		Message: fmt.Sprintf("%q: %s", subject, reason),
		Kind:    KindFailure,
	}, true
}

// enabled is false when notifications are off, in CI, or without a terminal.
func (h *Handler) enabled() bool {
	if !h.config.Enabled {
		return false
	}
	if h.ci() {
		h.logger.Debug("notification skipped in CI environment")
		return false
	}
	if !h.interactive() {
		h.logger.Debug("notification skipped in non-interactive session")
		return false
	}
	return true
}

func (h *Handler) dispatch(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), dispatchTimeout)
	defer cancel()

	if h.config.Type == OutputVisual || h.config.Type == OutputBoth {
		if err := h.sender.SendVisual(ctx, n); err != nil {
			h.logger.Debug("visual notification failed", zap.Error(err))
		}
	}
	if h.config.Type == OutputSound || h.config.Type == OutputBoth {
		if err := h.sender.SendSound(ctx, h.config.SoundFile); err != nil {
			h.logger.Debug("sound notification failed", zap.Error(err))
		}
	}
}

var ciVars = []string{
	"CI",
	"GITHUB_ACTIONS",
	"GITLAB_CI",
	"CIRCLECI",
	"JENKINS_URL",
	"BUILDKITE",
	"TF_BUILD",
	"CODEBUILD_BUILD_ID",
}

func isCI() bool {
	for _, v := range ciVars {
		if os.Getenv(v) != "" {
			return true
		}
	}
	return false
}

// isInteractive checks stdout first since stdin is often piped.
func isInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) || term.IsTerminal(int(os.Stderr.Fd()))
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%.1fm", d.Minutes())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
