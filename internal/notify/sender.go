package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Sender delivers notifications through the host desktop.
type Sender interface {
	SendVisual(ctx context.Context, n Notification) error
	SendSound(ctx context.Context, soundFile string) error
	VisualAvailable() bool
	SoundAvailable() bool
}

// NewSender returns the sender for the current OS. Platforms without a
// known notification tool get a sender that does nothing.
func NewSender() Sender {
	switch runtime.GOOS {
	case "darwin":
		return &commandSender{visualTool: "osascript", soundTool: "afplay", defaultSound: "/System/Library/Sounds/Glass.aiff"}
	case "linux":
		return &commandSender{visualTool: "notify-send", soundTool: "paplay", defaultSound: "/usr/share/sounds/freedesktop/stereo/complete.oga"}
	default:
		return noopSender{}
	}
}

// commandSender shells out to the platform's notification and audio tools.
type commandSender struct {
	visualTool   string
	soundTool    string
	defaultSound string
}

func (s *commandSender) VisualAvailable() bool { return toolAvailable(s.visualTool) }
func (s *commandSender) SoundAvailable() bool  { return toolAvailable(s.soundTool) }

func (s *commandSender) SendVisual(ctx context.Context, n Notification) error {
	if !s.VisualAvailable() {
		return fmt.Errorf("%s not found in PATH", s.visualTool)
	}
	var cmd *exec.Cmd
	switch s.visualTool {
	case "osascript":
		script := fmt.Sprintf("display notification %q with title %q", n.Message, n.Title)
		cmd = exec.CommandContext(ctx, s.visualTool, "-e", script)
	default:
		urgency := "normal"
		if n.Kind == KindFailure {
			urgency = "critical"
		}
		cmd = exec.CommandContext(ctx, s.visualTool, "--urgency", urgency, n.Title, n.Message)
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", s.visualTool, err, out)
	}
	return nil
}

func (s *commandSender) SendSound(ctx context.Context, soundFile string) error {
	if !s.SoundAvailable() {
		return fmt.Errorf("%s not found in PATH", s.soundTool)
	}
	if soundFile == "" {
		soundFile = s.defaultSound
	}
	if err := exec.CommandContext(ctx, s.soundTool, soundFile).Run(); err != nil {
		return fmt.Errorf("%s %s: %w", s.soundTool, soundFile, err)
	}
	return nil
}

func toolAvailable(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

type noopSender struct{}

func (noopSender) SendVisual(context.Context, Notification) error { return nil }
func (noopSender) SendSound(context.Context, string) error        { return nil }
func (noopSender) VisualAvailable() bool                          { return false }
func (noopSender) SoundAvailable() bool                           { return false }
