// Package llm talks to a language model through a command-line agent and
// turns its replies into plans and plan edits.
package llm

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io/fs"
	"os/exec"
	"strings"
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/google/shlex"
	"go.uber.org/zap"
)

const promptPlaceholder = "{{PROMPT}}"

// Client defaults.
const (
	DefaultCommand        = "claude -p {{PROMPT}}"
	DefaultTimeout        = 120 * time.Second
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 2 * time.Second
)

// Completer returns the model's reply to a prompt.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Config configures a Client. Zero values take the defaults above.
type Config struct {
	// Command is a shell-like template containing {{PROMPT}}.
	Command string
	// Args are appended to the expanded command.
	Args           []string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Client runs one agent process per attempt and retries failed attempts with
// exponential backoff.
type Client struct {
	template   string
	args       []string
	timeout    time.Duration
	attempts   int
	backoff    Backoff
	newCommand func(name string, args ...string) *exec.Cmd
	logger     *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCommand replaces exec.Command.
func WithCommand(f func(name string, args ...string) *exec.Cmd) ClientOption {
	return func(c *Client) { c.newCommand = f }
}

// NewClient creates a client. The command template must contain {{PROMPT}}.
func NewClient(cfg Config, logger *zap.Logger, opts ...ClientOption) (*Client, error) {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if !strings.Contains(cfg.Command, promptPlaceholder) {
		return nil, simerrors.NewConfigurationError(
			fmt.Sprintf("llm command template must contain %s placeholder", promptPlaceholder), "llm.command")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		template:   cfg.Command,
		args:       cfg.Args,
		timeout:    cfg.Timeout,
		attempts:   cfg.MaxAttempts,
		backoff:    Backoff{Initial: cfg.InitialBackoff, Factor: 2, Max: 30 * time.Second},
		newCommand: exec.Command,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Program returns the executable named by the command template.
func (c *Client) Program() (string, error) {
	parts, err := shlex.Split(strings.ReplaceAll(c.template, promptPlaceholder, "test"))
	if err != nil {
		return "", simerrors.NewConfigurationError(fmt.Sprintf("invalid llm command template: %v", err), "llm.command")
	}
	if len(parts) == 0 {
		return "", simerrors.NewConfigurationError("llm command template produces no command", "llm.command")
	}
	return parts[0], nil
}

// Validate checks that the template parses and its program is on PATH.
func (c *Client) Validate() error {
	program, err := c.Program()
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(program); err != nil {
		return simerrors.AgentNotFound(program)
	}
	return nil
}

// Complete sends prompt to the agent and returns its stdout. Configuration
// and cancellation errors are returned at once; other failures are retried
// up to the attempt limit.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= c.attempts; attempt++ {
		out, err := c.once(ctx, prompt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return "", simerrors.Classify(ctx.Err())
		}
		if simerrors.IsFatal(err) || attempt == c.attempts {
			break
		}

		delay := c.backoff.DelayForAttempt(attempt - 1)
		c.logger.Warn("language model call failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := sleepWithContext(ctx, delay); err != nil {
			return "", simerrors.Classify(err)
		}
	}
	return "", lastErr
}

func (c *Client) once(ctx context.Context, prompt string) (string, error) {
	args, err := c.expandTemplate(prompt)
	if err != nil {
		return "", simerrors.NewConfigurationError(fmt.Sprintf("expanding llm command template: %v", err), "llm.command")
	}
	if len(args) == 0 {
		return "", simerrors.NewConfigurationError("llm command template produces no command", "llm.command")
	}

	runCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := c.newCommand(args[0], args[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
			return "", simerrors.AgentNotFound(args[0])
		}
		return "", simerrors.NewAPIError(fmt.Sprintf("starting language model command: %v", err), err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	select {
	case <-runCtx.Done():
		_ = cmd.Process.Kill()
		<-done
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", simerrors.NewTimeoutError("language model call", max(1, int(c.timeout/time.Second)))
	case err = <-done:
	}

	if err != nil {
		var exitErr *exec.ExitError
		if stderrors.As(err, &exitErr) {
			return "", simerrors.NewAPIError(fmt.Sprintf("language model command exited with code %d: %s",
				exitErr.ExitCode(), strings.TrimSpace(stderr.String())), err)
		}
		return "", simerrors.NewAPIError(fmt.Sprintf("running language model command: %v", err), err)
	}
	return stdout.String(), nil
}

// expandTemplate replaces {{PROMPT}} with the quoted prompt, splits the
// result into arguments and appends the configured extra arguments.
func (c *Client) expandTemplate(prompt string) ([]string, error) {
	args, err := shlex.Split(strings.ReplaceAll(c.template, promptPlaceholder, quoteForShlex(prompt)))
	if err != nil {
		return nil, err
	}
	return append(args, c.args...), nil
}

// quoteForShlex wraps s in single quotes so it survives splitting as one
// argument. 'don't' becomes 'don'\''t'.
func quoteForShlex(s string) string {
	if s == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
