// Package blender runs generated scripts in a headless Blender process and
// inspects the files it produces.
package blender

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
	"go.uber.org/zap"
)

// DefaultExecutable is looked up on PATH when no executable is configured.
const DefaultExecutable = "blender"

// versionTimeout bounds the Available probe.
const versionTimeout = 10 * time.Second

// CommandFunc builds the command for an external program. exec.Command is the
// default; tests substitute a helper process.
type CommandFunc func(name string, args ...string) *exec.Cmd

// RunResult is the raw outcome of one Blender process.
type RunResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Engine starts Blender in background mode. It applies no timeout of its own:
// the caller's context bounds the process, which is killed when the context
// ends.
type Engine struct {
	executable string
	newCommand CommandFunc
	logger     *zap.Logger
}

// Option configures an Engine or Inspector.
type Option func(*options)

type options struct {
	newCommand CommandFunc
	timeout    time.Duration
}

// WithCommand replaces exec.Command.
func WithCommand(f CommandFunc) Option {
	return func(o *options) { o.newCommand = f }
}

// WithTimeout overrides the Inspector's timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

func buildOptions(opts []Option) options {
	o := options{newCommand: exec.Command}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// NewEngine creates an engine for executable. An empty executable means
// DefaultExecutable.
func NewEngine(executable string, logger *zap.Logger, opts ...Option) *Engine {
	if executable == "" {
		executable = DefaultExecutable
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	o := buildOptions(opts)
	return &Engine{executable: executable, newCommand: o.newCommand, logger: logger}
}

// Executable returns the configured Blender executable.
func (e *Engine) Executable() string { return e.executable }

// Execute runs scriptPath with factory settings and passes outputPath to the
// script after the "--" separator. A non-zero exit is reported in the result,
// not as an error; errors mean the process could not be run to completion.
func (e *Engine) Execute(ctx context.Context, scriptPath, outputPath string) (RunResult, error) {
	args := []string{"--background", "--factory-startup", "--python", scriptPath, "--", "--output", outputPath}
	e.logger.Debug("starting blender", zap.String("executable", e.executable), zap.Strings("args", args))
	return run(ctx, e.newCommand(e.executable, args...), e.executable)
}

// Available reports the Blender version line, or an error when Blender
// cannot be started.
func (e *Engine) Available(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, versionTimeout)
	defer cancel()

	res, err := run(ctx, e.newCommand(e.executable, "--version"), e.executable)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", simerrors.NewExecutionError(
			fmt.Sprintf("%s --version exited with code %d", e.executable, res.ExitCode), res.Stderr, res.ExitCode)
	}
	line, _, _ := strings.Cut(strings.TrimSpace(res.Stdout), "\n")
	return strings.TrimSpace(line), nil
}

// run starts cmd and waits for it, killing the process if ctx ends first.
func run(ctx context.Context, cmd *exec.Cmd, executable string) (RunResult, error) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		if stderrors.Is(err, exec.ErrNotFound) || stderrors.Is(err, fs.ErrNotExist) {
			return RunResult{}, simerrors.EngineNotFound(executable)
		}
		return RunResult{}, fmt.Errorf("starting %s: %w", executable, err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var err error
	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return RunResult{Stdout: stdout.String(), Stderr: stderr.String(), ExitCode: -1, Duration: time.Since(start)},
			fmt.Errorf("running %s: %w", executable, ctx.Err())
	case err = <-done:
	}

	res := RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if !stderrors.As(err, &exitErr) {
			return res, fmt.Errorf("running %s: %w", executable, err)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}
