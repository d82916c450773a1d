// Package testutil provides test helpers for simforge packages.
//
// The helper-process pattern stands in for external programs (the Blender
// engine and the language model CLI): the test binary re-executes itself and
// behaves as a scripted subprocess.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"
)

// HelperProcessConfig configures the behavior of TestHelperProcess.
type HelperProcessConfig struct {
	// ExitCode is the exit code to return (default 0).
	ExitCode int `json:"exit_code"`
	// Stdout is the content to write to stdout.
	Stdout string `json:"stdout"`
	// Stderr is the content to write to stderr.
	Stderr string `json:"stderr"`
	// SleepMS delays the process before it writes anything.
	SleepMS int `json:"sleep_ms,omitempty"`
	// WriteOutput creates the file named by the argument after "--output".
	WriteOutput bool `json:"write_output,omitempty"`
	// FailFirst makes the first N invocations exit 1. Invocations are
	// counted in StateFile, which must be set.
	FailFirst int    `json:"fail_first,omitempty"`
	StateFile string `json:"state_file,omitempty"`
}

const (
	// EnvWantHelperProcess signals that the test binary should run as a helper process.
	EnvWantHelperProcess = "GO_WANT_HELPER_PROCESS"
	// EnvHelperProcessConfig contains JSON-encoded HelperProcessConfig.
	EnvHelperProcessConfig = "GO_HELPER_PROCESS_CONFIG"
	// EnvHelperProcessArgs contains the original command line (JSON array).
	EnvHelperProcessArgs = "GO_HELPER_PROCESS_ARGS"
)

// TestHelperProcess runs the scripted subprocess when the test binary was
// started by a command from CommandFactory or ConfigureTestCommand. Otherwise
// it returns immediately.
//
// Usage in a test file:
//
//	func TestHelperProcess(t *testing.T) {
//	    testutil.TestHelperProcess(t)
//	}
func TestHelperProcess(t *testing.T) {
	if os.Getenv(EnvWantHelperProcess) != "1" {
		return
	}
	runHelperProcess(parseHelperConfig())
}

func parseHelperConfig() HelperProcessConfig {
	config := HelperProcessConfig{}
	if raw := os.Getenv(EnvHelperProcessConfig); raw != "" {
		// Defaults on a bad config.
		_ = json.Unmarshal([]byte(raw), &config)
	}
	return config
}

// runHelperProcess executes the scripted behavior and always exits.
func runHelperProcess(config HelperProcessConfig) {
	if config.SleepMS > 0 {
		time.Sleep(time.Duration(config.SleepMS) * time.Millisecond)
	}

	if config.FailFirst > 0 && config.StateFile != "" {
		if countInvocation(config.StateFile) <= config.FailFirst {
			fmt.Fprint(os.Stderr, "transient failure")
			os.Exit(1)
		}
	}

	if config.WriteOutput {
		args, _ := GetHelperProcessArgs()
		if path := FlagValue(args, "--output"); path != "" {
			if err := os.WriteFile(path, []byte("BLENDER-v4"), 0o644); err != nil {
				fmt.Fprintf(os.Stderr, "writing output: %v", err)
				os.Exit(2)
			}
		}
	}

	if config.Stdout != "" {
		fmt.Fprint(os.Stdout, config.Stdout)
	}
	if config.Stderr != "" {
		fmt.Fprint(os.Stderr, config.Stderr)
	}
	os.Exit(config.ExitCode)
}

// countInvocation appends one line to path and returns the new line count.
func countInvocation(path string) int {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err == nil {
		_, _ = f.WriteString("x\n")
		_ = f.Close()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	return strings.Count(string(data), "\n")
}

// FlagValue returns the argument following flag, or "".
func FlagValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

// ConfigureTestCommand creates an exec.Cmd that invokes the test binary as a
// helper process instead of the real command. args are the arguments the real
// command would have received; the helper can read them back with
// GetHelperProcessArgs.
func ConfigureTestCommand(t *testing.T, testName string, config HelperProcessConfig, args ...string) *exec.Cmd {
	t.Helper()

	testBinary, err := os.Executable()
	if err != nil {
		t.Fatalf("failed to get test binary path: %v", err)
	}
	cmd := exec.Command(testBinary, "-test.run=^"+testName+"$")
	cmd.Env = buildHelperEnv(t, config, args)
	return cmd
}

// CommandFactory returns a drop-in for exec.Command that starts a helper
// process configured by config. The real program name is recorded as the
// first helper argument.
func CommandFactory(t *testing.T, testName string, config HelperProcessConfig) func(name string, args ...string) *exec.Cmd {
	t.Helper()
	return func(name string, args ...string) *exec.Cmd {
		return ConfigureTestCommand(t, testName, config, append([]string{name}, args...)...)
	}
}

func buildHelperEnv(t *testing.T, config HelperProcessConfig, args []string) []string {
	t.Helper()

	env := os.Environ()
	env = append(env, EnvWantHelperProcess+"=1")
	if raw, err := json.Marshal(config); err == nil {
		env = append(env, EnvHelperProcessConfig+"="+string(raw))
	}
	if raw, err := json.Marshal(args); err == nil {
		env = append(env, EnvHelperProcessArgs+"="+string(raw))
	}
	return env
}

// GetHelperProcessArgs retrieves the original arguments passed to the helper process.
func GetHelperProcessArgs() ([]string, error) {
	raw := os.Getenv(EnvHelperProcessArgs)
	if raw == "" {
		return nil, nil
	}
	var args []string
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, fmt.Errorf("parsing helper process args: %w", err)
	}
	return args, nil
}

// HelperProcessResult captures the result of running a helper process command.
type HelperProcessResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	// Args contains the arguments that were passed (from env var).
	Args []string
	// Err is any error from cmd.Run() (e.g., exit status error).
	Err error
}

// RunHelperCommand executes a helper process command and captures results.
func RunHelperCommand(t *testing.T, cmd *exec.Cmd) *HelperProcessResult {
	t.Helper()

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	result := &HelperProcessResult{Err: cmd.Run()}
	result.Stdout = stdout.String()
	result.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}
	result.Args = argsFromEnv(cmd.Env)
	return result
}

func argsFromEnv(env []string) []string {
	for _, e := range env {
		if raw, ok := strings.CutPrefix(e, EnvHelperProcessArgs+"="); ok {
			var args []string
			if err := json.Unmarshal([]byte(raw), &args); err == nil {
				return args
			}
		}
	}
	return nil
}
