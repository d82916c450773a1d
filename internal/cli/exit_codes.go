package cli

import (
	stderrors "errors"
	"fmt"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
)

// Exit codes for the simforge CLI. Scripts can branch on these without
// parsing output.
const (
	// ExitSuccess indicates the command completed.
	ExitSuccess = 0

	// ExitValidationFailed indicates a syntax, physics or quality check failed.
	ExitValidationFailed = 1

	// ExitExecutionFailed indicates Blender or the language model failed.
	ExitExecutionFailed = 2

	// ExitInvalidArguments indicates bad flags or an unusable request.
	ExitInvalidArguments = 3

	// ExitMissingDependencies indicates missing setup: Blender, the agent
	// command, configuration or disk.
	ExitMissingDependencies = 4

	// ExitTimeout indicates a stage exceeded its time budget.
	ExitTimeout = 5

	// ExitCancelled indicates the run was interrupted.
	ExitCancelled = 130
)

// exitError carries an exit code. Reported errors were already shown to the
// user and are not printed again.
type exitError struct {
	code     int
	err      error
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// reported wraps err so Execute exits with code without printing it again.
func reported(code int, err error) error {
	return &exitError{code: code, err: err, reported: true}
}

// usageError marks err as a bad invocation.
func usageError(err error) error {
	return &exitError{code: ExitInvalidArguments, err: err}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var ee *exitError
	if stderrors.As(err, &ee) {
		return ee.code
	}
	switch simerrors.KindOf(err) {
	case simerrors.Validation:
		return ExitValidationFailed
	case simerrors.Execution, simerrors.API:
		return ExitExecutionFailed
	case simerrors.Requirements:
		return ExitInvalidArguments
	case simerrors.Configuration, simerrors.Resource:
		return ExitMissingDependencies
	case simerrors.Timeout:
		return ExitTimeout
	case simerrors.Cancelled:
		return ExitCancelled
	}
	return ExitValidationFailed
}
