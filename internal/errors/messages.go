package errors

import (
	"fmt"
	"strings"
)

// Common error constructors for the simforge pipeline.
// These templates keep recurring failures consistent and actionable.

// UnparseableRequest creates an error for a request the planner could not turn into a plan.
func UnparseableRequest(request string, err error) *PipelineError {
	e := NewRequirementsError(fmt.Sprintf("failed to parse simulation request: %v", err), err)
	e.Details = map[string]any{"request": request}
	return e
}

// EngineNotFound creates an error when the Blender executable is missing.
func EngineNotFound(executable string) *PipelineError {
	e := NewConfigurationError(
		fmt.Sprintf("blender executable not found: %s", executable),
		"blender.executable",
	)
	e.SuggestedAction = "Install Blender and ensure it's in PATH, or set SIMFORGE_BLENDER_EXECUTABLE"
	return e
}

// AgentNotFound creates an error when the language model command is missing.
func AgentNotFound(command string) *PipelineError {
	e := NewConfigurationError(
		fmt.Sprintf("language model command not found: %s", command),
		"llm.command",
	)
	e.SuggestedAction = "Install the agent CLI or set llm.command in .simforge/config.yml"
	return e
}

// OutputMissing creates an error when the engine exited cleanly but wrote nothing.
func OutputMissing(path, stdout string) *PipelineError {
	return NewExecutionError(
		fmt.Sprintf("blender completed but output file not found: %s", path),
		stdout, 0,
	)
}

// OutputNotWritable creates an error when the output directory cannot be used.
func OutputNotWritable(path string, err error) *PipelineError {
	e := NewResourceError(fmt.Sprintf("cannot write to output directory %s: %v", path, err), "disk")
	e.Err = err
	return e
}

// SyntaxInvalid creates the fatal error raised after the autofix attempt also failed.
func SyntaxInvalid(errs []string) *PipelineError {
	return NewValidationError(ValidationSyntax,
		fmt.Sprintf("code validation failed: %s", strings.Join(errs, ", ")),
		map[string]any{"errors": errs},
	)
}

// PhysicsInvalid creates an error for physically impossible plan parameters.
func PhysicsInvalid(message string, params map[string]any) *PipelineError {
	return NewValidationError(ValidationPhysics, message, map[string]any{"invalid_params": params})
}
