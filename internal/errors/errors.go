// Package errors provides the structured error taxonomy for the simforge pipeline.
// Every failure that crosses a stage boundary is a *PipelineError carrying a kind,
// a recoverable flag, and a suggested action for the operator.
package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// Kind is the taxonomy class of a pipeline failure.
type Kind int

const (
	// Internal errors are programming errors outside the taxonomy.
	Internal Kind = iota
	// Requirements errors mean the request could not be parsed into a plan.
	Requirements
	// Validation errors cover syntax, physics and quality checks.
	Validation
	// Execution errors come from the external content engine.
	Execution
	// Timeout errors mean an operation exceeded its time budget.
	Timeout
	// Resource errors mean the host lacks disk, memory or similar.
	Resource
	// API errors come from a remote collaborator such as the language model.
	API
	// Configuration errors mean required setup is missing or invalid.
	Configuration
	// Cancelled means the caller cancelled the run at a stage boundary.
	Cancelled
)

// String returns a human-readable name for the error kind.
func (k Kind) String() string {
	switch k {
	case Requirements:
		return "Requirements Error"
	case Validation:
		return "Validation Error"
	case Execution:
		return "Execution Error"
	case Timeout:
		return "Timeout Error"
	case Resource:
		return "Resource Error"
	case API:
		return "API Error"
	case Configuration:
		return "Configuration Error"
	case Cancelled:
		return "Cancelled"
	default:
		return "Internal Error"
	}
}

// ValidationKind narrows a Validation error.
type ValidationKind string

const (
	ValidationSyntax  ValidationKind = "syntax"
	ValidationPhysics ValidationKind = "physics"
	ValidationQuality ValidationKind = "quality"
	// ValidationTemplate means no script template exists for the plan.
	ValidationTemplate ValidationKind = "template"
)

// PipelineError is a classified failure with recovery guidance.
type PipelineError struct {
	// Kind is the taxonomy class.
	Kind Kind
	// Validation is set for Validation errors only.
	Validation ValidationKind
	// Message is a human-readable description of what went wrong.
	Message string
	// Recoverable reports whether a retry, autofix or refinement may help.
	Recoverable bool
	// SuggestedAction tells the operator what to try next.
	SuggestedAction string
	// Stage is the pipeline stage that produced the error, when known.
	Stage string

	// Execution details.
	Stderr   string
	ExitCode int

	// TimeoutSeconds is the budget that was exceeded (Timeout only).
	TimeoutSeconds int
	// Operation names what timed out or which resource ran short.
	Operation string

	// Details holds kind-specific extra data (invalid params, validator errors).
	Details map[string]any

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// WithStage returns a copy of e attributed to stage. An existing attribution wins.
func (e *PipelineError) WithStage(stage string) *PipelineError {
	if e.Stage != "" {
		return e
	}
	cp := *e
	cp.Stage = stage
	return &cp
}

// NewRequirementsError creates an error for an unparseable or ambiguous request.
func NewRequirementsError(message string, err error) *PipelineError {
	return &PipelineError{
		Kind:            Requirements,
		Message:         message,
		Recoverable:     false,
		SuggestedAction: "Rephrase the simulation request with more specific details",
		Err:             err,
	}
}

// NewValidationError creates a recoverable validation error of the given sub-kind.
func NewValidationError(kind ValidationKind, message string, details map[string]any) *PipelineError {
	action := fmt.Sprintf("Review %s validation errors and regenerate", kind)
	switch kind {
	case ValidationSyntax:
		action = "Regenerate code with stricter syntax validation"
	case ValidationPhysics:
		action = "Use realistic physics parameters from the materials table"
	case ValidationQuality:
		action = "Run refinement to improve quality"
	}
	return &PipelineError{
		Kind:            Validation,
		Validation:      kind,
		Message:         message,
		Recoverable:     true,
		SuggestedAction: action,
		Details:         details,
	}
}

// NewExecutionError creates an error for a failed engine run.
func NewExecutionError(message, stderr string, exitCode int) *PipelineError {
	return &PipelineError{
		Kind:            Execution,
		Message:         message,
		Recoverable:     true,
		SuggestedAction: "Check the Blender installation and script compatibility",
		Stderr:          stderr,
		ExitCode:        exitCode,
	}
}

// NewTimeoutError creates an error for an operation that exceeded its budget.
func NewTimeoutError(operation string, timeoutSeconds int) *PipelineError {
	return &PipelineError{
		Kind:            Timeout,
		Message:         fmt.Sprintf("%s exceeded timeout of %d seconds", operation, timeoutSeconds),
		Recoverable:     true,
		SuggestedAction: fmt.Sprintf("Increase the timeout or simplify %s", operation),
		TimeoutSeconds:  timeoutSeconds,
		Operation:       operation,
		Err:             context.DeadlineExceeded,
	}
}

// NewResourceError creates a non-recoverable error for an exhausted host resource.
func NewResourceError(message, resource string) *PipelineError {
	return &PipelineError{
		Kind:            Resource,
		Message:         message,
		Recoverable:     false,
		SuggestedAction: fmt.Sprintf("Free up %s or reduce simulation complexity", resource),
		Operation:       resource,
	}
}

// NewAPIError creates an error for a failed remote collaborator call.
func NewAPIError(message string, err error) *PipelineError {
	return &PipelineError{
		Kind:            API,
		Message:         message,
		Recoverable:     true,
		SuggestedAction: "Check the language model command and rate limits, retry after a delay",
		Err:             err,
	}
}

// NewConfigurationError creates a non-recoverable error for missing or invalid setup.
func NewConfigurationError(message, key string) *PipelineError {
	e := &PipelineError{
		Kind:            Configuration,
		Message:         message,
		Recoverable:     false,
		SuggestedAction: "Check .simforge/config.yml and SIMFORGE_* environment variables",
	}
	if key != "" {
		e.Details = map[string]any{"config_key": key}
	}
	return e
}

// Classify maps any error into the taxonomy. Errors already classified are returned
// as-is; context errors become Timeout or Cancelled; anything else is Internal.
func Classify(err error) *PipelineError {
	if err == nil {
		return nil
	}
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return &PipelineError{
			Kind:            Timeout,
			Message:         err.Error(),
			Recoverable:     true,
			SuggestedAction: "Increase the timeout",
			Err:             err,
		}
	}
	if stderrors.Is(err, context.Canceled) {
		return &PipelineError{
			Kind:        Cancelled,
			Message:     "run cancelled",
			Recoverable: false,
			Err:         err,
		}
	}
	return &PipelineError{
		Kind:        Internal,
		Message:     err.Error(),
		Recoverable: false,
		Err:         err,
	}
}

// KindOf returns the taxonomy kind of err, or Internal when unclassified.
func KindOf(err error) Kind {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe.Kind
	}
	return Internal
}

// IsKind reports whether err is a PipelineError of kind k.
func IsKind(err error, k Kind) bool {
	var pe *PipelineError
	return stderrors.As(err, &pe) && pe.Kind == k
}

// IsFatal reports whether the orchestrator must stop without attempting recovery.
func IsFatal(err error) bool {
	switch KindOf(err) {
	case Requirements, Resource, Configuration, Cancelled, Internal:
		return true
	}
	return false
}

// RecoveryStrategy returns the recommended recovery strategy for a kind.
func RecoveryStrategy(e *PipelineError) string {
	switch e.Kind {
	case Validation:
		switch e.Validation {
		case ValidationSyntax:
			return "regenerate_with_feedback"
		case ValidationPhysics:
			return "use_fallback_params"
		default:
			return "run_refinement"
		}
	case API, Timeout, Execution:
		return "retry_with_backoff"
	case Resource:
		return "reduce_complexity"
	case Requirements:
		return "request_clarification"
	default:
		return "manual_intervention"
	}
}
