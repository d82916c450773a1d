package errors

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
)

var (
	// Color functions with auto-detection for terminal support.
	// These fall back gracefully when colors are unavailable.
	errorLabel  = color.New(color.FgRed, color.Bold).SprintFunc()
	errorMsg    = color.New(color.FgRed).SprintFunc()
	fixLabel    = color.New(color.FgGreen, color.Bold).SprintFunc()
	detailLabel = color.New(color.FgCyan, color.Bold).SprintFunc()
	bullet      = color.New(color.FgGreen).SprintFunc()
	kindFmt     = color.New(color.FgYellow).SprintFunc()
)

// FormatError formats a PipelineError for display in the terminal.
// It uses colors when available and falls back to plain text otherwise.
func FormatError(err *PipelineError) string {
	if err == nil {
		return ""
	}
	return formatError(err, true)
}

// FormatErrorPlain formats a PipelineError without colors.
func FormatErrorPlain(err *PipelineError) string {
	if err == nil {
		return ""
	}
	return formatError(err, false)
}

func formatError(err *PipelineError, useColors bool) string {
	var sb strings.Builder
	paint := func(f func(a ...interface{}) string, s string) string {
		if useColors {
			return f(s)
		}
		return s
	}

	sb.WriteString(paint(errorLabel, "Error"))
	sb.WriteString(" [")
	sb.WriteString(paint(kindFmt, kindLabel(err)))
	sb.WriteString("]: ")
	sb.WriteString(paint(errorMsg, err.Error()))
	sb.WriteString("\n")

	if err.Kind == Execution && err.ExitCode != 0 {
		fmt.Fprintf(&sb, "\n%s %d\n", paint(detailLabel, "Exit code:"), err.ExitCode)
	}
	if err.Kind == Timeout && err.TimeoutSeconds > 0 {
		fmt.Fprintf(&sb, "\n%s %ds\n", paint(detailLabel, "Timeout:"), err.TimeoutSeconds)
	}
	fmt.Fprintf(&sb, "%s %s\n", paint(detailLabel, "Recovery:"), RecoveryStrategy(err))
	if stderr := lastLines(err.Stderr, 5); stderr != "" {
		sb.WriteString("\n")
		sb.WriteString(paint(detailLabel, "Engine output:"))
		sb.WriteString("\n")
		sb.WriteString(stderr)
		sb.WriteString("\n")
	}

	if err.SuggestedAction != "" {
		sb.WriteString("\n")
		sb.WriteString(paint(fixLabel, "To fix this:"))
		sb.WriteString("\n  ")
		sb.WriteString(paint(bullet, "•"))
		sb.WriteString(" ")
		sb.WriteString(err.SuggestedAction)
		sb.WriteString("\n")
	}

	return sb.String()
}

func kindLabel(err *PipelineError) string {
	if err.Kind == Validation && err.Validation != "" {
		return fmt.Sprintf("%s/%s", err.Kind, err.Validation)
	}
	return err.Kind.String()
}

// lastLines keeps the tail of noisy engine output.
func lastLines(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for i, l := range lines {
		lines[i] = "  " + l
	}
	return strings.Join(lines, "\n")
}

// PrintError prints a formatted error to stderr, classifying it first.
func PrintError(err error) {
	FprintError(os.Stderr, err)
}

// FprintError prints a formatted error to the given writer.
func FprintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	fmt.Fprint(w, FormatError(Classify(err)))
}
