// Package syntax checks generated Blender scripts before they reach the engine
// and applies the small set of fixes that can be made locally.
package syntax

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ariel-frischer/simforge/internal/codegen"
	"go.uber.org/zap"
)

// forbidden lists operations a generated script must never contain.
var forbidden = []string{
	"os.system",
	"subprocess",
	"eval(",
	"exec(",
	"__import__",
	"open(",
	"compile(",
	"globals()",
	"locals()",
}

const (
	missingBpy  = "Missing required import: 'bpy'"
	minLines    = 20
	maxOpsCalls = 20
)

var opsCall = regexp.MustCompile(`bpy\.ops\.\w+\.\w+`)

var deprecated = []struct{ pattern, suggestion string }{
	{"bpy.context.scene.objects.link", "Use bpy.context.collection.objects.link instead"},
	{"bpy.context.scene.objects.unlink", "Use bpy.context.collection.objects.unlink instead"},
}

// Metadata describes the checked script.
type Metadata struct {
	CodeLength int `json:"code_length"`
	LineCount  int `json:"line_count"`
}

// Report is the result of validating one script.
type Report struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	// Score is 1.0 when valid, 0.5 with at most two errors, otherwise 0.
	Score    float64  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// Validator checks scripts for structure, safety and Blender API usage.
type Validator struct {
	logger *zap.Logger
}

// NewValidator returns a validator.
func NewValidator(logger *zap.Logger) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{logger: logger}
}

// Validate checks a.Code. Errors make the script invalid; warnings do not.
func (v *Validator) Validate(a codegen.Artifact) Report {
	code := a.Code
	var errs, warnings []string

	if err := checkPython(code); err != nil {
		errs = append(errs, err.Error())
	}
	errs = append(errs, checkSecurity(code)...)
	if !strings.Contains(code, "import bpy") && !strings.Contains(code, "from bpy import") {
		errs = append(errs, missingBpy)
	}
	warnings = append(warnings, checkAPI(code)...)
	warnings = append(warnings, checkStructure(code)...)

	r := Report{
		Valid:    len(errs) == 0,
		Errors:   errs,
		Warnings: warnings,
		Metadata: Metadata{
			CodeLength: len(code),
			LineCount:  strings.Count(code, "\n") + 1,
		},
	}
	switch {
	case r.Valid:
		r.Score = 1.0
	case len(errs) <= 2:
		r.Score = 0.5
	}

	v.logger.Info("validated script",
		zap.Bool("valid", r.Valid),
		zap.Int("errors", len(errs)),
		zap.Int("warnings", len(warnings)))
	return r
}

// Autofix returns a copy of a with the local fixes applied: a missing bpy
// import is prepended, and a math import is added after it when math is used
// without being imported. The caller re-validates the result.
func (v *Validator) Autofix(a codegen.Artifact) codegen.Artifact {
	code := a.Code
	if !strings.Contains(code, "import bpy") && !strings.Contains(code, "from bpy import") {
		code = "import bpy\n" + code
		v.logger.Info("autofix: added import bpy")
	}
	if (strings.Contains(code, "math.") || strings.Contains(code, "radians")) && !strings.Contains(code, "import math") {
		lines := strings.Split(code, "\n")
		for i, line := range lines {
			if strings.Contains(line, "import bpy") {
				lines = append(lines[:i+1], append([]string{"import math"}, lines[i+1:]...)...)
				break
			}
		}
		code = strings.Join(lines, "\n")
		v.logger.Info("autofix: added import math")
	}
	fixed := a
	fixed.Code = code
	return fixed
}

func checkSecurity(code string) []string {
	lines := strings.Split(code, "\n")
	var errs []string
	for _, op := range forbidden {
		for _, line := range lines {
			if strings.Contains(line, op) && !strings.HasPrefix(strings.TrimSpace(line), "#") {
				errs = append(errs, fmt.Sprintf(
					"Security: Forbidden operation '%s' found. Blender scripts should not use this for safety.", op))
				break
			}
		}
	}
	return errs
}

func checkAPI(code string) []string {
	var warnings []string
	if strings.Contains(code, "bpy.context.active_object") && !strings.Contains(code, "if bpy.context.active_object") {
		warnings = append(warnings, "Consider checking if bpy.context.active_object exists before using it")
	}
	if strings.Contains(code, "bpy.ops.") && !strings.Contains(code, "bpy.context.view_layer.objects.active") {
		if len(opsCall.FindAllString(code, -1)) > 3 {
			warnings = append(warnings, "Multiple bpy.ops calls detected. Ensure correct context is set.")
		}
	}
	for _, d := range deprecated {
		if strings.Contains(code, d.pattern) {
			warnings = append(warnings, fmt.Sprintf("Deprecated API: '%s'. %s", d.pattern, d.suggestion))
		}
	}
	if strings.Count(code, "bpy.ops.") > maxOpsCalls {
		warnings = append(warnings, "High number of operator calls (bpy.ops). Consider using direct data manipulation for better performance.")
	}
	return warnings
}

func checkStructure(code string) []string {
	var warnings []string
	lower := strings.ToLower(code)
	if strings.Count(code, "\n")+1 < minLines {
		warnings = append(warnings, "Code seems very short. Ensure all required steps are included.")
	}
	if !strings.Contains(code, `if __name__ == "__main__"`) {
		warnings = append(warnings, `No main execution block found. Code should have 'if __name__ == "__main__"'`)
	}
	if strings.Contains(lower, "blend") && !strings.Contains(lower, "save") {
		warnings = append(warnings, "No save operation detected. Ensure .blend file is saved.")
	}
	if !strings.Contains(lower, "bake") &&
		(strings.Contains(lower, "rigid") || strings.Contains(lower, "fluid") || strings.Contains(lower, "cloth")) {
		warnings = append(warnings, "No baking operation detected. Physics simulations must be baked.")
	}
	return warnings
}
