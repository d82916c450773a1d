// Package health runs the readiness probes behind 'simforge doctor' and the
// orchestrator's CheckReady: the language model command, the Blender
// executable, the output directory and the material table.
package health

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultProbeTimeout bounds a single probe.
const DefaultProbeTimeout = 15 * time.Second

// CheckResult represents the result of a single health check
type CheckResult struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// HealthReport contains all health check results in probe order.
type HealthReport struct {
	Checks []CheckResult `json:"checks"`
	Passed bool          `json:"passed"`
}

// Failed returns the checks that did not pass.
func (r *HealthReport) Failed() []CheckResult {
	var failed []CheckResult
	for _, c := range r.Checks {
		if !c.Passed {
			failed = append(failed, c)
		}
	}
	return failed
}

// Probe is one named readiness check. Run returns a short description on
// success.
type Probe struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// RunHealthChecks runs all probes concurrently, each under timeout, and
// returns a report with the results in the order the probes were given.
// A failing probe does not cancel the others.
func RunHealthChecks(ctx context.Context, timeout time.Duration, probes ...Probe) *HealthReport {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	report := &HealthReport{Checks: make([]CheckResult, len(probes)), Passed: true}

	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			msg, err := p.Run(probeCtx)
			if err != nil {
				report.Checks[i] = CheckResult{Name: p.Name, Passed: false, Message: err.Error()}
				return nil
			}
			report.Checks[i] = CheckResult{Name: p.Name, Passed: true, Message: msg}
			return nil
		})
	}
	_ = g.Wait()

	for _, c := range report.Checks {
		if !c.Passed {
			report.Passed = false
		}
	}
	return report
}

// Agent is the language model client as seen by the agent probe.
type Agent interface {
	Program() (string, error)
	Validate() error
}

// AgentProbe checks that the language model command resolves on PATH.
func AgentProbe(a Agent) Probe {
	return Probe{
		Name: "Language model command",
		Run: func(context.Context) (string, error) {
			if err := a.Validate(); err != nil {
				return "", err
			}
			program, _ := a.Program()
			return fmt.Sprintf("%s found", program), nil
		},
	}
}

// Engine is the Blender engine as seen by the engine probe.
type Engine interface {
	Available(ctx context.Context) (string, error)
}

// EngineProbe asks the engine for its version.
func EngineProbe(e Engine) Probe {
	return Probe{
		Name: "Blender",
		Run: func(ctx context.Context) (string, error) {
			return e.Available(ctx)
		},
	}
}

// OutputDirProbe checks that dir exists or can be created and is writable.
func OutputDirProbe(dir string) Probe {
	return Probe{
		Name: "Output directory",
		Run: func(context.Context) (string, error) {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("cannot create %s: %w", dir, err)
			}
			f, err := os.CreateTemp(dir, ".simforge-probe-*")
			if err != nil {
				return "", fmt.Errorf("%s is not writable: %w", dir, err)
			}
			name := f.Name()
			f.Close()
			os.Remove(name)
			return fmt.Sprintf("%s is writable", dir), nil
		},
	}
}

// MaterialTable is the material table as seen by the materials probe.
type MaterialTable interface {
	Len() int
}

// MaterialsProbe reports how many material profiles are loaded. load is
// called inside the probe so a broken materials file shows up as a failed
// check rather than a startup error.
func MaterialsProbe(source string, load func() (MaterialTable, error)) Probe {
	return Probe{
		Name: "Material table",
		Run: func(context.Context) (string, error) {
			t, err := load()
			if err != nil {
				return "", err
			}
			if t.Len() == 0 {
				return "", fmt.Errorf("%s defines no materials", source)
			}
			return fmt.Sprintf("%d materials loaded from %s", t.Len(), source), nil
		},
	}
}

// FormatReport formats the health report for console output
func FormatReport(report *HealthReport) string {
	var b strings.Builder
	for _, check := range report.Checks {
		mark := "✓"
		if !check.Passed {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", mark, check.Name, check.Message)
	}
	return b.String()
}
