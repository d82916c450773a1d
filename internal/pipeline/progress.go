package pipeline

import (
	"fmt"

	"go.uber.org/zap"
)

// ProgressFunc receives a stage label and the overall fraction complete.
type ProgressFunc func(label string, fraction float64)

// Progress checkpoints, reported as each stage begins.
const (
	progressPlan     = 0.10
	progressEnrich   = 0.25
	progressGenerate = 0.40
	progressValidate = 0.55
	progressExecute  = 0.70
	progressAssess   = 0.90
	progressRefine   = 0.95
	progressComplete = 1.0
)

// progressReporter forwards checkpoints to the caller's callback. A nil
// callback is a no-op, values never go backwards, and a panicking callback
// is logged and ignored.
type progressReporter struct {
	fn     ProgressFunc
	logger *zap.Logger
	last   float64
}

func newProgressReporter(fn ProgressFunc, logger *zap.Logger) *progressReporter {
	return &progressReporter{fn: fn, logger: logger}
}

func (p *progressReporter) report(label string, fraction float64) {
	if p == nil || p.fn == nil {
		return
	}
	if fraction < p.last {
		fraction = p.last
	}
	p.last = fraction

	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn("progress callback panicked",
				zap.String("label", label),
				zap.String("panic", fmt.Sprint(r)))
		}
	}()
	p.fn(label, fraction)
}
