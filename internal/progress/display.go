// Package progress renders pipeline progress: a spinner with the current
// stage and percentage on a terminal, one line per checkpoint otherwise.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/briandowns/spinner"
)

// Display receives the orchestrator's progress callbacks. It is safe for use
// from one goroutine at a time plus the spinner's own.
type Display struct {
	out     io.Writer
	caps    TerminalCapabilities
	symbols ProgressSymbols

	mu      sync.Mutex
	spin    *spinner.Spinner
	last    string
	started time.Time
}

// NewDisplay creates a display writing to f. A nil f means stdout.
func NewDisplay(f *os.File) *Display {
	if f == nil {
		f = os.Stdout
	}
	caps := DetectTerminalCapabilities(f)
	return newDisplay(f, caps)
}

func newDisplay(out io.Writer, caps TerminalCapabilities) *Display {
	d := &Display{
		out:     out,
		caps:    caps,
		symbols: SelectSymbols(caps),
		started: time.Now(),
	}
	if caps.IsTTY {
		d.spin = spinner.New(spinner.CharSets[d.symbols.SpinnerSet], 100*time.Millisecond, spinner.WithWriter(out))
	}
	return d
}

// Update reports that the pipeline reached fraction (0 to 1) with label.
// Its signature matches the orchestrator's progress callback.
func (d *Display) Update(label string, fraction float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	text := fmt.Sprintf("[%3d%%] %s", int(fraction*100+0.5), label)
	if text == d.last {
		return
	}
	d.last = text

	if d.spin == nil {
		fmt.Fprintln(d.out, text)
		return
	}
	d.spin.Suffix = " " + text
	if !d.spin.Active() {
		d.spin.Start()
	}
}

// Finish stops the spinner and prints the final status line.
func (d *Display) Finish(success bool, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.spin != nil && d.spin.Active() {
		d.spin.Stop()
	}
	symbol := d.symbols.Checkmark
	if !success {
		symbol = d.symbols.Failure
	}
	elapsed := time.Since(d.started).Round(100 * time.Millisecond)
	fmt.Fprintf(d.out, "%s %s (%s)\n", symbol, message, elapsed)
}
