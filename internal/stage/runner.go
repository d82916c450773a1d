package stage

import (
	"context"
	stderrors "errors"
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
)

// Call describes one stage invocation as seen by middleware.
type Call struct {
	Stage   string
	Timeout time.Duration
}

// Handler is a type-erased stage invocation. The typed output is captured by
// the closure Run builds, so middleware only ever sees the error.
type Handler func(ctx context.Context, call Call) error

// Middleware wraps a Handler with cross-cutting behavior.
type Middleware func(next Handler) Handler

// Runner invokes stages through its middleware chain. The first middleware is
// the outermost.
type Runner struct {
	middleware []Middleware
}

// NewRunner creates a runner with the given middleware.
func NewRunner(mw ...Middleware) *Runner {
	return &Runner{middleware: mw}
}

// With returns a runner that applies mw inside r's middleware.
func (r *Runner) With(mw ...Middleware) *Runner {
	chain := make([]Middleware, 0, len(r.middleware)+len(mw))
	chain = append(chain, r.middleware...)
	chain = append(chain, mw...)
	return &Runner{middleware: chain}
}

func (r *Runner) wrap(h Handler) Handler {
	for i := len(r.middleware) - 1; i >= 0; i-- {
		h = r.middleware[i](h)
	}
	return h
}

// Run invokes s with in. A positive timeout bounds the invocation with a
// context deadline. Every failure is returned as a *errors.PipelineError
// attributed to the stage. Run never retries.
//
// Cancellation is checked only at the boundary: a context that is already
// done returns a Cancelled error without invoking the stage.
func Run[I, O any](ctx context.Context, r *Runner, s Stage[I, O], in I, timeout time.Duration) (O, error) {
	var out O
	name := s.Name()

	if err := ctx.Err(); err != nil {
		return out, simerrors.Classify(err).WithStage(name)
	}

	base := func(ctx context.Context, call Call) error {
		runCtx, cancel := withTimeout(ctx, call.Timeout)
		defer cancel()

		res, err := s.Run(runCtx, in)
		if err != nil {
			return classify(runCtx, call, err)
		}
		out = res
		return nil
	}

	if r == nil {
		r = NewRunner()
	}
	if err := r.wrap(base)(ctx, Call{Stage: name, Timeout: timeout}); err != nil {
		var zero O
		return zero, simerrors.Classify(err).WithStage(name)
	}
	return out, nil
}

// classify maps a stage failure into the taxonomy. Taxonomy errors pass
// through; a hit on the runner's own deadline becomes a Timeout error.
func classify(ctx context.Context, call Call, err error) error {
	var pe *simerrors.PipelineError
	if stderrors.As(err, &pe) {
		return pe
	}
	if call.Timeout > 0 && stderrors.Is(ctx.Err(), context.DeadlineExceeded) {
		return simerrors.NewTimeoutError(call.Stage, timeoutSeconds(call.Timeout))
	}
	return simerrors.Classify(err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d > 0 {
		return context.WithTimeout(ctx, d)
	}
	return context.WithCancel(ctx)
}

// timeoutSeconds reports a sub-second budget as one second.
func timeoutSeconds(d time.Duration) int {
	s := int(d / time.Second)
	if s == 0 && d > 0 {
		return 1
	}
	return s
}
