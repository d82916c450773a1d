// Package stage defines the contract every pipeline step satisfies and the runner
// that invokes steps under a uniform timeout and error policy.
//
// Stages are plain typed functions. They never retry and hold no clocks: timing,
// statistics and logging are applied around them by the Runner's middleware.
package stage

import "context"

// Stage consumes an I and produces an O, or fails.
type Stage[I, O any] interface {
	Name() string
	Run(ctx context.Context, in I) (O, error)
}

// Func adapts a function to the Stage interface.
type Func[I, O any] struct {
	StageName string
	Fn        func(ctx context.Context, in I) (O, error)
}

// NewFunc returns a named Stage backed by fn.
func NewFunc[I, O any](name string, fn func(ctx context.Context, in I) (O, error)) Func[I, O] {
	return Func[I, O]{StageName: name, Fn: fn}
}

func (f Func[I, O]) Name() string { return f.StageName }

func (f Func[I, O]) Run(ctx context.Context, in I) (O, error) {
	return f.Fn(ctx, in)
}
