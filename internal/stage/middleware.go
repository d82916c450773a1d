package stage

import (
	"context"
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"go.uber.org/zap"
)

// Hooks observe stage timing. Any hook may be nil.
type Hooks struct {
	OnStart   func(stage string)
	OnSuccess func(stage string, elapsed time.Duration)
	OnFailure func(stage string, elapsed time.Duration, err error)
}

// Instrument records every invocation into reg under the stage name and fires
// hooks. reg may be nil when only hooks are wanted.
func Instrument(reg *Registry, hooks Hooks) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, call Call) error {
			if hooks.OnStart != nil {
				hooks.OnStart(call.Stage)
			}
			start := time.Now()
			err := next(ctx, call)
			elapsed := time.Since(start)

			if reg != nil {
				reg.For(call.Stage).Record(elapsed, err)
			}
			if err != nil {
				if hooks.OnFailure != nil {
					hooks.OnFailure(call.Stage, elapsed, err)
				}
				return err
			}
			if hooks.OnSuccess != nil {
				hooks.OnSuccess(call.Stage, elapsed)
			}
			return nil
		}
	}
}

// Logging logs the start and outcome of every invocation.
func Logging(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next Handler) Handler {
		return func(ctx context.Context, call Call) error {
			log := logger.With(zap.String("stage", call.Stage))
			log.Debug("stage started", zap.Duration("timeout", call.Timeout))

			start := time.Now()
			err := next(ctx, call)
			elapsed := time.Since(start)

			if err != nil {
				pe := simerrors.Classify(err)
				log.Warn("stage failed",
					zap.Duration("elapsed", elapsed),
					zap.Stringer("kind", pe.Kind),
					zap.Bool("recoverable", pe.Recoverable),
					zap.Error(err))
				return err
			}
			log.Info("stage completed", zap.Duration("elapsed", elapsed))
			return nil
		}
	}
}
