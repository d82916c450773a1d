package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	simerrors "github.com/ariel-frischer/simforge/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func double() Func[int, int] {
	return NewFunc("double", func(_ context.Context, in int) (int, error) {
		return in * 2, nil
	})
}

func failing(err error) Func[int, int] {
	return NewFunc("failing", func(_ context.Context, _ int) (int, error) {
		return 0, err
	})
}

func TestRun_Success(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	r := NewRunner(Instrument(reg, Hooks{}))

	out, err := Run(context.Background(), r, double(), 21, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, out)

	snap := reg.For("double").Snapshot()
	assert.Equal(t, 1, snap.Invocations)
	assert.Equal(t, 0, snap.Errors)
}

func TestRun_NilRunner(t *testing.T) {
	t.Parallel()

	out, err := Run(context.Background(), nil, double(), 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, out)
}

func TestRun_ErrorClassification(t *testing.T) {
	t.Parallel()

	execErr := simerrors.NewExecutionError("exit 1", "boom", 1)

	tests := map[string]struct {
		err             error
		wantKind        simerrors.Kind
		wantRecoverable bool
	}{
		"taxonomy error passes through": {
			err:             execErr,
			wantKind:        simerrors.Execution,
			wantRecoverable: true,
		},
		"wrapped taxonomy error": {
			err:             fmt.Errorf("engine: %w", simerrors.NewConfigurationError("missing", "")),
			wantKind:        simerrors.Configuration,
			wantRecoverable: false,
		},
		"unknown error is internal": {
			err:             errors.New("index out of range"),
			wantKind:        simerrors.Internal,
			wantRecoverable: false,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			reg := NewRegistry()
			r := NewRunner(Instrument(reg, Hooks{}))

			_, err := Run(context.Background(), r, failing(tc.err), 1, 0)
			require.Error(t, err)

			var pe *simerrors.PipelineError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tc.wantKind, pe.Kind)
			assert.Equal(t, tc.wantRecoverable, pe.Recoverable)
			assert.Equal(t, "failing", pe.Stage)

			snap := reg.For("failing").Snapshot()
			assert.Equal(t, 1, snap.Invocations)
			assert.Equal(t, 1, snap.Errors)
		})
	}
}

func TestRun_Timeout(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	r := NewRunner(Instrument(reg, Hooks{}))
	slow := NewFunc("slow", func(ctx context.Context, _ int) (int, error) {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(5 * time.Second):
			return 1, nil
		}
	})

	start := time.Now()
	_, err := Run(context.Background(), r, slow, 0, 50*time.Millisecond)
	assert.Less(t, time.Since(start), 2*time.Second)

	var pe *simerrors.PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, simerrors.Timeout, pe.Kind)
	assert.Equal(t, 1, pe.TimeoutSeconds)
	assert.True(t, pe.Recoverable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, reg.For("slow").Snapshot().Errors)
}

func TestRun_CancelledBeforeInvocation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	s := NewFunc("never", func(context.Context, int) (int, error) {
		called = true
		return 0, nil
	})
	reg := NewRegistry()

	_, err := Run(ctx, NewRunner(Instrument(reg, Hooks{})), s, 0, 0)
	assert.False(t, called)
	assert.True(t, simerrors.IsKind(err, simerrors.Cancelled))
	assert.Equal(t, 0, reg.For("never").Snapshot().Invocations)
}

func TestRun_NoRetry(t *testing.T) {
	t.Parallel()

	calls := 0
	s := NewFunc("flaky", func(context.Context, int) (int, error) {
		calls++
		return 0, simerrors.NewAPIError("rate limited", nil)
	})
	_, err := Run(context.Background(), NewRunner(), s, 0, 0)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestInstrument_Hooks(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var events []string
	hooks := Hooks{
		OnStart: func(stage string) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "start:"+stage)
		},
		OnSuccess: func(stage string, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "success:"+stage)
		},
		OnFailure: func(stage string, _ time.Duration, err error) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, "failure:"+stage)
		},
	}
	r := NewRunner(Instrument(nil, hooks))

	_, _ = Run(context.Background(), r, double(), 1, 0)
	_, _ = Run(context.Background(), r, failing(errors.New("x")), 1, 0)

	assert.Equal(t, []string{"start:double", "success:double", "start:failing", "failure:failing"}, events)
}

func TestMiddlewareOrder(t *testing.T) {
	t.Parallel()

	var order []string
	tag := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, call Call) error {
				order = append(order, name+">")
				err := next(ctx, call)
				order = append(order, "<"+name)
				return err
			}
		}
	}

	r := NewRunner(tag("outer")).With(tag("inner"))
	_, err := Run(context.Background(), r, double(), 1, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, order)
}

func TestLogging(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.DebugLevel)
	r := NewRunner(Logging(zap.New(core)))

	_, _ = Run(context.Background(), r, double(), 1, 0)
	_, _ = Run(context.Background(), r, failing(simerrors.NewExecutionError("exit 2", "", 2)), 1, 0)

	assert.Equal(t, 1, logs.FilterMessage("stage completed").Len())
	failed := logs.FilterMessage("stage failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, "failing", failed[0].ContextMap()["stage"])
	assert.Equal(t, "Execution Error", failed[0].ContextMap()["kind"])
}
