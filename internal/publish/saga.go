package publish

import (
	"context"
	"time"

	"drafthub/internal/contextutil"
)

// step is one forward action of a saga and the action that undoes it.
// compensate may be nil for steps with nothing to undo.
type step struct {
	name       string
	action     func(ctx context.Context) error
	compensate func(ctx context.Context) error
}

// saga runs steps in order. When a step fails, the compensations of every
// step that already succeeded run in reverse order and the step's error is
// returned unchanged.
type saga struct {
	steps []step
	// timeout bounds all compensations together.
	timeout time.Duration
}

func newSaga(timeout time.Duration, steps ...step) *saga {
	return &saga{steps: steps, timeout: timeout}
}

func (s *saga) run(ctx context.Context) error {
	for i, st := range s.steps {
		if err := st.action(ctx); err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "saga step failed", "step", st.name, "error", err)
			s.compensate(ctx, s.steps[:i])
			return err
		}
	}
	return nil
}

// compensate undoes done in reverse order. It runs on a context detached from
// the caller's cancellation so a timed out request still cleans up.
// Compensation errors are logged and swallowed.
func (s *saga) compensate(ctx context.Context, done []step) {
	logger := contextutil.LoggerFromContext(ctx)

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	for i := len(done) - 1; i >= 0; i-- {
		st := done[i]
		if st.compensate == nil {
			continue
		}
		if err := st.compensate(cctx); err != nil {
			logger.ErrorContext(ctx, "compensation failed", "step", st.name, "error", err)
			continue
		}
		logger.InfoContext(ctx, "compensated", "step", st.name)
	}
}
