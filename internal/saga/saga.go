// Package saga runs a fixed sequence of steps and undoes completed steps in
// reverse order when a later one fails.
package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fleetgate/fleetgate/internal/metrics"
)

// State is the lifecycle of one saga run.
type State string

const (
	StateRunning      State = "running"
	StateCompleted    State = "completed"
	StateCompensating State = "compensating"
	StateCompensated  State = "compensated"
	StateGap          State = "consistency_gap"
)

var ErrInvalidStateTransition = errors.New("invalid saga state transition")

var validTransitions = map[State][]State{
	StateRunning:      {StateCompleted, StateCompensating},
	StateCompensating: {StateCompensated, StateGap},
	StateCompleted:    {},
	StateCompensated:  {},
	StateGap:          {},
}

func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateCompensated || s == StateGap
}

func (s State) CanTransitionTo(target State) bool {
	return slices.Contains(validTransitions[s], target)
}

// Step is one unit of work over the shared state S.
type Step[S any] struct {
	Name    string
	Execute func(ctx context.Context, s *S) error
	// Compensate undoes Execute. Nil means the step has nothing to undo.
	Compensate func(ctx context.Context, s *S) error
	// BestEffort steps log their failure and let the saga complete.
	// They are never compensated.
	BestEffort bool
	// Detach makes this step and every later step, along with all
	// compensations, ignore cancellation of the caller's context.
	Detach  bool
	Timeout time.Duration
}

// Definition is a named, ordered list of steps.
type Definition[S any] struct {
	Name    string
	Steps   []Step[S]
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// StepError reports the step that aborted a saga whose compensation succeeded.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error { return e.Err }

// CompensationError reports that undoing a failed saga itself failed, so
// some effects of the completed steps remain.
type CompensationError struct {
	Step           string
	Err            error
	FailedUndo     []string
	CompensateErrs []error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("step %s: %v (compensation failed for %v: %v)",
		e.Step, e.Err, e.FailedUndo, errors.Join(e.CompensateErrs...))
}

func (e *CompensationError) Unwrap() error { return e.Err }

// Run executes the steps in order. On the first failing step it compensates
// every completed step in reverse order, each at most once, and returns a
// *StepError or, if any compensation failed, a *CompensationError.
func (d *Definition[S]) Run(ctx context.Context, s *S) error {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("saga", d.Name)

	state := StateRunning
	done := make([]int, 0, len(d.Steps))
	detached := false

	for i, step := range d.Steps {
		if step.Detach && !detached {
			ctx = context.WithoutCancel(ctx)
			detached = true
		}
		if err := ctx.Err(); err != nil {
			return d.fail(ctx, logger, &state, s, done, step.Name, err)
		}

		err := runBounded(ctx, step.Timeout, func(sctx context.Context) error {
			return step.Execute(sctx, s)
		})
		if err == nil {
			done = append(done, i)
			continue
		}
		if step.BestEffort {
			logger.Warn("best-effort step failed", "step", step.Name, "error", err)
			continue
		}
		logger.Warn("saga step failed", "step", step.Name, "error", err)
		return d.fail(context.WithoutCancel(ctx), logger, &state, s, done, step.Name, err)
	}

	d.transition(&state, StateCompleted)
	return nil
}

func (d *Definition[S]) fail(ctx context.Context, logger *slog.Logger, state *State, s *S, done []int, failed string, cause error) error {
	d.transition(state, StateCompensating)

	var failedUndo []string
	var undoErrs []error
	for _, idx := range slices.Backward(done) {
		step := d.Steps[idx]
		if step.Compensate == nil || step.BestEffort {
			continue
		}
		err := runBounded(ctx, step.Timeout, func(cctx context.Context) error {
			return step.Compensate(cctx, s)
		})
		d.Metrics.Compensation(d.Name, step.Name, err == nil)
		if err != nil {
			logger.Error("compensation failed", "step", step.Name, "cause_step", failed, "error", err)
			failedUndo = append(failedUndo, step.Name)
			undoErrs = append(undoErrs, err)
			continue
		}
		logger.Info("compensated step", "step", step.Name, "cause_step", failed)
	}

	if len(failedUndo) > 0 {
		d.transition(state, StateGap)
		return &CompensationError{Step: failed, Err: cause, FailedUndo: failedUndo, CompensateErrs: undoErrs}
	}
	d.transition(state, StateCompensated)
	return &StepError{Step: failed, Err: cause}
}

func (d *Definition[S]) transition(state *State, to State) {
	if !state.CanTransitionTo(to) {
		panic(fmt.Errorf("%w: %s -> %s", ErrInvalidStateTransition, *state, to))
	}
	*state = to
}

func runBounded(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return fn(ctx)
}
