package saga_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fleetgate/fleetgate/internal/metrics"
	"github.com/fleetgate/fleetgate/internal/saga"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type trace struct {
	events []string
}

func (tr *trace) add(e string) { tr.events = append(tr.events, e) }

func step(name string, execErr, undoErr error) saga.Step[trace] {
	return saga.Step[trace]{
		Name: name,
		Execute: func(_ context.Context, tr *trace) error {
			tr.add("exec:" + name)
			return execErr
		},
		Compensate: func(_ context.Context, tr *trace) error {
			tr.add("undo:" + name)
			return undoErr
		},
	}
}

func TestStateTransitions(t *testing.T) {
	tests := []struct {
		from, to saga.State
		want     bool
	}{
		{saga.StateRunning, saga.StateCompleted, true},
		{saga.StateRunning, saga.StateCompensating, true},
		{saga.StateCompensating, saga.StateCompensated, true},
		{saga.StateCompensating, saga.StateGap, true},
		{saga.StateRunning, saga.StateCompensated, false},
		{saga.StateCompleted, saga.StateCompensating, false},
		{saga.StateGap, saga.StateCompensated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to))
		})
	}
	assert.True(t, saga.StateGap.IsTerminal())
	assert.False(t, saga.StateCompensating.IsTerminal())
}

func TestRun_AllStepsSucceed(t *testing.T) {
	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{
		step("a", nil, nil), step("b", nil, nil), step("c", nil, nil),
	}}
	var tr trace
	require.NoError(t, def.Run(context.Background(), &tr))
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c"}, tr.events)
}

func TestRun_FailureCompensatesInReverse(t *testing.T) {
	boom := errors.New("boom")
	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{
		step("a", nil, nil), step("b", nil, nil), step("c", boom, nil), step("d", nil, nil),
	}}
	var tr trace
	err := def.Run(context.Background(), &tr)

	var se *saga.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "c", se.Step)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "undo:b", "undo:a"}, tr.events)
}

func TestRun_CompensationFailureIsReported(t *testing.T) {
	boom := errors.New("boom")
	undoFail := errors.New("undo failed")
	reg := prometheus.NewRegistry()
	def := saga.Definition[trace]{Name: "test", Metrics: metrics.New(reg), Steps: []saga.Step[trace]{
		step("a", nil, undoFail), step("b", nil, nil), step("c", boom, nil),
	}}
	var tr trace
	err := def.Run(context.Background(), &tr)

	var ce *saga.CompensationError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "c", ce.Step)
	assert.Equal(t, []string{"a"}, ce.FailedUndo)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "undo:b", "undo:a"}, tr.events,
		"a failed undo does not stop earlier steps from being undone, and none is retried")

	n, err := testutil.GatherAndCount(reg, "fleetgate_saga_compensations_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRun_FirstStepFailureHasNothingToUndo(t *testing.T) {
	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{
		step("a", errors.New("invalid"), nil), step("b", nil, nil),
	}}
	var tr trace
	err := def.Run(context.Background(), &tr)

	var se *saga.StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"exec:a"}, tr.events)
}

func TestRun_BestEffortFailureCompletes(t *testing.T) {
	be := step("login", errors.New("auth down"), nil)
	be.BestEffort = true
	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{
		step("a", nil, nil), be,
	}}
	var tr trace
	require.NoError(t, def.Run(context.Background(), &tr))
	assert.Equal(t, []string{"exec:a", "exec:login"}, tr.events)
}

func TestRun_NilCompensateSkipped(t *testing.T) {
	noUndo := step("b", nil, nil)
	noUndo.Compensate = nil
	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{
		step("a", nil, nil), noUndo, step("c", errors.New("x"), nil),
	}}
	var tr trace
	_ = def.Run(context.Background(), &tr)
	assert.Equal(t, []string{"exec:a", "exec:b", "exec:c", "undo:a"}, tr.events)
}

func TestRun_CancelledBeforeDetachStopsEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{
		step("a", nil, nil),
	}}
	var tr trace
	err := def.Run(ctx, &tr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, tr.events)
}

func TestRun_DetachIgnoresCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	first := saga.Step[trace]{
		Name:   "provision",
		Detach: true,
		Execute: func(_ context.Context, tr *trace) error {
			tr.add("exec:provision")
			cancel()
			return nil
		},
	}
	second := saga.Step[trace]{
		Name: "persist",
		Execute: func(ctx context.Context, tr *trace) error {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tr.add("exec:persist")
			return nil
		},
	}
	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{first, second}}
	var tr trace
	require.NoError(t, def.Run(ctx, &tr))
	assert.Equal(t, []string{"exec:provision", "exec:persist"}, tr.events)
}

func TestRun_StepTimeout(t *testing.T) {
	slow := saga.Step[trace]{
		Name:    "slow",
		Timeout: 20 * time.Millisecond,
		Execute: func(ctx context.Context, _ *trace) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	def := saga.Definition[trace]{Name: "test", Steps: []saga.Step[trace]{step("a", nil, nil), slow}}
	var tr trace
	err := def.Run(context.Background(), &tr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"exec:a", "undo:a"}, tr.events)
}
