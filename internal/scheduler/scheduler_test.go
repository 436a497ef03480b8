// File: internal/scheduler/scheduler_test.go
package scheduler_test

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/vantrigo/deskhand/internal/automation"
	"github.com/vantrigo/deskhand/internal/locator"
	"github.com/vantrigo/deskhand/internal/mocks"
	"github.com/vantrigo/deskhand/internal/scheduler"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// noopMatcher satisfies the locator without ever matching anything; the
// scheduler tests drive closures, not screen content.
type noopMatcher struct{}

func (noopMatcher) Metric() locator.Metric { return locator.MetricCCoeffNormed }

func (noopMatcher) Match(frame, tpl *image.Gray) (*locator.ScoreGrid, error) {
	return locator.NewScoreGrid(1, 1), nil
}

func newScheduler(t *testing.T, opts ...scheduler.Option) *scheduler.Scheduler {
	t.Helper()

	loc, err := locator.New(noopMatcher{})
	require.NoError(t, err)
	h, err := automation.New(&mocks.MockCapture{}, &mocks.MockInput{}, loc)
	require.NoError(t, err)

	opts = append([]scheduler.Option{scheduler.WithLogger(zaptest.NewLogger(t))}, opts...)
	s, err := scheduler.New(h, opts...)
	require.NoError(t, err)
	return s
}

func TestNewRequiresHandle(t *testing.T) {
	t.Parallel()
	_, err := scheduler.New(nil)
	assert.ErrorContains(t, err, "handle")
}

func TestRunExecutesTasksInOrder(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	var order []string
	for _, name := range []string{"open", "fill", "submit"} {
		require.NoError(t, s.AddFunc(name, func(context.Context, *automation.Handle) (any, error) {
			order = append(order, name)
			return name, nil
		}))
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"open", "fill", "submit"}, order)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 1.0, summary.SuccessRate)
	require.Len(t, summary.Results, 3)
	assert.Equal(t, scheduler.StatusCompleted, summary.Results[0].Status)
	assert.Equal(t, "open", summary.Results[0].Result)
}

func TestRetryCountBoundsAttempts(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	attempts := 0
	require.NoError(t, s.Add(&scheduler.Task{
		Name: "flaky",
		Action: func(context.Context, *automation.Handle) (any, error) {
			attempts++
			return nil, errors.New("boom")
		},
		RetryCount: 3,
		RetryDelay: time.Millisecond,
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, attempts, "retry_count of 3 means exactly 4 attempts")
	res := summary.Results[0]
	assert.Equal(t, scheduler.StatusFailed, res.Status)
	assert.Equal(t, 4, res.Attempts)
	assert.Contains(t, res.Error, "boom")
}

func TestRetryRecoversAfterTransientFailures(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	attempts := 0
	require.NoError(t, s.Add(&scheduler.Task{
		Name: "eventually",
		Action: func(context.Context, *automation.Handle) (any, error) {
			attempts++
			if attempts < 3 {
				return nil, errors.New("not yet")
			}
			return "done", nil
		},
		RetryCount: 5,
		RetryDelay: time.Millisecond,
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	res := summary.Results[0]
	assert.Equal(t, scheduler.StatusCompleted, res.Status)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, "done", res.Result)
}

func TestPermanentErrorSuppressesRetries(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	attempts := 0
	require.NoError(t, s.Add(&scheduler.Task{
		Name: "hopeless",
		Action: func(context.Context, *automation.Handle) (any, error) {
			attempts++
			return nil, backoff.Permanent(errors.New("bad input"))
		},
		RetryCount: 5,
		RetryDelay: time.Millisecond,
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, attempts)
	assert.Equal(t, scheduler.StatusFailed, summary.Results[0].Status)
	assert.Contains(t, summary.Results[0].Error, "bad input")
}

func TestConditionFalseSkipsWithoutInvoking(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	invoked := false
	var successHook, failureHook int
	s.OnSuccess(func(scheduler.TaskResult) { successHook++ })
	s.OnFailure(func(scheduler.TaskResult) { failureHook++ })

	require.NoError(t, s.Add(&scheduler.Task{
		Name:      "guarded",
		Condition: func(context.Context, *automation.Handle) bool { return false },
		Action: func(context.Context, *automation.Handle) (any, error) {
			invoked = true
			return nil, nil
		},
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.False(t, invoked)
	assert.Equal(t, scheduler.StatusSkipped, summary.Results[0].Status)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.SuccessRate)
	assert.Zero(t, successHook, "skipped tasks fire no hooks")
	assert.Zero(t, failureHook)
}

func TestStopOnErrorLeavesLaterTasksUnexecuted(t *testing.T) {
	t.Parallel()

	s := newScheduler(t, scheduler.WithStopOnError(true))
	executed := 0
	require.NoError(t, s.AddFunc("first", func(context.Context, *automation.Handle) (any, error) {
		return nil, errors.New("broken")
	}))
	require.NoError(t, s.AddFunc("second", func(context.Context, *automation.Handle) (any, error) {
		executed++
		return nil, nil
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, executed)
	require.Len(t, summary.Results, 1, "halted tasks appear in no result bucket")
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Completed)
}

func TestFailureWithoutStopOnErrorContinues(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	require.NoError(t, s.AddFunc("bad", func(context.Context, *automation.Handle) (any, error) {
		return nil, errors.New("broken")
	}))
	require.NoError(t, s.AddFunc("good", func(context.Context, *automation.Handle) (any, error) {
		return nil, nil
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Results, 2)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0.5, summary.SuccessRate)
}

func TestCancelHaltsBeforeNextTask(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	executed := 0
	require.NoError(t, s.AddFunc("canceller", func(context.Context, *automation.Handle) (any, error) {
		s.Cancel()
		return nil, nil
	}))
	require.NoError(t, s.AddFunc("after", func(context.Context, *automation.Handle) (any, error) {
		executed++
		return nil, nil
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, executed)
	require.Len(t, summary.Results, 2)
	assert.Equal(t, scheduler.StatusCompleted, summary.Results[0].Status)
	assert.Equal(t, scheduler.StatusCancelled, summary.Results[1].Status)
	assert.Equal(t, "after", summary.Results[1].TaskName)
	assert.Equal(t, 1, summary.Cancelled)
}

func TestParentContextCancellation(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	executed := 0
	require.NoError(t, s.AddFunc("never", func(context.Context, *automation.Handle) (any, error) {
		executed++
		return nil, nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := s.Run(ctx)
	require.NoError(t, err)

	assert.Zero(t, executed)
	require.Len(t, summary.Results, 1)
	assert.Equal(t, scheduler.StatusCancelled, summary.Results[0].Status)
}

func TestHooksReceiveTerminalResults(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	var succeeded, failed []string
	s.OnSuccess(func(r scheduler.TaskResult) { succeeded = append(succeeded, r.TaskName) })
	s.OnFailure(func(r scheduler.TaskResult) { failed = append(failed, r.TaskName) })

	require.NoError(t, s.AddFunc("ok", func(context.Context, *automation.Handle) (any, error) {
		return nil, nil
	}))
	require.NoError(t, s.AddFunc("bad", func(context.Context, *automation.Handle) (any, error) {
		return nil, errors.New("nope")
	}))

	_, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"ok"}, succeeded)
	assert.Equal(t, []string{"bad"}, failed)
}

func TestTaskTimeoutBoundsExecution(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	require.NoError(t, s.Add(&scheduler.Task{
		Name: "stuck",
		Action: func(ctx context.Context, _ *automation.Handle) (any, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Timeout: 30 * time.Millisecond,
	}))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	res := summary.Results[0]
	assert.Equal(t, scheduler.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "context deadline exceeded")
}

func TestEmptyWorkflowSummary(t *testing.T) {
	t.Parallel()

	summary, err := newScheduler(t).Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, summary.Total)
	assert.Zero(t, summary.SuccessRate, "empty run has rate 0, not NaN")
	assert.Empty(t, summary.Results)
}

func TestConcurrentRunRejected(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, s.AddFunc("block", func(context.Context, *automation.Handle) (any, error) {
		close(started)
		<-release
		return nil, nil
	}))

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background())
		errCh <- err
	}()

	<-started
	assert.True(t, s.Running())
	_, err := s.Run(context.Background())
	assert.ErrorContains(t, err, "already in progress")

	close(release)
	require.NoError(t, <-errCh)
	assert.False(t, s.Running())
}

func TestSequentialRunsResetResults(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	require.NoError(t, s.AddFunc("only", func(context.Context, *automation.Handle) (any, error) {
		return nil, nil
	}))

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, summary.Results, 1, "result log resets per run")
}

func TestAddValidation(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	noop := func(context.Context, *automation.Handle) (any, error) { return nil, nil }

	assert.ErrorContains(t, s.Add(nil), "nil task")
	assert.ErrorContains(t, s.Add(&scheduler.Task{Action: noop}), "name")
	assert.ErrorContains(t, s.Add(&scheduler.Task{Name: "x"}), "no action")
	assert.ErrorContains(t, s.Add(&scheduler.Task{Name: "x", Action: noop, RetryCount: -1}), "retry count")
	assert.ErrorContains(t, s.Add(&scheduler.Task{Name: "x", Action: noop, RetryDelay: -time.Second}), "retry delay")
}

func TestResultsReturnsSnapshot(t *testing.T) {
	t.Parallel()

	s := newScheduler(t)
	require.NoError(t, s.AddFunc("one", func(context.Context, *automation.Handle) (any, error) {
		return nil, nil
	}))
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	snapshot := s.Results()
	require.Len(t, snapshot, 1)
	snapshot[0].TaskName = "mutated"
	assert.Equal(t, "one", s.Results()[0].TaskName)
}
