// File: internal/agent/agent_test.go
package agent

import (
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/vantrigo/deskhand/internal/automation"
	"github.com/vantrigo/deskhand/internal/locator"
	"github.com/vantrigo/deskhand/internal/mocks"
	"github.com/vantrigo/deskhand/internal/planner"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubMatcher struct{}

func (stubMatcher) Metric() locator.Metric { return locator.MetricCCoeffNormed }

func (stubMatcher) Match(frame, tpl *image.Gray) (*locator.ScoreGrid, error) {
	return locator.NewScoreGrid(1, 1), nil
}

// scriptedSource plays back canned plan texts in order; the last entry
// repeats once the script runs out.
type scriptedSource struct {
	mu          sync.Mutex
	plans       []string
	planErr     error
	planCalls   int
	historyLens []int
	onPlan      func(call int)

	describe      string
	describeErr   error
	describeCalls int
	describeFn    func(call int) (string, error)
}

func (s *scriptedSource) Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error) {
	s.mu.Lock()
	call := s.planCalls
	s.planCalls++
	s.historyLens = append(s.historyLens, len(history))
	hook := s.onPlan
	s.mu.Unlock()

	if hook != nil {
		hook(call)
	}
	if s.planErr != nil {
		return "", s.planErr
	}
	if len(s.plans) == 0 {
		return "", errors.New("no plan scripted")
	}
	if call >= len(s.plans) {
		return s.plans[len(s.plans)-1], nil
	}
	return s.plans[call], nil
}

func (s *scriptedSource) Describe(ctx context.Context, frame image.Image, prompt string) (string, error) {
	s.mu.Lock()
	call := s.describeCalls
	s.describeCalls++
	fn := s.describeFn
	s.mu.Unlock()

	if fn != nil {
		return fn(call)
	}
	return s.describe, s.describeErr
}

func (s *scriptedSource) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.planCalls
}

const (
	clickPlan = `{"analysis":"button visible","can_proceed":true,"action":{"action":"click","x":30,"y":40},"reason":"press the button"}`
	donePlan  = `{"action":"done","reason":"all set"}`
)

func newAgentFixture(t *testing.T, source *scriptedSource, cfg Config) (*Agent, *mocks.MockInput) {
	t.Helper()

	loc, err := locator.New(stubMatcher{})
	require.NoError(t, err)

	capture := &mocks.MockCapture{}
	capture.On("Capture", mock.Anything).Return(image.NewRGBA(image.Rect(0, 0, 64, 48)), nil)
	input := &mocks.MockInput{}

	h, err := automation.New(capture, input, loc)
	require.NoError(t, err)

	ag, err := New(h, source, cfg, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return ag, input
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	loc, err := locator.New(stubMatcher{})
	require.NoError(t, err)
	h, err := automation.New(&mocks.MockCapture{}, &mocks.MockInput{}, loc)
	require.NoError(t, err)

	_, err = New(nil, &scriptedSource{}, Config{})
	assert.ErrorContains(t, err, "handle")

	_, err = New(h, nil, Config{})
	assert.ErrorContains(t, err, "decision source")

	_, err = New(h, &scriptedSource{}, Config{MaxSteps: -1})
	assert.ErrorContains(t, err, "max steps")

	_, err = New(h, &scriptedSource{}, Config{StepDelay: -time.Second})
	assert.ErrorContains(t, err, "step delay")
}

func TestRunSucceedsOnDone(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{clickPlan, donePlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 10})
	input.On("Click", mock.Anything, 30, 40, mock.Anything, 1).Return(nil)

	result, err := ag.Run(context.Background(), "press the button")
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.True(t, result.Success)
	assert.Equal(t, "all set", result.FinalMessage)
	require.Len(t, result.Steps, 1, "the done iteration appends no step")
	assert.Equal(t, planner.ActionClick, result.Steps[0].Action.Type)
	assert.True(t, result.Steps[0].Success)
	assert.Equal(t, StatusSucceeded, ag.Status())
	input.AssertNumberOfCalls(t, "Click", 1)
}

func TestRunExhaustsStepBudget(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{clickPlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 3})
	input.On("Click", mock.Anything, 30, 40, mock.Anything, 1).Return(nil)

	result, err := ag.Run(context.Background(), "keep clicking")
	require.NoError(t, err)

	assert.Equal(t, StatusExhausted, result.Status)
	assert.False(t, result.Success)
	assert.Len(t, result.Steps, 3, "one StepResult per iteration when done never arrives")
	assert.Contains(t, result.FinalMessage, "exhausted")
	input.AssertNumberOfCalls(t, "Click", 3)
}

func TestCancelStopsBeforeNextStep(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{clickPlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 10})
	input.On("Click", mock.Anything, 30, 40, mock.Anything, 1).Return(nil)

	ag.OnStep(func(step int, action planner.Action) {
		if step == 1 {
			ag.Cancel()
		}
	})

	result, err := ag.Run(context.Background(), "cancel midway")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, result.Status)
	assert.Len(t, result.Steps, 2, "cancel during step 1 lets it finish, step 2 never starts")
	input.AssertNumberOfCalls(t, "Click", 2)
}

func TestParentContextCancellation(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{clickPlan}}
	ag, _ := newAgentFixture(t, source, Config{MaxSteps: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := ag.Run(ctx, "already dead")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, result.Status)
	assert.Empty(t, result.Steps)
	assert.Zero(t, source.calls())
}

func TestProviderErrorIsFatal(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{planErr: errors.New("connection refused")}
	ag, _ := newAgentFixture(t, source, Config{MaxSteps: 10})

	result, err := ag.Run(context.Background(), "unreachable provider")
	require.Error(t, err)
	assert.ErrorContains(t, err, "decision source")

	assert.Equal(t, StatusFailed, result.Status)
	assert.Empty(t, result.Steps)
	assert.Contains(t, result.FinalMessage, "connection refused")
	assert.Equal(t, 1, source.calls(), "provider failures are not retried here")
}

func TestCannotProceedFailsRun(t *testing.T) {
	t.Parallel()

	plan := `{"analysis":"lock screen","can_proceed":false,"reason":"screen is locked","action":{"action":"wait"}}`
	source := &scriptedSource{plans: []string{plan}}
	ag, _ := newAgentFixture(t, source, Config{MaxSteps: 10})

	result, err := ag.Run(context.Background(), "open editor")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "screen is locked", result.FinalMessage)
	assert.Empty(t, result.Steps)
}

func TestErrorActionFailsRun(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{`{"action":"error","reason":"stuck in a dialog"}`}}
	ag, _ := newAgentFixture(t, source, Config{MaxSteps: 10})

	result, err := ag.Run(context.Background(), "anything")
	require.NoError(t, err)

	assert.Equal(t, StatusFailed, result.Status)
	assert.Equal(t, "stuck in a dialog", result.FinalMessage)
}

func TestUnparsablePlanFailsStepNotRun(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{"I would rather chat than emit JSON", donePlan}}
	ag, _ := newAgentFixture(t, source, Config{MaxSteps: 10})

	result, err := ag.Run(context.Background(), "tolerate noise")
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, result.Status)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Success)
	assert.Contains(t, result.Steps[0].Error, "no JSON object")
}

func TestExecutionErrorIsPerStep(t *testing.T) {
	t.Parallel()

	blindClick := `{"action":"click","reason":"cannot see coordinates"}`
	source := &scriptedSource{plans: []string{blindClick, donePlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 10})

	result, err := ag.Run(context.Background(), "click nowhere")
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, result.Status)
	require.Len(t, result.Steps, 1)
	assert.False(t, result.Steps[0].Success)
	assert.Contains(t, result.Steps[0].Error, "coordinates")
	assert.Empty(t, input.Calls)
}

func TestScrollDirectionMapping(t *testing.T) {
	t.Parallel()

	plans := []string{
		`{"action":"scroll","direction":"up","reason":"scroll up"}`,
		`{"action":"scroll","direction":"sideways","reason":"unknown direction"}`,
		donePlan,
	}
	source := &scriptedSource{plans: plans}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 10})
	input.On("Scroll", mock.Anything, -scrollClicks).Return(nil).Once()
	input.On("Scroll", mock.Anything, scrollClicks).Return(nil).Once()

	result, err := ag.Run(context.Background(), "scroll around")
	require.NoError(t, err)

	assert.Equal(t, StatusSucceeded, result.Status)
	assert.Len(t, result.Steps, 2)
	input.AssertExpectations(t)
}

func TestScreenshotPersistenceNaming(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	source := &scriptedSource{plans: []string{clickPlan, donePlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 10, ScreenshotDir: dir})
	input.On("Click", mock.Anything, 30, 40, mock.Anything, 1).Return(nil)

	result, err := ag.Run(context.Background(), "persist frames")
	require.NoError(t, err)

	require.Len(t, result.Steps, 1)
	assert.Equal(t, filepath.Join(dir, "step_000.png"), result.Steps[0].ScreenshotPath)

	// The terminal iteration captures and persists before parsing done.
	for _, name := range []string{"step_000.png", "step_001.png"} {
		_, statErr := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, statErr, name)
	}
}

func TestHistoryWindowTrims(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{clickPlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 5, HistoryWindow: 2})
	input.On("Click", mock.Anything, 30, 40, mock.Anything, 1).Return(nil)

	_, err := ag.Run(context.Background(), "bounded memory")
	require.NoError(t, err)

	assert.Equal(t, []int{0, 1, 2, 2, 2}, source.historyLens)
}

func TestStepDelayIsContextAware(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{clickPlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 3, StepDelay: time.Hour})
	input.On("Click", mock.Anything, 30, 40, mock.Anything, 1).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	ag.OnStep(func(step int, action planner.Action) { cancel() })

	done := make(chan struct{})
	var result *RunResult
	go func() {
		defer close(done)
		result, _ = ag.Run(ctx, "never sleep for an hour")
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not observe context cancellation during step delay")
	}
	assert.Equal(t, StatusCancelled, result.Status)
}

func TestConcurrentRunRejected(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	release := make(chan struct{})
	source := &scriptedSource{plans: []string{donePlan}}
	source.onPlan = func(call int) {
		if call == 0 {
			close(started)
			<-release
		}
	}
	ag, _ := newAgentFixture(t, source, Config{MaxSteps: 10})

	errCh := make(chan error, 1)
	go func() {
		_, err := ag.Run(context.Background(), "block for a while")
		errCh <- err
	}()

	<-started
	assert.True(t, ag.Running())
	_, err := ag.Run(context.Background(), "second run")
	assert.ErrorContains(t, err, "already in progress")

	close(release)
	require.NoError(t, <-errCh)
	assert.False(t, ag.Running())
}

func TestRunRejectsEmptyGoal(t *testing.T) {
	t.Parallel()

	ag, _ := newAgentFixture(t, &scriptedSource{}, Config{MaxSteps: 10})
	_, err := ag.Run(context.Background(), "")
	assert.ErrorContains(t, err, "goal")
}

func TestStepsSnapshotIsIndependent(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{clickPlan, donePlan}}
	ag, input := newAgentFixture(t, source, Config{MaxSteps: 10})
	input.On("Click", mock.Anything, 30, 40, mock.Anything, 1).Return(nil)

	_, err := ag.Run(context.Background(), "snapshot")
	require.NoError(t, err)

	snapshot := ag.Steps()
	require.Len(t, snapshot, 1)
	snapshot[0].Error = "mutated"
	assert.Empty(t, ag.Steps()[0].Error)
}

func TestRunIsReusableAfterTerminalState(t *testing.T) {
	t.Parallel()

	source := &scriptedSource{plans: []string{donePlan}}
	ag, _ := newAgentFixture(t, source, Config{MaxSteps: 10})

	first, err := ag.Run(context.Background(), "first run")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, first.Status)

	second, err := ag.Run(context.Background(), "second run")
	require.NoError(t, err)
	assert.Equal(t, StatusSucceeded, second.Status)
	assert.NotEqual(t, first.RunID, second.RunID)
}
