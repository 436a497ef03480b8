// File: internal/agent/agent.go
// Description: The perception-decision-action control loop. Each iteration
// captures a frame, asks the decision source for a plan, parses it through
// the planner protocol, and executes the resulting action against the
// automation handle, until the source declares the task done, the step
// budget runs out, or the run is cancelled.
package agent

import (
	"context"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/api/schemas"
	"github.com/vantrigo/deskhand/internal/automation"
	"github.com/vantrigo/deskhand/internal/planner"
)

// Allows for mocking in tests.
var uuidNewString = uuid.NewString

// scrollClicks is the fixed magnitude applied to model-requested scrolls.
const scrollClicks = 5

const (
	defaultLocatePoll = 500 * time.Millisecond
	defaultTypeSettle = 200 * time.Millisecond
)

// StepHook observes each parsed action before it is checked for terminality
// or executed. Hooks run synchronously on the loop goroutine.
type StepHook func(step int, action planner.Action)

// ScreenshotHook observes each captured frame.
type ScreenshotHook func(step int, frame image.Image)

// Agent runs bounded perception-decision-action cycles toward a
// natural-language goal. A single Agent is reusable: Run resets per-run
// state, but only one run may be active at a time.
type Agent struct {
	handle *automation.Handle
	source schemas.DecisionSource
	cfg    Config
	logger *zap.Logger

	locatePoll time.Duration
	typeSettle time.Duration

	mu        sync.Mutex
	status    AgentStatus
	steps     []StepResult
	cancelled bool

	onStep       []StepHook
	onScreenshot []ScreenshotHook
}

// Option configures optional collaborators.
type Option func(*Agent)

// WithLogger attaches a logger; a component name is appended.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Agent) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// New validates the collaborators and configuration and returns a ready
// agent.
func New(handle *automation.Handle, source schemas.DecisionSource, cfg Config, opts ...Option) (*Agent, error) {
	if handle == nil {
		return nil, errors.New("agent: automation handle is required")
	}
	if source == nil {
		return nil, errors.New("agent: decision source is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		handle:     handle,
		source:     source,
		cfg:        cfg.withDefaults(),
		logger:     zap.NewNop(),
		locatePoll: defaultLocatePoll,
		typeSettle: defaultTypeSettle,
		status:     StatusIdle,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("agent")
	return a, nil
}

// OnStep registers a hook invoked with every parsed action.
func (a *Agent) OnStep(h StepHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onStep = append(a.onStep, h)
}

// OnScreenshot registers a hook invoked with every captured frame.
func (a *Agent) OnScreenshot(h ScreenshotHook) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onScreenshot = append(a.onScreenshot, h)
}

// Cancel requests a cooperative stop. The loop observes the flag at step
// boundaries only; a step already executing runs to completion. Safe to
// call from any goroutine.
func (a *Agent) Cancel() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.status == StatusRunning && !a.cancelled {
		a.cancelled = true
		a.logger.Info("run cancellation requested")
	}
}

// Status returns the current lifecycle state.
func (a *Agent) Status() AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Running reports whether a run is in progress.
func (a *Agent) Running() bool {
	return a.Status() == StatusRunning
}

// Steps returns a snapshot of the step log of the current or most recent
// run. Safe to call concurrently while a run appends.
func (a *Agent) Steps() []StepResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]StepResult(nil), a.steps...)
}

// Run drives the loop until a terminal condition. The returned RunResult is
// always populated; the error is non-nil only for fatal transport failures
// (capture or decision source), which are also recorded in the result.
func (a *Agent) Run(ctx context.Context, goal string) (*RunResult, error) {
	if goal == "" {
		return nil, errors.New("agent: goal must not be empty")
	}

	a.mu.Lock()
	if a.status == StatusRunning {
		a.mu.Unlock()
		return nil, errors.New("agent: run already in progress")
	}
	a.status = StatusRunning
	a.steps = nil
	a.cancelled = false
	a.mu.Unlock()

	runID := uuidNewString()
	logger := a.logger.With(zap.String("run_id", runID))
	logger.Info("run started", zap.String("goal", goal), zap.Int("max_steps", a.cfg.MaxSteps))

	start := time.Now()
	status := StatusExhausted
	finalMessage := fmt.Sprintf("step budget of %d exhausted", a.cfg.MaxSteps)
	var history []string
	var runErr error

	for step := 0; step < a.cfg.MaxSteps; step++ {
		if a.isCancelled() || ctx.Err() != nil {
			status = StatusCancelled
			finalMessage = "run cancelled"
			logger.Warn("run cancelled", zap.Int("next_step", step))
			break
		}

		stepStart := time.Now()

		frame, err := a.handle.Screenshot(ctx)
		if err != nil {
			status = StatusFailed
			finalMessage = fmt.Sprintf("screen capture failed: %v", err)
			runErr = fmt.Errorf("agent: screen capture failed: %w", err)
			logger.Error("screen capture failed", zap.Int("step", step), zap.Error(err))
			break
		}

		shotPath := a.persistFrame(step, frame, logger)
		a.fireScreenshotHooks(step, frame)

		raw, err := a.source.Plan(ctx, frame, goal, history)
		if err != nil {
			status = StatusFailed
			finalMessage = fmt.Sprintf("decision source failed: %v", err)
			runErr = fmt.Errorf("agent: decision source failed: %w", err)
			logger.Error("decision source failed", zap.Int("step", step), zap.Error(err))
			break
		}

		decision, err := planner.ParseDecision(raw)
		if err != nil {
			// A plan that cannot be parsed fails this step, not the run.
			logger.Warn("plan text not parsable", zap.Int("step", step), zap.Error(err))
			sr := StepResult{
				Step:           step,
				Success:        false,
				Error:          err.Error(),
				ScreenshotPath: shotPath,
				Duration:       time.Since(stepStart),
			}
			a.appendStep(sr)
			history = appendHistory(history, fmt.Sprintf("step %d: plan not parsable (%v)", step, err), a.cfg.HistoryWindow)
			a.sleep(ctx, a.cfg.StepDelay)
			continue
		}

		action := decision.Action
		a.fireStepHooks(step, action)

		if action.Type == planner.ActionDone {
			status = StatusSucceeded
			finalMessage = reasonOr(decision, "task completed")
			logger.Info("task completed", zap.Int("step", step), zap.String("reason", finalMessage))
			break
		}
		if action.Type == planner.ActionError || cannotProceed(decision) {
			status = StatusFailed
			finalMessage = reasonOr(decision, "decision source cannot proceed")
			logger.Error("task failed", zap.Int("step", step), zap.String("reason", finalMessage))
			break
		}

		sr := StepResult{
			Step:           step,
			Action:         action,
			Success:        true,
			ScreenshotPath: shotPath,
		}
		if err := a.executeAction(ctx, action); err != nil {
			sr.Success = false
			sr.Error = err.Error()
			logger.Error("step execution failed", zap.Int("step", step), zap.String("action", action.Summary()), zap.Error(err))
		} else {
			logger.Info("step executed", zap.Int("step", step), zap.String("action", action.Summary()), zap.String("reason", action.Reason))
		}
		sr.Duration = time.Since(stepStart)
		a.appendStep(sr)
		history = appendHistory(history, summarizeStep(sr), a.cfg.HistoryWindow)

		a.sleep(ctx, a.cfg.StepDelay)
	}

	elapsed := time.Since(start)
	a.mu.Lock()
	a.status = status
	steps := append([]StepResult(nil), a.steps...)
	a.mu.Unlock()

	result := &RunResult{
		RunID:         runID,
		Task:          goal,
		Status:        status,
		Success:       status == StatusSucceeded,
		Steps:         steps,
		TotalDuration: elapsed,
		FinalMessage:  finalMessage,
	}
	logger.Info("run finished",
		zap.String("status", string(status)),
		zap.Int("steps", len(steps)),
		zap.Duration("duration", elapsed),
		zap.String("final_message", finalMessage))
	return result, runErr
}

// executeAction dispatches the action to the matching handle primitive.
// Validation failures here are per-step execution errors, not run failures.
func (a *Agent) executeAction(ctx context.Context, action planner.Action) error {
	switch action.Type {
	case planner.ActionClick:
		x, y, ok := action.Coordinates()
		if !ok {
			return errors.New("agent: click action carries no coordinates")
		}
		return a.handle.ClickAt(ctx, x, y)
	case planner.ActionTypeText:
		if action.Text == "" {
			return errors.New("agent: type action carries no text")
		}
		return a.handle.TypeText(ctx, action.Text)
	case planner.ActionHotkey:
		return a.handle.Hotkey(ctx, action.Keys...)
	case planner.ActionScroll:
		// Only an exact "up" scrolls up; anything else scrolls down.
		if action.ScrollDirection() == planner.ScrollUp {
			return a.handle.ScrollUp(ctx, scrollClicks)
		}
		return a.handle.ScrollDown(ctx, scrollClicks)
	case planner.ActionWait:
		return a.sleepErr(ctx, action.WaitDuration())
	default:
		return fmt.Errorf("agent: action %q is not executable", action.Type)
	}
}

// persistFrame writes the frame under the configured screenshot directory.
// Persistence failures degrade to a warning; the run continues.
func (a *Agent) persistFrame(step int, frame image.Image, logger *zap.Logger) string {
	if a.cfg.ScreenshotDir == "" {
		return ""
	}
	path := filepath.Join(a.cfg.ScreenshotDir, fmt.Sprintf("step_%03d.png", step))
	if err := a.handle.SaveFrame(frame, path); err != nil {
		logger.Warn("failed to persist step screenshot", zap.String("path", path), zap.Error(err))
		return ""
	}
	return path
}

func (a *Agent) isCancelled() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancelled
}

func (a *Agent) appendStep(sr StepResult) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.steps = append(a.steps, sr)
}

func (a *Agent) fireStepHooks(step int, action planner.Action) {
	a.mu.Lock()
	hooks := append([]StepHook(nil), a.onStep...)
	a.mu.Unlock()
	for _, h := range hooks {
		h(step, action)
	}
}

func (a *Agent) fireScreenshotHooks(step int, frame image.Image) {
	a.mu.Lock()
	hooks := append([]ScreenshotHook(nil), a.onScreenshot...)
	a.mu.Unlock()
	for _, h := range hooks {
		h(step, frame)
	}
}

func (a *Agent) sleep(ctx context.Context, d time.Duration) {
	_ = a.sleepErr(ctx, d)
}

func (a *Agent) sleepErr(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func cannotProceed(d *planner.Decision) bool {
	return d.CanProceed != nil && !*d.CanProceed
}

func reasonOr(d *planner.Decision, fallback string) string {
	if d.Reason != "" {
		return d.Reason
	}
	return fallback
}

func summarizeStep(sr StepResult) string {
	outcome := "ok"
	if !sr.Success {
		outcome = "failed: " + sr.Error
	}
	return fmt.Sprintf("step %d: %s -> %s", sr.Step, sr.Action.Summary(), outcome)
}

func appendHistory(history []string, entry string, window int) []string {
	history = append(history, entry)
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	}
	return history
}
