// internal/agent/models.go
package agent

import (
	"errors"
	"time"

	"github.com/vantrigo/deskhand/internal/planner"
)

// AgentStatus is the lifecycle state of a run. A run starts idle, moves to
// running, and ends in exactly one of the four terminal states.
type AgentStatus string

const (
	StatusIdle      AgentStatus = "idle"
	StatusRunning   AgentStatus = "running"
	StatusSucceeded AgentStatus = "succeeded" // the decision source returned done
	StatusFailed    AgentStatus = "failed"    // provider failure, or the source signalled it cannot proceed
	StatusCancelled AgentStatus = "cancelled" // Cancel() or a dead parent context observed at a step boundary
	StatusExhausted AgentStatus = "exhausted" // the step budget ran out without a terminal action
)

// StepResult records one executed step of a run. Iterations that end the run
// (done, cannot-proceed, cancellation) produce no StepResult; iterations that
// reach the execution phase produce exactly one, whether or not the action
// succeeded.
type StepResult struct {
	Step           int            `json:"step"`
	Action         planner.Action `json:"action"`
	Success        bool           `json:"success"`
	Error          string         `json:"error,omitempty"`
	ScreenshotPath string         `json:"screenshot_path,omitempty"`
	Duration       time.Duration  `json:"duration"`
}

// RunResult is the terminal artifact of one Run invocation. Every failure
// along the way is recorded inline; the run never silently drops a step.
type RunResult struct {
	RunID         string        `json:"run_id"`
	Task          string        `json:"task"`
	Status        AgentStatus   `json:"status"`
	Success       bool          `json:"success"`
	Steps         []StepResult  `json:"steps"`
	TotalDuration time.Duration `json:"total_duration"`
	FinalMessage  string        `json:"final_message"`
}

// Defaults for zero-valued Config fields. DefaultStepDelay is applied by
// the configuration layer, not here: a zero StepDelay is a valid choice
// meaning no settle pause.
const (
	DefaultMaxSteps      = 50
	DefaultStepDelay     = time.Second
	DefaultHistoryWindow = 10
)

// Config carries the recognized run options. It is constructed once and
// validated before use; there is no fluent mutation after construction.
type Config struct {
	// MaxSteps bounds the number of loop iterations per run.
	MaxSteps int

	// StepDelay is slept after each executed step so the UI can settle.
	// Zero disables the pause.
	StepDelay time.Duration

	// HistoryWindow is how many recent step summaries accompany each plan
	// request.
	HistoryWindow int

	// ScreenshotDir, when non-empty, makes the run persist one frame per
	// step as step_<index>.png under this directory.
	ScreenshotDir string
}

func (c Config) withDefaults() Config {
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = DefaultHistoryWindow
	}
	return c
}

// Validate rejects configurations that would make a run misbehave rather
// than merely use defaults.
func (c Config) Validate() error {
	if c.MaxSteps < 0 {
		return errors.New("agent: max steps must not be negative")
	}
	if c.StepDelay < 0 {
		return errors.New("agent: step delay must not be negative")
	}
	if c.HistoryWindow < 0 {
		return errors.New("agent: history window must not be negative")
	}
	return nil
}
