// File: internal/scheduler/task.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vantrigo/deskhand/internal/automation"
)

// TaskStatus is the lifecycle state of one scheduled task. A terminal
// status is never overwritten.
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
	StatusSkipped   TaskStatus = "skipped"
	StatusCancelled TaskStatus = "cancelled"
)

// ActionFunc is the work a task performs against the shared automation
// handle. The returned value is recorded on the task result. Wrapping an
// error in backoff.Permanent suppresses retries for that failure.
type ActionFunc func(ctx context.Context, h *automation.Handle) (any, error)

// ConditionFunc gates a task; returning false skips it without invoking
// the action.
type ConditionFunc func(ctx context.Context, h *automation.Handle) bool

// Task is one named, conditional, retryable step in a workflow. Fields are
// immutable once the task is added to a scheduler.
type Task struct {
	Name string

	// Action is invoked when the condition (if any) holds.
	Action ActionFunc

	// Condition, when set, is evaluated first; false skips the task.
	Condition ConditionFunc

	// RetryCount is the number of additional attempts after the first
	// failure, so the action runs at most RetryCount+1 times.
	RetryCount int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration

	// Timeout bounds a single run of the task including its retries; zero
	// means no per-task deadline.
	Timeout time.Duration
}

// Validate reports whether the task definition is usable.
func (t *Task) Validate() error {
	if t.Name == "" {
		return errors.New("scheduler: task name is required")
	}
	if t.Action == nil {
		return fmt.Errorf("scheduler: task %q has no action", t.Name)
	}
	if t.RetryCount < 0 {
		return fmt.Errorf("scheduler: task %q has negative retry count", t.Name)
	}
	if t.RetryDelay < 0 {
		return fmt.Errorf("scheduler: task %q has negative retry delay", t.Name)
	}
	return nil
}

// TaskResult is the terminal record of one task, appended to the run log
// in execution order and never retracted.
type TaskResult struct {
	TaskName string        `json:"task_name"`
	Status   TaskStatus    `json:"status"`
	Result   any           `json:"result,omitempty"`
	Error    string        `json:"error,omitempty"`
	Attempts int           `json:"attempts"`
	Duration time.Duration `json:"duration"`
}
