// File: internal/scheduler/scheduler.go
// Description: Sequential task scheduler. Executes an ordered list of
// named tasks against the shared automation handle with per-task
// condition, retry, and timeout semantics, and produces an append-only
// result log plus an aggregate summary. Cancellation is cooperative and
// observed at task boundaries.

package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/internal/automation"
)

// Hook observes a task reaching a terminal status. Hooks run synchronously
// before the next task begins.
type Hook func(TaskResult)

// Summary aggregates one workflow run. Total counts every task in the
// run's snapshot; tasks left unexecuted by a halt appear in no other
// bucket.
type Summary struct {
	Total       int           `json:"total"`
	Completed   int           `json:"completed"`
	Failed      int           `json:"failed"`
	Skipped     int           `json:"skipped"`
	Cancelled   int           `json:"cancelled"`
	SuccessRate float64       `json:"success_rate"`
	Duration    time.Duration `json:"duration"`
	Results     []TaskResult  `json:"results"`
}

// Scheduler runs tasks in list order, one at a time.
type Scheduler struct {
	handle      *automation.Handle
	logger      *zap.Logger
	stopOnError bool

	mu        sync.Mutex
	tasks     []*Task
	results   []TaskResult
	running   bool
	cancelled bool
	onSuccess []Hook
	onFailure []Hook
}

// Option configures a Scheduler at construction.
type Option func(*Scheduler)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithStopOnError makes a failed task halt the remaining workflow.
func WithStopOnError(stop bool) Option {
	return func(s *Scheduler) { s.stopOnError = stop }
}

// New creates a Scheduler bound to an automation handle.
func New(handle *automation.Handle, opts ...Option) (*Scheduler, error) {
	if handle == nil {
		return nil, errors.New("scheduler: automation handle is required")
	}

	s := &Scheduler{
		handle: handle,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("scheduler")
	return s, nil
}

// Add validates and appends a task to the workflow.
func (s *Scheduler) Add(task *Task) error {
	if task == nil {
		return errors.New("scheduler: nil task")
	}
	if err := task.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, task)
	return nil
}

// AddFunc appends a plain action as a task with no condition or retries.
func (s *Scheduler) AddFunc(name string, fn ActionFunc) error {
	return s.Add(&Task{Name: name, Action: fn})
}

// OnSuccess registers a hook fired when a task completes.
func (s *Scheduler) OnSuccess(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onSuccess = append(s.onSuccess, h)
}

// OnFailure registers a hook fired when a task fails terminally.
func (s *Scheduler) OnFailure(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onFailure = append(s.onFailure, h)
}

// Cancel requests a cooperative stop. A running workflow observes the
// flag before starting its next task; tasks already executing finish.
// Safe to call from any goroutine, any number of times.
func (s *Scheduler) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.logger.Info("cancellation requested")
}

// Running reports whether a workflow run is in progress.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Results returns a snapshot of the result log accumulated so far.
func (s *Scheduler) Results() []TaskResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TaskResult(nil), s.results...)
}

// Run executes the workflow in list order and returns its summary. Only
// one run may be active at a time; the result log is reset at the start
// of each run. A failed task halts the run when stop-on-error is set,
// leaving later tasks unexecuted. Cancellation (via Cancel or the parent
// context) records one cancelled result at the boundary it was observed.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, errors.New("scheduler: run already in progress")
	}
	s.running = true
	s.results = nil
	tasks := append([]*Task(nil), s.tasks...)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info("workflow started", zap.Int("tasks", len(tasks)))
	start := time.Now()

	for _, task := range tasks {
		if s.isCancelled() || ctx.Err() != nil {
			s.logger.Warn("workflow cancelled", zap.String("next_task", task.Name))
			s.appendResult(TaskResult{TaskName: task.Name, Status: StatusCancelled})
			break
		}

		res := s.runTask(ctx, task)
		s.appendResult(res)
		s.fireHooks(res)

		if res.Status == StatusFailed && s.stopOnError {
			s.logger.Warn("workflow halted on failure", zap.String("task", task.Name))
			break
		}
	}

	summary := s.summarize(len(tasks), time.Since(start))
	s.logger.Info("workflow finished",
		zap.Int("total", summary.Total),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Float64("success_rate", summary.SuccessRate),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}

// runTask drives one task through its condition, retries, and timeout.
func (s *Scheduler) runTask(ctx context.Context, task *Task) TaskResult {
	log := s.logger.With(zap.String("task", task.Name))
	start := time.Now()

	if task.Condition != nil && !task.Condition(ctx, s.handle) {
		log.Info("task skipped, condition false")
		return TaskResult{TaskName: task.Name, Status: StatusSkipped, Duration: time.Since(start)}
	}

	taskCtx := ctx
	if task.Timeout > 0 {
		var cancel context.CancelFunc
		taskCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	log.Debug("task started")
	attempts := 0
	var value any
	operation := func() error {
		attempts++
		v, err := task.Action(taskCtx, s.handle)
		if err != nil {
			log.Warn("task attempt failed", zap.Int("attempt", attempts), zap.Error(err))
			return err
		}
		value = v
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(task.RetryDelay), uint64(task.RetryCount)),
		taskCtx,
	)
	err := backoff.Retry(operation, policy)

	duration := time.Since(start)
	if err != nil {
		log.Error("task failed", zap.Int("attempts", attempts), zap.Error(err))
		return TaskResult{
			TaskName: task.Name,
			Status:   StatusFailed,
			Error:    err.Error(),
			Attempts: attempts,
			Duration: duration,
		}
	}

	log.Info("task completed", zap.Int("attempts", attempts), zap.Duration("duration", duration))
	return TaskResult{
		TaskName: task.Name,
		Status:   StatusCompleted,
		Result:   value,
		Attempts: attempts,
		Duration: duration,
	}
}

func (s *Scheduler) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

func (s *Scheduler) appendResult(res TaskResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
}

// fireHooks runs the terminal-status observers for one result.
func (s *Scheduler) fireHooks(res TaskResult) {
	s.mu.Lock()
	var hooks []Hook
	switch res.Status {
	case StatusCompleted:
		hooks = append(hooks, s.onSuccess...)
	case StatusFailed:
		hooks = append(hooks, s.onFailure...)
	}
	s.mu.Unlock()

	for _, h := range hooks {
		h(res)
	}
}

func (s *Scheduler) summarize(total int, elapsed time.Duration) *Summary {
	s.mu.Lock()
	results := append([]TaskResult(nil), s.results...)
	s.mu.Unlock()

	summary := &Summary{
		Total:    total,
		Duration: elapsed,
		Results:  results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusCompleted:
			summary.Completed++
		case StatusFailed:
			summary.Failed++
		case StatusSkipped:
			summary.Skipped++
		case StatusCancelled:
			summary.Cancelled++
		}
	}
	if summary.Total > 0 {
		summary.SuccessRate = float64(summary.Completed) / float64(summary.Total)
	}
	return summary
}
