// File: internal/scheduler/workflow.go
// Description: Declarative workflow assembly: a fluent Builder for code
// and a YAML schema for files. Both produce plain Task lists; neither
// executes anything.

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vantrigo/deskhand/internal/automation"
)

// defaultWaitForTimeout bounds wait_for steps that omit a timeout.
const defaultWaitForTimeout = 10 * time.Second

// Builder assembles a task list step by step. Modifier methods (WithRetry,
// WithTimeout, WhenVisible) apply to the most recently added step. The
// first error sticks and is reported by Tasks.
type Builder struct {
	tasks []*Task
	err   error
}

// NewBuilder returns an empty workflow builder.
func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) addTask(t *Task) *Builder {
	if b.err != nil {
		return b
	}
	if err := t.Validate(); err != nil {
		b.err = err
		return b
	}
	b.tasks = append(b.tasks, t)
	return b
}

func (b *Builder) last() *Task {
	if b.err != nil {
		return nil
	}
	if len(b.tasks) == 0 {
		b.err = errors.New("scheduler: builder has no step to modify")
		return nil
	}
	return b.tasks[len(b.tasks)-1]
}

// ClickTemplate adds a step that finds the template and clicks its center.
func (b *Builder) ClickTemplate(name, template string) *Builder {
	return b.addTask(&Task{Name: name, Action: func(ctx context.Context, h *automation.Handle) (any, error) {
		return nil, h.ClickTemplate(ctx, template)
	}})
}

// ClickAt adds a step that clicks an absolute position.
func (b *Builder) ClickAt(name string, x, y int) *Builder {
	return b.addTask(&Task{Name: name, Action: func(ctx context.Context, h *automation.Handle) (any, error) {
		return nil, h.ClickAt(ctx, x, y)
	}})
}

// TypeText adds a step that types literal text.
func (b *Builder) TypeText(name, text string) *Builder {
	return b.addTask(&Task{Name: name, Action: func(ctx context.Context, h *automation.Handle) (any, error) {
		return nil, h.TypeText(ctx, text)
	}})
}

// Hotkey adds a step that presses a key chord.
func (b *Builder) Hotkey(name string, keys ...string) *Builder {
	return b.addTask(&Task{Name: name, Action: func(ctx context.Context, h *automation.Handle) (any, error) {
		return nil, h.Hotkey(ctx, keys...)
	}})
}

// Scroll adds a step that scrolls vertically; positive is down.
func (b *Builder) Scroll(name string, amount int) *Builder {
	return b.addTask(&Task{Name: name, Action: func(ctx context.Context, h *automation.Handle) (any, error) {
		return nil, h.Scroll(ctx, amount)
	}})
}

// Wait adds a step that pauses the workflow.
func (b *Builder) Wait(name string, d time.Duration) *Builder {
	return b.addTask(&Task{Name: name, Action: func(ctx context.Context, _ *automation.Handle) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return nil, nil
		}
	}})
}

// WaitFor adds a step that polls until the template appears. A timeout
// without a match fails the step.
func (b *Builder) WaitFor(name, template string, timeout time.Duration) *Builder {
	if timeout <= 0 {
		timeout = defaultWaitForTimeout
	}
	return b.addTask(&Task{Name: name, Action: func(ctx context.Context, h *automation.Handle) (any, error) {
		m, err := h.WaitFor(ctx, template, timeout, 0)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("%w: %s did not appear within %s", automation.ErrTargetNotFound, template, timeout)
		}
		return m, nil
	}})
}

// WhenVisible gates the last step on the template being on screen.
func (b *Builder) WhenVisible(template string) *Builder {
	if t := b.last(); t != nil {
		t.Condition = func(ctx context.Context, h *automation.Handle) bool {
			visible, err := h.Exists(ctx, template)
			return err == nil && visible
		}
	}
	return b
}

// WithRetry sets retry behavior on the last step.
func (b *Builder) WithRetry(count int, delay time.Duration) *Builder {
	if t := b.last(); t != nil {
		t.RetryCount = count
		t.RetryDelay = delay
	}
	return b
}

// WithTimeout bounds the last step.
func (b *Builder) WithTimeout(d time.Duration) *Builder {
	if t := b.last(); t != nil {
		t.Timeout = d
	}
	return b
}

// Tasks returns the assembled list or the first error encountered.
func (b *Builder) Tasks() ([]*Task, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.tasks, nil
}

// Apply adds every assembled task to the scheduler.
func (b *Builder) Apply(s *Scheduler) error {
	tasks, err := b.Tasks()
	if err != nil {
		return err
	}
	for _, t := range tasks {
		if err := s.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// Duration wraps time.Duration with YAML decoding from Go duration
// strings such as "500ms" or "3s".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"500ms\": %w", err)
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// WorkflowStep is one step of an on-disk workflow.
type WorkflowStep struct {
	Name        string   `yaml:"name"`
	Action      string   `yaml:"action"`
	Template    string   `yaml:"template,omitempty"`
	X           int      `yaml:"x,omitempty"`
	Y           int      `yaml:"y,omitempty"`
	Text        string   `yaml:"text,omitempty"`
	Keys        []string `yaml:"keys,omitempty"`
	Amount      int      `yaml:"amount,omitempty"`
	Duration    Duration `yaml:"duration,omitempty"`
	Timeout     Duration `yaml:"timeout,omitempty"`
	RetryCount  int      `yaml:"retry_count,omitempty"`
	RetryDelay  Duration `yaml:"retry_delay,omitempty"`
	WhenVisible string   `yaml:"when_visible,omitempty"`
}

// WorkflowFile is the YAML schema for scripted workflows.
type WorkflowFile struct {
	Name  string         `yaml:"name"`
	Steps []WorkflowStep `yaml:"steps"`
}

// LoadWorkflow reads and decodes a workflow file.
func LoadWorkflow(path string) (*WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}

	var wf WorkflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}
	if len(wf.Steps) == 0 {
		return nil, fmt.Errorf("workflow %s has no steps", path)
	}
	return &wf, nil
}

// Build converts the file's steps into executable tasks.
func (w *WorkflowFile) Build() ([]*Task, error) {
	b := NewBuilder()
	for i, step := range w.Steps {
		name := step.Name
		if name == "" {
			name = fmt.Sprintf("step_%d", i+1)
		}

		switch step.Action {
		case "click_template":
			if step.Template == "" {
				return nil, fmt.Errorf("step %q: click_template requires a template", name)
			}
			b.ClickTemplate(name, step.Template)
		case "click_at":
			b.ClickAt(name, step.X, step.Y)
		case "type":
			b.TypeText(name, step.Text)
		case "hotkey":
			if len(step.Keys) == 0 {
				return nil, fmt.Errorf("step %q: hotkey requires keys", name)
			}
			b.Hotkey(name, step.Keys...)
		case "scroll":
			b.Scroll(name, step.Amount)
		case "wait":
			if step.Duration <= 0 {
				return nil, fmt.Errorf("step %q: wait requires a positive duration", name)
			}
			b.Wait(name, time.Duration(step.Duration))
		case "wait_for":
			if step.Template == "" {
				return nil, fmt.Errorf("step %q: wait_for requires a template", name)
			}
			b.WaitFor(name, step.Template, time.Duration(step.Timeout))
		default:
			return nil, fmt.Errorf("step %q: unknown action %q", name, step.Action)
		}

		if step.WhenVisible != "" {
			b.WhenVisible(step.WhenVisible)
		}
		if step.RetryCount > 0 || step.RetryDelay > 0 {
			b.WithRetry(step.RetryCount, time.Duration(step.RetryDelay))
		}
		// wait_for consumes its timeout as the poll budget; for every
		// other action it bounds the task.
		if step.Timeout > 0 && step.Action != "wait_for" {
			b.WithTimeout(time.Duration(step.Timeout))
		}
	}
	return b.Tasks()
}
