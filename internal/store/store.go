// File: internal/store/store.go
// Description: Run journal. Finished agent runs and workflow summaries are
// flattened into records here and persisted by one of two backends: the
// bounded in-memory journal (the default) or Postgres when a DSN is
// configured.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/vantrigo/deskhand/internal/agent"
	"github.com/vantrigo/deskhand/internal/scheduler"
)

var jsonCodec = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultRecentLimit is the page size applied when RecentRuns or
// RecentWorkflows is called with a non-positive limit.
const DefaultRecentLimit = 20

// Store journals run and workflow outcomes. Implementations must be safe
// for concurrent use. The Recent reads return records newest first; run
// Steps are not hydrated on reads, StepCount carries the stored count.
type Store interface {
	SaveRun(ctx context.Context, rec RunRecord) error
	SaveWorkflow(ctx context.Context, rec WorkflowRecord) error
	RecentRuns(ctx context.Context, limit int) ([]RunRecord, error)
	RecentWorkflows(ctx context.Context, limit int) ([]WorkflowRecord, error)
}

// RunRecord is one journaled agent run.
type RunRecord struct {
	RunID        string        `json:"run_id"`
	Goal         string        `json:"goal"`
	Status       string        `json:"status"`
	Success      bool          `json:"success"`
	FinalMessage string        `json:"final_message,omitempty"`
	StepCount    int           `json:"step_count"`
	Duration     time.Duration `json:"duration"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Steps        []StepRecord  `json:"steps,omitempty"`
}

// StepRecord is one executed step inside a journaled run. Action holds the
// step's planned action encoded as JSON.
type StepRecord struct {
	Index          int             `json:"index"`
	Action         json.RawMessage `json:"action"`
	Success        bool            `json:"success"`
	Error          string          `json:"error,omitempty"`
	ScreenshotPath string          `json:"screenshot_path,omitempty"`
	Duration       time.Duration   `json:"duration"`
}

// WorkflowRecord is one journaled workflow run. Results holds the ordered
// task results encoded as a JSON array.
type WorkflowRecord struct {
	Name        string          `json:"name"`
	Total       int             `json:"total"`
	Completed   int             `json:"completed"`
	Failed      int             `json:"failed"`
	Skipped     int             `json:"skipped"`
	Cancelled   int             `json:"cancelled"`
	SuccessRate float64         `json:"success_rate"`
	Duration    time.Duration   `json:"duration"`
	Results     json.RawMessage `json:"results,omitempty"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// NewRunRecord flattens a finished run for the journal. Step actions are
// encoded once here so both backends persist the same bytes.
func NewRunRecord(res *agent.RunResult, startedAt, finishedAt time.Time) (RunRecord, error) {
	if res == nil {
		return RunRecord{}, errors.New("store: run result is nil")
	}

	steps := make([]StepRecord, len(res.Steps))
	for i, st := range res.Steps {
		action, err := jsonCodec.Marshal(st.Action)
		if err != nil {
			return RunRecord{}, fmt.Errorf("store: failed to encode action for step %d: %w", st.Step, err)
		}
		steps[i] = StepRecord{
			Index:          st.Step,
			Action:         action,
			Success:        st.Success,
			Error:          st.Error,
			ScreenshotPath: st.ScreenshotPath,
			Duration:       st.Duration,
		}
	}

	return RunRecord{
		RunID:        res.RunID,
		Goal:         res.Task,
		Status:       string(res.Status),
		Success:      res.Success,
		FinalMessage: res.FinalMessage,
		StepCount:    len(steps),
		Duration:     res.TotalDuration,
		StartedAt:    startedAt,
		FinishedAt:   finishedAt,
		Steps:        steps,
	}, nil
}

// NewWorkflowRecord flattens a workflow summary for the journal.
func NewWorkflowRecord(name string, summary scheduler.Summary, startedAt, finishedAt time.Time) (WorkflowRecord, error) {
	results, err := jsonCodec.Marshal(summary.Results)
	if err != nil {
		return WorkflowRecord{}, fmt.Errorf("store: failed to encode task results: %w", err)
	}

	return WorkflowRecord{
		Name:        name,
		Total:       summary.Total,
		Completed:   summary.Completed,
		Failed:      summary.Failed,
		Skipped:     summary.Skipped,
		Cancelled:   summary.Cancelled,
		SuccessRate: summary.SuccessRate,
		Duration:    summary.Duration,
		Results:     results,
		StartedAt:   startedAt,
		FinishedAt:  finishedAt,
	}, nil
}
