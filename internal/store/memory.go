// File: internal/store/memory.go
package store

import (
	"context"
	"sync"
)

// DefaultMemoryLimit bounds the in-memory journal when no limit is given.
const DefaultMemoryLimit = 100

// Memory is the default journal backend. It keeps the most recent records
// in a bounded window and never touches disk.
type Memory struct {
	mu        sync.Mutex
	limit     int
	runs      []RunRecord
	workflows []WorkflowRecord
}

// NewMemory returns an in-memory journal retaining at most limit records
// per kind. A non-positive limit selects DefaultMemoryLimit.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{limit: limit}
}

// SaveRun appends the run, evicting the oldest when the window is full.
func (m *Memory) SaveRun(_ context.Context, rec RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.runs) == m.limit {
		copy(m.runs, m.runs[1:])
		m.runs = m.runs[:m.limit-1]
	}
	m.runs = append(m.runs, rec)
	return nil
}

// SaveWorkflow appends the workflow run, evicting the oldest when the
// window is full.
func (m *Memory) SaveWorkflow(_ context.Context, rec WorkflowRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.workflows) == m.limit {
		copy(m.workflows, m.workflows[1:])
		m.workflows = m.workflows[:m.limit-1]
	}
	m.workflows = append(m.workflows, rec)
	return nil
}

// RecentRuns returns up to limit run summaries, newest first. Steps are
// stripped so both backends return the same shape.
func (m *Memory) RecentRuns(_ context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.runs)
	if limit < n {
		n = limit
	}

	records := make([]RunRecord, 0, n)
	for i := len(m.runs) - 1; i >= len(m.runs)-n; i-- {
		rec := m.runs[i]
		rec.Steps = nil
		records = append(records, rec)
	}
	return records, nil
}

// RecentWorkflows returns up to limit workflow summaries, newest first.
func (m *Memory) RecentWorkflows(_ context.Context, limit int) ([]WorkflowRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	n := len(m.workflows)
	if limit < n {
		n = limit
	}

	records := make([]WorkflowRecord, 0, n)
	for i := len(m.workflows) - 1; i >= len(m.workflows)-n; i-- {
		records = append(records, m.workflows[i])
	}
	return records, nil
}
