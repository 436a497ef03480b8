// File: internal/store/postgres.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// DBPool abstracts pgxpool.Pool so the journal can be mocked in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

const (
	sqlInsertRun = `
        INSERT INTO agent_runs (run_id, goal, status, success, final_message, step_count, duration_ms, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
    `
	sqlInsertWorkflow = `
        INSERT INTO workflow_runs (name, total, completed, failed, skipped, cancelled, success_rate, duration_ms, results, started_at, finished_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
    `
	sqlRecentRuns = `
        SELECT run_id, goal, status, success, final_message, step_count, duration_ms, started_at, finished_at
        FROM agent_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
	sqlRecentWorkflows = `
        SELECT name, total, completed, failed, skipped, cancelled, success_rate, duration_ms, results, started_at, finished_at
        FROM workflow_runs
        ORDER BY started_at DESC
        LIMIT $1;
    `
)

var stepCopyColumns = []string{"run_id", "step_index", "action", "success", "error", "screenshot_path", "duration_ms"}

// Postgres journals runs durably through a pgx pool. The pool's lifecycle
// belongs to the caller.
type Postgres struct {
	pool DBPool
	log  *zap.Logger
}

// NewPostgres verifies the connection and returns the journal.
func NewPostgres(ctx context.Context, pool DBPool, logger *zap.Logger) (*Postgres, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Postgres{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

// SaveRun writes the run row and its step rows in one transaction.
func (s *Postgres) SaveRun(ctx context.Context, rec RunRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// Rollback after a successful commit reports pgx.ErrTxClosed, possibly wrapped.
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	if _, err := tx.Exec(ctx, sqlInsertRun,
		rec.RunID, rec.Goal, rec.Status, rec.Success, rec.FinalMessage,
		len(rec.Steps), rec.Duration.Milliseconds(),
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert run %s: %w", rec.RunID, err)
	}

	if len(rec.Steps) > 0 {
		if err := s.persistSteps(ctx, tx, rec.RunID, rec.Steps); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Postgres) persistSteps(ctx context.Context, tx pgx.Tx, runID string, steps []StepRecord) error {
	copyCount, err := tx.CopyFrom(
		ctx,
		pgx.Identifier{"agent_run_steps"},
		stepCopyColumns,
		pgx.CopyFromRows(stepCopyRows(runID, steps)),
	)
	if err != nil {
		return fmt.Errorf("failed to copy run steps: %w", err)
	}
	if int(copyCount) != len(steps) {
		return fmt.Errorf("mismatch in copied step count: expected %d, got %d", len(steps), copyCount)
	}
	return nil
}

// stepCopyRows builds the CopyFrom rows in stepCopyColumns order.
func stepCopyRows(runID string, steps []StepRecord) [][]any {
	rows := make([][]any, len(steps))
	for i, st := range steps {
		action := st.Action
		if len(action) == 0 || string(action) == "null" {
			action = json.RawMessage("{}") // Ensure we don't insert a null or empty string.
		}
		rows[i] = []any{
			runID, st.Index, action, st.Success, st.Error,
			st.ScreenshotPath, st.Duration.Milliseconds(),
		}
	}
	return rows
}

// SaveWorkflow writes the workflow row. A single statement, so no
// transaction is needed.
func (s *Postgres) SaveWorkflow(ctx context.Context, rec WorkflowRecord) error {
	results := rec.Results
	if len(results) == 0 || string(results) == "null" {
		results = json.RawMessage("[]")
	}

	if _, err := s.pool.Exec(ctx, sqlInsertWorkflow,
		rec.Name, rec.Total, rec.Completed, rec.Failed, rec.Skipped, rec.Cancelled,
		rec.SuccessRate, rec.Duration.Milliseconds(), results,
		rec.StartedAt.UTC(), rec.FinishedAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert workflow run %q: %w", rec.Name, err)
	}
	return nil
}

// RecentRuns returns up to limit run summaries, newest first. A
// non-positive limit selects DefaultRecentLimit.
func (s *Postgres) RecentRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		var rec RunRecord
		var durationMS int64

		if err := rows.Scan(
			&rec.RunID, &rec.Goal, &rec.Status, &rec.Success, &rec.FinalMessage,
			&rec.StepCount, &durationMS, &rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}

		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}

// RecentWorkflows returns up to limit workflow summaries, newest first. A
// non-positive limit selects DefaultRecentLimit.
func (s *Postgres) RecentWorkflows(ctx context.Context, limit int) ([]WorkflowRecord, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}

	rows, err := s.pool.Query(ctx, sqlRecentWorkflows, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent workflows: %w", err)
	}
	defer rows.Close()

	var records []WorkflowRecord
	for rows.Next() {
		var rec WorkflowRecord
		var durationMS int64

		if err := rows.Scan(
			&rec.Name, &rec.Total, &rec.Completed, &rec.Failed, &rec.Skipped,
			&rec.Cancelled, &rec.SuccessRate, &durationMS, &rec.Results,
			&rec.StartedAt, &rec.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan workflow row: %w", err)
		}

		rec.Duration = time.Duration(durationMS) * time.Millisecond
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	return records, nil
}
