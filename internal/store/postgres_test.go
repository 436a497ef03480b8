// File: internal/store/postgres_test.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

// ArgumentMatcherFunc is a helper to create inline mock matchers.
type ArgumentMatcherFunc func(interface{}) bool

func (f ArgumentMatcherFunc) Match(v interface{}) bool {
	return f(v)
}

// anyArg is a matcher that accepts any value (used for arguments we can't predict exactly)
var anyArg = ArgumentMatcherFunc(func(v interface{}) bool {
	return true
})

// utcTime matches a timestamp only when it equals want and carries the UTC location.
func utcTime(want time.Time) ArgumentMatcherFunc {
	return func(v interface{}) bool {
		ts, ok := v.(time.Time)
		return ok && ts.Equal(want) && ts.Location() == time.UTC
	}
}

func sampleRunRecord() RunRecord {
	startedAt := time.Date(2026, 2, 10, 9, 30, 0, 0, time.UTC)
	return RunRecord{
		RunID:        uuid.NewString(),
		Goal:         "open the settings page",
		Status:       "succeeded",
		Success:      true,
		FinalMessage: "finished",
		StepCount:    2,
		Duration:     90 * time.Second,
		StartedAt:    startedAt,
		FinishedAt:   startedAt.Add(90 * time.Second),
		Steps: []StepRecord{
			{Index: 1, Action: json.RawMessage(`{"action":"click","x":10,"y":20}`), Success: true, Duration: time.Second},
			{Index: 2, Action: json.RawMessage(`{"action":"done"}`), Success: true, Duration: 500 * time.Millisecond},
		},
	}
}

func TestNewPostgres(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSaveRun(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist run and steps in one transaction without rollback errors", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		observedLogger := zap.New(observedZapCore)

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, observedLogger)
		require.NoError(t, err)

		rec := sampleRunRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(
				rec.RunID, rec.Goal, rec.Status, rec.Success, rec.FinalMessage,
				2, int64(90000),
				utcTime(rec.StartedAt), utcTime(rec.FinishedAt),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"agent_run_steps"}, stepCopyColumns).
			WillReturnResult(2)

		// Expect Commit AND the subsequent Rollback (which returns ErrTxClosed)
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, journal.SaveRun(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should convert timestamps to UTC before persisting", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		loc, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)

		rec := sampleRunRecord()
		rec.Steps = nil
		rec.StartedAt = time.Date(2026, 2, 10, 4, 30, 0, 0, loc)
		rec.FinishedAt = rec.StartedAt.Add(time.Minute)

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WithArgs(
				rec.RunID, rec.Goal, rec.Status, rec.Success, rec.FinalMessage,
				0, int64(90000),
				utcTime(rec.StartedAt), utcTime(rec.FinishedAt),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		require.NoError(t, journal.SaveRun(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should handle transaction begin failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		beginErr := errors.New("cannot begin tx")
		mockPool.ExpectBegin().WillReturnError(beginErr)

		err = journal.SaveRun(ctx, sampleRunRecord())
		require.Error(t, err)
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if the run insert fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		insertErr := errors.New("insert failed")
		rec := sampleRunRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WillReturnError(insertErr)
		mockPool.ExpectRollback()

		err = journal.SaveRun(ctx, rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, insertErr)
		assert.Contains(t, err.Error(), rec.RunID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should rollback if copying steps fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		copyErr := errors.New("copy from failed")
		rec := sampleRunRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"agent_run_steps"}, stepCopyColumns).
			WillReturnError(copyErr)
		mockPool.ExpectRollback()

		err = journal.SaveRun(ctx, rec)
		require.Error(t, err)
		assert.ErrorIs(t, err, copyErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail when the copied step count does not match", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		rec := sampleRunRecord()

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertRun)).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCopyFrom(pgx.Identifier{"agent_run_steps"}, stepCopyColumns).
			WillReturnResult(1)
		mockPool.ExpectRollback()

		err = journal.SaveRun(ctx, rec)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "mismatch in copied step count")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestStepCopyRows(t *testing.T) {
	t.Run("should build rows in column order with millisecond durations", func(t *testing.T) {
		steps := []StepRecord{
			{
				Index:          1,
				Action:         json.RawMessage(`{"action":"click","x":10,"y":20}`),
				Success:        true,
				ScreenshotPath: "/tmp/step_1.png",
				Duration:       1500 * time.Millisecond,
			},
		}

		rows := stepCopyRows("run-1", steps)
		require.Len(t, rows, 1)
		assert.Equal(t, []any{
			"run-1", 1, json.RawMessage(`{"action":"click","x":10,"y":20}`),
			true, "", "/tmp/step_1.png", int64(1500),
		}, rows[0])
	})

	t.Run("should convert JSON 'null' actions to empty object '{}'", func(t *testing.T) {
		steps := []StepRecord{
			{Index: 1, Action: json.RawMessage("null")},
			{Index: 2},
		}

		rows := stepCopyRows("run-2", steps)
		require.Len(t, rows, 2)
		assert.Equal(t, json.RawMessage("{}"), rows[0][2])
		assert.Equal(t, json.RawMessage("{}"), rows[1][2])
	})
}

func TestSaveWorkflow(t *testing.T) {
	ctx := context.Background()

	t.Run("should persist the workflow row", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		startedAt := time.Date(2026, 2, 11, 8, 0, 0, 0, time.UTC)
		rec := WorkflowRecord{
			Name:        "morning-checks",
			Total:       3,
			Completed:   2,
			Failed:      1,
			SuccessRate: 2.0 / 3.0,
			Duration:    42 * time.Second,
			Results:     json.RawMessage(`[{"task_name":"open","status":"completed"}]`),
			StartedAt:   startedAt,
			FinishedAt:  startedAt.Add(42 * time.Second),
		}

		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertWorkflow)).
			WithArgs(
				rec.Name, rec.Total, rec.Completed, rec.Failed, rec.Skipped, rec.Cancelled,
				rec.SuccessRate, int64(42000), rec.Results,
				utcTime(rec.StartedAt), utcTime(rec.FinishedAt),
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, journal.SaveWorkflow(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should convert empty results to an empty JSON array", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		rec := WorkflowRecord{Name: "empty-run"}

		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertWorkflow)).
			WithArgs(
				rec.Name, 0, 0, 0, 0, 0,
				0.0, int64(0), json.RawMessage("[]"),
				anyArg, anyArg,
			).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, journal.SaveWorkflow(ctx, rec))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate insert failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		insertErr := errors.New("insert failed")
		mockPool.ExpectExec(flexibleSQLMatcher(sqlInsertWorkflow)).
			WillReturnError(insertErr)

		err = journal.SaveWorkflow(ctx, WorkflowRecord{Name: "doomed"})
		require.Error(t, err)
		assert.ErrorIs(t, err, insertErr)
		assert.Contains(t, err.Error(), "doomed")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecentRuns(t *testing.T) {
	ctx := context.Background()

	runColumns := []string{"run_id", "goal", "status", "success", "final_message", "step_count", "duration_ms", "started_at", "finished_at"}

	t.Run("should retrieve run summaries newest first", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		now := time.Now().UTC()
		rows := pgxmock.NewRows(runColumns).
			AddRow("run-2", "close the dialog", "failed", false, "step budget exhausted", 5, int64(12000), now, now.Add(12*time.Second)).
			AddRow("run-1", "open settings", "succeeded", true, "finished", 3, int64(9000), now.Add(-time.Hour), now.Add(-time.Hour+9*time.Second))

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentRuns)).
			WithArgs(2).
			WillReturnRows(rows)

		records, err := journal.RecentRuns(ctx, 2)
		require.NoError(t, err)
		require.Len(t, records, 2)

		assert.Equal(t, "run-2", records[0].RunID)
		assert.Equal(t, "failed", records[0].Status)
		assert.Equal(t, 5, records[0].StepCount)
		assert.Equal(t, 12*time.Second, records[0].Duration)
		assert.True(t, records[0].StartedAt.Equal(now))
		assert.Nil(t, records[0].Steps)

		assert.Equal(t, "run-1", records[1].RunID)
		assert.True(t, records[1].Success)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should clamp a non-positive limit to the default", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentRuns)).
			WithArgs(DefaultRecentLimit).
			WillReturnRows(pgxmock.NewRows(runColumns))

		records, err := journal.RecentRuns(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, records)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should propagate query failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		queryErr := errors.New("connection reset")
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentRuns)).
			WithArgs(5).
			WillReturnError(queryErr)

		_, err = journal.RecentRuns(ctx, 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, queryErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestRecentWorkflows(t *testing.T) {
	ctx := context.Background()

	workflowColumns := []string{"name", "total", "completed", "failed", "skipped", "cancelled", "success_rate", "duration_ms", "results", "started_at", "finished_at"}

	t.Run("should retrieve workflow summaries with decoded results", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		journal, err := NewPostgres(context.Background(), mockPool, zap.NewNop())
		require.NoError(t, err)

		now := time.Now().UTC()
		resultsJSON := `[{"task_name":"open","status":"completed","attempts":1}]`
		rows := pgxmock.NewRows(workflowColumns).
			AddRow("morning-checks", 3, 2, 1, 0, 0, 2.0/3.0, int64(42000), []byte(resultsJSON), now, now.Add(42*time.Second))

		mockPool.ExpectQuery(flexibleSQLMatcher(sqlRecentWorkflows)).
			WithArgs(1).
			WillReturnRows(rows)

		records, err := journal.RecentWorkflows(ctx, 1)
		require.NoError(t, err)
		require.Len(t, records, 1)

		assert.Equal(t, "morning-checks", records[0].Name)
		assert.Equal(t, 3, records[0].Total)
		assert.Equal(t, 42*time.Second, records[0].Duration)
		assert.JSONEq(t, resultsJSON, string(records[0].Results))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
