// File: cmd/history.go
// Description: The history command reads recent runs and workflows back out
// of the journal, newest first, as tables or JSON.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vantrigo/deskhand/internal/observability"
	"github.com/vantrigo/deskhand/internal/store"
)

func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent journaled runs and workflows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			jc := cfg.Journal()
			if !jc.Enabled {
				return errors.New("run journal is disabled; set journal.enabled and point DESKHAND_JOURNAL_DSN at a database")
			}

			journal, pool, err := openJournal(ctx, jc, logger)
			if err != nil {
				return err
			}
			if pool != nil {
				defer pool.Close()
			}

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := journal.RecentRuns(ctx, limit)
			if err != nil {
				return err
			}
			workflows, err := journal.RecentWorkflows(ctx, limit)
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				return writeJSON(out, struct {
					Runs      []store.RunRecord      `json:"runs"`
					Workflows []store.WorkflowRecord `json:"workflows"`
				}{runs, workflows})
			}

			if jc.DSN == "" {
				fmt.Fprintln(out, "note: the in-memory journal does not survive across invocations; set journal.dsn for durable history")
			}
			printRuns(out, runs)
			printWorkflows(out, workflows)
			return nil
		},
	}

	historyCmd.Flags().IntP("limit", "n", 0, fmt.Sprintf("records per section (default %d)", store.DefaultRecentLimit))
	historyCmd.Flags().Bool("json", false, "emit JSON instead of tables")
	return historyCmd
}

func printRuns(out io.Writer, runs []store.RunRecord) {
	fmt.Fprintln(out, "Recent runs:")
	if len(runs) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  RUN ID\tSTATUS\tSTEPS\tDURATION\tSTARTED\tGOAL")
	for _, r := range runs {
		fmt.Fprintf(w, "  %s\t%s\t%d\t%s\t%s\t%s\n",
			shortID(r.RunID), r.Status, r.StepCount,
			r.Duration.Round(time.Millisecond),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.Goal)
	}
	w.Flush()
}

func printWorkflows(out io.Writer, workflows []store.WorkflowRecord) {
	fmt.Fprintln(out, "\nRecent workflows:")
	if len(workflows) == 0 {
		fmt.Fprintln(out, "  (none)")
		return
	}
	w := tabwriter.NewWriter(out, 2, 4, 2, ' ', 0)
	fmt.Fprintln(w, "  NAME\tCOMPLETED\tFAILED\tSKIPPED\tDURATION\tSTARTED")
	for _, r := range workflows {
		fmt.Fprintf(w, "  %s\t%d/%d\t%d\t%d\t%s\t%s\n",
			r.Name, r.Completed, r.Total, r.Failed, r.Skipped,
			r.Duration.Round(time.Millisecond),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"))
	}
	w.Flush()
}

// shortID truncates a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
