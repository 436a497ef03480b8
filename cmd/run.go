// File: cmd/run.go
// Description: The run command executes a YAML workflow file against the
// live backend. The workflow is parsed and validated up front so a bad file
// fails before any backend launches.
package cmd

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/internal/config"
	"github.com/vantrigo/deskhand/internal/observability"
	"github.com/vantrigo/deskhand/internal/scheduler"
)

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a scripted workflow file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}

			wf, err := scheduler.LoadWorkflow(args[0])
			if err != nil {
				return err
			}
			tasks, err := wf.Build()
			if err != nil {
				return err
			}
			applyTaskDefaults(tasks, cfg.Scheduler())

			name := wf.Name
			if name == "" {
				name = args[0]
			}

			opts, err := backendOptions(cmd)
			if err != nil {
				return err
			}
			opts.Journal = true

			stopOnError := cfg.Scheduler().StopOnError
			if cmd.Flags().Changed("stop-on-error") {
				stopOnError, _ = cmd.Flags().GetBool("stop-on-error")
			}

			logger.Info("Starting workflow",
				zap.String("workflow", name),
				zap.Int("tasks", len(tasks)),
				zap.Bool("stop_on_error", stopOnError))

			comps, err := initializeComponents(ctx, cfg, opts, logger)
			if err != nil {
				if comps != nil {
					comps.Shutdown()
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer comps.Shutdown()

			sched, err := scheduler.New(comps.Handle,
				scheduler.WithLogger(logger),
				scheduler.WithStopOnError(stopOnError),
			)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				if err := sched.Add(task); err != nil {
					return err
				}
			}

			startedAt := time.Now()
			summary, err := sched.Run(ctx)
			if err != nil {
				return err
			}
			journalWorkflow(comps.Journal, name, *summary, startedAt, logger)
			printSummary(out, name, summary)

			if summary.Cancelled > 0 {
				return errors.New("workflow aborted by user signal")
			}
			if summary.Failed > 0 {
				return fmt.Errorf("workflow %q: %d of %d tasks failed", name, summary.Failed, summary.Total)
			}
			return nil
		},
	}

	runCmd.Flags().Bool("stop-on-error", false, "halt the workflow on the first failed task")
	runCmd.Flags().String("template-dir", "", "directory resolving relative template paths")
	return runCmd
}

// applyTaskDefaults fills per-task retry and timeout settings the workflow
// file left unset from the scheduler configuration.
func applyTaskDefaults(tasks []*scheduler.Task, sc config.SchedulerConfig) {
	for _, task := range tasks {
		if task.RetryCount > 0 && task.RetryDelay <= 0 {
			task.RetryDelay = sc.DefaultRetryDelay
		}
		if task.Timeout <= 0 && sc.DefaultTimeout > 0 {
			task.Timeout = sc.DefaultTimeout
		}
	}
}

// printSummary writes per-task lines and the aggregate outcome.
func printSummary(out io.Writer, name string, summary *scheduler.Summary) {
	fmt.Fprintf(out, "\nWorkflow %q finished\n", name)
	for _, res := range summary.Results {
		line := fmt.Sprintf("  %-9s %s", res.Status, res.TaskName)
		if res.Attempts > 1 {
			line += fmt.Sprintf(" (attempts: %d)", res.Attempts)
		}
		if res.Error != "" {
			line += " - " + res.Error
		}
		fmt.Fprintln(out, line)
	}
	fmt.Fprintf(out, "\n%d/%d tasks completed (%.0f%%) in %s\n",
		summary.Completed, summary.Total, summary.SuccessRate*100,
		summary.Duration.Round(time.Millisecond))
}
