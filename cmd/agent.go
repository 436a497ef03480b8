// File: cmd/agent.go
// Description: The agent command hands one natural-language goal to the
// configured decision provider and drives the perception-decision-action
// loop until the provider declares done or the step budget runs out.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/internal/agent"
	"github.com/vantrigo/deskhand/internal/observability"
	"github.com/vantrigo/deskhand/internal/planner"
	"github.com/vantrigo/deskhand/internal/provider"
)

func newAgentCmd() *cobra.Command {
	agentCmd := &cobra.Command{
		Use:   "agent \"goal\"",
		Short: "Run a natural-language goal through the autonomous loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			out := cmd.OutOrStdout()

			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			goal := args[0]

			// Resolve the decision provider before anything expensive runs.
			reg := provider.NewRegistry()
			name := cfg.Providers().Active
			if flagName, _ := cmd.Flags().GetString("provider"); flagName != "" {
				name = flagName
			}
			source, err := reg.New(name, providerSettings(cfg, reg, name), logger)
			if err != nil {
				return err
			}

			opts, err := backendOptions(cmd)
			if err != nil {
				return err
			}
			opts.Journal = true

			agentCfg := agent.Config{
				MaxSteps:      cfg.Agent().MaxSteps,
				StepDelay:     cfg.Agent().StepDelay,
				HistoryWindow: cfg.Agent().HistoryWindow,
				ScreenshotDir: cfg.Agent().ScreenshotDir,
			}
			if cmd.Flags().Changed("max-steps") {
				agentCfg.MaxSteps, _ = cmd.Flags().GetInt("max-steps")
			}
			if cmd.Flags().Changed("screenshot-dir") {
				agentCfg.ScreenshotDir, _ = cmd.Flags().GetString("screenshot-dir")
			}

			logger.Info("Starting agent run",
				zap.String("goal", goal),
				zap.String("provider", name),
				zap.String("backend", opts.Backend),
				zap.Int("max_steps", agentCfg.MaxSteps))

			comps, err := initializeComponents(ctx, cfg, opts, logger)
			if err != nil {
				if comps != nil {
					comps.Shutdown()
				}
				return fmt.Errorf("failed to initialize components: %w", err)
			}
			defer comps.Shutdown()

			runner, err := agent.New(comps.Handle, source, agentCfg, agent.WithLogger(logger))
			if err != nil {
				return err
			}
			runner.OnStep(func(step int, action planner.Action) {
				fmt.Fprintf(out, "  [%d] %s\n", step, action.Summary())
			})

			startedAt := time.Now()
			res, runErr := runner.Run(ctx, goal)
			if res != nil {
				journalRun(comps.Journal, res, startedAt, logger)
				printRunResult(out, res)
			}
			if runErr != nil {
				if errors.Is(runErr, context.Canceled) {
					return errors.New("run aborted by user signal")
				}
				return runErr
			}
			return runOutcomeErr(res)
		},
	}

	agentCmd.Flags().StringP("provider", "p", "", "decision provider override (see `deskhand providers`)")
	agentCmd.Flags().Int("max-steps", 0, "step budget override")
	agentCmd.Flags().String("screenshot-dir", "", "persist one frame per step under this directory")
	agentCmd.Flags().String("template-dir", "", "directory resolving relative template paths")
	return agentCmd
}

// printRunResult writes the terminal run summary for humans.
func printRunResult(out io.Writer, res *agent.RunResult) {
	fmt.Fprintf(out, "\nRun %s finished: %s\n", res.RunID, res.Status)
	fmt.Fprintf(out, "  goal:     %s\n", res.Task)
	fmt.Fprintf(out, "  steps:    %d\n", len(res.Steps))
	fmt.Fprintf(out, "  duration: %s\n", res.TotalDuration.Round(time.Millisecond))
	fmt.Fprintf(out, "  outcome:  %s\n", res.FinalMessage)
}

// runOutcomeErr maps the terminal run status onto the process outcome.
func runOutcomeErr(res *agent.RunResult) error {
	if res == nil {
		return nil
	}
	switch res.Status {
	case agent.StatusSucceeded:
		return nil
	case agent.StatusCancelled:
		return errors.New("run aborted by user signal")
	default:
		return fmt.Errorf("run %s: %s", res.Status, res.FinalMessage)
	}
}
