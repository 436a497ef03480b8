// File: cmd/components.go
// Description: Shared collaborator wiring for subcommands. Builds the live
// backend, the automation handle over it, and the run journal from
// configuration, and tears everything down in one place.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/internal/agent"
	"github.com/vantrigo/deskhand/internal/automation"
	"github.com/vantrigo/deskhand/internal/browser"
	"github.com/vantrigo/deskhand/internal/config"
	"github.com/vantrigo/deskhand/internal/locator"
	"github.com/vantrigo/deskhand/internal/provider"
	"github.com/vantrigo/deskhand/internal/scheduler"
	"github.com/vantrigo/deskhand/internal/store"
)

// backendBrowser is the bundled CDP backend. Desktop capture and input
// remain external implementations and have no name here yet.
const backendBrowser = "browser"

// journalSaveTimeout bounds journal writes after a run finishes. The write
// uses its own context so a cancelled run still gets recorded.
const journalSaveTimeout = 5 * time.Second

// components holds the collaborators a subcommand wired up for one run.
type components struct {
	Backend *browser.Driver
	Handle  *automation.Handle
	Journal store.Store

	dbPool *pgxpool.Pool
	logger *zap.Logger
}

// componentOptions selects which collaborators initializeComponents builds.
type componentOptions struct {
	// Backend names the capture/input backend to start; empty starts none.
	Backend string
	// Journal opens the run journal when it is enabled in configuration.
	Journal bool
	// URL, when set, is opened by the browser backend after launch.
	URL string
	// TemplateDir resolves relative template paths for the handle.
	TemplateDir string
}

// backendOptions collects the backend selection flags. Commands that drive
// a live screen require a backend name.
func backendOptions(cmd *cobra.Command) (componentOptions, error) {
	var opts componentOptions
	opts.Backend, _ = cmd.Flags().GetString("backend")
	opts.URL, _ = cmd.Flags().GetString("url")
	opts.TemplateDir, _ = cmd.Flags().GetString("template-dir")
	if opts.Backend == "" {
		return opts, errors.New("a live backend is required (--backend)")
	}
	return opts, nil
}

// initializeComponents wires the requested collaborators. On error the
// partially built set is still returned so the caller can shut down
// whatever came up before the failure.
func initializeComponents(ctx context.Context, cfg config.Interface, opts componentOptions, logger *zap.Logger) (*components, error) {
	comps := &components{logger: logger}

	switch opts.Backend {
	case "":
		// No live backend requested.
	case backendBrowser:
		drv, err := browser.New(ctx, cfg.Browser(), logger)
		if err != nil {
			return comps, fmt.Errorf("failed to start browser backend: %w", err)
		}
		comps.Backend = drv

		if opts.URL != "" {
			if err := drv.Navigate(ctx, opts.URL); err != nil {
				return comps, err
			}
		}

		loc, err := newLocator(cfg, logger)
		if err != nil {
			return comps, err
		}
		handle, err := automation.New(drv, drv, loc,
			automation.WithLogger(logger),
			automation.WithWindowContext(drv),
			automation.WithTemplateDir(opts.TemplateDir),
		)
		if err != nil {
			return comps, err
		}
		comps.Handle = handle
	default:
		return comps, fmt.Errorf("unsupported backend %q (supported: %s)", opts.Backend, backendBrowser)
	}

	if opts.Journal && cfg.Journal().Enabled {
		journal, pool, err := openJournal(ctx, cfg.Journal(), logger)
		if err != nil {
			return comps, fmt.Errorf("failed to open run journal: %w", err)
		}
		comps.Journal = journal
		comps.dbPool = pool
	}

	return comps, nil
}

// Shutdown releases every live collaborator. Safe on a partially built set.
func (c *components) Shutdown() {
	if c.Backend != nil {
		if err := c.Backend.Close(); err != nil {
			c.logger.Warn("Error during backend shutdown", zap.Error(err))
		}
	}
	if c.dbPool != nil {
		c.dbPool.Close()
	}
}

// newLocator builds the template-matching engine from configuration.
func newLocator(cfg config.Interface, logger *zap.Logger) (*locator.Locator, error) {
	lc := cfg.Locator()
	return locator.New(locator.NewCrossCorrelation(locator.MetricCCoeffNormed),
		locator.WithLogger(logger),
		locator.WithDefaultThreshold(lc.Threshold),
		locator.WithDefaultMaxResults(lc.MaxResults),
		locator.WithDefaultScales(lc.Scales),
		locator.WithPollInterval(lc.PollInterval),
	)
}

// openJournal opens the journal backend the configuration selects: Postgres
// when a DSN is present, the bounded in-memory journal otherwise.
func openJournal(ctx context.Context, jc config.JournalConfig, logger *zap.Logger) (store.Store, *pgxpool.Pool, error) {
	if jc.DSN == "" {
		logger.Debug("Run journal using in-memory backend", zap.Int("limit", jc.MemoryLimit))
		return store.NewMemory(jc.MemoryLimit), nil, nil
	}

	pool, err := pgxpool.New(ctx, jc.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to journal database: %w", err)
	}
	st, err := store.NewPostgres(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return st, pool, nil
}

// journalRun records a finished agent run. Journal failures are warnings;
// the run itself already happened.
func journalRun(st store.Store, res *agent.RunResult, startedAt time.Time, logger *zap.Logger) {
	if st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalSaveTimeout)
	defer cancel()

	rec, err := store.NewRunRecord(res, startedAt, time.Now())
	if err != nil {
		logger.Warn("Failed to build run record", zap.Error(err))
		return
	}
	if err := st.SaveRun(ctx, rec); err != nil {
		logger.Warn("Failed to journal run", zap.String("run_id", res.RunID), zap.Error(err))
	}
}

// journalWorkflow records a finished workflow run.
func journalWorkflow(st store.Store, name string, summary scheduler.Summary, startedAt time.Time, logger *zap.Logger) {
	if st == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), journalSaveTimeout)
	defer cancel()

	rec, err := store.NewWorkflowRecord(name, summary, startedAt, time.Now())
	if err != nil {
		logger.Warn("Failed to build workflow record", zap.Error(err))
		return
	}
	if err := st.SaveWorkflow(ctx, rec); err != nil {
		logger.Warn("Failed to journal workflow", zap.String("workflow", name), zap.Error(err))
	}
}

// providerSettings maps the configured connection settings for name onto
// the provider package's settings type. Aliases resolve to their canonical
// entry so "claude" picks up the "anthropic" section.
func providerSettings(cfg config.Interface, reg *provider.Registry, name string) provider.Settings {
	canonical, ok := reg.Resolve(name)
	if !ok {
		canonical = strings.ToLower(name)
	}
	pc, ok := cfg.Providers().Settings[canonical]
	if !ok {
		return provider.Settings{}
	}
	return provider.Settings{
		APIKey:      pc.APIKey,
		APIKeyEnv:   pc.APIKeyEnv,
		BaseURL:     pc.BaseURL,
		Model:       pc.Model,
		VisionModel: pc.VisionModel,
		Timeout:     pc.Timeout,
	}
}
