// File: cmd/root.go
// Description: Root command wiring. Every invocation builds a fresh command
// tree; the persistent hook loads configuration with flag > environment >
// file > default precedence, initializes the global logger, and parks the
// validated config in the command context for subcommands to pick up.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/internal/config"
	"github.com/vantrigo/deskhand/internal/observability"
)

// ctxKey scopes context values owned by this package.
type ctxKey int

// configKey carries the validated configuration from the root command's
// PersistentPreRunE to subcommand RunE functions.
const configKey ctxKey = iota

// NewRootCommand builds the full command tree. Each call returns an
// independent instance so runs never share flag or viper state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "deskhand",
		Short: "Deskhand drives GUIs by looking at the screen and acting on what it sees",
		Long: `Deskhand automates desktop and browser interfaces through the
look-locate-act loop: capture a frame, find the target template, then click,
type, or scroll. Workflow files script the loop step by step; the agent
command hands the step decisions to a vision-capable model instead.`,
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				// A minimal logger so the failure is visible somewhere.
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "deskhand"})
				return fmt.Errorf("failed to load config: %w", err)
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Info("Starting deskhand", zap.String("version", Version))

			// Subcommands read the config back through configFromCommand.
			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default ./config.yaml, then ~/.deskhand/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file path override")
	rootCmd.PersistentFlags().String("backend", backendBrowser, "capture/input backend to drive")
	rootCmd.PersistentFlags().String("url", "", "page the browser backend opens after launch")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newAgentCmd())
	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newFindCmd())
	rootCmd.AddCommand(newProvidersCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// initializeConfig points v at the config file sources and binds the
// environment and the logging override flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if dir, err := config.DefaultConfigDir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("DESKHAND")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unset flags fall through to environment, file, then defaults.
	if err := v.BindPFlag("logger.level", cmd.Flags().Lookup("log-level")); err != nil {
		return err
	}
	if err := v.BindPFlag("logger.log_file", cmd.Flags().Lookup("log-file")); err != nil {
		return err
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file anywhere on the search path; defaults apply.
	}
	return nil
}

// configFromCommand retrieves the configuration stored by the root
// command's PersistentPreRunE.
func configFromCommand(cmd *cobra.Command) (config.Interface, error) {
	cfg, ok := cmd.Context().Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, errors.New("configuration missing from command context")
	}
	return cfg, nil
}

// Execute builds the command tree and runs it under ctx. The caller owns
// the process exit code; errors are returned rather than exiting here.
func Execute(ctx context.Context) error {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		observability.GetLogger().Error("Command execution failed", zap.Error(err))
		return err
	}
	return nil
}
