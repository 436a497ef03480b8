// File: cmd/root_test.go
package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantrigo/deskhand/internal/config"
	"github.com/vantrigo/deskhand/internal/observability"
)

// probeConfig runs a throwaway subcommand and captures the configuration
// the root's PersistentPreRunE stored in the command context.
func probeConfig(t *testing.T, args ...string) (config.Interface, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)

	var got config.Interface
	root := NewRootCommand()
	root.AddCommand(&cobra.Command{
		Use: "probe",
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error
			got, err = configFromCommand(cmd)
			return err
		},
	})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(append(args, "probe"))
	err := root.ExecuteContext(context.Background())
	return got, err
}

func TestRootCmd_NoArgsShowsHelp(t *testing.T) {
	output, err := executeCommand(t)
	require.NoError(t, err)
	assert.Contains(t, output, "look-locate-act")
	assert.Contains(t, output, "Available Commands")
}

func TestRootCmd_VersionFlag(t *testing.T) {
	output, err := executeCommand(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, output, Version)
}

func TestVersionCmd(t *testing.T) {
	output, err := executeCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, output, "deskhand "+Version)
}

func TestVersionString_WithCommit(t *testing.T) {
	orig := Commit
	Commit = "abc1234"
	t.Cleanup(func() { Commit = orig })

	assert.Equal(t, Version+" (abc1234)", versionString())
}

func TestRootCmd_LoadsConfigIntoContext(t *testing.T) {
	cfgFile := createTempConfig(t, quietConfig+"agent:\n  max_steps: 3\n")

	cfg, err := probeConfig(t, "--config", cfgFile)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, 3, cfg.Agent().MaxSteps)
	// Untouched sections keep their defaults.
	assert.Equal(t, 0.8, cfg.Locator().Threshold)
}

func TestRootCmd_LogFlagOverridesConfig(t *testing.T) {
	cfgFile := createTempConfig(t, "logger:\n  level: info\n")

	cfg, err := probeConfig(t, "--config", cfgFile, "--log-level", "error")
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Logger().Level)
}

func TestRootCmd_RejectsInvalidConfig(t *testing.T) {
	cfgFile := createTempConfig(t, quietConfig+"locator:\n  threshold: 2.5\n")

	_, err := probeConfig(t, "--config", cfgFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "threshold")
}

func TestRootCmd_MissingExplicitConfigFails(t *testing.T) {
	_, err := probeConfig(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestExecute_ReturnsCommandError(t *testing.T) {
	t.Cleanup(observability.ResetForTest)

	orig := os.Args
	os.Args = []string{"deskhand", "--not-a-real-flag"}
	t.Cleanup(func() { os.Args = orig })

	err := Execute(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}
