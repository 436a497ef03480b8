// File: cmd/cmd_test.go
// Description: Shared helpers for command tests plus argument and flag
// validation cases that never need a config or a backend.
package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantrigo/deskhand/internal/observability"
)

// quietConfig keeps full-execution tests from spamming the console.
const quietConfig = "logger:\n  level: error\n"

// executeCommand runs a fresh command tree end to end, capturing combined
// output. The global logger is reset afterwards so each test initializes
// its own.
func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(observability.ResetForTest)

	root := NewRootCommand()
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if args == nil {
		// Never fall back to os.Args inside `go test`.
		args = []string{}
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// executeCommandNoPreRun disables config loading for tests that only
// exercise argument and flag validation.
func executeCommandNoPreRun(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := NewRootCommand()
	root.PersistentPreRunE = nil
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return buf.String(), err
}

// createTempConfig writes a config file the test can point --config at.
func createTempConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAgentCmd_RequiresGoal(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "agent")
	require.Error(t, err)
	assert.Contains(t, output, "accepts 1 arg(s), received 0")
}

func TestRunCmd_RequiresWorkflowFile(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "run")
	require.Error(t, err)
	assert.Contains(t, output, "accepts 1 arg(s), received 0")
}

func TestFindCmd_RequiresTemplateFlag(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "find")
	require.Error(t, err)
	assert.Contains(t, output, `required flag(s) "template" not set`)
}

func TestFindCmd_AllAndMultiscaleConflict(t *testing.T) {
	output, err := executeCommandNoPreRun(t, "find", "--template", "x.png", "--all", "--multiscale")
	require.Error(t, err)
	assert.Contains(t, output, "none of the others can be")
}

func TestHistoryCmd_RejectsPositionalArgs(t *testing.T) {
	_, err := executeCommandNoPreRun(t, "history", "extra")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown command")
}
