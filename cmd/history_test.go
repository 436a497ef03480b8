// File: cmd/history_test.go
package cmd

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vantrigo/deskhand/internal/store"
)

const journalConfig = quietConfig + "journal:\n  enabled: true\n  memory_limit: 5\n"

func TestHistoryCmd_JournalDisabled(t *testing.T) {
	cfgFile := createTempConfig(t, quietConfig)

	_, err := executeCommand(t, "--config", cfgFile, "history")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "journal is disabled")
}

func TestHistoryCmd_EmptyMemoryJournal(t *testing.T) {
	t.Setenv("DESKHAND_JOURNAL_DSN", "")
	cfgFile := createTempConfig(t, journalConfig)

	output, err := executeCommand(t, "--config", cfgFile, "history")
	require.NoError(t, err)
	assert.Contains(t, output, "Recent runs:")
	assert.Contains(t, output, "Recent workflows:")
	assert.Contains(t, output, "(none)")
	assert.Contains(t, output, "in-memory journal")
}

func TestHistoryCmd_JSON(t *testing.T) {
	t.Setenv("DESKHAND_JOURNAL_DSN", "")
	cfgFile := createTempConfig(t, journalConfig)

	output, err := executeCommand(t, "--config", cfgFile, "history", "--json")
	require.NoError(t, err)

	var payload struct {
		Runs      []store.RunRecord      `json:"runs"`
		Workflows []store.WorkflowRecord `json:"workflows"`
	}
	require.NoError(t, jsoniter.Unmarshal([]byte(output), &payload))
	assert.Empty(t, payload.Runs)
	assert.Empty(t, payload.Workflows)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "0f4c2a1b", shortID("0f4c2a1b-9d3e-4f5a-8b6c-7d8e9f0a1b2c"))
	assert.Equal(t, "tiny", shortID("tiny"))
}
