// File: internal/provider/gemini_test.go
package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiValidation(t *testing.T) {
	logger := setupTestLogger(t)

	t.Run("missing key", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "")
		_, err := NewGemini(Settings{APIKeyEnv: "GEMINI_API_KEY"}, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API key is required (set GEMINI_API_KEY)")
	})

	t.Run("constructs without network", func(t *testing.T) {
		client, err := NewGemini(Settings{APIKey: "test-key", Model: "gemini-2.5-flash"}, logger)
		require.NoError(t, err)
		require.NotNil(t, client)
		assert.Equal(t, "gemini-2.5-flash", client.visionModel)
	})
}
