// File: internal/provider/helper_test.go
package provider

import (
	"image"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// setupTestLogger creates a zap logger whose output is swallowed by an
// observer.
func setupTestLogger(t *testing.T) *zap.Logger {
	t.Helper()
	core, _ := observer.New(zap.DebugLevel)
	return zap.New(core)
}

// testFrame returns a small frame for vision payloads.
func testFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 8, 6))
}

// testSettings points a provider at url with a literal key and short
// timeout.
func testSettings(url string) Settings {
	return Settings{
		APIKey:  "test-api-key",
		BaseURL: url,
		Model:   "test-model",
		Timeout: 5 * time.Second,
	}
}
