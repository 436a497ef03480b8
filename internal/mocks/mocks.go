// File: internal/mocks/mocks.go
package mocks

import (
	"context"
	"image"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/vantrigo/deskhand/api/schemas"
	"github.com/vantrigo/deskhand/internal/config"
	"github.com/vantrigo/deskhand/internal/store"
)

// -- Capture Mock --

// MockCapture mocks the schemas.Capture interface.
type MockCapture struct {
	mock.Mock
}

var _ schemas.Capture = (*MockCapture)(nil)

func (m *MockCapture) Capture(ctx context.Context) (image.Image, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(image.Image), args.Error(1)
}

func (m *MockCapture) CaptureRegion(ctx context.Context, region schemas.Region) (image.Image, error) {
	args := m.Called(ctx, region)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(image.Image), args.Error(1)
}

// -- Input Mock --

// MockInput mocks the schemas.Input interface.
type MockInput struct {
	mock.Mock
}

var _ schemas.Input = (*MockInput)(nil)

func (m *MockInput) Click(ctx context.Context, x, y int, button schemas.MouseButton, clicks int) error {
	return m.Called(ctx, x, y, button, clicks).Error(0)
}

func (m *MockInput) MoveTo(ctx context.Context, x, y int) error {
	return m.Called(ctx, x, y).Error(0)
}

func (m *MockInput) TypeText(ctx context.Context, text string) error {
	return m.Called(ctx, text).Error(0)
}

// Hotkey records the chord as a single []string argument, so expectations
// match on the full key slice.
func (m *MockInput) Hotkey(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *MockInput) Scroll(ctx context.Context, amount int) error {
	return m.Called(ctx, amount).Error(0)
}

func (m *MockInput) Drag(ctx context.Context, fromX, fromY, toX, toY int, duration time.Duration) error {
	return m.Called(ctx, fromX, fromY, toX, toY, duration).Error(0)
}

// -- Window Context Mock --

// MockWindowContext mocks the schemas.WindowContext interface.
type MockWindowContext struct {
	mock.Mock
}

var _ schemas.WindowContext = (*MockWindowContext)(nil)

func (m *MockWindowContext) ActiveWindow(ctx context.Context) (schemas.WindowInfo, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return schemas.WindowInfo{}, args.Error(1)
	}
	return args.Get(0).(schemas.WindowInfo), args.Error(1)
}

// -- Decision Source Mock --

// MockDecisionSource mocks the schemas.DecisionSource interface.
type MockDecisionSource struct {
	mock.Mock
}

var _ schemas.DecisionSource = (*MockDecisionSource)(nil)

func (m *MockDecisionSource) Plan(ctx context.Context, frame image.Image, goal string, history []string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, frame, goal, history)
	return args.String(0), args.Error(1)
}

func (m *MockDecisionSource) Describe(ctx context.Context, frame image.Image, prompt string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	args := m.Called(ctx, frame, prompt)
	return args.String(0), args.Error(1)
}

// -- Store Mock --

// MockStore mocks the store.Store journal interface.
type MockStore struct {
	mock.Mock
}

var _ store.Store = (*MockStore)(nil)

func (m *MockStore) SaveRun(ctx context.Context, rec store.RunRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockStore) SaveWorkflow(ctx context.Context, rec store.WorkflowRecord) error {
	return m.Called(ctx, rec).Error(0)
}

func (m *MockStore) RecentRuns(ctx context.Context, limit int) ([]store.RunRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.RunRecord), args.Error(1)
}

func (m *MockStore) RecentWorkflows(ctx context.Context, limit int) ([]store.WorkflowRecord, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]store.WorkflowRecord), args.Error(1)
}

// -- Config Mock --

// MockConfig mocks config.Interface. Most tests are better served by
// config.NewDefaultConfig with fields tweaked in place; this exists for the
// rare test that must assert which sections a collaborator actually reads.
type MockConfig struct {
	mock.Mock
}

var _ config.Interface = (*MockConfig)(nil)

func (m *MockConfig) Logger() config.LoggerConfig {
	return m.Called().Get(0).(config.LoggerConfig)
}

func (m *MockConfig) Locator() config.LocatorConfig {
	return m.Called().Get(0).(config.LocatorConfig)
}

func (m *MockConfig) Scheduler() config.SchedulerConfig {
	return m.Called().Get(0).(config.SchedulerConfig)
}

func (m *MockConfig) Agent() config.AgentConfig {
	return m.Called().Get(0).(config.AgentConfig)
}

func (m *MockConfig) Providers() config.ProvidersConfig {
	return m.Called().Get(0).(config.ProvidersConfig)
}

func (m *MockConfig) Journal() config.JournalConfig {
	return m.Called().Get(0).(config.JournalConfig)
}

func (m *MockConfig) Browser() config.BrowserConfig {
	return m.Called().Get(0).(config.BrowserConfig)
}
