// File: internal/automation/handle.go
// Description: The shared automation handle. Bundles the capture and input
// collaborators with the locator into one surface that scheduler tasks,
// the agent loop, and scripted callers all drive. The handle owns template
// caching and region offset arithmetic; it never owns policy (retries,
// step budgets) - that stays with its callers.

package automation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/api/schemas"
	"github.com/vantrigo/deskhand/internal/locator"
)

// ErrTargetNotFound reports a template that loaded fine but is not
// currently visible on screen. Callers branch on it to distinguish "not
// yet there" from real failures.
var ErrTargetNotFound = errors.New("automation: target not found on screen")

// Handle is the automation facade handed to tasks and the agent loop.
type Handle struct {
	capture schemas.Capture
	input   schemas.Input
	window  schemas.WindowContext
	loc     *locator.Locator
	logger  *zap.Logger

	templateDir string

	mu        sync.RWMutex
	templates map[string]*locator.Template
}

// Option configures a Handle at construction.
type Option func(*Handle)

// WithLogger attaches a logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handle) { h.logger = logger }
}

// WithWindowContext attaches the optional window-context collaborator.
func WithWindowContext(w schemas.WindowContext) Option {
	return func(h *Handle) { h.window = w }
}

// WithTemplateDir resolves relative template paths against dir.
func WithTemplateDir(dir string) Option {
	return func(h *Handle) { h.templateDir = dir }
}

// New builds a Handle over the given collaborators. Capture, input, and
// the locator are mandatory.
func New(capture schemas.Capture, input schemas.Input, loc *locator.Locator, opts ...Option) (*Handle, error) {
	if capture == nil {
		return nil, errors.New("automation: capture collaborator is required")
	}
	if input == nil {
		return nil, errors.New("automation: input collaborator is required")
	}
	if loc == nil {
		return nil, errors.New("automation: locator is required")
	}

	h := &Handle{
		capture:   capture,
		input:     input,
		loc:       loc,
		logger:    zap.NewNop(),
		templates: make(map[string]*locator.Template),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = h.logger.Named("automation")
	return h, nil
}

// findConfig collects per-call search adjustments.
type findConfig struct {
	region     *schemas.Region
	multiscale bool
	match      []locator.MatchOption
}

// FindOption adjusts a single template search.
type FindOption func(*findConfig)

// WithRegion restricts the search to a sub-region of the screen. Result
// coordinates remain in full-screen space.
func WithRegion(r schemas.Region) FindOption {
	return func(c *findConfig) { c.region = &r }
}

// WithMultiscale searches the template at multiple scales.
func WithMultiscale() FindOption {
	return func(c *findConfig) { c.multiscale = true }
}

// WithThreshold overrides the confidence floor for this search.
func WithThreshold(t float64) FindOption {
	return func(c *findConfig) { c.match = append(c.match, locator.WithThreshold(t)) }
}

// WithMaxResults caps FindAll results for this search.
func WithMaxResults(n int) FindOption {
	return func(c *findConfig) { c.match = append(c.match, locator.WithMaxResults(n)) }
}

// WithScales overrides the multiscale ladder for this search.
func WithScales(scales ...float64) FindOption {
	return func(c *findConfig) { c.match = append(c.match, locator.WithScales(scales...)) }
}

func resolveFind(opts []FindOption) findConfig {
	var cfg findConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Screenshot captures the full frame.
func (h *Handle) Screenshot(ctx context.Context) (image.Image, error) {
	return h.capture.Capture(ctx)
}

// ScreenshotRegion captures a sub-region of the frame.
func (h *Handle) ScreenshotRegion(ctx context.Context, region schemas.Region) (image.Image, error) {
	if region.Empty() {
		return nil, errors.New("automation: empty capture region")
	}
	return h.capture.CaptureRegion(ctx, region)
}

// SaveScreenshot captures the full frame and writes it to path, creating
// parent directories as needed. Encoding follows the file extension; png
// is the default.
func (h *Handle) SaveScreenshot(ctx context.Context, path string) error {
	frame, err := h.capture.Capture(ctx)
	if err != nil {
		return fmt.Errorf("capture frame: %w", err)
	}
	if err := writeImage(path, frame); err != nil {
		return fmt.Errorf("write screenshot: %w", err)
	}
	h.logger.Debug("screenshot saved", zap.String("path", path))
	return nil
}

// SaveFrame writes an already captured frame to path. Callers that hold a
// frame avoid the extra capture SaveScreenshot would perform.
func (h *Handle) SaveFrame(frame image.Image, path string) error {
	if frame == nil {
		return errors.New("automation: nil frame")
	}
	if err := writeImage(path, frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Find locates a template on screen. Absence is (nil, nil).
func (h *Handle) Find(ctx context.Context, templatePath string, opts ...FindOption) (*locator.MatchResult, error) {
	cfg := resolveFind(opts)
	tpl, err := h.template(templatePath)
	if err != nil {
		return nil, err
	}

	frame, err := h.captureFor(ctx, cfg.region)
	if err != nil {
		return nil, err
	}

	var m *locator.MatchResult
	if cfg.multiscale {
		m, err = h.loc.FindMultiscale(frame, tpl, cfg.match...)
	} else {
		m, err = h.loc.Find(frame, tpl, cfg.match...)
	}
	if err != nil || m == nil {
		return nil, err
	}
	offsetResult(m, cfg.region)
	return m, nil
}

// FindAll locates every on-screen occurrence of a template.
func (h *Handle) FindAll(ctx context.Context, templatePath string, opts ...FindOption) ([]locator.MatchResult, error) {
	cfg := resolveFind(opts)
	tpl, err := h.template(templatePath)
	if err != nil {
		return nil, err
	}

	frame, err := h.captureFor(ctx, cfg.region)
	if err != nil {
		return nil, err
	}

	results, err := h.loc.FindAll(frame, tpl, cfg.match...)
	if err != nil {
		return nil, err
	}
	for i := range results {
		offsetResult(&results[i], cfg.region)
	}
	return results, nil
}

// Exists reports whether a template is currently visible.
func (h *Handle) Exists(ctx context.Context, templatePath string, opts ...FindOption) (bool, error) {
	m, err := h.Find(ctx, templatePath, opts...)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// WaitFor polls until the template appears or the timeout elapses. An
// interval of zero uses the locator's default cadence. Timeout is
// (nil, nil).
func (h *Handle) WaitFor(ctx context.Context, templatePath string, timeout, interval time.Duration, opts ...FindOption) (*locator.MatchResult, error) {
	cfg := resolveFind(opts)
	tpl, err := h.template(templatePath)
	if err != nil {
		return nil, err
	}

	m, err := h.loc.WaitFor(ctx, h.captureFunc(cfg.region), tpl, timeout, interval, cfg.match...)
	if err != nil || m == nil {
		return nil, err
	}
	offsetResult(m, cfg.region)
	return m, nil
}

// WaitUntilGone polls until the template disappears, reporting false on
// timeout.
func (h *Handle) WaitUntilGone(ctx context.Context, templatePath string, timeout, interval time.Duration, opts ...FindOption) (bool, error) {
	cfg := resolveFind(opts)
	tpl, err := h.template(templatePath)
	if err != nil {
		return false, err
	}
	return h.loc.WaitUntilGone(ctx, h.captureFunc(cfg.region), tpl, timeout, interval, cfg.match...)
}

// ClickAt left-clicks an absolute screen position.
func (h *Handle) ClickAt(ctx context.Context, x, y int) error {
	return h.input.Click(ctx, x, y, schemas.MouseLeft, 1)
}

// DoubleClickAt double-clicks an absolute screen position.
func (h *Handle) DoubleClickAt(ctx context.Context, x, y int) error {
	return h.input.Click(ctx, x, y, schemas.MouseLeft, 2)
}

// RightClickAt right-clicks an absolute screen position.
func (h *Handle) RightClickAt(ctx context.Context, x, y int) error {
	return h.input.Click(ctx, x, y, schemas.MouseRight, 1)
}

// ClickMatch clicks the center of a previously located match.
func (h *Handle) ClickMatch(ctx context.Context, m *locator.MatchResult) error {
	if m == nil {
		return ErrTargetNotFound
	}
	x, y := m.Center()
	return h.input.Click(ctx, x, y, schemas.MouseLeft, 1)
}

// ClickTemplate finds the template and clicks its center. A template that
// is not on screen is ErrTargetNotFound; an unreadable template image is a
// load error.
func (h *Handle) ClickTemplate(ctx context.Context, templatePath string, opts ...FindOption) error {
	m, err := h.Find(ctx, templatePath, opts...)
	if err != nil {
		return err
	}
	if m == nil {
		return fmt.Errorf("%w: %s", ErrTargetNotFound, templatePath)
	}

	x, y := m.Center()
	h.logger.Debug("clicking template",
		zap.String("template", templatePath),
		zap.Int("x", x), zap.Int("y", y),
		zap.Float64("confidence", m.Confidence))
	return h.input.Click(ctx, x, y, schemas.MouseLeft, 1)
}

// ClickAndWait clicks one template, then waits for another to appear.
// Useful for "press button, dialog opens" flows.
func (h *Handle) ClickAndWait(ctx context.Context, clickPath, appearPath string, timeout time.Duration) (*locator.MatchResult, error) {
	if err := h.ClickTemplate(ctx, clickPath); err != nil {
		return nil, err
	}
	return h.WaitFor(ctx, appearPath, timeout, 0)
}

// TypeText writes literal text at the current focus.
func (h *Handle) TypeText(ctx context.Context, text string) error {
	return h.input.TypeText(ctx, text)
}

// Press presses a single key.
func (h *Handle) Press(ctx context.Context, key string) error {
	return h.input.Hotkey(ctx, key)
}

// Hotkey presses a key chord. An empty chord is rejected before reaching
// the injector.
func (h *Handle) Hotkey(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return errors.New("automation: hotkey requires at least one key")
	}
	return h.input.Hotkey(ctx, keys...)
}

// MoveTo moves the pointer without clicking.
func (h *Handle) MoveTo(ctx context.Context, x, y int) error {
	return h.input.MoveTo(ctx, x, y)
}

// Drag drags from one point to another over the given duration.
func (h *Handle) Drag(ctx context.Context, fromX, fromY, toX, toY int, duration time.Duration) error {
	return h.input.Drag(ctx, fromX, fromY, toX, toY, duration)
}

// Scroll scrolls vertically; positive amounts scroll down.
func (h *Handle) Scroll(ctx context.Context, amount int) error {
	return h.input.Scroll(ctx, amount)
}

// ScrollDown scrolls down by the given wheel clicks.
func (h *Handle) ScrollDown(ctx context.Context, clicks int) error {
	return h.input.Scroll(ctx, clicks)
}

// ScrollUp scrolls up by the given wheel clicks.
func (h *Handle) ScrollUp(ctx context.Context, clicks int) error {
	return h.input.Scroll(ctx, -clicks)
}

// ActiveWindow reports the focused window. It requires the optional
// window-context collaborator.
func (h *Handle) ActiveWindow(ctx context.Context) (schemas.WindowInfo, error) {
	if h.window == nil {
		return schemas.WindowInfo{}, errors.New("automation: no window context configured")
	}
	return h.window.ActiveWindow(ctx)
}

// template returns the cached template for path, loading it on first use.
func (h *Handle) template(path string) (*locator.Template, error) {
	h.mu.RLock()
	tpl, ok := h.templates[path]
	h.mu.RUnlock()
	if ok {
		return tpl, nil
	}

	resolved := path
	if h.templateDir != "" && !filepath.IsAbs(path) {
		resolved = filepath.Join(h.templateDir, path)
	}
	tpl, err := locator.LoadTemplate(resolved)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.templates[path] = tpl
	h.mu.Unlock()
	return tpl, nil
}

func (h *Handle) captureFor(ctx context.Context, region *schemas.Region) (image.Image, error) {
	if region != nil {
		if region.Empty() {
			return nil, errors.New("automation: empty capture region")
		}
		return h.capture.CaptureRegion(ctx, *region)
	}
	return h.capture.Capture(ctx)
}

func (h *Handle) captureFunc(region *schemas.Region) locator.CaptureFunc {
	return func(ctx context.Context) (image.Image, error) {
		return h.captureFor(ctx, region)
	}
}

// offsetResult shifts a region-local match back into full-screen
// coordinates.
func offsetResult(m *locator.MatchResult, region *schemas.Region) {
	if region == nil {
		return
	}
	m.X += region.X
	m.Y += region.Y
}

func writeImage(path string, img image.Image) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	var encErr error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		encErr = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		encErr = png.Encode(f, img)
	}
	if encErr != nil {
		f.Close()
		return encErr
	}
	return f.Close()
}
