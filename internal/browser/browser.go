// File: internal/browser/browser.go
// Description: The bundled CDP backend. Driver owns one Chrome process and
// implements the capture, input, and window-context contracts over the
// DevTools protocol, so the engine can drive a page the same way it drives
// a desktop. Pointer choreography (paths, pacing) comes from the motion
// package when human motion is enabled.

package browser

import (
	"context"
	"fmt"
	"image"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/vantrigo/deskhand/api/schemas"
	"github.com/vantrigo/deskhand/internal/config"
	"github.com/vantrigo/deskhand/internal/motion"
)

// Driver drives a single browser tab over CDP. All exported methods are safe
// for concurrent use, though input events are serialized by the page anyway.
type Driver struct {
	cfg config.BrowserConfig
	log *zap.Logger

	// ctx is the browser lifecycle context; it carries the CDP target and
	// outlives any single operation.
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	exec    executor
	planner *motion.Planner

	closeOnce sync.Once

	mu  sync.Mutex
	pos image.Point
}

var (
	_ schemas.Capture       = (*Driver)(nil)
	_ schemas.Input         = (*Driver)(nil)
	_ schemas.WindowContext = (*Driver)(nil)
)

// New launches a browser process configured by cfg and returns a Driver bound
// to its first tab. The given context parents the browser lifetime: cancelling
// it tears the process down. The pointer starts at the viewport center.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Driver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Driver{
		cfg: cfg,
		log: logger.Named("browser"),
		pos: image.Pt(cfg.ViewportWidth/2, cfg.ViewportHeight/2),
	}
	if cfg.HumanMotion {
		var opts []motion.Option
		if cfg.MotionSeed != 0 {
			opts = append(opts, motion.WithSeed(cfg.MotionSeed))
		}
		d.planner = motion.NewPlanner(opts...)
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, execOptions(cfg)...)
	d.allocCancel = allocCancel

	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.log.Sugar().Debugf),
		chromedp.WithErrorf(d.log.Sugar().Errorf),
	)
	d.ctx = browserCtx
	d.cancel = cancel
	d.exec = &cdpExecutor{run: d.run}

	// The first Run starts the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		allocCancel()
		return nil, fmt.Errorf("browser: failed to launch: %w", err)
	}

	d.log.Info("Browser launched",
		zap.Bool("headless", cfg.Headless),
		zap.Int("viewport_width", cfg.ViewportWidth),
		zap.Int("viewport_height", cfg.ViewportHeight),
		zap.Bool("human_motion", cfg.HumanMotion),
	)
	return d, nil
}

// Navigate loads the given URL in the driven tab and waits for the load event.
func (d *Driver) Navigate(ctx context.Context, url string) error {
	d.log.Info("Navigating", zap.String("url", url))
	if err := d.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("browser: failed to navigate to %s: %w", url, err)
	}
	return nil
}

// Close shuts the browser down gracefully. Safe to call more than once.
func (d *Driver) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.log.Info("Closing browser")
		err = chromedp.Cancel(d.ctx)
		d.allocCancel()
	})
	return err
}

// run executes actions against the driven tab. The browser context supplies
// the CDP target; the caller's context supplies the deadline. A cancellation
// from the caller is reported as the caller's error, not as the transport
// failure it caused.
func (d *Driver) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := combineContext(d.ctx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// execOptions translates the browser config into chromedp allocator options.
func execOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		// Required on hardened kernels where the Chrome sandbox cannot start.
		chromedp.NoSandbox,
		// Recommended for stability in containers and CI environments.
		chromedp.Flag("disable-dev-shm-usage", true),
		// The defaults enable headless; restate it so headful config wins.
		chromedp.Flag("headless", cfg.Headless),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)

	for _, arg := range cfg.Args {
		name, value := flagFromArg(arg)
		if name == "" {
			continue
		}
		opts = append(opts, chromedp.Flag(name, value))
	}
	return opts
}

// flagFromArg splits a command-line style argument into the flag name and
// value chromedp expects. chromedp adds the leading dashes itself, so any
// given here are stripped. Arguments without '=' become boolean flags.
func flagFromArg(arg string) (string, any) {
	arg = strings.TrimPrefix(strings.TrimSpace(arg), "--")
	if arg == "" {
		return "", nil
	}
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}
