// File: internal/browser/capture.go
package browser

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/vantrigo/deskhand/api/schemas"
)

// Capture grabs the full viewport as a decoded frame.
func (d *Driver) Capture(ctx context.Context) (image.Image, error) {
	return d.screenshot(ctx, nil)
}

// CaptureRegion grabs only the given sub-region. The returned frame's origin
// is (0, 0); the region offset is not preserved.
func (d *Driver) CaptureRegion(ctx context.Context, region schemas.Region) (image.Image, error) {
	if region.Empty() {
		return nil, fmt.Errorf("browser: capture region %dx%d has no area", region.Width, region.Height)
	}
	clip := &page.Viewport{
		X:      float64(region.X),
		Y:      float64(region.Y),
		Width:  float64(region.Width),
		Height: float64(region.Height),
		Scale:  1,
	}
	return d.screenshot(ctx, clip)
}

func (d *Driver) screenshot(ctx context.Context, clip *page.Viewport) (image.Image, error) {
	var buf []byte
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		params := page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng)
		if clip != nil {
			params = params.WithClip(clip)
		}
		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("browser: failed to capture screenshot: %w", err)
	}

	img, err := png.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("browser: failed to decode screenshot: %w", err)
	}
	return img, nil
}

// ActiveWindow reports the driven tab as a window: the page title for the
// title bar, the location URL as the owning application, and the visual
// viewport as the bounds.
func (d *Driver) ActiveWindow(ctx context.Context) (schemas.WindowInfo, error) {
	var (
		title    string
		location string
		viewport *page.VisualViewport
	)
	err := d.run(ctx,
		chromedp.Title(&title),
		chromedp.Location(&location),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			_, _, _, _, viewport, _, err = page.GetLayoutMetrics().Do(ctx)
			return err
		}),
	)
	if err != nil {
		return schemas.WindowInfo{}, fmt.Errorf("browser: failed to read window state: %w", err)
	}

	info := schemas.WindowInfo{
		Title: title,
		App:   location,
		Bounds: schemas.Region{
			Width:  d.cfg.ViewportWidth,
			Height: d.cfg.ViewportHeight,
		},
	}
	// Prefer the live viewport over the configured one; zoom and scrollbars
	// change the usable area.
	if viewport != nil {
		info.Bounds.Width = int(viewport.ClientWidth)
		info.Bounds.Height = int(viewport.ClientHeight)
	}
	return info, nil
}
