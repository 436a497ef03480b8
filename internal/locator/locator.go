// File: internal/locator/locator.go
// Description: Template-matching engine over captured frames. Single best
// match, all matches with overlap suppression, multi-scale search, and
// polling wait primitives. Absence of a match is a nil result, never an
// error; errors are reserved for unusable templates and backend failures.

package locator

import (
	"context"
	"errors"
	"image"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/draw"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/vantrigo/deskhand/api/schemas"
)

// Defaults applied when construction options do not override them.
const (
	DefaultThreshold    = 0.8
	DefaultMaxResults   = 10
	DefaultPollInterval = 500 * time.Millisecond
)

// DefaultScales returns the scale ladder used by multi-scale search.
func DefaultScales() []float64 {
	return []float64{0.5, 0.75, 1.0, 1.25, 1.5}
}

// MatchResult is one located template occurrence. Geometry always falls
// within the bounds of the searched frame.
type MatchResult struct {
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Width      int     `json:"width"`
	Height     int     `json:"height"`
	Confidence float64 `json:"confidence"`
}

// Center returns the midpoint of the matched rectangle.
func (m MatchResult) Center() (int, int) {
	return m.X + m.Width/2, m.Y + m.Height/2
}

// Bounds returns the matched rectangle as a screen region.
func (m MatchResult) Bounds() schemas.Region {
	return schemas.Region{X: m.X, Y: m.Y, Width: m.Width, Height: m.Height}
}

// CaptureFunc produces a fresh frame for the polling primitives.
type CaptureFunc func(ctx context.Context) (image.Image, error)

// Locator finds templates inside frames with configurable confidence.
type Locator struct {
	matcher      Matcher
	threshold    float64
	maxResults   int
	scales       []float64
	pollInterval time.Duration
	logger       *zap.Logger
}

// Option configures a Locator at construction.
type Option func(*Locator)

// WithLogger attaches a logger; a no-op logger is used otherwise.
func WithLogger(logger *zap.Logger) Option {
	return func(l *Locator) { l.logger = logger }
}

// WithDefaultThreshold sets the instance-level confidence floor.
func WithDefaultThreshold(t float64) Option {
	return func(l *Locator) { l.threshold = t }
}

// WithDefaultMaxResults caps FindAll result counts.
func WithDefaultMaxResults(n int) Option {
	return func(l *Locator) { l.maxResults = n }
}

// WithDefaultScales replaces the multi-scale ladder.
func WithDefaultScales(scales []float64) Option {
	return func(l *Locator) { l.scales = scales }
}

// WithPollInterval sets the default polling cadence for the wait primitives.
func WithPollInterval(d time.Duration) Option {
	return func(l *Locator) { l.pollInterval = d }
}

// New creates a Locator over the given matching backend. A missing backend
// is a hard construction error; per-call match failures never are.
func New(matcher Matcher, opts ...Option) (*Locator, error) {
	if matcher == nil {
		return nil, errors.New("locator: matcher backend is required")
	}

	l := &Locator{
		matcher:      matcher,
		threshold:    DefaultThreshold,
		maxResults:   DefaultMaxResults,
		scales:       DefaultScales(),
		pollInterval: DefaultPollInterval,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	if l.threshold < 0 || l.threshold > 1 {
		return nil, errors.New("locator: threshold must be within [0, 1]")
	}
	l.logger = l.logger.Named("locator")
	return l, nil
}

// matchOptions are per-call overrides of the instance defaults.
type matchOptions struct {
	threshold  float64
	maxResults int
	scales     []float64
}

// MatchOption adjusts a single Find/FindAll/FindMultiscale call.
type MatchOption func(*matchOptions)

// WithThreshold overrides the confidence floor for this call.
func WithThreshold(t float64) MatchOption {
	return func(o *matchOptions) { o.threshold = t }
}

// WithMaxResults overrides the FindAll result cap for this call.
func WithMaxResults(n int) MatchOption {
	return func(o *matchOptions) { o.maxResults = n }
}

// WithScales overrides the scale ladder for this call.
func WithScales(scales ...float64) MatchOption {
	return func(o *matchOptions) { o.scales = scales }
}

func (l *Locator) options(opts []MatchOption) matchOptions {
	o := matchOptions{
		threshold:  l.threshold,
		maxResults: l.maxResults,
		scales:     l.scales,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Find returns the best match of the template inside the frame, or nil when
// no placement reaches the confidence threshold.
func (l *Locator) Find(frame image.Image, tpl *Template, opts ...MatchOption) (*MatchResult, error) {
	o := l.options(opts)

	grid, err := l.matcher.Match(toGray(frame), tpl.gray)
	if err != nil {
		return nil, err
	}

	best, ok := l.bestOnGrid(grid, tpl.Width(), tpl.Height())
	if !ok || best.Confidence < o.threshold {
		l.logger.Debug("template not found",
			zap.String("template", tpl.Name()),
			zap.Float64("threshold", o.threshold))
		return nil, nil
	}

	l.logger.Debug("template matched",
		zap.String("template", tpl.Name()),
		zap.Int("x", best.X), zap.Int("y", best.Y),
		zap.Float64("confidence", best.Confidence))
	return &best, nil
}

// FindAll returns every distinct above-threshold occurrence of the template,
// de-duplicated by greedy non-maximum suppression and ordered by confidence
// descending.
func (l *Locator) FindAll(frame image.Image, tpl *Template, opts ...MatchOption) ([]MatchResult, error) {
	o := l.options(opts)

	grid, err := l.matcher.Match(toGray(frame), tpl.gray)
	if err != nil {
		return nil, err
	}

	metric := l.matcher.Metric()
	var candidates []MatchResult
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			conf := metric.Confidence(grid.At(x, y))
			if conf >= o.threshold {
				candidates = append(candidates, MatchResult{
					X: x, Y: y,
					Width: tpl.Width(), Height: tpl.Height(),
					Confidence: conf,
				})
			}
		}
	}

	results := suppress(candidates, o.maxResults)
	l.logger.Debug("template search complete",
		zap.String("template", tpl.Name()),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(results)))
	return results, nil
}

// FindMultiscale matches the template resized at each configured scale and
// returns the single occurrence with the globally highest confidence, or
// nil when no scale reaches the threshold. Scales are searched concurrently.
func (l *Locator) FindMultiscale(frame image.Image, tpl *Template, opts ...MatchOption) (*MatchResult, error) {
	o := l.options(opts)
	grayFrame := toGray(frame)

	results := make([]*MatchResult, len(o.scales))
	var g errgroup.Group
	for i, scale := range o.scales {
		g.Go(func() error {
			w := int(float64(tpl.Width())*scale + 0.5)
			h := int(float64(tpl.Height())*scale + 0.5)
			if w < 1 || h < 1 {
				l.logger.Debug("skipping degenerate scale",
					zap.String("template", tpl.Name()), zap.Float64("scale", scale))
				return nil
			}

			scaled := tpl.gray
			if w != tpl.Width() || h != tpl.Height() {
				scaled = resizeGray(tpl.gray, w, h)
			}

			grid, err := l.matcher.Match(grayFrame, scaled)
			if err != nil {
				if errors.Is(err, ErrTemplateTooLarge) {
					// An upscaled template can exceed a small frame; that
					// scale simply contributes no candidate.
					return nil
				}
				return err
			}

			if best, ok := l.bestOnGrid(grid, w, h); ok {
				results[i] = &best
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *MatchResult
	for _, r := range results {
		if r != nil && (best == nil || r.Confidence > best.Confidence) {
			best = r
		}
	}
	if best == nil || best.Confidence < o.threshold {
		return nil, nil
	}
	return best, nil
}

// WaitFor polls capture+Find at the given interval until the template
// appears or the timeout elapses. A timeout yields (nil, nil); the poll
// never runs faster than the interval.
func (l *Locator) WaitFor(ctx context.Context, capture CaptureFunc, tpl *Template, timeout, interval time.Duration, opts ...MatchOption) (*MatchResult, error) {
	if interval <= 0 {
		interval = l.pollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, nil // timeout
		}

		frame, err := capture(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return nil, nil
			}
			return nil, err
		}

		m, err := l.Find(frame, tpl, opts...)
		if err != nil {
			return nil, err
		}
		if m != nil {
			return m, nil
		}
	}
}

// WaitUntilGone polls until the template is no longer present. It reports
// true once the template disappears and false on timeout.
func (l *Locator) WaitUntilGone(ctx context.Context, capture CaptureFunc, tpl *Template, timeout, interval time.Duration, opts ...MatchOption) (bool, error) {
	if interval <= 0 {
		interval = l.pollInterval
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	for {
		if err := limiter.Wait(waitCtx); err != nil {
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			return false, nil // still present at timeout
		}

		frame, err := capture(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return false, nil
			}
			return false, err
		}

		m, err := l.Find(frame, tpl, opts...)
		if err != nil {
			return false, err
		}
		if m == nil {
			return true, nil
		}
	}
}

// bestOnGrid scans a score surface and returns the highest-confidence
// placement with the given result dimensions.
func (l *Locator) bestOnGrid(grid *ScoreGrid, width, height int) (MatchResult, bool) {
	metric := l.matcher.Metric()
	var best MatchResult
	found := false
	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			conf := metric.Confidence(grid.At(x, y))
			if !found || conf > best.Confidence {
				best = MatchResult{X: x, Y: y, Width: width, Height: height, Confidence: conf}
				found = true
			}
		}
	}
	return best, found
}

// resizeGray scales a grayscale image to the given dimensions with
// bilinear interpolation.
func resizeGray(src *image.Gray, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
