// File: internal/motion/motion.go
// Description: Human-looking pointer paths. A Planner turns a straight
// from/to move into a curved, noise-perturbed point sequence with eased
// spacing, and estimates a plausible movement time for it. Under a fixed
// seed the generated sequence is reproducible.
package motion

import (
	"image"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/aquilax/go-perlin"
)

// Defaults for zero-valued options.
const (
	DefaultSteps  = 48
	DefaultWobble = 2.0
)

// Fitts's law coefficients: movement time in milliseconds is
// fittsA + fittsB*log2(1 + distance/targetWidth).
const (
	fittsA      = 100.0
	fittsB      = 150.0
	targetWidth = 30.0
)

// Perlin noise shape shared by both axes. The Y generator runs on seed+1
// so the axes drift independently.
const (
	perlinAlpha     = 2.0
	perlinBeta      = 2.0
	perlinOrder     = int32(3)
	perlinFrequency = 0.8
)

// controlOffsetRatio bounds how far the Bezier control points stray from
// the straight line, as a fraction of the move distance.
const controlOffsetRatio = 0.08

// Planner generates pointer paths. Safe for concurrent use; the seeded
// generator state is shared, so concurrent callers interleave the random
// sequence.
type Planner struct {
	steps  int
	wobble float64

	mu  sync.Mutex
	rng *rand.Rand

	noiseX *perlin.Perlin
	noiseY *perlin.Perlin
}

type config struct {
	seed    int64
	seedSet bool
	steps   int
	wobble  float64
}

// Option configures a Planner at construction.
type Option func(*config)

// WithSeed fixes the random seed, making every draw reproducible. Without
// it the planner seeds from the wall clock.
func WithSeed(seed int64) Option {
	return func(c *config) {
		c.seed = seed
		c.seedSet = true
	}
}

// WithSteps sets how many points a path carries. Values below 2 are
// raised to 2.
func WithSteps(n int) Option {
	return func(c *config) { c.steps = n }
}

// WithWobble sets the perlin drift amplitude in pixels. Zero disables the
// drift, leaving a pure eased curve.
func WithWobble(amplitude float64) Option {
	return func(c *config) { c.wobble = amplitude }
}

// NewPlanner returns a path planner with the given options applied.
func NewPlanner(opts ...Option) *Planner {
	cfg := config{steps: DefaultSteps, wobble: DefaultWobble}
	for _, opt := range opts {
		opt(&cfg)
	}
	if !cfg.seedSet {
		cfg.seed = time.Now().UnixNano()
	}
	if cfg.steps < 2 {
		cfg.steps = 2
	}
	if cfg.wobble < 0 {
		cfg.wobble = 0
	}

	return &Planner{
		steps:  cfg.steps,
		wobble: cfg.wobble,
		rng:    rand.New(rand.NewSource(cfg.seed)),
		noiseX: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOrder, cfg.seed),
		noiseY: perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOrder, cfg.seed+1),
	}
}

// Path returns the pointer positions for a move, both endpoints included.
// The first point is exactly from and the last exactly to; moves shorter
// than one pixel collapse to the destination alone.
func (p *Planner) Path(from, to image.Point) []image.Point {
	start := vec{X: float64(from.X), Y: float64(from.Y)}
	end := vec{X: float64(to.X), Y: float64(to.Y)}

	dist := start.Dist(end)
	if dist < 1.0 {
		return []image.Point{to}
	}

	ctrl1, ctrl2 := p.controlPoints(start, end, dist)

	points := make([]image.Point, p.steps)
	for i := range points {
		t := easeInOutCubic(float64(i) / float64(p.steps-1))
		pos := cubicBezier(start, ctrl1, ctrl2, end, t)

		// The drift tapers to zero at both endpoints so the path lands exactly.
		taper := math.Sin(math.Pi * t)
		pos = pos.Add(vec{
			X: p.noiseX.Noise1D(t*perlinFrequency) * p.wobble * taper,
			Y: p.noiseY.Noise1D(t*perlinFrequency) * p.wobble * taper,
		})

		points[i] = image.Point{X: int(math.Round(pos.X)), Y: int(math.Round(pos.Y))}
	}

	points[0] = from
	points[len(points)-1] = to
	return points
}

// Duration estimates a human movement time for the move using Fitts's
// law, with a seeded jitter of up to 15% either way.
func (p *Planner) Duration(from, to image.Point) time.Duration {
	start := vec{X: float64(from.X), Y: float64(from.Y)}
	end := vec{X: float64(to.X), Y: float64(to.Y)}

	id := math.Log2(1.0 + start.Dist(end)/targetWidth)
	mt := fittsA + fittsB*id

	p.mu.Lock()
	jitter := p.rng.Float64()*0.3 - 0.15
	p.mu.Unlock()

	mt += mt * jitter
	return time.Duration(mt) * time.Millisecond
}

// controlPoints places the two Bezier controls a third and two thirds of
// the way along the straight line, each pushed sideways by a seeded
// random fraction of the distance.
func (p *Planner) controlPoints(start, end vec, dist float64) (vec, vec) {
	dir := end.Sub(start).Normalize()
	perp := dir.Perp()

	p.mu.Lock()
	offset1 := (p.rng.Float64()*2 - 1) * dist * controlOffsetRatio
	offset2 := (p.rng.Float64()*2 - 1) * dist * controlOffsetRatio
	p.mu.Unlock()

	ctrl1 := start.Add(dir.Mul(dist / 3.0)).Add(perp.Mul(offset1))
	ctrl2 := start.Add(dir.Mul(dist * 2.0 / 3.0)).Add(perp.Mul(offset2))
	return ctrl1, ctrl2
}

// easeInOutCubic maps uniform progress to an accelerate-then-decelerate
// profile.
func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// cubicBezier evaluates the curve through the four points at parameter t.
func cubicBezier(p0, p1, p2, p3 vec, t float64) vec {
	omt := 1.0 - t
	omt2 := omt * omt
	t2 := t * t

	return p0.Mul(omt2 * omt).
		Add(p1.Mul(3 * omt2 * t)).
		Add(p2.Mul(3 * omt * t2)).
		Add(p3.Mul(t2 * t))
}
