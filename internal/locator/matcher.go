// File: internal/locator/matcher.go
// Description: Matching backend contract and the built-in normalized
// cross-correlation implementation. The Locator consumes the raw score
// surface and owns the conversion to a uniform "higher is better"
// confidence, so backends with distance-style metrics plug in unchanged.

package locator

import (
	"errors"
	"image"
	"image/color"
	"math"
)

// Metric identifies how a backend scores template placements.
type Metric int

const (
	// MetricCCoeffNormed is zero-mean normalized cross-correlation. Scores
	// land in [-1, 1] and higher is better.
	MetricCCoeffNormed Metric = iota
	// MetricSQDiffNormed is normalized squared difference. Scores land in
	// [0, 1] and lower is better.
	MetricSQDiffNormed
)

// String returns the metric name.
func (m Metric) String() string {
	switch m {
	case MetricCCoeffNormed:
		return "ccoeff_normed"
	case MetricSQDiffNormed:
		return "sqdiff_normed"
	default:
		return "unknown"
	}
}

// Confidence converts a raw backend score into a [0, 1] confidence where
// higher always means a better match. Distance-style metrics are inverted
// here so one threshold semantic covers every backend.
func (m Metric) Confidence(score float64) float64 {
	var c float64
	switch m {
	case MetricSQDiffNormed:
		c = 1 - score
	default:
		c = score
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ScoreGrid is the dense score surface produced by a Matcher. Cell (x, y)
// holds the raw score of placing the template with its top-left corner at
// frame position (x, y).
type ScoreGrid struct {
	Width  int
	Height int
	Scores []float64
}

// NewScoreGrid allocates a grid of the given placement dimensions.
func NewScoreGrid(width, height int) *ScoreGrid {
	return &ScoreGrid{
		Width:  width,
		Height: height,
		Scores: make([]float64, width*height),
	}
}

// At returns the raw score at placement (x, y).
func (g *ScoreGrid) At(x, y int) float64 {
	return g.Scores[y*g.Width+x]
}

// Set stores the raw score at placement (x, y).
func (g *ScoreGrid) Set(x, y int, score float64) {
	g.Scores[y*g.Width+x] = score
}

// Matcher scores every placement of a template inside a frame. Both images
// are grayscale; the Locator handles color conversion before calling in.
//
// A backend that cannot operate (missing native library, bad configuration)
// must fail at construction, not per call.
type Matcher interface {
	// Match returns the score surface for the template over the frame. The
	// grid dimensions are (frameW-tplW+1) x (frameH-tplH+1). A template
	// larger than the frame is an error.
	Match(frame, template *image.Gray) (*ScoreGrid, error)

	// Metric reports how Match scores are oriented.
	Metric() Metric
}

// ErrTemplateTooLarge is returned when the template exceeds the frame in
// either dimension.
var ErrTemplateTooLarge = errors.New("locator: template larger than frame")

// CrossCorrelation is the built-in pure-Go matching backend. It computes
// zero-mean normalized cross-correlation (or normalized squared difference)
// over 8-bit grayscale images with direct summation.
type CrossCorrelation struct {
	metric Metric
}

var _ Matcher = (*CrossCorrelation)(nil)

// NewCrossCorrelation returns a backend using the given metric.
func NewCrossCorrelation(metric Metric) *CrossCorrelation {
	return &CrossCorrelation{metric: metric}
}

// Metric implements Matcher.
func (c *CrossCorrelation) Metric() Metric { return c.metric }

// Match implements Matcher.
func (c *CrossCorrelation) Match(frame, template *image.Gray) (*ScoreGrid, error) {
	fw, fh := frame.Bounds().Dx(), frame.Bounds().Dy()
	tw, th := template.Bounds().Dx(), template.Bounds().Dy()
	if tw > fw || th > fh {
		return nil, ErrTemplateTooLarge
	}
	if tw == 0 || th == 0 {
		return nil, errors.New("locator: empty template")
	}

	grid := NewScoreGrid(fw-tw+1, fh-th+1)
	n := float64(tw * th)

	// Template statistics are placement-invariant; hoist them out of the
	// sliding-window loop.
	var tplSum, tplSumSq float64
	for ty := 0; ty < th; ty++ {
		for tx := 0; tx < tw; tx++ {
			v := float64(grayAt(template, tx, ty))
			tplSum += v
			tplSumSq += v * v
		}
	}
	tplMean := tplSum / n
	tplVar := tplSumSq - tplSum*tplSum/n

	const eps = 1e-12

	for y := 0; y < grid.Height; y++ {
		for x := 0; x < grid.Width; x++ {
			var winSum, winSumSq, dot, sqDiff float64
			for ty := 0; ty < th; ty++ {
				for tx := 0; tx < tw; tx++ {
					fv := float64(grayAt(frame, x+tx, y+ty))
					tv := float64(grayAt(template, tx, ty))
					winSum += fv
					winSumSq += fv * fv
					dot += fv * tv
					d := fv - tv
					sqDiff += d * d
				}
			}

			switch c.metric {
			case MetricSQDiffNormed:
				denom := sqrtStable(winSumSq * tplSumSq)
				if denom < eps {
					if sqDiff < eps {
						grid.Set(x, y, 0)
					} else {
						grid.Set(x, y, 1)
					}
					continue
				}
				grid.Set(x, y, sqDiff/denom)
			default: // MetricCCoeffNormed
				winVar := winSumSq - winSum*winSum/n
				denom := sqrtStable(winVar * tplVar)
				if denom < eps {
					grid.Set(x, y, 0)
					continue
				}
				cov := dot - winSum*tplMean
				grid.Set(x, y, cov/denom)
			}
		}
	}

	return grid, nil
}

// grayAt reads the 8-bit intensity at (x, y) relative to the image origin.
func grayAt(img *image.Gray, x, y int) uint8 {
	b := img.Bounds()
	return img.GrayAt(b.Min.X+x, b.Min.Y+y).Y
}

// toGray converts any image to 8-bit grayscale using the standard luminance
// weights. Gray inputs are returned as-is.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.SetGray(x, y, color.GrayModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.Gray))
		}
	}
	return out
}

// sqrtStable guards against negative rounding noise producing NaN scores.
func sqrtStable(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
