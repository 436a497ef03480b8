// File: internal/motion/vector.go
package motion

import "math"

// vec is a point or displacement in continuous screen space.
type vec struct {
	X, Y float64
}

func (v vec) Add(other vec) vec {
	return vec{X: v.X + other.X, Y: v.Y + other.Y}
}

func (v vec) Sub(other vec) vec {
	return vec{X: v.X - other.X, Y: v.Y - other.Y}
}

func (v vec) Mul(scalar float64) vec {
	return vec{X: v.X * scalar, Y: v.Y * scalar}
}

// Mag calculates the magnitude of the vector.
func (v vec) Mag() float64 {
	// math.Hypot for numerical stability.
	return math.Hypot(v.X, v.Y)
}

// Normalize returns a unit vector in the same direction, or the zero
// vector when the magnitude vanishes.
func (v vec) Normalize() vec {
	mag := v.Mag()
	if mag < 1e-9 {
		return vec{}
	}
	return v.Mul(1.0 / mag)
}

// Perp returns the unit vector rotated a quarter turn counter-clockwise.
func (v vec) Perp() vec {
	return vec{X: -v.Y, Y: v.X}
}

// Dist calculates the Euclidean distance between v and other as points.
func (v vec) Dist(other vec) float64 {
	return math.Hypot(v.X-other.X, v.Y-other.Y)
}
