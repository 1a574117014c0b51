package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r2"

	"go.viam.com/swerve/utils"
)

// Translation2d is a displacement or offset in the plane, in meters.
type Translation2d r2.Point

// NewTranslation2d returns the translation (x, y).
func NewTranslation2d(x, y float64) Translation2d {
	return Translation2d{X: x, Y: y}
}

// NewTranslation2dPolar returns the translation of the given length along heading.
func NewTranslation2dPolar(distance float64, heading Rotation2d) Translation2d {
	return Translation2d{X: distance * heading.Cos(), Y: distance * heading.Sin()}
}

// Plus adds two translations.
func (t Translation2d) Plus(other Translation2d) Translation2d {
	return Translation2d(r2.Point(t).Add(r2.Point(other)))
}

// Minus subtracts other from t.
func (t Translation2d) Minus(other Translation2d) Translation2d {
	return Translation2d(r2.Point(t).Sub(r2.Point(other)))
}

// Times scales the translation.
func (t Translation2d) Times(scalar float64) Translation2d {
	return Translation2d(r2.Point(t).Mul(scalar))
}

// Div divides the translation by a scalar.
func (t Translation2d) Div(scalar float64) Translation2d {
	return t.Times(1 / scalar)
}

// Negate returns the translation pointing the other way.
func (t Translation2d) Negate() Translation2d {
	return t.Times(-1)
}

// Norm returns the length of the translation.
func (t Translation2d) Norm() float64 {
	return r2.Point(t).Norm()
}

// Distance returns the euclidean distance between two translations.
func (t Translation2d) Distance(other Translation2d) float64 {
	return t.Minus(other).Norm()
}

// Angle returns the direction of the translation. A zero translation has the zero rotation.
func (t Translation2d) Angle() Rotation2d {
	return NewRotation2dFromDirection(t.X, t.Y)
}

// RotateBy rotates the translation counter-clockwise about the origin.
func (t Translation2d) RotateBy(r Rotation2d) Translation2d {
	return Translation2d{
		X: t.X*r.Cos() - t.Y*r.Sin(),
		Y: t.X*r.Sin() + t.Y*r.Cos(),
	}
}

// Cross returns the z component of the cross product t x other.
func (t Translation2d) Cross(other Translation2d) float64 {
	return r2.Point(t).Cross(r2.Point(other))
}

// Interpolate linearly between t and end; s is clamped to [0, 1].
func (t Translation2d) Interpolate(end Translation2d, s float64) Translation2d {
	s = utils.Clamp(s, 0, 1)
	return t.Plus(end.Minus(t).Times(s))
}

// Translation2dAlmostEqual compares two translations component-wise within epsilon meters.
func Translation2dAlmostEqual(a, b Translation2d, epsilon float64) bool {
	return math.Abs(a.X-b.X) <= epsilon && math.Abs(a.Y-b.Y) <= epsilon
}

func (t Translation2d) String() string {
	return fmt.Sprintf("Translation2d(%.4f, %.4f)", t.X, t.Y)
}
