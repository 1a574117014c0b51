package spatialmath

import (
	"fmt"
	"math"

	"go.viam.com/swerve/utils"
)

// directionEpsilon is the smallest direction vector magnitude that still defines a heading.
const directionEpsilon = 1e-6

// Rotation2d is a planar heading stored as a point on the unit circle. Keeping (cos, sin)
// instead of a raw angle means composition never has to deal with wraparound at +/-180 degrees.
// The zero value is the zero rotation.
type Rotation2d struct {
	cos float64
	sin float64
}

// NewZeroRotation2d returns the rotation which signifies no rotation.
func NewZeroRotation2d() Rotation2d {
	return Rotation2d{cos: 1}
}

// NewRotation2dFromRadians returns the rotation for the given angle in radians.
func NewRotation2dFromRadians(radians float64) Rotation2d {
	return Rotation2d{cos: math.Cos(radians), sin: math.Sin(radians)}
}

// NewRotation2dFromDegrees returns the rotation for the given angle in degrees.
func NewRotation2dFromDegrees(degrees float64) Rotation2d {
	return NewRotation2dFromRadians(utils.DegToRad(degrees))
}

// NewRotation2dFromDirection returns the heading of the vector (x, y). A vector too short to
// define a direction, or one containing NaN, yields the zero rotation.
func NewRotation2dFromDirection(x, y float64) Rotation2d {
	magnitude := math.Hypot(x, y)
	if !(magnitude > directionEpsilon) || !utils.IsFinite(magnitude) {
		return NewZeroRotation2d()
	}
	return Rotation2d{cos: x / magnitude, sin: y / magnitude}
}

// Radians returns the heading in (-pi, pi].
func (r Rotation2d) Radians() float64 {
	return math.Atan2(r.Sin(), r.Cos())
}

// Degrees returns the heading in (-180, 180].
func (r Rotation2d) Degrees() float64 {
	return utils.RadToDeg(r.Radians())
}

// IsFinite reports whether the heading is a finite number.
func (r Rotation2d) IsFinite() bool {
	return utils.IsFinite(r.cos) && utils.IsFinite(r.sin)
}

func (r Rotation2d) isZeroValue() bool {
	return r.cos == 0 && r.sin == 0
}

// Cos returns the cosine of the heading.
func (r Rotation2d) Cos() float64 {
	if r.isZeroValue() {
		return 1
	}
	return r.cos
}

// Sin returns the sine of the heading.
func (r Rotation2d) Sin() float64 {
	return r.sin
}

// Tan returns the tangent of the heading.
func (r Rotation2d) Tan() float64 {
	return r.Sin() / r.Cos()
}

// Plus composes two rotations, adding their angles.
func (r Rotation2d) Plus(other Rotation2d) Rotation2d {
	return NewRotation2dFromDirection(
		r.Cos()*other.Cos()-r.Sin()*other.Sin(),
		r.Cos()*other.Sin()+r.Sin()*other.Cos(),
	)
}

// Minus returns the rotation that takes other to r.
func (r Rotation2d) Minus(other Rotation2d) Rotation2d {
	return r.Plus(other.Inverse())
}

// Inverse returns the rotation with the opposite angle.
func (r Rotation2d) Inverse() Rotation2d {
	return Rotation2d{cos: r.Cos(), sin: -r.Sin()}
}

// Times scales the angle of the rotation.
func (r Rotation2d) Times(scalar float64) Rotation2d {
	return NewRotation2dFromRadians(r.Radians() * scalar)
}

// Interpolate moves from r toward end along the shortest arc; t is clamped to [0, 1].
func (r Rotation2d) Interpolate(end Rotation2d, t float64) Rotation2d {
	t = utils.Clamp(t, 0, 1)
	return r.Plus(end.Minus(r).Times(t))
}

// Rotation2dAlmostEqual compares the headings of two rotations within epsilon radians.
func Rotation2dAlmostEqual(a, b Rotation2d, epsilon float64) bool {
	return math.Abs(a.Minus(b).Radians()) <= epsilon
}

func (r Rotation2d) String() string {
	return fmt.Sprintf("Rotation2d(%.3f deg)", r.Degrees())
}
