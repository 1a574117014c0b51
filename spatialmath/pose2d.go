package spatialmath

import (
	"fmt"
	"math"

	"go.viam.com/swerve/utils"
)

// smallAngle is the threshold below which the exp/log maps use their Taylor expansions.
const smallAngle = 1e-9

// Twist2d is a change in pose along an arc: dx and dy are measured in the frame of the
// starting pose and dtheta is the heading change over the arc.
type Twist2d struct {
	DX     float64
	DY     float64
	DTheta float64
}

// IsFinite reports whether every component of the twist is a finite number.
func (tw Twist2d) IsFinite() bool {
	return utils.IsFinite(tw.DX) && utils.IsFinite(tw.DY) && utils.IsFinite(tw.DTheta)
}

// Scale multiplies every component of the twist.
func (tw Twist2d) Scale(s float64) Twist2d {
	return Twist2d{DX: tw.DX * s, DY: tw.DY * s, DTheta: tw.DTheta * s}
}

// Transform2d is a rigid transformation relative to some starting pose.
type Transform2d struct {
	Translation Translation2d
	Rotation    Rotation2d
}

// NewTransform2dBetween returns the transform that takes initial to final, expressed in the
// frame of initial.
func NewTransform2dBetween(initial, final Pose2d) Transform2d {
	return Transform2d{
		Translation: final.Translation.Minus(initial.Translation).RotateBy(initial.Rotation.Inverse()),
		Rotation:    final.Rotation.Minus(initial.Rotation),
	}
}

// Inverse returns the transform that undoes tf.
func (tf Transform2d) Inverse() Transform2d {
	inv := tf.Rotation.Inverse()
	return Transform2d{
		Translation: tf.Translation.Negate().RotateBy(inv),
		Rotation:    inv,
	}
}

// Plus composes tf followed by other.
func (tf Transform2d) Plus(other Transform2d) Transform2d {
	return NewTransform2dBetween(Pose2d{}, Pose2d{}.TransformBy(tf).TransformBy(other))
}

// Pose2d is a position and heading on the field. The zero value is the origin facing +x.
type Pose2d struct {
	Translation Translation2d
	Rotation    Rotation2d
}

// NewPose2d returns a pose from its components.
func NewPose2d(x, y float64, heading Rotation2d) Pose2d {
	return Pose2d{Translation: NewTranslation2d(x, y), Rotation: heading}
}

// X returns the x coordinate in meters.
func (p Pose2d) X() float64 {
	return p.Translation.X
}

// Y returns the y coordinate in meters.
func (p Pose2d) Y() float64 {
	return p.Translation.Y
}

// TransformBy applies tf in the frame of p.
func (p Pose2d) TransformBy(tf Transform2d) Pose2d {
	return Pose2d{
		Translation: p.Translation.Plus(tf.Translation.RotateBy(p.Rotation)),
		Rotation:    tf.Rotation.Plus(p.Rotation),
	}
}

// Minus returns the transform that takes other to p.
func (p Pose2d) Minus(other Pose2d) Transform2d {
	return NewTransform2dBetween(other, p)
}

// RelativeTo expresses p in the frame of other.
func (p Pose2d) RelativeTo(other Pose2d) Pose2d {
	tf := NewTransform2dBetween(other, p)
	return Pose2d{Translation: tf.Translation, Rotation: tf.Rotation}
}

// Exp integrates a twist starting at p, following a constant-curvature arc.
func (p Pose2d) Exp(twist Twist2d) Pose2d {
	dx, dy, dtheta := twist.DX, twist.DY, twist.DTheta

	sinTheta := math.Sin(dtheta)
	cosTheta := math.Cos(dtheta)

	var s, c float64
	if math.Abs(dtheta) < smallAngle {
		s = 1.0 - dtheta*dtheta/6.0
		c = 0.5 * dtheta
	} else {
		s = sinTheta / dtheta
		c = (1 - cosTheta) / dtheta
	}

	return p.TransformBy(Transform2d{
		Translation: NewTranslation2d(dx*s-dy*c, dx*c+dy*s),
		Rotation:    NewRotation2dFromDirection(cosTheta, sinTheta),
	})
}

// Log returns the twist that Exp would need to take p to end.
func (p Pose2d) Log(end Pose2d) Twist2d {
	tf := end.RelativeTo(p)
	dtheta := tf.Rotation.Radians()
	halfDtheta := dtheta / 2.0

	cosMinusOne := tf.Rotation.Cos() - 1

	var halfThetaByTanOfHalfDtheta float64
	if math.Abs(cosMinusOne) < smallAngle {
		halfThetaByTanOfHalfDtheta = 1.0 - dtheta*dtheta/12.0
	} else {
		halfThetaByTanOfHalfDtheta = -(halfDtheta * tf.Rotation.Sin()) / cosMinusOne
	}

	translation := tf.Translation.
		RotateBy(NewRotation2dFromDirection(halfThetaByTanOfHalfDtheta, -halfDtheta)).
		Times(math.Hypot(halfThetaByTanOfHalfDtheta, halfDtheta))

	return Twist2d{DX: translation.X, DY: translation.Y, DTheta: dtheta}
}

// Interpolate follows the arc from p to end; t is clamped to [0, 1].
func (p Pose2d) Interpolate(end Pose2d, t float64) Pose2d {
	switch {
	case t <= 0:
		return p
	case t >= 1:
		return end
	}
	return p.Exp(p.Log(end).Scale(t))
}

// Nearest returns the pose in candidates closest in translation to p, breaking ties by heading.
// It returns p itself when candidates is empty.
func (p Pose2d) Nearest(candidates []Pose2d) Pose2d {
	if len(candidates) == 0 {
		return p
	}
	best := candidates[0]
	bestDist := p.Translation.Distance(best.Translation)
	for _, c := range candidates[1:] {
		d := p.Translation.Distance(c.Translation)
		if d < bestDist || (d == bestDist &&
			math.Abs(c.Rotation.Minus(p.Rotation).Radians()) < math.Abs(best.Rotation.Minus(p.Rotation).Radians())) {
			best, bestDist = c, d
		}
	}
	return best
}

// Pose2dAlmostEqual compares translation within linearEps meters and heading within angularEps radians.
func Pose2dAlmostEqual(a, b Pose2d, linearEps, angularEps float64) bool {
	return Translation2dAlmostEqual(a.Translation, b.Translation, linearEps) &&
		Rotation2dAlmostEqual(a.Rotation, b.Rotation, angularEps)
}

// IsFinite reports whether every component of the pose is a finite number.
func (p Pose2d) IsFinite() bool {
	return utils.IsFinite(p.Translation.X) && utils.IsFinite(p.Translation.Y) && p.Rotation.IsFinite()
}

func (p Pose2d) String() string {
	return fmt.Sprintf("Pose2d(%.4f, %.4f, %.3f deg)", p.X(), p.Y(), p.Rotation.Degrees())
}
