package spatialmath

import (
	"math"
	"testing"

	"go.viam.com/test"
)

const eps = 1e-9

func TestRotation2d(t *testing.T) {
	t.Run("zero value is identity", func(t *testing.T) {
		var r Rotation2d
		test.That(t, r.Radians(), test.ShouldEqual, 0.0)
		test.That(t, r.Plus(NewRotation2dFromDegrees(30)).Degrees(), test.ShouldAlmostEqual, 30.0)
	})

	t.Run("wraps at 180", func(t *testing.T) {
		r := NewRotation2dFromDegrees(170).Plus(NewRotation2dFromDegrees(20))
		test.That(t, r.Degrees(), test.ShouldAlmostEqual, -170.0)
		test.That(t, NewRotation2dFromDegrees(-179).Minus(NewRotation2dFromDegrees(179)).Degrees(),
			test.ShouldAlmostEqual, 2.0)
	})

	t.Run("inverse", func(t *testing.T) {
		r := NewRotation2dFromDegrees(63)
		test.That(t, Rotation2dAlmostEqual(r.Plus(r.Inverse()), NewZeroRotation2d(), eps), test.ShouldBeTrue)
	})

	t.Run("direction guards", func(t *testing.T) {
		test.That(t, NewRotation2dFromDirection(0, 0).Radians(), test.ShouldEqual, 0.0)
		test.That(t, NewRotation2dFromDirection(math.NaN(), 1).Radians(), test.ShouldEqual, 0.0)
		test.That(t, NewRotation2dFromDirection(0, 3).Degrees(), test.ShouldAlmostEqual, 90.0)
	})

	t.Run("interpolate takes short way", func(t *testing.T) {
		r := NewRotation2dFromDegrees(170).Interpolate(NewRotation2dFromDegrees(-170), 0.5)
		test.That(t, math.Abs(r.Degrees()), test.ShouldAlmostEqual, 180.0)
	})
}

func TestTranslation2d(t *testing.T) {
	tr := NewTranslation2d(1, 0).RotateBy(NewRotation2dFromDegrees(90))
	test.That(t, Translation2dAlmostEqual(tr, NewTranslation2d(0, 1), eps), test.ShouldBeTrue)
	test.That(t, NewTranslation2d(3, 4).Norm(), test.ShouldAlmostEqual, 5.0)
	test.That(t, NewTranslation2d(0, 0).Angle().Radians(), test.ShouldEqual, 0.0)
	test.That(t, NewTranslation2d(1, 1).Cross(NewTranslation2d(-1, 1)), test.ShouldAlmostEqual, 2.0)
	mid := NewTranslation2d(0, 0).Interpolate(NewTranslation2d(2, 4), 0.5)
	test.That(t, Translation2dAlmostEqual(mid, NewTranslation2d(1, 2), eps), test.ShouldBeTrue)
}

func TestPose2dTransforms(t *testing.T) {
	start := NewPose2d(1, 2, NewRotation2dFromDegrees(90))

	moved := start.TransformBy(Transform2d{Translation: NewTranslation2d(1, 0)})
	test.That(t, Pose2dAlmostEqual(moved, NewPose2d(1, 3, NewRotation2dFromDegrees(90)), eps, eps), test.ShouldBeTrue)

	rel := moved.RelativeTo(start)
	test.That(t, Pose2dAlmostEqual(rel, NewPose2d(1, 0, NewZeroRotation2d()), eps, eps), test.ShouldBeTrue)

	tf := moved.Minus(start)
	test.That(t, Pose2dAlmostEqual(start.TransformBy(tf), moved, eps, eps), test.ShouldBeTrue)
	test.That(t, Pose2dAlmostEqual(moved.TransformBy(tf.Inverse()), start, eps, eps), test.ShouldBeTrue)
}

func TestPose2dExpLog(t *testing.T) {
	t.Run("straight line", func(t *testing.T) {
		p := Pose2d{}.Exp(Twist2d{DX: 0.02})
		test.That(t, Pose2dAlmostEqual(p, NewPose2d(0.02, 0, NewZeroRotation2d()), eps, eps), test.ShouldBeTrue)
	})

	t.Run("quarter circle", func(t *testing.T) {
		p := Pose2d{}.Exp(Twist2d{DX: math.Pi / 2, DTheta: math.Pi / 2})
		test.That(t, Pose2dAlmostEqual(p, NewPose2d(1, 1, NewRotation2dFromDegrees(90)), 1e-9, 1e-9),
			test.ShouldBeTrue)
	})

	t.Run("round trip", func(t *testing.T) {
		for _, end := range []Pose2d{
			NewPose2d(1, 0, NewZeroRotation2d()),
			NewPose2d(-2, 3, NewRotation2dFromDegrees(45)),
			NewPose2d(0.5, -0.25, NewRotation2dFromDegrees(-179)),
			NewPose2d(0, 0, NewRotation2dFromDegrees(1e-10)),
		} {
			start := NewPose2d(0.3, -0.7, NewRotation2dFromDegrees(20))
			twist := start.Log(end)
			test.That(t, Pose2dAlmostEqual(start.Exp(twist), end, 1e-9, 1e-9), test.ShouldBeTrue)
		}
	})
}

func TestPose2dInterpolate(t *testing.T) {
	start := Pose2d{}
	end := NewPose2d(2, 0, NewZeroRotation2d())
	test.That(t, Pose2dAlmostEqual(start.Interpolate(end, 0.25), NewPose2d(0.5, 0, NewZeroRotation2d()), eps, eps),
		test.ShouldBeTrue)
	test.That(t, start.Interpolate(end, -1), test.ShouldResemble, start)
	test.That(t, start.Interpolate(end, 2), test.ShouldResemble, end)
}

func TestPose2dNearest(t *testing.T) {
	p := NewPose2d(1, 1, NewZeroRotation2d())
	candidates := []Pose2d{
		NewPose2d(5, 5, NewZeroRotation2d()),
		NewPose2d(1.5, 1, NewRotation2dFromDegrees(90)),
		NewPose2d(0.5, 1, NewRotation2dFromDegrees(10)),
	}
	test.That(t, p.Nearest(candidates), test.ShouldResemble, candidates[2])
	test.That(t, p.Nearest(nil), test.ShouldResemble, p)
}
