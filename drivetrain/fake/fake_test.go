package fake

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

func newChassis(t *testing.T) *Chassis {
	t.Helper()
	kin, err := kinematics.NewSwerveKinematics(kinematics.ModuleTranslations{
		spatialmath.NewTranslation2d(0.3, 0.3),
		spatialmath.NewTranslation2d(0.3, -0.3),
		spatialmath.NewTranslation2d(-0.3, -0.3),
		spatialmath.NewTranslation2d(-0.3, 0.3),
	})
	test.That(t, err, test.ShouldBeNil)
	return NewChassis(kin, [kinematics.NumModules]string{"fl", "fr", "rr", "rl"}, spatialmath.Pose2d{})
}

func command(t *testing.T, c *Chassis, speeds kinematics.ChassisSpeeds) {
	t.Helper()
	states := c.kin.ToModuleStates(speeds)
	for i, m := range c.Modules() {
		test.That(t, m.SetDesiredState(context.Background(), states[i]), test.ShouldBeNil)
	}
}

func TestModule(t *testing.T) {
	ctx := context.Background()
	m := NewModule("fl")

	err := m.SetDesiredState(ctx, kinematics.ModuleState{
		SpeedMetersPerSecond: 2,
		Angle:                spatialmath.NewRotation2dFromDegrees(180),
	})
	test.That(t, err, test.ShouldBeNil)
	st, err := m.State(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.SpeedMetersPerSecond, test.ShouldAlmostEqual, -2)
	test.That(t, st.Angle.Degrees(), test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, m.Commands(), test.ShouldEqual, 1)

	delta := m.advance(0.5)
	test.That(t, delta.DistanceMeters, test.ShouldAlmostEqual, -1)
	pos, err := m.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pos.DistanceMeters, test.ShouldAlmostEqual, -1)

	m.SetError(errors.New("can timeout"))
	_, err = m.Position(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = m.State(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, m.SetDesiredState(ctx, kinematics.ModuleState{}), test.ShouldNotBeNil)
	m.SetError(nil)
	_, err = m.Position(ctx)
	test.That(t, err, test.ShouldBeNil)
}

func TestModuleCosineScaling(t *testing.T) {
	ctx := context.Background()
	m := NewModule("fl")
	m.SetCosineScaling(true)

	// the wheel starts the cycle 60 degrees off target
	err := m.SetDesiredState(ctx, kinematics.ModuleState{
		SpeedMetersPerSecond: 2,
		Angle:                spatialmath.NewRotation2dFromDegrees(60),
	})
	test.That(t, err, test.ShouldBeNil)
	st, err := m.State(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.SpeedMetersPerSecond, test.ShouldAlmostEqual, 1)
	test.That(t, st.Angle.Degrees(), test.ShouldAlmostEqual, 60)

	// once aligned the full speed comes through
	test.That(t, m.SetDesiredState(ctx, kinematics.ModuleState{
		SpeedMetersPerSecond: 2,
		Angle:                spatialmath.NewRotation2dFromDegrees(60),
	}), test.ShouldBeNil)
	st, err = m.State(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, st.SpeedMetersPerSecond, test.ShouldAlmostEqual, 2)

	t.Run("disabled", func(t *testing.T) {
		m := NewModule("fr")
		test.That(t, m.SetDesiredState(ctx, kinematics.ModuleState{
			SpeedMetersPerSecond: 2,
			Angle:                spatialmath.NewRotation2dFromDegrees(60),
		}), test.ShouldBeNil)
		st, err := m.State(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, st.SpeedMetersPerSecond, test.ShouldAlmostEqual, 2)
	})

	t.Run("chassis", func(t *testing.T) {
		c := newChassis(t)
		c.SetCosineScaling(true)
		command(t, c, kinematics.ChassisSpeeds{VY: 1})
		for i := range c.modules {
			st, err := c.Module(i).State(ctx)
			test.That(t, err, test.ShouldBeNil)
			test.That(t, st.SpeedMetersPerSecond, test.ShouldAlmostEqual, 0, 1e-9)
		}
	})
}

func TestChassisStep(t *testing.T) {
	ctx := context.Background()

	t.Run("straight", func(t *testing.T) {
		c := newChassis(t)
		command(t, c, kinematics.ChassisSpeeds{VX: 1, VY: 0.5})
		for i := 0; i < 50; i++ {
			c.Step(20 * time.Millisecond)
		}
		test.That(t, c.Pose().X(), test.ShouldAlmostEqual, 1, 1e-9)
		test.That(t, c.Pose().Y(), test.ShouldAlmostEqual, 0.5, 1e-9)
		yaw, err := c.Gyro().Yaw(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, yaw.Radians(), test.ShouldAlmostEqual, 0, 1e-9)
		pos, err := c.Module(0).Position(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, pos.DistanceMeters, test.ShouldAlmostEqual, math.Hypot(1, 0.5), 1e-9)
	})

	t.Run("spin in place", func(t *testing.T) {
		c := newChassis(t)
		command(t, c, kinematics.ChassisSpeeds{Omega: 1})
		for i := 0; i < 50; i++ {
			c.Step(20 * time.Millisecond)
		}
		test.That(t, c.Pose().Translation.Norm(), test.ShouldAlmostEqual, 0, 1e-9)
		test.That(t, c.Pose().Rotation.Radians(), test.ShouldAlmostEqual, 1, 1e-9)
		yaw, err := c.Gyro().Yaw(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, yaw.Radians(), test.ShouldAlmostEqual, 1, 1e-9)
	})

	t.Run("gyro drift", func(t *testing.T) {
		c := newChassis(t)
		c.Gyro().SetDrift(0.1)
		c.Step(time.Second)
		yaw, err := c.Gyro().Yaw(ctx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, yaw.Radians(), test.ShouldAlmostEqual, 0.1, 1e-9)
		test.That(t, c.Pose().Rotation.Radians(), test.ShouldAlmostEqual, 0, 1e-9)
	})
}

func TestGyro(t *testing.T) {
	ctx := context.Background()
	g := NewGyro()
	test.That(t, g.SetYaw(ctx, spatialmath.NewRotation2dFromDegrees(30)), test.ShouldBeNil)
	yaw, err := g.Yaw(ctx)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, yaw.Degrees(), test.ShouldAlmostEqual, 30)

	g.SetError(errors.New("disconnected"))
	_, err = g.Yaw(ctx)
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, g.SetYaw(ctx, spatialmath.Rotation2d{}), test.ShouldNotBeNil)
}

func TestCamera(t *testing.T) {
	mock := clock.NewMock()
	c := newChassis(t)
	command(t, c, kinematics.ChassisSpeeds{VX: 1})
	c.Step(time.Second)

	t.Run("latency", func(t *testing.T) {
		cam := NewCamera(c, mock, estimator.StdDevs{}, 100*time.Millisecond, 1)
		capturedAt := mock.Now()
		cam.Capture()
		test.That(t, cam.Ready(), test.ShouldBeEmpty)

		mock.Add(50 * time.Millisecond)
		cam.Capture()
		test.That(t, cam.Ready(), test.ShouldBeEmpty)

		mock.Add(50 * time.Millisecond)
		ready := cam.Ready()
		test.That(t, ready, test.ShouldHaveLength, 1)
		test.That(t, ready[0].CapturedAt, test.ShouldEqual, capturedAt)
		test.That(t, spatialmath.Pose2dAlmostEqual(ready[0].Pose, c.Pose(), 1e-12, 1e-12), test.ShouldBeTrue)
		test.That(t, cam.Ready(), test.ShouldBeEmpty)

		mock.Add(50 * time.Millisecond)
		test.That(t, cam.Ready(), test.ShouldHaveLength, 1)
	})

	t.Run("noise", func(t *testing.T) {
		cam := NewCamera(c, mock, estimator.StdDevs{X: 0.05, Y: 0.05, Theta: 0.01}, 0, 7)
		var sumX float64
		const n = 2000
		for i := 0; i < n; i++ {
			cam.Capture()
		}
		ready := cam.Ready()
		test.That(t, ready, test.ShouldHaveLength, n)
		for _, o := range ready {
			sumX += o.Pose.X()
		}
		test.That(t, sumX/n, test.ShouldAlmostEqual, c.Pose().X(), 0.01)
		test.That(t, ready[0].Pose.X(), test.ShouldNotEqual, ready[1].Pose.X())
	})
}
