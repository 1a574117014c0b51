package kinematics

import (
	"fmt"
	"time"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// ChassisSpeeds is the velocity of the whole robot: vx and vy in meters per second and omega in
// radians per second, counter-clockwise positive. Whether the components are field relative or
// robot relative is tracked by the caller.
type ChassisSpeeds struct {
	VX    float64
	VY    float64
	Omega float64
}

// Plus adds two chassis speeds component-wise.
func (s ChassisSpeeds) Plus(other ChassisSpeeds) ChassisSpeeds {
	return ChassisSpeeds{VX: s.VX + other.VX, VY: s.VY + other.VY, Omega: s.Omega + other.Omega}
}

// Minus subtracts other from s component-wise.
func (s ChassisSpeeds) Minus(other ChassisSpeeds) ChassisSpeeds {
	return s.Plus(other.Negate())
}

// Negate reverses every component.
func (s ChassisSpeeds) Negate() ChassisSpeeds {
	return s.Times(-1)
}

// Times scales every component.
func (s ChassisSpeeds) Times(scalar float64) ChassisSpeeds {
	return ChassisSpeeds{VX: s.VX * scalar, VY: s.VY * scalar, Omega: s.Omega * scalar}
}

// Div divides every component by a scalar.
func (s ChassisSpeeds) Div(scalar float64) ChassisSpeeds {
	return s.Times(1 / scalar)
}

// Translation returns the linear part of the speeds as a vector.
func (s ChassisSpeeds) Translation() spatialmath.Translation2d {
	return spatialmath.NewTranslation2d(s.VX, s.VY)
}

// IsFinite reports whether every component is a finite number.
func (s ChassisSpeeds) IsFinite() bool {
	return utils.IsFinite(s.VX) && utils.IsFinite(s.VY) && utils.IsFinite(s.Omega)
}

func (s ChassisSpeeds) String() string {
	return fmt.Sprintf("ChassisSpeeds(vx: %.3f m/s, vy: %.3f m/s, omega: %.3f rad/s)", s.VX, s.VY, s.Omega)
}

// FromFieldRelative converts field-relative speeds into the robot frame given the robot's
// current field heading.
func FromFieldRelative(fieldSpeeds ChassisSpeeds, heading spatialmath.Rotation2d) ChassisSpeeds {
	v := fieldSpeeds.Translation().RotateBy(heading.Inverse())
	return ChassisSpeeds{VX: v.X, VY: v.Y, Omega: fieldSpeeds.Omega}
}

// ToFieldRelative converts robot-relative speeds into the field frame given the robot's
// current field heading.
func ToFieldRelative(robotSpeeds ChassisSpeeds, heading spatialmath.Rotation2d) ChassisSpeeds {
	v := robotSpeeds.Translation().RotateBy(heading)
	return ChassisSpeeds{VX: v.X, VY: v.Y, Omega: robotSpeeds.Omega}
}

// Discretize compensates for the arc a robot sweeps when a single velocity is held for dt
// while rotating. It returns the straight-line speeds whose exponential over dt lands on the
// same pose as the continuous command. When omega is zero the input is returned unchanged.
func Discretize(speeds ChassisSpeeds, dt time.Duration) ChassisSpeeds {
	if dt <= 0 || speeds.Omega == 0 {
		return speeds
	}
	dts := dt.Seconds()
	desiredDelta := spatialmath.NewPose2d(
		speeds.VX*dts,
		speeds.VY*dts,
		spatialmath.NewRotation2dFromRadians(speeds.Omega*dts),
	)
	twist := spatialmath.Pose2d{}.Log(desiredDelta)
	return ChassisSpeeds{VX: twist.DX / dts, VY: twist.DY / dts, Omega: twist.DTheta / dts}
}
