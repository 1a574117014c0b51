package drivetrain

import (
	"context"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

// A Module is one independently steered wheel.
type Module interface {
	// Position returns the cumulative drive distance and the current steering angle.
	Position(ctx context.Context) (kinematics.ModulePosition, error)
	// State returns the current wheel speed and steering angle.
	State(ctx context.Context) (kinematics.ModuleState, error)
	// SetDesiredState commands a wheel speed and steering angle.
	SetDesiredState(ctx context.Context, state kinematics.ModuleState) error
}

// A Gyro reports the chassis heading. Counter-clockwise is positive.
type Gyro interface {
	Yaw(ctx context.Context) (spatialmath.Rotation2d, error)
	SetYaw(ctx context.Context, yaw spatialmath.Rotation2d) error
}
