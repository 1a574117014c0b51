package kinematics

import (
	"fmt"
	"math"

	"go.viam.com/swerve/spatialmath"
)

// NumModules is the number of swerve modules on the drivetrain.
const NumModules = 4

// ModuleState is the instantaneous velocity of one module in its own steering frame.
type ModuleState struct {
	SpeedMetersPerSecond float64
	Angle                spatialmath.Rotation2d
}

// ModulePosition is the cumulative distance driven by one module and its current steering
// angle. The distance is never reset between cycles; consumers difference consecutive samples.
type ModulePosition struct {
	DistanceMeters float64
	Angle          spatialmath.Rotation2d
}

// ModuleStates holds one state per module, in geometry order.
type ModuleStates [NumModules]ModuleState

// ModulePositions holds one position per module, in geometry order.
type ModulePositions [NumModules]ModulePosition

// ModuleTranslations holds each module's fixed offset from the chassis center, in meters.
type ModuleTranslations [NumModules]spatialmath.Translation2d

// Optimize returns an equivalent target that never turns the module more than 90 degrees
// from current, reversing the drive direction when that is shorter.
func (ms ModuleState) Optimize(current spatialmath.Rotation2d) ModuleState {
	delta := ms.Angle.Minus(current)
	if math.Abs(delta.Degrees()) > 90 {
		return ModuleState{
			SpeedMetersPerSecond: -ms.SpeedMetersPerSecond,
			Angle:                ms.Angle.Plus(spatialmath.NewRotation2dFromDegrees(180)),
		}
	}
	return ms
}

// CosineScale reduces the speed by the cosine of the steering error so a module that has not
// finished turning does not push the robot sideways.
func (ms ModuleState) CosineScale(current spatialmath.Rotation2d) ModuleState {
	ms.SpeedMetersPerSecond *= ms.Angle.Minus(current).Cos()
	return ms
}

func (ms ModuleState) String() string {
	return fmt.Sprintf("ModuleState(%.3f m/s, %.2f deg)", ms.SpeedMetersPerSecond, ms.Angle.Degrees())
}

// Interpolate blends distance linearly and angle along the shortest arc; t is clamped to [0, 1].
func (mp ModulePosition) Interpolate(end ModulePosition, t float64) ModulePosition {
	t = math.Max(0, math.Min(1, t))
	return ModulePosition{
		DistanceMeters: mp.DistanceMeters + (end.DistanceMeters-mp.DistanceMeters)*t,
		Angle:          mp.Angle.Interpolate(end.Angle, t),
	}
}

func (mp ModulePosition) String() string {
	return fmt.Sprintf("ModulePosition(%.4f m, %.2f deg)", mp.DistanceMeters, mp.Angle.Degrees())
}

// Speeds returns the signed speed of each module.
func (states ModuleStates) Speeds() [NumModules]float64 {
	var out [NumModules]float64
	for i, s := range states {
		out[i] = s.SpeedMetersPerSecond
	}
	return out
}
