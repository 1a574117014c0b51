// Package telemetry publishes one-way per-cycle drivetrain state to dashboards and loggers.
package telemetry

import (
	"time"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

// PoseSample is a field pose flattened for the wire.
type PoseSample struct {
	X          float64 `json:"x_m"`
	Y          float64 `json:"y_m"`
	HeadingDeg float64 `json:"heading_deg"`
}

// NewPoseSample flattens a Pose2d.
func NewPoseSample(p spatialmath.Pose2d) PoseSample {
	return PoseSample{X: p.X(), Y: p.Y(), HeadingDeg: p.Rotation.Degrees()}
}

// ModuleSample is one module's measured state.
type ModuleSample struct {
	SpeedMPS float64 `json:"speed_mps"`
	AngleDeg float64 `json:"angle_deg"`
}

// SpeedsSample is a ChassisSpeeds flattened for the wire.
type SpeedsSample struct {
	VX    float64 `json:"vx_mps"`
	VY    float64 `json:"vy_mps"`
	Omega float64 `json:"omega_rad_ps"`
}

// Sample is everything published about the drivetrain for one control cycle.
type Sample struct {
	Time            time.Time                           `json:"time"`
	EstimatedPose   PoseSample                          `json:"estimated_pose"`
	OdometryPose    PoseSample                          `json:"odometry_pose"`
	GyroDeg         float64                             `json:"gyro_deg"`
	Modules         [kinematics.NumModules]ModuleSample `json:"modules"`
	Commanded       SpeedsSample                        `json:"commanded"`
	Measured        SpeedsSample                        `json:"measured"`
	Saturated       bool                                `json:"saturated"`
	SaturationCount uint64                              `json:"saturation_count"`
}

// NewModuleSamples converts measured module states.
func NewModuleSamples(states kinematics.ModuleStates) [kinematics.NumModules]ModuleSample {
	var out [kinematics.NumModules]ModuleSample
	for i, s := range states {
		out[i] = ModuleSample{SpeedMPS: s.SpeedMetersPerSecond, AngleDeg: s.Angle.Degrees()}
	}
	return out
}

// NewSpeedsSample flattens a ChassisSpeeds.
func NewSpeedsSample(s kinematics.ChassisSpeeds) SpeedsSample {
	return SpeedsSample{VX: s.VX, VY: s.VY, Omega: s.Omega}
}
