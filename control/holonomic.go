package control

import (
	"math"
	"sync"
	"time"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

// HolonomicController drives a holonomic chassis toward a target pose. Field x and y are each
// corrected by a translation PID and heading by a rotation PID with wrapped input; any
// field-relative feedforward velocity from a trajectory is added before the result is turned
// into robot-relative speeds.
type HolonomicController struct {
	x, y, theta *PID

	mu        sync.Mutex
	poseError spatialmath.Transform2d
	haveError bool
}

// NewHolonomicController returns a controller using translation gains on x and y and
// rotation gains on heading.
func NewHolonomicController(translation, rotation PIDConstants) *HolonomicController {
	hc := &HolonomicController{
		x:     NewPID(translation),
		y:     NewPID(translation),
		theta: NewPID(rotation),
	}
	hc.theta.EnableContinuousInput(-math.Pi, math.Pi)
	return hc
}

// Calculate returns robot-relative speeds for one step of dt from current toward target.
// feedforward is a field-relative velocity, for example a trajectory's, and may be zero.
func (hc *HolonomicController) Calculate(
	current, target spatialmath.Pose2d,
	feedforward kinematics.ChassisSpeeds,
	dt time.Duration,
) kinematics.ChassisSpeeds {
	hc.mu.Lock()
	hc.poseError = target.Minus(current)
	hc.haveError = true
	hc.mu.Unlock()

	field := kinematics.ChassisSpeeds{
		VX:    feedforward.VX + hc.x.Calculate(current.X(), target.X(), dt),
		VY:    feedforward.VY + hc.y.Calculate(current.Y(), target.Y(), dt),
		Omega: feedforward.Omega + hc.theta.Calculate(current.Rotation.Radians(), target.Rotation.Radians(), dt),
	}
	return kinematics.FromFieldRelative(field, current.Rotation)
}

// AtReference reports whether the last Calculate was within translationTolerance meters and
// rotationTolerance radians of its target.
func (hc *HolonomicController) AtReference(translationTolerance, rotationTolerance float64) bool {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	if !hc.haveError {
		return false
	}
	return hc.poseError.Translation.Norm() <= translationTolerance &&
		math.Abs(hc.poseError.Rotation.Radians()) <= rotationTolerance
}

// Reset clears all PID state.
func (hc *HolonomicController) Reset() {
	hc.x.Reset()
	hc.y.Reset()
	hc.theta.Reset()
	hc.mu.Lock()
	hc.haveError = false
	hc.mu.Unlock()
}
