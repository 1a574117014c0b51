// Package odometry tracks a swerve robot's pose by dead-reckoning from wheel travel and gyro
// heading alone, with no external correction.
package odometry

import (
	"sync"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// Odometry integrates module distance deltas and gyro heading into a running field pose.
// It is safe for concurrent use.
type Odometry struct {
	kin *kinematics.SwerveKinematics

	mu                sync.Mutex
	pose              spatialmath.Pose2d
	gyroOffset        spatialmath.Rotation2d
	previousAngle     spatialmath.Rotation2d
	previousPositions kinematics.ModulePositions
}

// New starts tracking at initialPose. The current gyro reading and module positions become
// the baseline, so the first Update measures motion from this moment on.
func New(
	kin *kinematics.SwerveKinematics,
	gyroAngle spatialmath.Rotation2d,
	positions kinematics.ModulePositions,
	initialPose spatialmath.Pose2d,
) *Odometry {
	return &Odometry{
		kin:               kin,
		pose:              initialPose,
		gyroOffset:        initialPose.Rotation.Minus(gyroAngle),
		previousAngle:     initialPose.Rotation,
		previousPositions: positions,
	}
}

// Update advances the pose by the motion since the previous sample and returns it. The
// heading comes from the gyro; the kinematics only contribute translation.
//
// A non-finite gyro reading keeps the previous heading. A non-finite module reading skips the
// cycle's motion; that module keeps its last finite baseline and every other module is
// re-baselined, so the next good sample integrates from there.
func (o *Odometry) Update(gyroAngle spatialmath.Rotation2d, positions kinematics.ModulePositions) spatialmath.Pose2d {
	o.mu.Lock()
	defer o.mu.Unlock()

	angle := o.previousAngle
	if gyroAngle.IsFinite() {
		angle = gyroAngle.Plus(o.gyroOffset)
	}

	twist := o.kin.ToTwist(o.previousPositions, positions)
	twist.DTheta = angle.Minus(o.previousAngle).Radians()

	translation := o.pose.Translation
	if twist.IsFinite() {
		translation = o.pose.Exp(twist).Translation
	}

	for i, p := range positions {
		if utils.IsFinite(p.DistanceMeters) && p.Angle.IsFinite() {
			o.previousPositions[i] = p
		}
	}
	o.previousAngle = angle
	o.pose = spatialmath.Pose2d{Translation: translation, Rotation: angle}
	return o.pose
}

// Pose returns the current dead-reckoned pose.
func (o *Odometry) Pose() spatialmath.Pose2d {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.pose
}

// ResetPosition jumps to pose and re-baselines the gyro and module positions so the next
// Update sees no spurious delta.
func (o *Odometry) ResetPosition(
	gyroAngle spatialmath.Rotation2d,
	positions kinematics.ModulePositions,
	pose spatialmath.Pose2d,
) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.pose = pose
	o.previousAngle = pose.Rotation
	o.gyroOffset = pose.Rotation.Minus(gyroAngle)
	o.previousPositions = positions
}

// ResetPose jumps to pose while keeping the current module baseline.
func (o *Odometry) ResetPose(pose spatialmath.Pose2d) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.gyroOffset = o.gyroOffset.Plus(pose.Rotation.Minus(o.pose.Rotation))
	o.pose = pose
	o.previousAngle = pose.Rotation
}

// ResetTranslation moves the pose without touching the heading.
func (o *Odometry) ResetTranslation(translation spatialmath.Translation2d) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pose.Translation = translation
}

// ResetRotation changes the heading without moving the pose.
func (o *Odometry) ResetRotation(rotation spatialmath.Rotation2d) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.gyroOffset = o.gyroOffset.Plus(rotation.Minus(o.pose.Rotation))
	o.pose.Rotation = rotation
	o.previousAngle = rotation
}
