package fake

import (
	"sync"
	"time"

	"go.viam.com/swerve/drivetrain"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

// Chassis moves a simulated robot according to what its modules are commanded to do and keeps
// the ground-truth pose.
type Chassis struct {
	kin     *kinematics.SwerveKinematics
	modules [kinematics.NumModules]*Module
	gyro    *Gyro

	mu   sync.Mutex
	pose spatialmath.Pose2d
}

// NewChassis builds four modules named after names and a gyro, starting at pose.
func NewChassis(
	kin *kinematics.SwerveKinematics,
	names [kinematics.NumModules]string,
	pose spatialmath.Pose2d,
) *Chassis {
	c := &Chassis{kin: kin, gyro: NewGyro(), pose: pose}
	for i, name := range names {
		c.modules[i] = NewModule(name)
	}
	return c
}

// Modules returns the modules as drivetrain hardware.
func (c *Chassis) Modules() [kinematics.NumModules]drivetrain.Module {
	var out [kinematics.NumModules]drivetrain.Module
	for i, m := range c.modules {
		out[i] = m
	}
	return out
}

// SetCosineScaling turns cosine scaling on or off for every module.
func (c *Chassis) SetCosineScaling(enabled bool) {
	for _, m := range c.modules {
		m.SetCosineScaling(enabled)
	}
}

// Module returns the i'th simulated module.
func (c *Chassis) Module(i int) *Module {
	return c.modules[i]
}

// Gyro returns the simulated gyro.
func (c *Chassis) Gyro() *Gyro {
	return c.gyro
}

// Pose returns the ground-truth pose.
func (c *Chassis) Pose() spatialmath.Pose2d {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

// Step advances the simulation by dt.
func (c *Chassis) Step(dt time.Duration) {
	seconds := dt.Seconds()
	var deltas kinematics.ModulePositions
	for i, m := range c.modules {
		deltas[i] = m.advance(seconds)
	}
	twist := c.kin.ToTwistFromDeltas(deltas)

	c.mu.Lock()
	c.pose = c.pose.Exp(twist)
	c.mu.Unlock()
	c.gyro.rotate(twist.DTheta, seconds)
}
