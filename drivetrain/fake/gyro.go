package fake

import (
	"context"
	"sync"

	"go.viam.com/swerve/spatialmath"
)

// Gyro is a simulated gyro. Drift per second of simulated time can be added to model a real
// sensor's bias.
type Gyro struct {
	mu    sync.Mutex
	yaw   spatialmath.Rotation2d
	drift float64
	err   error
}

// NewGyro returns a gyro reading zero.
func NewGyro() *Gyro {
	return &Gyro{}
}

// Yaw returns the heading.
func (g *Gyro) Yaw(ctx context.Context) (spatialmath.Rotation2d, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return spatialmath.Rotation2d{}, g.err
	}
	return g.yaw, nil
}

// SetYaw overwrites the heading.
func (g *Gyro) SetYaw(ctx context.Context, yaw spatialmath.Rotation2d) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return g.err
	}
	g.yaw = yaw
	return nil
}

// SetDrift sets the bias in radians per second.
func (g *Gyro) SetDrift(radiansPerSecond float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.drift = radiansPerSecond
}

// SetError makes every call fail with err until it is cleared with nil.
func (g *Gyro) SetError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.err = err
}

// rotate turns the gyro by the true rotation plus drift over seconds.
func (g *Gyro) rotate(radians, seconds float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.yaw = g.yaw.Plus(spatialmath.NewRotation2dFromRadians(radians + g.drift*seconds))
}
