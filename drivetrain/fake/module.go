// Package fake implements simulated swerve hardware: modules, a gyro, the chassis physics that
// ties them together, and a delayed noisy vision camera.
package fake

import (
	"context"
	"sync"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

// Module is a simulated swerve module. Commanded states take effect immediately; distance
// accumulates as the chassis is stepped.
type Module struct {
	Name string

	mu       sync.Mutex
	state    kinematics.ModuleState
	distance float64
	err      error
	commands int
	cosine   bool
}

// NewModule returns a stopped module pointing forward.
func NewModule(name string) *Module {
	return &Module{Name: name}
}

// Position returns the accumulated distance and current angle.
func (m *Module) Position(ctx context.Context) (kinematics.ModulePosition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return kinematics.ModulePosition{}, m.err
	}
	return kinematics.ModulePosition{DistanceMeters: m.distance, Angle: m.state.Angle}, nil
}

// State returns the current speed and angle.
func (m *Module) State(ctx context.Context) (kinematics.ModuleState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return kinematics.ModuleState{}, m.err
	}
	return m.state, nil
}

// SetDesiredState applies the command after optimizing it against the current angle, as a
// real module controller would. With cosine scaling on, the speed is also reduced by the
// steering error the wheel starts the cycle with.
func (m *Module) SetDesiredState(ctx context.Context, state kinematics.ModuleState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	state = state.Optimize(m.state.Angle)
	if m.cosine {
		state = state.CosineScale(m.state.Angle)
	}
	m.state = state
	m.commands++
	return nil
}

// SetCosineScaling turns cosine scaling of commanded speeds on or off.
func (m *Module) SetCosineScaling(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cosine = enabled
}

// SetError makes every call fail with err until it is cleared with nil.
func (m *Module) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Commands returns how many commands were accepted.
func (m *Module) Commands() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commands
}

// SetAngle points the wheel without moving it.
func (m *Module) SetAngle(angle spatialmath.Rotation2d) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.Angle = angle
}

// advance rolls the wheel for seconds and returns the distance delta and the angle it rolled at.
func (m *Module) advance(seconds float64) kinematics.ModulePosition {
	m.mu.Lock()
	defer m.mu.Unlock()
	delta := m.state.SpeedMetersPerSecond * seconds
	m.distance += delta
	return kinematics.ModulePosition{DistanceMeters: delta, Angle: m.state.Angle}
}
