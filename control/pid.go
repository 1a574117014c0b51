package control

import (
	"math"
	"sync"
	"time"

	"go.viam.com/swerve/utils"
)

// PIDConstants are the gains of a PID controller.
type PIDConstants struct {
	P float64
	I float64
	D float64
}

// PID is a discrete proportional-integral-derivative controller. The integral term is clamped
// to a configurable range to limit windup.
type PID struct {
	mu sync.Mutex

	kp, ki, kd float64

	integral           float64
	minIntegral        float64
	maxIntegral        float64
	prevError          float64
	haveError          bool
	errorTolerance     float64
	continuous         bool
	minInput, maxInput float64
}

// NewPID returns a controller with an integral range of [-1, 1] and a tolerance of 0.05.
func NewPID(constants PIDConstants) *PID {
	return &PID{
		kp:             constants.P,
		ki:             constants.I,
		kd:             constants.D,
		minIntegral:    -1,
		maxIntegral:    1,
		errorTolerance: 0.05,
	}
}

// Constants returns the gains.
func (p *PID) Constants() PIDConstants {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PIDConstants{P: p.kp, I: p.ki, D: p.kd}
}

// SetConstants changes the gains without resetting accumulated state.
func (p *PID) SetConstants(constants PIDConstants) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kp, p.ki, p.kd = constants.P, constants.I, constants.D
}

// EnableContinuousInput treats lo and hi as the same point, so that error is always taken the
// short way around. Used for headings.
func (p *PID) EnableContinuousInput(lo, hi float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.continuous = true
	p.minInput, p.maxInput = lo, hi
}

// SetIntegratorRange bounds the integral term's contribution to the output.
func (p *PID) SetIntegratorRange(lo, hi float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.minIntegral, p.maxIntegral = lo, hi
}

// SetTolerance sets the error within which AtSetpoint is true.
func (p *PID) SetTolerance(tolerance float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorTolerance = tolerance
}

// Calculate returns the output for one step of dt toward setpoint.
func (p *PID) Calculate(measurement, setpoint float64, dt time.Duration) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := setpoint - measurement
	if p.continuous {
		half := (p.maxInput - p.minInput) / 2
		err = utils.InputModulus(err, -half, half)
	}

	dtS := dt.Seconds()
	deriv := 0.0
	if dtS > 0 {
		if p.haveError {
			deriv = (err - p.prevError) / dtS
		}
		if p.ki != 0 {
			// a negative gain flips the bounds
			lo, hi := p.minIntegral/p.ki, p.maxIntegral/p.ki
			p.integral = utils.Clamp(p.integral+err*dtS, math.Min(lo, hi), math.Max(lo, hi))
		}
	}
	p.prevError = err
	p.haveError = true

	out := p.kp*err + p.ki*p.integral + p.kd*deriv
	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0
	}
	return out
}

// AtSetpoint reports whether the last error was within tolerance.
func (p *PID) AtSetpoint() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.haveError && math.Abs(p.prevError) <= p.errorTolerance
}

// Reset clears the integral and derivative state.
func (p *PID) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.integral = 0
	p.prevError = 0
	p.haveError = false
}
