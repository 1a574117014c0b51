// Package kinematics converts between whole-chassis velocity and per-module swerve commands.
package kinematics

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/utils"
)

// ErrSingularGeometry is returned when the module offsets cannot resolve a rotation, such as
// when every module sits on the chassis center.
var ErrSingularGeometry = errors.New("module geometry is singular")

// StoppedSpeed is the module speed in meters per second below which a module is treated as
// commanded to stop.
const StoppedSpeed = 1e-6

// SwerveKinematics maps chassis speeds to module states and back for a fixed module geometry.
// It is immutable after construction and safe to share between goroutines.
type SwerveKinematics struct {
	modules ModuleTranslations

	// inverse maps [vx vy omega] to the interleaved module velocity components
	// [v0x v0y v1x v1y ...]. forward is its least-squares pseudo-inverse.
	inverse *mat.Dense
	forward *mat.Dense
}

// NewSwerveKinematics builds the kinematics for the given module offsets from the chassis
// center. The pseudo-inverse is computed once here and reused for every forward solve.
func NewSwerveKinematics(modules ModuleTranslations) (*SwerveKinematics, error) {
	for i, m := range modules {
		if math.IsNaN(m.X) || math.IsNaN(m.Y) || math.IsInf(m.X, 0) || math.IsInf(m.Y, 0) {
			return nil, errors.Errorf("module %d has a non-finite offset %v", i, m)
		}
	}

	inverse := mat.NewDense(2*NumModules, 3, nil)
	for i, m := range modules {
		inverse.SetRow(2*i, []float64{1, 0, -m.Y})
		inverse.SetRow(2*i+1, []float64{0, 1, m.X})
	}

	var normal mat.Dense
	normal.Mul(inverse.T(), inverse)

	var normalInv mat.Dense
	if err := normalInv.Inverse(&normal); err != nil {
		return nil, errors.Wrapf(ErrSingularGeometry, "cannot invert %v", err)
	}

	forward := mat.NewDense(3, 2*NumModules, nil)
	forward.Mul(&normalInv, inverse.T())

	return &SwerveKinematics{modules: modules, inverse: inverse, forward: forward}, nil
}

// Translations returns the module offsets this kinematics was built with.
func (k *SwerveKinematics) Translations() ModuleTranslations {
	return k.modules
}

// ToModuleStates returns the velocity each module must have for the chassis to move at speeds.
// A module with no commanded velocity reports speed zero with the zero rotation; pair this with
// HoldHeadings to keep modules from snapping back when the robot stops.
func (k *SwerveKinematics) ToModuleStates(speeds ChassisSpeeds) ModuleStates {
	chassis := mat.NewVecDense(3, []float64{speeds.VX, speeds.VY, speeds.Omega})
	var moduleVec mat.VecDense
	moduleVec.MulVec(k.inverse, chassis)
	return statesFromComponents(&moduleVec)
}

// ToModuleStatesAround is ToModuleStates with the robot rotating about center instead of the
// chassis origin.
func (k *SwerveKinematics) ToModuleStatesAround(
	speeds ChassisSpeeds,
	center spatialmath.Translation2d,
) ModuleStates {
	var states ModuleStates
	for i, m := range k.modules {
		r := m.Minus(center)
		// v + omega x r, with omega along +z
		vx := speeds.VX - speeds.Omega*r.Y
		vy := speeds.VY + speeds.Omega*r.X
		states[i] = ModuleState{
			SpeedMetersPerSecond: math.Hypot(vx, vy),
			Angle:                spatialmath.NewRotation2dFromDirection(vx, vy),
		}
	}
	return states
}

// ToChassisSpeeds returns the chassis velocity that best explains the measured module states
// in the least-squares sense.
func (k *SwerveKinematics) ToChassisSpeeds(states ModuleStates) ChassisSpeeds {
	moduleVec := mat.NewVecDense(2*NumModules, nil)
	for i, s := range states {
		moduleVec.SetVec(2*i, s.SpeedMetersPerSecond*s.Angle.Cos())
		moduleVec.SetVec(2*i+1, s.SpeedMetersPerSecond*s.Angle.Sin())
	}
	v := k.solve(moduleVec)
	return ChassisSpeeds{VX: v[0], VY: v[1], Omega: v[2]}
}

// ToTwist returns the chassis displacement between two sets of module positions. The angle of
// each module is taken from end.
func (k *SwerveKinematics) ToTwist(start, end ModulePositions) spatialmath.Twist2d {
	var deltas ModulePositions
	for i := range end {
		deltas[i] = ModulePosition{
			DistanceMeters: end[i].DistanceMeters - start[i].DistanceMeters,
			Angle:          end[i].Angle,
		}
	}
	return k.ToTwistFromDeltas(deltas)
}

// ToTwistFromDeltas returns the chassis displacement for per-module distance deltas.
func (k *SwerveKinematics) ToTwistFromDeltas(deltas ModulePositions) spatialmath.Twist2d {
	moduleVec := mat.NewVecDense(2*NumModules, nil)
	for i, d := range deltas {
		moduleVec.SetVec(2*i, d.DistanceMeters*d.Angle.Cos())
		moduleVec.SetVec(2*i+1, d.DistanceMeters*d.Angle.Sin())
	}
	v := k.solve(moduleVec)
	return spatialmath.Twist2d{DX: v[0], DY: v[1], DTheta: v[2]}
}

func (k *SwerveKinematics) solve(moduleVec *mat.VecDense) [3]float64 {
	var chassis mat.VecDense
	chassis.MulVec(k.forward, moduleVec)
	return [3]float64{chassis.AtVec(0), chassis.AtVec(1), chassis.AtVec(2)}
}

func statesFromComponents(moduleVec *mat.VecDense) ModuleStates {
	var states ModuleStates
	for i := range states {
		x, y := moduleVec.AtVec(2*i), moduleVec.AtVec(2*i+1)
		states[i] = ModuleState{
			SpeedMetersPerSecond: math.Hypot(x, y),
			Angle:                spatialmath.NewRotation2dFromDirection(x, y),
		}
	}
	return states
}

// HoldHeadings keeps the previous angle for every module commanded to stop. Speeds below
// StoppedSpeed count as stopped and are zeroed, since the direction of a near-zero vector is
// noise. Non-finite states are handled as in FiniteStates.
func HoldHeadings(states, previous ModuleStates) ModuleStates {
	states = FiniteStates(states, previous)
	for i := range states {
		if math.Abs(states[i].SpeedMetersPerSecond) < StoppedSpeed {
			states[i] = ModuleState{Angle: previous[i].Angle}
		}
	}
	return states
}

// FiniteStates replaces every module state with a NaN or infinite component by a stop at the
// previous angle.
func FiniteStates(states, previous ModuleStates) ModuleStates {
	for i := range states {
		if !utils.IsFinite(states[i].SpeedMetersPerSecond) || !states[i].Angle.IsFinite() {
			states[i] = ModuleState{Angle: previous[i].Angle}
		}
	}
	return states
}
