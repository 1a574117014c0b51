package kinematics

import (
	"math"

	"go.viam.com/swerve/utils"
)

// Desaturate scales every module speed by the same factor so that none exceeds maxSpeed,
// preserving the ratios between modules and therefore the shape of the commanded motion.
// Angles are never touched. The returned bool reports whether any scaling happened. Applying
// Desaturate to its own output is a no-op. A NaN or infinite speed cannot be scaled and is
// zeroed; use FiniteStates first to also keep that module's previous angle.
func Desaturate(states ModuleStates, maxSpeed float64) (ModuleStates, bool) {
	states = zeroNonFinite(states)
	maxSpeed = math.Abs(maxSpeed)
	realMax := maxAbsSpeed(states)
	if !(realMax > maxSpeed) {
		return states, false
	}
	return scaleSpeeds(states, maxSpeed/realMax, maxSpeed), true
}

// DesaturateWithChassisLimits scales the module speeds so the chassis never asks for more than
// the attainable translational or rotational rate, whichever is the tighter constraint. It
// never scales speeds up, and a non-finite desired speed leaves the states alone.
func DesaturateWithChassisLimits(
	states ModuleStates,
	desired ChassisSpeeds,
	attainableMaxModuleSpeed float64,
	attainableMaxTranslational float64,
	attainableMaxRotational float64,
) (ModuleStates, bool) {
	states = zeroNonFinite(states)
	realMax := maxAbsSpeed(states)
	if attainableMaxTranslational == 0 || attainableMaxRotational == 0 || realMax == 0 || !desired.IsFinite() {
		return states, false
	}

	translationalK := math.Hypot(desired.VX, desired.VY) / attainableMaxTranslational
	rotationalK := math.Abs(desired.Omega) / attainableMaxRotational
	k := math.Max(translationalK, rotationalK)

	scale := math.Min(k*attainableMaxModuleSpeed/realMax, 1)
	if scale >= 1 {
		return states, false
	}
	return scaleSpeeds(states, scale, attainableMaxModuleSpeed), true
}

func zeroNonFinite(states ModuleStates) ModuleStates {
	for i := range states {
		if !utils.IsFinite(states[i].SpeedMetersPerSecond) {
			states[i].SpeedMetersPerSecond = 0
		}
	}
	return states
}

func maxAbsSpeed(states ModuleStates) float64 {
	var realMax float64
	for _, s := range states {
		realMax = math.Max(realMax, math.Abs(s.SpeedMetersPerSecond))
	}
	return realMax
}

// scaleSpeeds multiplies every speed by scale, clamping magnitudes to ceiling so rounding can
// never leave a module a hair above the limit.
func scaleSpeeds(states ModuleStates, scale, ceiling float64) ModuleStates {
	for i := range states {
		scaled := states[i].SpeedMetersPerSecond * scale
		states[i].SpeedMetersPerSecond = math.Copysign(math.Min(math.Abs(scaled), ceiling), scaled)
	}
	return states
}
