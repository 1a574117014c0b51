package utils

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestAngleConversions(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90.0)
	test.That(t, RadToDeg(DegToRad(-37.5)), test.ShouldAlmostEqual, -37.5)
}

func TestAngleModulus(t *testing.T) {
	for _, tc := range []struct {
		in       float64
		expected float64
	}{
		{0, 0},
		{math.Pi / 2, math.Pi / 2},
		{3 * math.Pi / 2, -math.Pi / 2},
		{-3 * math.Pi / 2, math.Pi / 2},
		{5 * math.Pi, -math.Pi},
	} {
		test.That(t, AngleModulus(tc.in), test.ShouldAlmostEqual, tc.expected)
	}
}

func TestClampAndFinite(t *testing.T) {
	test.That(t, Clamp(5, -1, 1), test.ShouldEqual, 1.0)
	test.That(t, Clamp(-5, -1, 1), test.ShouldEqual, -1.0)
	test.That(t, Clamp(0.25, -1, 1), test.ShouldEqual, 0.25)
	test.That(t, IsFinite(math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)
	test.That(t, IsFinite(3), test.ShouldBeTrue)
}
