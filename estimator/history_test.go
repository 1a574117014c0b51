package estimator

import (
	"testing"
	"time"

	"go.viam.com/test"

	"go.viam.com/swerve/spatialmath"
)

func TestPoseHistory(t *testing.T) {
	start := time.Unix(1000, 0)
	h := newPoseHistory(time.Second)

	_, ok := h.Sample(start)
	test.That(t, ok, test.ShouldBeFalse)

	for i := 0; i <= 10; i++ {
		at := start.Add(time.Duration(i) * 100 * time.Millisecond)
		h.Add(at, spatialmath.NewPose2d(float64(i), 0, spatialmath.NewZeroRotation2d()))
	}
	test.That(t, h.Len(), test.ShouldEqual, 10)

	oldest, ok := h.Oldest()
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, oldest, test.ShouldEqual, start.Add(100*time.Millisecond))

	t.Run("exact", func(t *testing.T) {
		p, ok := h.Sample(start.Add(300 * time.Millisecond))
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, p.X(), test.ShouldEqual, 3.0)
	})

	t.Run("interpolated", func(t *testing.T) {
		p, ok := h.Sample(start.Add(450 * time.Millisecond))
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, p.X(), test.ShouldAlmostEqual, 4.5)
	})

	t.Run("clamped", func(t *testing.T) {
		p, _ := h.Sample(start)
		test.That(t, p.X(), test.ShouldEqual, 1.0)
		p, _ = h.Sample(start.Add(time.Hour))
		test.That(t, p.X(), test.ShouldEqual, 10.0)
	})

	t.Run("out of order insert", func(t *testing.T) {
		h.Add(start.Add(950*time.Millisecond), spatialmath.NewPose2d(100, 0, spatialmath.NewZeroRotation2d()))
		p, _ := h.Sample(start.Add(950 * time.Millisecond))
		test.That(t, p.X(), test.ShouldEqual, 100.0)
		newest, _ := h.Newest()
		test.That(t, newest, test.ShouldEqual, start.Add(time.Second))
	})

	t.Run("replace", func(t *testing.T) {
		n := h.Len()
		h.Add(start.Add(time.Second), spatialmath.NewPose2d(-1, 0, spatialmath.NewZeroRotation2d()))
		test.That(t, h.Len(), test.ShouldEqual, n)
		p, _ := h.Sample(start.Add(time.Second))
		test.That(t, p.X(), test.ShouldEqual, -1.0)
	})

	h.Clear()
	test.That(t, h.Len(), test.ShouldEqual, 0)
}
