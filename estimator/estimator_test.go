package estimator

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
)

const cycle = 20 * time.Millisecond

var (
	defaultState  = StdDevs{X: 0.1, Y: 0.1, Theta: 0.1}
	defaultVision = StdDevs{X: 0.9, Y: 0.9, Theta: 0.9}
)

func newKinematics(t *testing.T) *kinematics.SwerveKinematics {
	t.Helper()
	k, err := kinematics.NewSwerveKinematics(kinematics.ModuleTranslations{
		spatialmath.NewTranslation2d(0.3, 0.3),
		spatialmath.NewTranslation2d(0.3, -0.3),
		spatialmath.NewTranslation2d(-0.3, -0.3),
		spatialmath.NewTranslation2d(-0.3, 0.3),
	})
	test.That(t, err, test.ShouldBeNil)
	return k
}

func forward(distance float64) kinematics.ModulePositions {
	var out kinematics.ModulePositions
	for i := range out {
		out[i] = kinematics.ModulePosition{DistanceMeters: distance}
	}
	return out
}

type harness struct {
	pe    *PoseEstimator
	clk   *clock.Mock
	steps int
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	clk := clock.NewMock()
	opts = append([]Option{WithClock(clk), WithLogger(logging.NewTestLogger(t))}, opts...)
	pe := New(newKinematics(t), spatialmath.NewZeroRotation2d(), kinematics.ModulePositions{},
		spatialmath.Pose2d{}, defaultState, defaultVision, opts...)
	return &harness{pe: pe, clk: clk}
}

// drive advances n cycles at 1 m/s straight ahead.
func (h *harness) drive(n int) spatialmath.Pose2d {
	var pose spatialmath.Pose2d
	for i := 0; i < n; i++ {
		h.clk.Add(cycle)
		h.steps++
		pose = h.pe.Update(spatialmath.NewZeroRotation2d(), forward(0.02*float64(h.steps)))
	}
	return pose
}

func TestEstimatorTracksOdometry(t *testing.T) {
	h := newHarness(t)

	pose := h.drive(1)
	test.That(t, pose.X(), test.ShouldAlmostEqual, 0.02)
	test.That(t, pose.Y(), test.ShouldAlmostEqual, 0.0)
	test.That(t, pose.Rotation.Degrees(), test.ShouldAlmostEqual, 0.0)

	pose = h.drive(49)
	test.That(t, pose.X(), test.ShouldAlmostEqual, 1.0)
	test.That(t, h.pe.EstimatedPose(), test.ShouldResemble, h.pe.OdometryPose())

	// no wheel motion, no pose change
	h.clk.Add(cycle)
	still := h.pe.Update(spatialmath.NewZeroRotation2d(), forward(0.02*float64(h.steps)))
	test.That(t, still, test.ShouldResemble, pose)
}

func TestVisionTrustScalesCorrection(t *testing.T) {
	correction := func(stdDevs StdDevs) float64 {
		h := newHarness(t)
		h.drive(10)
		before := h.pe.EstimatedPose()
		observed := spatialmath.NewPose2d(before.X(), before.Y()+1, before.Rotation)
		ok := h.pe.AddVisionMeasurementWithStdDevs(observed, h.clk.Now(), stdDevs)
		test.That(t, ok, test.ShouldBeTrue)
		return h.pe.EstimatedPose().Translation.Distance(before.Translation)
	}

	confident := correction(StdDevs{X: 0.01, Y: 0.01, Theta: 0.01})
	doubtful := correction(StdDevs{X: 100, Y: 100, Theta: 100})
	test.That(t, confident, test.ShouldBeGreaterThan, doubtful)
	test.That(t, confident, test.ShouldBeLessThanOrEqualTo, 1.0)
	test.That(t, doubtful, test.ShouldBeGreaterThan, 0.0)

	perfect := correction(StdDevs{})
	test.That(t, perfect, test.ShouldAlmostEqual, 1.0, 1e-9)
}

func TestVisionGainMatchesFormula(t *testing.T) {
	h := newHarness(t)
	h.drive(5)
	before := h.pe.EstimatedPose()
	observed := spatialmath.NewPose2d(before.X()+1, before.Y(), before.Rotation)
	h.pe.AddVisionMeasurement(observed, h.clk.Now())

	q := defaultState.X * defaultState.X
	r := defaultVision.X * defaultVision.X
	k := q / (q + math.Sqrt(q*r))
	test.That(t, h.pe.EstimatedPose().X()-before.X(), test.ShouldAlmostEqual, k, 1e-9)
}

func TestLateVisionCorrectsPresent(t *testing.T) {
	h := newHarness(t)
	h.drive(25)
	captured := h.clk.Now()
	atCapture, ok := h.pe.SampleAt(captured)
	test.That(t, ok, test.ShouldBeTrue)

	// the robot keeps driving while the frame is processed
	h.drive(15)
	now := h.pe.EstimatedPose()

	// perfectly trusted fix saying the robot was 0.5 m to the left at capture time
	truth := spatialmath.NewPose2d(atCapture.X(), atCapture.Y()+0.5, atCapture.Rotation)
	ok = h.pe.AddVisionMeasurementWithStdDevs(truth, captured, StdDevs{})
	test.That(t, ok, test.ShouldBeTrue)

	est := h.pe.EstimatedPose()
	test.That(t, est.X(), test.ShouldAlmostEqual, now.X(), 1e-9)
	test.That(t, est.Y(), test.ShouldAlmostEqual, now.Y()+0.5, 1e-9)

	// the correction sticks as odometry keeps coming
	next := h.drive(1)
	test.That(t, next.Y(), test.ShouldAlmostEqual, 0.5, 1e-9)
	test.That(t, next.X(), test.ShouldAlmostEqual, 0.02*float64(h.steps), 1e-9)

	// the past is corrected too
	past, ok := h.pe.SampleAt(captured.Add(cycle))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, past.Y(), test.ShouldAlmostEqual, 0.5, 1e-9)

	// but not before the fix
	earlier, ok := h.pe.SampleAt(captured.Add(-5 * cycle))
	test.That(t, ok, test.ShouldBeTrue)
	test.That(t, earlier.Y(), test.ShouldAlmostEqual, 0.0, 1e-9)
}

func TestStaleVisionIgnored(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	h := newHarness(t, WithLogger(logger), WithHistory(500*time.Millisecond))
	start := h.clk.Now()
	h.drive(50)

	before := h.pe.EstimatedPose()
	ok := h.pe.AddVisionMeasurementWithStdDevs(spatialmath.NewPose2d(-5, 5, spatialmath.NewZeroRotation2d()), start, StdDevs{})
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, h.pe.EstimatedPose(), test.ShouldResemble, before)
	test.That(t, logs.FilterMessageSnippet("stale").Len(), test.ShouldEqual, 1)
}

func TestVisionWithoutHistoryIgnored(t *testing.T) {
	h := newHarness(t)
	ok := h.pe.AddVisionMeasurement(spatialmath.NewPose2d(1, 1, spatialmath.NewZeroRotation2d()), h.clk.Now())
	test.That(t, ok, test.ShouldBeFalse)
	test.That(t, h.pe.EstimatedPose(), test.ShouldResemble, spatialmath.Pose2d{})

	h.drive(1)
	ok = h.pe.AddVisionMeasurement(spatialmath.NewPose2d(math.NaN(), 1, spatialmath.NewZeroRotation2d()), h.clk.Now())
	test.That(t, ok, test.ShouldBeFalse)
}

func TestOlderVisionSupersedesNewer(t *testing.T) {
	h := newHarness(t)
	h.drive(20)
	early := h.clk.Now()
	h.drive(10)
	late := h.clk.Now()
	h.drive(5)

	atLate, _ := h.pe.SampleAt(late)
	h.pe.AddVisionMeasurementWithStdDevs(spatialmath.NewPose2d(atLate.X(), 2, atLate.Rotation), late, StdDevs{})
	test.That(t, h.pe.EstimatedPose().Y(), test.ShouldAlmostEqual, 2.0, 1e-9)

	atEarly, _ := h.pe.SampleAt(early)
	h.pe.AddVisionMeasurementWithStdDevs(spatialmath.NewPose2d(atEarly.X(), -1, atEarly.Rotation), early, StdDevs{})
	test.That(t, h.pe.EstimatedPose().Y(), test.ShouldAlmostEqual, -1.0, 1e-9)
}

func TestEstimatorResets(t *testing.T) {
	h := newHarness(t)
	h.drive(10)
	h.pe.AddVisionMeasurement(spatialmath.NewPose2d(0, 3, spatialmath.NewZeroRotation2d()), h.clk.Now())

	target := spatialmath.NewPose2d(4, 4, spatialmath.NewRotation2dFromDegrees(90))
	h.pe.ResetPosition(spatialmath.NewZeroRotation2d(), forward(0.02*float64(h.steps)), target)
	test.That(t, h.pe.EstimatedPose(), test.ShouldResemble, target)
	test.That(t, h.pe.OdometryPose(), test.ShouldResemble, target)
	test.That(t, h.pe.history.Len(), test.ShouldEqual, 0)
	test.That(t, h.pe.visionUpdates, test.ShouldHaveLength, 0)

	// history is empty, so vision has nothing to match against
	ok := h.pe.AddVisionMeasurement(spatialmath.Pose2d{}, h.clk.Now())
	test.That(t, ok, test.ShouldBeFalse)

	// facing +y now, forward motion goes along +y
	pose := h.drive(1)
	test.That(t, pose.X(), test.ShouldAlmostEqual, 4.0)
	test.That(t, pose.Y(), test.ShouldAlmostEqual, 4.02)

	h.pe.ResetTranslation(spatialmath.NewTranslation2d(0, 0))
	test.That(t, h.pe.EstimatedPose().Translation, test.ShouldResemble, spatialmath.Translation2d{})

	h.pe.ResetRotation(spatialmath.NewRotation2dFromDegrees(0))
	test.That(t, h.pe.EstimatedPose().Rotation.Degrees(), test.ShouldAlmostEqual, 0.0)

	h.pe.ResetPose(spatialmath.NewPose2d(1, 1, spatialmath.NewZeroRotation2d()))
	test.That(t, h.pe.EstimatedPose().X(), test.ShouldEqual, 1.0)
}

func TestSetVisionStdDevs(t *testing.T) {
	h := newHarness(t)
	h.drive(5)
	h.pe.SetVisionMeasurementStdDevs(StdDevs{})
	before := h.pe.EstimatedPose()
	h.pe.AddVisionMeasurement(spatialmath.NewPose2d(before.X(), before.Y()-1, before.Rotation), h.clk.Now())
	test.That(t, h.pe.EstimatedPose().Y(), test.ShouldAlmostEqual, -1.0, 1e-9)
	test.That(t, h.pe.StateStdDevs().X, test.ShouldAlmostEqual, defaultState.X)
}

func TestZeroStateStdDevsIgnoreVision(t *testing.T) {
	clk := clock.NewMock()
	pe := New(newKinematics(t), spatialmath.NewZeroRotation2d(), kinematics.ModulePositions{},
		spatialmath.Pose2d{}, StdDevs{}, defaultVision, WithClock(clk))
	clk.Add(cycle)
	pe.Update(spatialmath.NewZeroRotation2d(), forward(0))
	pe.AddVisionMeasurementWithStdDevs(spatialmath.NewPose2d(3, 3, spatialmath.NewZeroRotation2d()), clk.Now(), StdDevs{})
	test.That(t, spatialmath.Pose2dAlmostEqual(pe.EstimatedPose(), spatialmath.Pose2d{}, 1e-12, 1e-12), test.ShouldBeTrue)
}

func TestConcurrentVisionAndUpdates(t *testing.T) {
	h := newHarness(t)
	h.drive(5)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			h.pe.AddVisionMeasurement(spatialmath.NewPose2d(0, 0.1, spatialmath.NewZeroRotation2d()), time.Time{})
			h.pe.EstimatedPose()
		}
	}()
	for i := 0; i < 200; i++ {
		h.pe.UpdateWithTime(time.Unix(0, 0).Add(time.Duration(i)*cycle), spatialmath.NewZeroRotation2d(), forward(0))
	}
	wg.Wait()
	test.That(t, h.pe.EstimatedPose().IsFinite(), test.ShouldBeTrue)
}
