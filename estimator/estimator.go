// Package estimator fuses swerve odometry with delayed, noisy absolute pose observations such
// as vision fixes into one best-estimate field pose.
//
// Every cycle the estimator integrates odometry and records the odometry pose in a bounded
// history. A vision measurement is matched against that history at its capture time, blended
// in with a per-axis gain derived from the odometry and measurement standard deviations, and
// then carried forward through all odometry motion since the capture so a late fix still
// corrects the present.
package estimator

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/odometry"
	"go.viam.com/swerve/spatialmath"
)

// DefaultHistory is how long odometry samples are retained for matching vision measurements.
const DefaultHistory = 1500 * time.Millisecond

// StdDevs are standard deviations along x and y in meters and heading in radians.
type StdDevs struct {
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Theta float64 `json:"theta" yaml:"theta"`
}

func (s StdDevs) variances() [3]float64 {
	return [3]float64{s.X * s.X, s.Y * s.Y, s.Theta * s.Theta}
}

// visionUpdate is a vision-corrected pose paired with the odometry pose at the same instant.
type visionUpdate struct {
	at           time.Time
	visionPose   spatialmath.Pose2d
	odometryPose spatialmath.Pose2d
}

// compensate moves the correction forward to pose by replaying the odometry motion between
// the update's odometry pose and pose on top of the corrected vision pose.
func (u visionUpdate) compensate(pose spatialmath.Pose2d) spatialmath.Pose2d {
	return u.visionPose.TransformBy(pose.Minus(u.odometryPose))
}

type options struct {
	clock   clock.Clock
	history time.Duration
	logger  logging.Logger
}

// Option configures a PoseEstimator.
type Option func(*options)

// WithClock sets the clock used to timestamp Update calls.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithHistory sets how long odometry history is retained. Vision measurements older than
// this, relative to the newest odometry sample, are ignored.
func WithHistory(d time.Duration) Option {
	return func(o *options) { o.history = d }
}

// WithLogger sets the logger used to report ignored measurements.
func WithLogger(logger logging.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// PoseEstimator is the authoritative pose source for a swerve drivetrain. All methods are safe
// to call from different goroutines; each mutating call runs under one lock so the history,
// odometry, and estimate are never observed half updated.
type PoseEstimator struct {
	clock     clock.Clock
	logger    logging.Logger
	retention time.Duration

	mu            sync.Mutex
	odometry      *odometry.Odometry
	q             [3]float64
	visionK       *mat.DiagDense
	history       *poseHistory
	visionUpdates []visionUpdate
	estimate      spatialmath.Pose2d
}

// New creates an estimator starting at initialPose. stateStdDevs describe how much the
// odometry is trusted, visionStdDevs the default trust in vision measurements; larger values
// mean less trust.
func New(
	kin *kinematics.SwerveKinematics,
	gyroAngle spatialmath.Rotation2d,
	positions kinematics.ModulePositions,
	initialPose spatialmath.Pose2d,
	stateStdDevs StdDevs,
	visionStdDevs StdDevs,
	opts ...Option,
) *PoseEstimator {
	o := options{clock: clock.New(), history: DefaultHistory}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewBlankLogger("estimator")
	}

	pe := &PoseEstimator{
		clock:     o.clock,
		logger:    o.logger,
		retention: o.history,
		odometry:  odometry.New(kin, gyroAngle, positions, initialPose),
		q:         stateStdDevs.variances(),
		history:   newPoseHistory(o.history),
		estimate:  initialPose,
	}
	pe.visionK = pe.gain(visionStdDevs)
	return pe
}

// gain returns the diagonal Kalman gain q/(q + sqrt(q*r)) for measurement stddevs r. An axis
// the odometry is perfectly sure of gets no correction; an axis with a perfect measurement
// gets the full correction.
func (pe *PoseEstimator) gain(visionStdDevs StdDevs) *mat.DiagDense {
	r := visionStdDevs.variances()
	k := make([]float64, 3)
	for i := range k {
		if pe.q[i] == 0 {
			continue
		}
		k[i] = pe.q[i] / (pe.q[i] + math.Sqrt(pe.q[i]*r[i]))
		if math.IsNaN(k[i]) || math.IsInf(k[i], 0) {
			k[i] = 0
		}
	}
	return mat.NewDiagDense(3, k)
}

// SetVisionMeasurementStdDevs changes the default trust in vision measurements.
func (pe *PoseEstimator) SetVisionMeasurementStdDevs(visionStdDevs StdDevs) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.visionK = pe.gain(visionStdDevs)
}

// StateStdDevs returns the odometry standard deviations the gains are computed from.
func (pe *PoseEstimator) StateStdDevs() StdDevs {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return StdDevs{X: math.Sqrt(pe.q[0]), Y: math.Sqrt(pe.q[1]), Theta: math.Sqrt(pe.q[2])}
}

// EstimatedPose returns the current best estimate.
func (pe *PoseEstimator) EstimatedPose() spatialmath.Pose2d {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.estimate
}

// OdometryPose returns the uncorrected odometry pose tracked internally.
func (pe *PoseEstimator) OdometryPose() spatialmath.Pose2d {
	return pe.odometry.Pose()
}

// Update integrates one odometry sample timestamped with the estimator's clock.
func (pe *PoseEstimator) Update(
	gyroAngle spatialmath.Rotation2d,
	positions kinematics.ModulePositions,
) spatialmath.Pose2d {
	return pe.UpdateWithTime(pe.clock.Now(), gyroAngle, positions)
}

// UpdateWithTime integrates one odometry sample taken at the given time and returns the new
// estimate. With no vision correction retained the estimate is the odometry pose.
func (pe *PoseEstimator) UpdateWithTime(
	at time.Time,
	gyroAngle spatialmath.Rotation2d,
	positions kinematics.ModulePositions,
) spatialmath.Pose2d {
	pe.mu.Lock()
	defer pe.mu.Unlock()

	odometryPose := pe.odometry.Update(gyroAngle, positions)
	pe.history.Add(at, odometryPose)

	if len(pe.visionUpdates) == 0 {
		pe.estimate = odometryPose
	} else {
		pe.estimate = pe.visionUpdates[len(pe.visionUpdates)-1].compensate(odometryPose)
	}
	return pe.estimate
}

// AddVisionMeasurement blends an absolute pose observation captured at the given time into
// the estimate using the default vision trust. It reports whether the measurement was used.
func (pe *PoseEstimator) AddVisionMeasurement(pose spatialmath.Pose2d, at time.Time) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.addVisionMeasurement(pose, at, pe.visionK)
}

// AddVisionMeasurementWithStdDevs is AddVisionMeasurement with trust given for this
// measurement only.
func (pe *PoseEstimator) AddVisionMeasurementWithStdDevs(
	pose spatialmath.Pose2d,
	at time.Time,
	stdDevs StdDevs,
) bool {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.addVisionMeasurement(pose, at, pe.gain(stdDevs))
}

func (pe *PoseEstimator) addVisionMeasurement(pose spatialmath.Pose2d, at time.Time, k *mat.DiagDense) bool {
	if !pose.IsFinite() {
		pe.logger.Debugw("ignoring non-finite vision measurement", "pose", pose.String())
		return false
	}
	newest, ok := pe.history.Newest()
	if !ok {
		pe.logger.Debug("ignoring vision measurement, no odometry history yet")
		return false
	}
	if newest.Add(-pe.retention).After(at) {
		pe.logger.Debugw("ignoring stale vision measurement",
			"age", newest.Sub(at).String(), "retention", pe.retention.String())
		return false
	}

	pe.cleanUpVisionUpdates()

	odometrySample, ok := pe.history.Sample(at)
	if !ok {
		return false
	}
	estimateSample, ok := pe.sampleAt(at)
	if !ok {
		return false
	}

	twist := estimateSample.Log(pose)
	var scaled mat.VecDense
	scaled.MulVec(k, mat.NewVecDense(3, []float64{twist.DX, twist.DY, twist.DTheta}))

	update := visionUpdate{
		at: at,
		visionPose: estimateSample.Exp(spatialmath.Twist2d{
			DX:     scaled.AtVec(0),
			DY:     scaled.AtVec(1),
			DTheta: scaled.AtVec(2),
		}),
		odometryPose: odometrySample,
	}

	// a new correction supersedes every correction captured after it
	idx := sort.Search(len(pe.visionUpdates), func(i int) bool { return pe.visionUpdates[i].at.After(at) })
	if idx > 0 && pe.visionUpdates[idx-1].at.Equal(at) {
		idx--
	}
	pe.visionUpdates = append(pe.visionUpdates[:idx], update)

	pe.estimate = update.compensate(pe.odometry.Pose())
	return true
}

// SampleAt returns the estimated pose at a past time, or false with no history. Times outside
// the retained window are clamped to its ends.
func (pe *PoseEstimator) SampleAt(at time.Time) (spatialmath.Pose2d, bool) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	return pe.sampleAt(at)
}

func (pe *PoseEstimator) sampleAt(at time.Time) (spatialmath.Pose2d, bool) {
	oldest, ok := pe.history.Oldest()
	if !ok {
		return spatialmath.Pose2d{}, false
	}
	newest, _ := pe.history.Newest()
	if at.Before(oldest) {
		at = oldest
	}
	if at.After(newest) {
		at = newest
	}

	odometrySample, ok := pe.history.Sample(at)
	if !ok {
		return spatialmath.Pose2d{}, false
	}
	if len(pe.visionUpdates) == 0 || at.Before(pe.visionUpdates[0].at) {
		return odometrySample, true
	}

	// the latest correction captured at or before the sample time applies
	idx := sort.Search(len(pe.visionUpdates), func(i int) bool { return pe.visionUpdates[i].at.After(at) })
	return pe.visionUpdates[idx-1].compensate(odometrySample), true
}

// cleanUpVisionUpdates drops corrections that can no longer affect any retained sample,
// keeping the newest one at or before the oldest odometry sample.
func (pe *PoseEstimator) cleanUpVisionUpdates() {
	oldest, ok := pe.history.Oldest()
	if !ok || len(pe.visionUpdates) == 0 || oldest.Before(pe.visionUpdates[0].at) {
		return
	}
	idx := sort.Search(len(pe.visionUpdates), func(i int) bool { return pe.visionUpdates[i].at.After(oldest) })
	pe.visionUpdates = append(pe.visionUpdates[:0], pe.visionUpdates[idx-1:]...)
}

func (pe *PoseEstimator) clearHistory() {
	pe.history.Clear()
	pe.visionUpdates = pe.visionUpdates[:0]
	pe.estimate = pe.odometry.Pose()
}

// ResetPosition jumps odometry and estimate to pose, re-baselines the gyro and module
// positions, and forgets all history.
func (pe *PoseEstimator) ResetPosition(
	gyroAngle spatialmath.Rotation2d,
	positions kinematics.ModulePositions,
	pose spatialmath.Pose2d,
) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.odometry.ResetPosition(gyroAngle, positions, pose)
	pe.clearHistory()
}

// ResetPose jumps to pose keeping the current gyro and module baseline, and forgets history.
func (pe *PoseEstimator) ResetPose(pose spatialmath.Pose2d) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.odometry.ResetPose(pose)
	pe.clearHistory()
}

// ResetTranslation moves the estimate without changing heading, and forgets history.
func (pe *PoseEstimator) ResetTranslation(translation spatialmath.Translation2d) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.odometry.ResetTranslation(translation)
	pe.clearHistory()
}

// ResetRotation changes heading without moving the estimate, and forgets history.
func (pe *PoseEstimator) ResetRotation(rotation spatialmath.Rotation2d) {
	pe.mu.Lock()
	defer pe.mu.Unlock()
	pe.odometry.ResetRotation(rotation)
	pe.clearHistory()
}
