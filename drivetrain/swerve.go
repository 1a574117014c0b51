// Package drivetrain is a four-module swerve drivetrain. It turns chassis velocity commands into
// module commands and keeps both a dead-reckoned pose and a vision-corrected pose estimate.
package drivetrain

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/swerve/config"
	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/odometry"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/telemetry"
)

// Option configures a Swerve.
type Option func(*Swerve)

// WithClock sets the clock used to timestamp odometry and telemetry.
func WithClock(c clock.Clock) Option {
	return func(s *Swerve) { s.clock = c }
}

// WithSink sets where per-cycle telemetry is published.
func WithSink(sink telemetry.Sink) Option {
	return func(s *Swerve) { s.sink = sink }
}

// Swerve owns the module and gyro handles of one drivetrain along with its kinematics, odometry,
// and pose estimator. Commands and Periodic are meant to be called from one control goroutine;
// vision measurements and pose queries may come from anywhere.
type Swerve struct {
	cfg     config.Config
	logger  logging.Logger
	clock   clock.Clock
	sink    telemetry.Sink
	modules [kinematics.NumModules]Module
	gyro    Gyro

	kinematics *kinematics.SwerveKinematics
	odometry   *odometry.Odometry
	estimator  *estimator.PoseEstimator

	mu              sync.Mutex
	lastCommanded   kinematics.ModuleStates
	commandedSpeeds kinematics.ChassisSpeeds
	saturated       bool
	saturationCount uint64
}

// New validates cfg, reads the initial module positions and heading, and starts tracking at
// cfg's initial pose.
func New(
	ctx context.Context,
	cfg *config.Config,
	modules [kinematics.NumModules]Module,
	gyro Gyro,
	logger logging.Logger,
	opts ...Option,
) (*Swerve, error) {
	if cfg == nil {
		return nil, errors.New("drivetrain config is required")
	}
	conf := *cfg
	conf.ApplyDefaults()
	if err := conf.Validate("drivetrain"); err != nil {
		return nil, err
	}
	for i, m := range modules {
		if m == nil {
			return nil, errors.Errorf("module %d (%s) is nil", i, conf.Modules[i].Name)
		}
	}
	if gyro == nil {
		return nil, errors.New("gyro is required")
	}

	kin, err := kinematics.NewSwerveKinematics(conf.ModuleTranslations())
	if err != nil {
		return nil, err
	}

	s := &Swerve{
		cfg:        conf,
		logger:     logger,
		clock:      clock.New(),
		sink:       telemetry.Discard,
		modules:    modules,
		gyro:       gyro,
		kinematics: kin,
	}
	for _, opt := range opts {
		opt(s)
	}

	yaw, positions, err := s.readSensors(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot read initial drivetrain state")
	}
	initialPose := conf.InitialPose.Pose()
	s.odometry = odometry.New(kin, yaw, positions, initialPose)
	s.estimator = estimator.New(
		kin, yaw, positions, initialPose, conf.StateStdDevs, conf.VisionStdDevs,
		estimator.WithClock(s.clock),
		estimator.WithHistory(conf.HistoryWindow()),
		estimator.WithLogger(logger.Sublogger("estimator")),
	)
	for i := range s.lastCommanded {
		s.lastCommanded[i].Angle = positions[i].Angle
	}
	logger.Infow("swerve drivetrain ready", "initial_pose", initialPose.String(), "gyro_deg", yaw.Degrees())
	return s, nil
}

// Config returns the configuration in use, with defaults applied.
func (s *Swerve) Config() config.Config {
	return s.cfg
}

// Kinematics returns the drivetrain's kinematics.
func (s *Swerve) Kinematics() *kinematics.SwerveKinematics {
	return s.kinematics
}

// Drive commands a chassis velocity. translation is in meters per second and rotation in
// radians per second, counter-clockwise positive. When fieldRelative is set the translation is
// in the field frame and is rotated by the heading of EstimatedPose, which includes vision
// corrections and a field reset, rather than by the raw gyro reading returned by Heading.
func (s *Swerve) Drive(ctx context.Context, translation spatialmath.Translation2d, rotation float64, fieldRelative bool) error {
	speeds := kinematics.ChassisSpeeds{VX: translation.X, VY: translation.Y, Omega: rotation}
	if fieldRelative {
		speeds = kinematics.FromFieldRelative(speeds, s.estimator.EstimatedPose().Rotation)
	}
	return s.DriveRobotRelative(ctx, speeds)
}

// DriveRobotRelative commands a robot-relative chassis velocity. The command is discretized
// over the configured period so that translating while rotating does not drift, converted to
// module states, and desaturated. Modules told to stop keep their previous angle. A command
// with a NaN or infinite component is replaced by a stop.
func (s *Swerve) DriveRobotRelative(ctx context.Context, speeds kinematics.ChassisSpeeds) error {
	if !speeds.IsFinite() {
		s.logger.Warnw("ignoring non-finite chassis speeds", "speeds", speeds.String())
		speeds = kinematics.ChassisSpeeds{}
	}
	discrete := kinematics.Discretize(speeds, s.cfg.DiscretizePeriod())
	states := s.kinematics.ToModuleStates(discrete)

	s.mu.Lock()
	states = kinematics.HoldHeadings(states, s.lastCommanded)
	s.commandedSpeeds = speeds
	s.mu.Unlock()

	return s.setModuleStates(ctx, states, discrete)
}

// SetModuleStates sends states to the modules after desaturating them. A state with a NaN or
// infinite component stops that module at its previous angle.
func (s *Swerve) SetModuleStates(ctx context.Context, states kinematics.ModuleStates) error {
	s.mu.Lock()
	states = kinematics.FiniteStates(states, s.lastCommanded)
	desired := s.kinematics.ToChassisSpeeds(states)
	s.commandedSpeeds = desired
	s.mu.Unlock()
	return s.setModuleStates(ctx, states, desired)
}

func (s *Swerve) setModuleStates(ctx context.Context, states kinematics.ModuleStates, desired kinematics.ChassisSpeeds) error {
	states, saturated := kinematics.Desaturate(states, s.cfg.MaxModuleSpeedMPS)
	if s.cfg.MaxTranslationalMPS > 0 && s.cfg.MaxRotationalRadPS > 0 {
		var limited bool
		states, limited = kinematics.DesaturateWithChassisLimits(
			states, desired, s.cfg.MaxModuleSpeedMPS, s.cfg.MaxTranslationalMPS, s.cfg.MaxRotationalRadPS)
		saturated = saturated || limited
	}

	var errs error
	for i, m := range s.modules {
		if err := m.SetDesiredState(ctx, states[i]); err != nil {
			errs = multierr.Combine(errs, errors.Wrapf(err, "module %s", s.cfg.Modules[i].Name))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommanded = states
	s.saturated = saturated
	if saturated {
		s.saturationCount++
	}
	return errs
}

// Stop commands every module to zero speed, leaving the wheels pointed where they are.
func (s *Swerve) Stop(ctx context.Context) error {
	s.mu.Lock()
	states := s.lastCommanded
	s.commandedSpeeds = kinematics.ChassisSpeeds{}
	s.mu.Unlock()
	for i := range states {
		states[i].SpeedMetersPerSecond = 0
	}
	return s.setModuleStates(ctx, states, kinematics.ChassisSpeeds{})
}

// Pose returns the dead-reckoned pose.
func (s *Swerve) Pose() spatialmath.Pose2d {
	return s.odometry.Pose()
}

// SetPose moves the dead-reckoned pose to pose.
func (s *Swerve) SetPose(ctx context.Context, pose spatialmath.Pose2d) error {
	yaw, positions, err := s.readSensors(ctx)
	if err != nil {
		return err
	}
	s.odometry.ResetPosition(yaw, positions, pose)
	return nil
}

// EstimatedPose returns the vision-corrected pose estimate.
func (s *Swerve) EstimatedPose() spatialmath.Pose2d {
	return s.estimator.EstimatedPose()
}

// SetEstimatedPose moves the pose estimate to pose and forgets its history.
func (s *Swerve) SetEstimatedPose(ctx context.Context, pose spatialmath.Pose2d) error {
	yaw, positions, err := s.readSensors(ctx)
	if err != nil {
		return err
	}
	s.estimator.ResetPosition(yaw, positions, pose)
	return nil
}

// RobotRelativeSpeeds returns the chassis velocity measured by the modules in the robot frame.
func (s *Swerve) RobotRelativeSpeeds(ctx context.Context) (kinematics.ChassisSpeeds, error) {
	states, err := s.ModuleStates(ctx)
	if err != nil {
		return kinematics.ChassisSpeeds{}, err
	}
	return s.kinematics.ToChassisSpeeds(states), nil
}

// FieldRelativeSpeeds returns the measured chassis velocity in the field frame, using the
// estimated heading.
func (s *Swerve) FieldRelativeSpeeds(ctx context.Context) (kinematics.ChassisSpeeds, error) {
	speeds, err := s.RobotRelativeSpeeds(ctx)
	if err != nil {
		return kinematics.ChassisSpeeds{}, err
	}
	return kinematics.ToFieldRelative(speeds, s.estimator.EstimatedPose().Rotation), nil
}

// Heading returns the raw gyro heading.
func (s *Swerve) Heading(ctx context.Context) (spatialmath.Rotation2d, error) {
	return s.gyro.Yaw(ctx)
}

// SetHeading sets the gyro heading. Odometry and the estimate are re-baselined at their
// current poses so the change does not look like the robot turned.
func (s *Swerve) SetHeading(ctx context.Context, heading spatialmath.Rotation2d) error {
	if err := s.gyro.SetYaw(ctx, heading); err != nil {
		return err
	}
	yaw, positions, err := s.readSensors(ctx)
	if err != nil {
		return err
	}
	s.odometry.ResetPosition(yaw, positions, s.odometry.Pose())
	s.estimator.ResetPosition(yaw, positions, s.estimator.EstimatedPose())
	return nil
}

// ModulePositions returns every module's position.
func (s *Swerve) ModulePositions(ctx context.Context) (kinematics.ModulePositions, error) {
	var (
		positions kinematics.ModulePositions
		errs      error
	)
	for i, m := range s.modules {
		p, err := m.Position(ctx)
		if err != nil {
			errs = multierr.Combine(errs, errors.Wrapf(err, "module %s position", s.cfg.Modules[i].Name))
			continue
		}
		positions[i] = p
	}
	return positions, errs
}

// ModuleStates returns every module's measured state.
func (s *Swerve) ModuleStates(ctx context.Context) (kinematics.ModuleStates, error) {
	var (
		states kinematics.ModuleStates
		errs   error
	)
	for i, m := range s.modules {
		st, err := m.State(ctx)
		if err != nil {
			errs = multierr.Combine(errs, errors.Wrapf(err, "module %s state", s.cfg.Modules[i].Name))
			continue
		}
		states[i] = st
	}
	return states, errs
}

// CommandedModuleStates returns the states last sent to the modules.
func (s *Swerve) CommandedModuleStates() kinematics.ModuleStates {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommanded
}

// SaturationCount returns how many commands had to be scaled down.
func (s *Swerve) SaturationCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saturationCount
}

// AddVisionMeasurement passes an absolute pose observation captured at the given time to the
// estimator with the configured vision trust. It reports whether it was used.
func (s *Swerve) AddVisionMeasurement(pose spatialmath.Pose2d, at time.Time) bool {
	return s.estimator.AddVisionMeasurement(pose, at)
}

// AddVisionMeasurementWithStdDevs is AddVisionMeasurement with trust for this measurement only.
func (s *Swerve) AddVisionMeasurementWithStdDevs(pose spatialmath.Pose2d, at time.Time, stdDevs estimator.StdDevs) bool {
	return s.estimator.AddVisionMeasurementWithStdDevs(pose, at, stdDevs)
}

// SetVisionStdDevs changes the default vision trust.
func (s *Swerve) SetVisionStdDevs(stdDevs estimator.StdDevs) {
	s.estimator.SetVisionMeasurementStdDevs(stdDevs)
}

// Periodic reads the gyro and module positions once and advances both the estimate and the
// odometry with them, then publishes telemetry. Hardware errors are returned and leave the
// poses untouched for the cycle.
func (s *Swerve) Periodic(ctx context.Context) error {
	yaw, positions, err := s.readSensors(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	estimated := s.estimator.UpdateWithTime(now, yaw, positions)
	odom := s.odometry.Update(yaw, positions)

	states, statesErr := s.ModuleStates(ctx)

	s.mu.Lock()
	sample := telemetry.Sample{
		Time:            now,
		EstimatedPose:   telemetry.NewPoseSample(estimated),
		OdometryPose:    telemetry.NewPoseSample(odom),
		GyroDeg:         yaw.Degrees(),
		Modules:         telemetry.NewModuleSamples(states),
		Commanded:       telemetry.NewSpeedsSample(s.commandedSpeeds),
		Measured:        telemetry.NewSpeedsSample(s.kinematics.ToChassisSpeeds(states)),
		Saturated:       s.saturated,
		SaturationCount: s.saturationCount,
	}
	s.mu.Unlock()

	if err := s.sink.Publish(ctx, sample); err != nil {
		s.logger.Debugw("telemetry publish failed", "error", err)
	}
	return statesErr
}

// readSensors reads the gyro and every module position.
func (s *Swerve) readSensors(ctx context.Context) (spatialmath.Rotation2d, kinematics.ModulePositions, error) {
	yaw, yawErr := s.gyro.Yaw(ctx)
	if yawErr != nil {
		yawErr = errors.Wrap(yawErr, "gyro")
	}
	positions, posErr := s.ModulePositions(ctx)
	if err := multierr.Combine(yawErr, posErr); err != nil {
		return spatialmath.Rotation2d{}, kinematics.ModulePositions{}, err
	}
	return yaw, positions, nil
}

// Close stops the modules and closes the telemetry sink.
func (s *Swerve) Close(ctx context.Context) error {
	return multierr.Combine(s.Stop(ctx), s.sink.Close())
}
