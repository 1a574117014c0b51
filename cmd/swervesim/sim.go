package main

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"

	"go.viam.com/swerve/config"
	"go.viam.com/swerve/control"
	"go.viam.com/swerve/drivetrain"
	"go.viam.com/swerve/drivetrain/fake"
	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
	"go.viam.com/swerve/telemetry"
	"go.viam.com/swerve/utils"
)

var cameraNoise = estimator.StdDevs{X: 0.03, Y: 0.03, Theta: 0.01}

const (
	waypointTolerance     = 0.05
	waypointTurnTolerance = 3 * math.Pi / 180
)

type simOptions struct {
	duration     time.Duration
	realtime     bool
	seed         uint64
	gyroDrift    float64
	cameraPeriod time.Duration
	latency      time.Duration
	side         float64
	watch        bool
	plotPath     string
	cosineScale  bool
}

type errorSummary struct {
	Mean float64
	P95  float64
	Max  float64
}

type report struct {
	Cycles         int
	StepErrors     int
	Waypoints      int
	VisionAccepted int
	VisionRejected int
	Saturations    uint64
	Overruns       uint64
	Estimate       errorSummary
	Odometry       errorSummary

	paths trajectories
}

func (r *report) log(logger logging.Logger) {
	logger.Infow("simulation finished",
		"cycles", r.Cycles,
		"step_errors", r.StepErrors,
		"waypoints_reached", r.Waypoints,
		"vision_accepted", r.VisionAccepted,
		"vision_rejected", r.VisionRejected,
		"saturations", r.Saturations,
		"loop_overruns", r.Overruns,
	)
	logger.Infow("estimate error (m)", "mean", r.Estimate.Mean, "p95", r.Estimate.P95, "max", r.Estimate.Max)
	logger.Infow("odometry error (m)", "mean", r.Odometry.Mean, "p95", r.Odometry.P95, "max", r.Odometry.Max)
}

func summarize(samples []float64) (errorSummary, error) {
	mean, err := stats.Mean(samples)
	if err != nil {
		return errorSummary{}, err
	}
	p95, err := stats.Percentile(samples, 95)
	if err != nil {
		return errorSummary{}, err
	}
	maxErr, err := stats.Max(samples)
	if err != nil {
		return errorSummary{}, err
	}
	return errorSummary{Mean: mean, P95: p95, Max: maxErr}, nil
}

// squareWaypoints returns the corners of a square of the given side, counter-clockwise from
// start, ending back at start. Heading turns 90 degrees at each corner.
func squareWaypoints(start spatialmath.Pose2d, side float64) []spatialmath.Pose2d {
	out := make([]spatialmath.Pose2d, 4)
	pose := start
	quarter := spatialmath.NewRotation2dFromDegrees(90)
	for i := range out {
		pose = pose.TransformBy(spatialmath.Transform2d{
			Translation: spatialmath.NewTranslation2d(side, 0),
			Rotation:    quarter,
		})
		out[i] = pose
	}
	return out
}

func newSink(ctx context.Context, tc config.TelemetryConfig, logger logging.Logger) (telemetry.Sink, error) {
	var sinks telemetry.MultiSink
	if tc.LogEveryN > 0 {
		sinks = append(sinks, telemetry.NewLogSink(logger.Sublogger("telemetry"), tc.LogEveryN))
	}
	if tc.MQTTBroker != "" {
		s, err := telemetry.NewMQTTSink(ctx, tc.MQTTBroker, tc.MQTTTopic, logger.Sublogger("mqtt"))
		if err != nil {
			return nil, multierr.Combine(err, sinks.Close())
		}
		sinks = append(sinks, s)
	}
	if tc.WebsocketAddr != "" {
		s, err := telemetry.NewWebsocketSink(tc.WebsocketAddr, logger.Sublogger("websocket"))
		if err != nil {
			return nil, multierr.Combine(err, sinks.Close())
		}
		sinks = append(sinks, s)
	}
	return sinks, nil
}

// simulator is the state shared by every control step.
type simulator struct {
	logger  logging.Logger
	sw      *drivetrain.Swerve
	chassis *fake.Chassis
	camera  *fake.Camera
	hc      *control.HolonomicController
	vx, vy  *control.SlewRateLimiter
	dt      time.Duration

	cameraEvery int
	waypoints   []spatialmath.Pose2d

	mu          sync.Mutex
	cycle       int
	waypoint    int
	rep         report
	estimateErr []float64
	odometryErr []float64
}

func (s *simulator) step(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycle++

	s.chassis.Step(s.dt)
	if s.cameraEvery > 0 && s.cycle%s.cameraEvery == 0 {
		s.camera.Capture()
	}
	for _, o := range s.camera.Ready() {
		if s.sw.AddVisionMeasurement(o.Pose, o.CapturedAt) {
			s.rep.VisionAccepted++
		} else {
			s.rep.VisionRejected++
		}
	}

	if err := s.sw.Periodic(ctx); err != nil {
		s.rep.StepErrors++
		return err
	}

	truth := s.chassis.Pose()
	estimate := s.sw.EstimatedPose()
	odom := s.sw.Pose()
	s.estimateErr = append(s.estimateErr, truth.Translation.Distance(estimate.Translation))
	s.odometryErr = append(s.odometryErr, truth.Translation.Distance(odom.Translation))
	s.rep.paths.add(truth, odom, estimate)

	target := s.waypoints[s.waypoint]
	speeds := s.hc.Calculate(estimate, target, kinematics.ChassisSpeeds{}, s.dt)
	if s.hc.AtReference(waypointTolerance, waypointTurnTolerance) {
		s.rep.Waypoints++
		s.waypoint = (s.waypoint + 1) % len(s.waypoints)
		s.logger.Debugw("reached waypoint", "pose", target.String())
	}
	speeds.VX = s.vx.Calculate(speeds.VX)
	speeds.VY = s.vy.Calculate(speeds.VY)

	if err := s.sw.DriveRobotRelative(ctx, speeds); err != nil {
		s.rep.StepErrors++
		return err
	}
	return nil
}

func (s *simulator) finish() (*report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep := s.rep
	rep.Cycles = s.cycle
	rep.Saturations = s.sw.SaturationCount()
	if len(s.estimateErr) == 0 {
		return &rep, nil
	}
	var err error
	if rep.Estimate, err = summarize(s.estimateErr); err != nil {
		return nil, err
	}
	if rep.Odometry, err = summarize(s.odometryErr); err != nil {
		return nil, err
	}
	return &rep, nil
}

// simulate drives a simulated chassis around a square for opts.duration of simulated time.
func simulate(ctx context.Context, cfg *config.Config, opts simOptions, logger logging.Logger) (rep *report, err error) {
	kin, err := kinematics.NewSwerveKinematics(cfg.ModuleTranslations())
	if err != nil {
		return nil, err
	}
	var names [kinematics.NumModules]string
	copy(names[:], lo.Map(cfg.Modules, func(mc config.ModuleConfig, _ int) string { return mc.Name }))

	var clk clock.Clock
	mock := clock.NewMock()
	if opts.realtime {
		clk = clock.New()
	} else {
		clk = mock
	}

	chassis := fake.NewChassis(kin, names, cfg.InitialPose.Pose())
	chassis.Gyro().SetDrift(opts.gyroDrift)
	chassis.SetCosineScaling(opts.cosineScale)

	sink, err := newSink(ctx, cfg.Telemetry, logger)
	if err != nil {
		return nil, err
	}
	sw, err := drivetrain.New(ctx, cfg, chassis.Modules(), chassis.Gyro(), logger.Sublogger("drivetrain"),
		drivetrain.WithClock(clk), drivetrain.WithSink(sink))
	if err != nil {
		return nil, multierr.Combine(err, sink.Close())
	}
	defer func() {
		err = multierr.Combine(err, sw.Close(context.Background()))
	}()

	if opts.watch {
		workers := utils.NewStoppableWorkers(func(ctx context.Context) {
			if err := config.Watch(ctx, cfg.ConfigFilePath, logger.Sublogger("config"), func(c *config.Config) {
				sw.SetVisionStdDevs(c.VisionStdDevs)
				logger.Infow("updated vision trust", "std_devs", c.VisionStdDevs)
			}); err != nil {
				logger.Errorw("config watcher stopped", "error", err)
			}
		})
		defer workers.Stop()
	}

	swCfg := sw.Config()
	dt := swCfg.LoopPeriod()
	maxAccel := 2 * cfg.MaxModuleSpeedMPS
	sim := &simulator{
		logger:    logger,
		sw:        sw,
		chassis:   chassis,
		camera:    fake.NewCamera(chassis, clk, cameraNoise, opts.latency, opts.seed),
		hc:        control.NewHolonomicController(control.PIDConstants(cfg.TranslationPID), control.PIDConstants(cfg.RotationPID)),
		vx:        control.NewSlewRateLimiter(clk, maxAccel, 0),
		vy:        control.NewSlewRateLimiter(clk, maxAccel, 0),
		dt:        dt,
		waypoints: squareWaypoints(cfg.InitialPose.Pose(), opts.side),
	}
	if opts.cameraPeriod > 0 {
		sim.cameraEvery = int(math.Max(1, math.Round(float64(opts.cameraPeriod)/float64(dt))))
	}

	if opts.realtime {
		loop, err := control.NewLoop(logger.Sublogger("loop"), sw.Config().LoopHz, sim.step, control.WithLoopClock(clk))
		if err != nil {
			return nil, err
		}
		if err := loop.Start(); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
		case <-clk.After(opts.duration):
		}
		loop.Stop()
		sim.rep.Overruns = loop.Overruns()
	} else {
		cycles := int(opts.duration / dt)
		for i := 0; i < cycles && ctx.Err() == nil; i++ {
			mock.Add(dt)
			if err := sim.step(ctx); err != nil {
				logger.Warnw("control step failed", "error", err)
			}
		}
	}

	rep, err = sim.finish()
	if err != nil {
		return nil, errors.Wrap(err, "cannot summarize run")
	}
	if opts.plotPath != "" {
		if err := rep.paths.save(opts.plotPath); err != nil {
			return nil, err
		}
		logger.Infow("wrote trajectory plot", "path", opts.plotPath)
	}
	return rep, nil
}
