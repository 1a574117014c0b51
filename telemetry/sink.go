package telemetry

import (
	"context"

	"go.uber.org/atomic"
	"go.uber.org/multierr"

	"go.viam.com/swerve/logging"
)

// A Sink receives telemetry samples. Publishing is one-way; a failing sink never affects
// control.
type Sink interface {
	Publish(ctx context.Context, sample Sample) error
	Close() error
}

// MultiSink fans every sample out to each of its sinks.
type MultiSink []Sink

// Publish sends the sample to every sink and combines their errors.
func (ms MultiSink) Publish(ctx context.Context, sample Sample) error {
	var errs error
	for _, s := range ms {
		errs = multierr.Combine(errs, s.Publish(ctx, sample))
	}
	return errs
}

// Close closes every sink.
func (ms MultiSink) Close() error {
	var errs error
	for _, s := range ms {
		errs = multierr.Combine(errs, s.Close())
	}
	return errs
}

type discard struct{}

func (discard) Publish(context.Context, Sample) error { return nil }
func (discard) Close() error                          { return nil }

// Discard is a Sink that drops everything.
var Discard Sink = discard{}

// LogSink writes one in every N samples to a logger at debug level.
type LogSink struct {
	logger logging.Logger
	everyN uint64
	count  atomic.Uint64
}

// NewLogSink returns a LogSink that logs every n'th sample. n below 1 is treated as 1.
func NewLogSink(logger logging.Logger, n int) *LogSink {
	if n < 1 {
		n = 1
	}
	return &LogSink{logger: logger, everyN: uint64(n)}
}

// Publish logs the sample if it is due.
func (ls *LogSink) Publish(_ context.Context, sample Sample) error {
	if (ls.count.Add(1)-1)%ls.everyN != 0 {
		return nil
	}
	ls.logger.Debugw("drivetrain",
		"x", sample.EstimatedPose.X,
		"y", sample.EstimatedPose.Y,
		"heading_deg", sample.EstimatedPose.HeadingDeg,
		"odometry_x", sample.OdometryPose.X,
		"odometry_y", sample.OdometryPose.Y,
		"gyro_deg", sample.GyroDeg,
		"saturated", sample.Saturated,
	)
	return nil
}

// Close is a no-op.
func (ls *LogSink) Close() error {
	return nil
}
