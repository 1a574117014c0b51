// Package control runs the drivetrain at a fixed rate and steers it toward target poses.
package control

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"

	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/utils"
)

// MaxLoopFrequency is the fastest a Loop may run, in Hz.
const MaxLoopFrequency = 1000.0

// StepFunc is one iteration of a control loop.
type StepFunc func(ctx context.Context) error

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithLoopClock sets the clock that drives the loop.
func WithLoopClock(c clock.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

// Loop calls a StepFunc at a fixed frequency on one goroutine. A step that takes longer than
// the period is counted as an overrun; the ticker drops the missed ticks rather than
// queueing them.
type Loop struct {
	logger    logging.Logger
	clock     clock.Clock
	frequency float64
	dt        time.Duration
	step      StepFunc

	mu      sync.Mutex
	ticker  *clock.Ticker
	workers utils.StoppableWorkers

	ticks    atomic.Uint64
	overruns atomic.Uint64
}

// NewLoop constructs a loop running step at frequency Hz. It does not start it.
func NewLoop(logger logging.Logger, frequency float64, step StepFunc, opts ...LoopOption) (*Loop, error) {
	if !(frequency > 0) || frequency > MaxLoopFrequency {
		return nil, errors.Errorf("loop frequency must be in (0, %v] Hz, got %v", MaxLoopFrequency, frequency)
	}
	if step == nil {
		return nil, errors.New("loop needs a step function")
	}
	l := &Loop{
		logger:    logger,
		clock:     clock.New(),
		frequency: frequency,
		dt:        time.Duration(float64(time.Second) / frequency),
		step:      step,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Start starts the loop.
func (l *Loop) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers != nil {
		return errors.New("control loop already running")
	}
	l.logger.Infof("running loop at %1.2f Hz (%v)", l.frequency, l.dt)

	// The ticker exists before Start returns so no tick is missed.
	ticker := l.clock.Ticker(l.dt)
	l.ticker = ticker
	l.workers = utils.NewStoppableWorkers(func(ctx context.Context) {
		l.run(ctx, ticker)
	})
	return nil
}

func (l *Loop) run(ctx context.Context, ticker *clock.Ticker) {
	var lastErr string
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}

		start := l.clock.Now()
		err := l.step(ctx)
		elapsed := l.clock.Since(start)
		l.ticks.Add(1)

		if elapsed > l.dt {
			l.overruns.Add(1)
			l.logger.Debugw("control loop overran its period", "elapsed", elapsed, "period", l.dt)
		}

		// Only changes are logged; a persistent fault would otherwise log every cycle.
		switch {
		case err != nil && err.Error() != lastErr:
			lastErr = err.Error()
			l.logger.Warnw("control loop step failed", "error", err)
		case err == nil && lastErr != "":
			lastErr = ""
			l.logger.Info("control loop step recovered")
		}
	}
}

// Stop stops the loop and waits for the current step to finish. It is a no-op if the loop is
// not running.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.workers == nil {
		return
	}
	l.logger.Debug("closing loop")
	l.ticker.Stop()
	l.workers.Stop()
	l.workers = nil
	l.ticker = nil
}

// Running reports whether the loop is started.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workers != nil
}

// Frequency returns the loop's frequency.
func (l *Loop) Frequency() float64 {
	return l.frequency
}

// Period returns the time between steps.
func (l *Loop) Period() time.Duration {
	return l.dt
}

// Ticks returns how many steps have run.
func (l *Loop) Ticks() uint64 {
	return l.ticks.Load()
}

// Overruns returns how many steps took longer than the period.
func (l *Loop) Overruns() uint64 {
	return l.overruns.Load()
}
