// Package main runs a swerve drivetrain against simulated hardware, drives it around a square
// with a pose controller, and reports how well odometry and the fused estimate tracked the
// true pose.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"gopkg.in/natefinch/lumberjack.v2"

	"go.viam.com/swerve/config"
	"go.viam.com/swerve/logging"
)

const (
	flagConfig       = "config"
	flagDuration     = "duration"
	flagRealtime     = "realtime"
	flagSeed         = "seed"
	flagGyroDrift    = "gyro-drift"
	flagCameraPeriod = "camera-period"
	flagLatency      = "camera-latency"
	flagSideLength   = "side"
	flagWatch        = "watch"
	flagPlot         = "plot"
	flagLogFile      = "log-file"
	flagDebug        = "debug"
	flagCosineScale  = "cosine-scale"
)

// defaultConfig is used when no config file is given.
const defaultConfig = `
modules:
  - {name: front_left, x_m: 0.3, y_m: 0.3}
  - {name: front_right, x_m: 0.3, y_m: -0.3}
  - {name: rear_right, x_m: -0.3, y_m: -0.3}
  - {name: rear_left, x_m: -0.3, y_m: 0.3}
max_module_speed_mps: 4.5
telemetry:
  log_every_n: 50
`

func main() {
	logger := logging.NewLogger("swervesim")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(logger).RunContext(ctx, os.Args); err != nil {
		logger.Fatal(err)
	}
}

func newApp(logger logging.Logger) *cli.App {
	var logFile *lumberjack.Logger
	return &cli.App{
		Name:  "swervesim",
		Usage: "simulate a swerve drivetrain with vision-corrected pose estimation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "load drivetrain configuration from `FILE` (json or yaml)",
			},
			&cli.DurationFlag{
				Name:  flagDuration,
				Value: 20 * time.Second,
				Usage: "simulated time to run for",
			},
			&cli.BoolFlag{
				Name:  flagRealtime,
				Usage: "run against the wall clock instead of as fast as possible",
			},
			&cli.Uint64Flag{
				Name:  flagSeed,
				Value: 1,
				Usage: "seed for camera noise",
			},
			&cli.Float64Flag{
				Name:  flagGyroDrift,
				Value: 0.02,
				Usage: "gyro bias in radians per second",
			},
			&cli.DurationFlag{
				Name:  flagCameraPeriod,
				Value: 100 * time.Millisecond,
				Usage: "time between camera captures; 0 disables vision",
			},
			&cli.DurationFlag{
				Name:  flagLatency,
				Value: 60 * time.Millisecond,
				Usage: "camera processing latency",
			},
			&cli.Float64Flag{
				Name:  flagSideLength,
				Value: 3,
				Usage: "side of the square driven, in meters",
			},
			&cli.BoolFlag{
				Name:  flagWatch,
				Usage: "reload vision trust from the config file when it changes",
			},
			&cli.StringFlag{
				Name:  flagPlot,
				Usage: "write a plot of the true, odometry, and estimated paths to `FILE` (png, svg, pdf)",
			},
			&cli.StringFlag{
				Name:  flagLogFile,
				Usage: "also write logs to `FILE`, rotated as it grows",
			},
			&cli.BoolFlag{
				Name:  flagCosineScale,
				Usage: "scale simulated module speeds by the cosine of their steering error",
			},
			&cli.BoolFlag{
				Name:    flagDebug,
				Aliases: []string{"vvv"},
				Usage:   "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			if c.Bool(flagDebug) {
				logging.GlobalLogLevel.SetLevel(zap.DebugLevel)
			}
			if path := c.String(flagLogFile); path != "" {
				logFile = &lumberjack.Logger{
					Filename:   path,
					MaxSize:    10,
					MaxBackups: 3,
				}
				logger.AddAppender(logging.NewWriterAppender(logFile))
			}
			return nil
		},
		After: func(c *cli.Context) error {
			if logFile == nil {
				return nil
			}
			return logFile.Close()
		},
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c.String(flagConfig))
			if err != nil {
				return err
			}
			if c.Bool(flagWatch) && cfg.ConfigFilePath == "" {
				return errors.New("--watch needs --config")
			}
			opts := simOptions{
				duration:     c.Duration(flagDuration),
				realtime:     c.Bool(flagRealtime),
				seed:         c.Uint64(flagSeed),
				gyroDrift:    c.Float64(flagGyroDrift),
				cameraPeriod: c.Duration(flagCameraPeriod),
				latency:      c.Duration(flagLatency),
				side:         c.Float64(flagSideLength),
				watch:        c.Bool(flagWatch),
				plotPath:     c.String(flagPlot),
				cosineScale:  c.Bool(flagCosineScale),
			}
			rep, err := simulate(c.Context, cfg, opts, logger)
			if err != nil {
				return err
			}
			rep.log(logger)
			fmt.Fprintln(c.App.Writer, rep.table())
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromReader("", strings.NewReader(defaultConfig), config.FormatYAML)
	}
	return config.Read(path)
}
