package config

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/logging"
	"go.viam.com/swerve/spatialmath"
)

const squareJSON = `{
	"modules": [
		{"name": "front_left", "x_m": 0.3, "y_m": 0.3},
		{"name": "front_right", "x_m": 0.3, "y_m": -0.3},
		{"name": "rear_right", "x_m": -0.3, "y_m": -0.3},
		{"name": "rear_left", "x_m": -0.3, "y_m": 0.3}
	],
	"max_module_speed_mps": ${MAX_SPEED}
}`

const squareYAML = `
modules:
  - {name: front_left, x_m: 0.3, y_m: 0.3}
  - {name: front_right, x_m: 0.3, y_m: -0.3}
  - {name: rear_right, x_m: -0.3, y_m: -0.3}
  - {name: rear_left, x_m: -0.3, y_m: 0.3}
max_module_speed_mps: 4.5
loop_hz: 100
vision_std_devs: {x: 0.5, y: 0.5, theta: 1.2}
initial_pose: {x_m: 1, y_m: 2, heading_deg: 90}
telemetry:
  mqtt_broker: tcp://localhost:1883
  mqtt_topic: robot/swerve
`

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	test.That(t, os.WriteFile(path, []byte(contents), 0o600), test.ShouldBeNil)
	return path
}

func validConfig() *Config {
	return &Config{
		Modules: []ModuleConfig{
			{Name: "fl", XMeters: 0.3, YMeters: 0.3},
			{Name: "fr", XMeters: 0.3, YMeters: -0.3},
			{Name: "rr", XMeters: -0.3, YMeters: -0.3},
			{Name: "rl", XMeters: -0.3, YMeters: 0.3},
		},
		MaxModuleSpeedMPS: 4,
	}
}

func TestReadJSON(t *testing.T) {
	t.Setenv("MAX_SPEED", "3.5")
	path := writeTemp(t, "swerve.json", squareJSON)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)
	test.That(t, cfg.MaxModuleSpeedMPS, test.ShouldEqual, 3.5)
	test.That(t, cfg.Modules, test.ShouldHaveLength, 4)
	test.That(t, cfg.Modules[1].Name, test.ShouldEqual, "front_right")

	t.Run("defaults", func(t *testing.T) {
		test.That(t, cfg.LoopHz, test.ShouldEqual, DefaultLoopHz)
		test.That(t, cfg.LoopPeriod(), test.ShouldEqual, 20*time.Millisecond)
		test.That(t, cfg.DiscretizePeriod(), test.ShouldEqual, 10*time.Millisecond)
		test.That(t, cfg.HistoryWindow(), test.ShouldEqual, 1500*time.Millisecond)
		test.That(t, cfg.StateStdDevs, test.ShouldResemble, estimator.StdDevs{X: 0.1, Y: 0.1, Theta: 0.1})
		test.That(t, cfg.VisionStdDevs, test.ShouldResemble, estimator.StdDevs{X: 0.9, Y: 0.9, Theta: 0.9})
		test.That(t, cfg.TranslationPID, test.ShouldResemble, PIDConfig{P: 10})
		test.That(t, cfg.RotationPID, test.ShouldResemble, PIDConfig{P: 5})
	})

	t.Run("translations", func(t *testing.T) {
		tr := cfg.ModuleTranslations()
		test.That(t, tr[0].X, test.ShouldAlmostEqual, 0.3)
		test.That(t, tr[2].Y, test.ShouldAlmostEqual, -0.3)
	})
}

func TestReadYAML(t *testing.T) {
	path := writeTemp(t, "swerve.yaml", squareYAML)

	cfg, err := Read(path)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.MaxModuleSpeedMPS, test.ShouldEqual, 4.5)
	test.That(t, cfg.LoopPeriod(), test.ShouldEqual, 10*time.Millisecond)
	test.That(t, cfg.VisionStdDevs, test.ShouldResemble, estimator.StdDevs{X: 0.5, Y: 0.5, Theta: 1.2})
	test.That(t, cfg.Telemetry.MQTTTopic, test.ShouldEqual, "robot/swerve")

	pose := cfg.InitialPose.Pose()
	test.That(t, spatialmath.Pose2dAlmostEqual(pose,
		spatialmath.NewPose2d(1, 2, spatialmath.NewRotation2dFromDegrees(90)), 1e-9, 1e-9), test.ShouldBeTrue)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot read config")

	_, err = Read(writeTemp(t, "bad.json", `{"modules": [`))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot parse json config")

	_, err = Read(writeTemp(t, "unknown.yml", "wheels: 4\n"))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "cannot parse yaml config")

	_, err = Read(writeTemp(t, "nan.yaml", strings.Replace(squareYAML, "loop_hz: 100", "loop_hz: .nan", 1)))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "loop_hz must be finite")
}

func TestValidate(t *testing.T) {
	test.That(t, validConfig().Validate("path"), test.ShouldBeNil)

	for _, tc := range []struct {
		name     string
		mutate   func(c *Config)
		contains string
	}{
		{"no modules", func(c *Config) { c.Modules = nil }, `"modules" is required`},
		{"three modules", func(c *Config) { c.Modules = c.Modules[:3] }, "exactly 4 modules, not 3"},
		{"unnamed module", func(c *Config) { c.Modules[2].Name = "" }, "path.modules.2"},
		{"duplicate name", func(c *Config) { c.Modules[1].Name = "fl" }, "duplicate module name"},
		{"collocated modules", func(c *Config) {
			for i := range c.Modules {
				c.Modules[i].XMeters, c.Modules[i].YMeters = 0.1, 0.1
			}
		}, "singular"},
		{"no max speed", func(c *Config) { c.MaxModuleSpeedMPS = 0 }, "max_module_speed_mps"},
		{"loop too fast", func(c *Config) { c.LoopHz = 5000 }, "loop_hz"},
		{"NaN loop rate", func(c *Config) { c.LoopHz = math.NaN() }, "loop_hz must be finite"},
		{"infinite loop rate", func(c *Config) { c.LoopHz = math.Inf(1) }, "loop_hz must be finite"},
		{"infinite max speed", func(c *Config) { c.MaxModuleSpeedMPS = math.Inf(1) }, "max_module_speed_mps must be finite"},
		{"NaN history window", func(c *Config) { c.HistoryWindowSec = math.NaN() }, "history_window_sec"},
		{"NaN initial heading", func(c *Config) { c.InitialPose.HeadingDeg = math.NaN() }, "initial_pose.heading_deg"},
		{"infinite gain", func(c *Config) { c.RotationPID.P = math.Inf(-1) }, "rotation_pid.p"},
		{"negative std dev", func(c *Config) { c.VisionStdDevs.Y = -1 }, "path.vision_std_devs"},
		{"broker without topic", func(c *Config) { c.Telemetry.MQTTBroker = "tcp://x:1883" }, "mqtt_topic"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate("path")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.contains)
		})
	}
}

func TestWatch(t *testing.T) {
	logger := logging.NewTestLogger(t)
	t.Setenv("MAX_SPEED", "3")
	path := writeTemp(t, "swerve.json", squareJSON)

	ctx, cancel := context.WithCancel(context.Background())
	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, path, logger, func(c *Config) { changes <- c })
	}()

	t.Setenv("MAX_SPEED", "2")
	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, os.WriteFile(path, []byte(squareJSON), 0o600), test.ShouldBeNil)
		var speed float64
		select {
		case cfg := <-changes:
			speed = cfg.MaxModuleSpeedMPS
		case <-time.After(100 * time.Millisecond):
		}
		test.That(tb, speed, test.ShouldEqual, 2)
	})

	cancel()
	test.That(t, <-done, test.ShouldBeNil)
}
