// Package config defines how a swerve drivetrain is described on disk and validates it.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.viam.com/utils"

	"go.viam.com/swerve/estimator"
	"go.viam.com/swerve/kinematics"
	"go.viam.com/swerve/spatialmath"
)

// Defaults applied by Read to fields left unset.
const (
	DefaultLoopHz              = 50.0
	DefaultDiscretizePeriodSec = 0.01
	DefaultHistoryWindowSec    = 1.5
)

// ModuleConfig places one swerve module relative to the chassis center. +x is robot forward
// and +y is robot left.
type ModuleConfig struct {
	Name    string  `json:"name" yaml:"name"`
	XMeters float64 `json:"x_m" yaml:"x_m"`
	YMeters float64 `json:"y_m" yaml:"y_m"`
}

// Validate ensures the module is named and placed at a finite offset.
func (mc *ModuleConfig) Validate(path string) error {
	if mc.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if !finite(mc.XMeters) || !finite(mc.YMeters) {
		return utils.NewConfigValidationError(path, errors.New("module offset must be finite"))
	}
	return nil
}

// PIDConfig holds gains for one axis of the holonomic pose controller.
type PIDConfig struct {
	P float64 `json:"p" yaml:"p"`
	I float64 `json:"i" yaml:"i"`
	D float64 `json:"d" yaml:"d"`
}

// PoseConfig is a field pose with heading in degrees.
type PoseConfig struct {
	XMeters    float64 `json:"x_m" yaml:"x_m"`
	YMeters    float64 `json:"y_m" yaml:"y_m"`
	HeadingDeg float64 `json:"heading_deg" yaml:"heading_deg"`
}

// Pose converts the config to a Pose2d.
func (pc PoseConfig) Pose() spatialmath.Pose2d {
	return spatialmath.NewPose2d(pc.XMeters, pc.YMeters, spatialmath.NewRotation2dFromDegrees(pc.HeadingDeg))
}

// TelemetryConfig selects where per-cycle telemetry goes. Every sink is optional.
type TelemetryConfig struct {
	MQTTBroker    string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
	MQTTTopic     string `json:"mqtt_topic,omitempty" yaml:"mqtt_topic,omitempty"`
	WebsocketAddr string `json:"websocket_addr,omitempty" yaml:"websocket_addr,omitempty"`
	// LogEveryN logs one sample in every N cycles at debug level; zero disables log telemetry.
	LogEveryN int `json:"log_every_n,omitempty" yaml:"log_every_n,omitempty"`
}

// Validate ensures an MQTT broker comes with a topic.
func (tc *TelemetryConfig) Validate(path string) error {
	if tc.MQTTBroker != "" && tc.MQTTTopic == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "mqtt_topic")
	}
	if tc.LogEveryN < 0 {
		return utils.NewConfigValidationError(path, errors.New("log_every_n cannot be negative"))
	}
	return nil
}

// Config describes a swerve drivetrain.
type Config struct {
	Modules []ModuleConfig `json:"modules" yaml:"modules"`

	MaxModuleSpeedMPS float64 `json:"max_module_speed_mps" yaml:"max_module_speed_mps"`
	// Optional chassis limits; when both are set, desaturation also respects them.
	MaxTranslationalMPS float64 `json:"max_translational_mps,omitempty" yaml:"max_translational_mps,omitempty"`
	MaxRotationalRadPS  float64 `json:"max_rotational_rad_ps,omitempty" yaml:"max_rotational_rad_ps,omitempty"`

	LoopHz              float64 `json:"loop_hz,omitempty" yaml:"loop_hz,omitempty"`
	DiscretizePeriodSec float64 `json:"discretize_period_sec,omitempty" yaml:"discretize_period_sec,omitempty"`
	HistoryWindowSec    float64 `json:"history_window_sec,omitempty" yaml:"history_window_sec,omitempty"`

	StateStdDevs  estimator.StdDevs `json:"state_std_devs" yaml:"state_std_devs"`
	VisionStdDevs estimator.StdDevs `json:"vision_std_devs" yaml:"vision_std_devs"`

	InitialPose PoseConfig `json:"initial_pose" yaml:"initial_pose"`

	TranslationPID PIDConfig `json:"translation_pid" yaml:"translation_pid"`
	RotationPID    PIDConfig `json:"rotation_pid" yaml:"rotation_pid"`

	Telemetry TelemetryConfig `json:"telemetry" yaml:"telemetry"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-" yaml:"-"`
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if len(c.Modules) == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "modules")
	}
	if len(c.Modules) != kinematics.NumModules {
		return utils.NewConfigValidationError(path,
			errors.Errorf("a swerve drivetrain needs exactly %d modules, not %d", kinematics.NumModules, len(c.Modules)))
	}
	for idx := range c.Modules {
		if err := c.Modules[idx].Validate(fmt.Sprintf("%s.%s.%d", path, "modules", idx)); err != nil {
			return err
		}
	}
	names := lo.Map(c.Modules, func(mc ModuleConfig, _ int) string { return mc.Name })
	if dups := lo.FindDuplicates(names); len(dups) > 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("duplicate module name %q", dups[0]))
	}
	if _, err := kinematics.NewSwerveKinematics(c.ModuleTranslations()); err != nil {
		return utils.NewConfigValidationError(path, err)
	}

	// yaml accepts .nan and .inf, which slip past plain range comparisons
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"max_module_speed_mps", c.MaxModuleSpeedMPS},
		{"max_translational_mps", c.MaxTranslationalMPS},
		{"max_rotational_rad_ps", c.MaxRotationalRadPS},
		{"loop_hz", c.LoopHz},
		{"discretize_period_sec", c.DiscretizePeriodSec},
		{"history_window_sec", c.HistoryWindowSec},
		{"initial_pose.x_m", c.InitialPose.XMeters},
		{"initial_pose.y_m", c.InitialPose.YMeters},
		{"initial_pose.heading_deg", c.InitialPose.HeadingDeg},
		{"translation_pid.p", c.TranslationPID.P},
		{"translation_pid.i", c.TranslationPID.I},
		{"translation_pid.d", c.TranslationPID.D},
		{"rotation_pid.p", c.RotationPID.P},
		{"rotation_pid.i", c.RotationPID.I},
		{"rotation_pid.d", c.RotationPID.D},
	} {
		if !finite(field.value) {
			return utils.NewConfigValidationError(path, errors.Errorf("%s must be finite, got %v", field.name, field.value))
		}
	}

	if !(c.MaxModuleSpeedMPS > 0) {
		return utils.NewConfigValidationFieldRequiredError(path, "max_module_speed_mps")
	}
	if c.MaxTranslationalMPS < 0 || c.MaxRotationalRadPS < 0 {
		return utils.NewConfigValidationError(path, errors.New("chassis speed limits cannot be negative"))
	}
	if !(c.LoopHz >= 0 && c.LoopHz <= 1000) {
		return utils.NewConfigValidationError(path, errors.Errorf("loop_hz must be in (0, 1000], got %v", c.LoopHz))
	}
	if c.DiscretizePeriodSec < 0 {
		return utils.NewConfigValidationError(path, errors.New("discretize_period_sec cannot be negative"))
	}
	if c.HistoryWindowSec < 0 {
		return utils.NewConfigValidationError(path, errors.New("history_window_sec cannot be negative"))
	}
	for name, sd := range map[string]estimator.StdDevs{"state_std_devs": c.StateStdDevs, "vision_std_devs": c.VisionStdDevs} {
		if err := validateStdDevs(sd); err != nil {
			return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, name), err)
		}
	}
	return c.Telemetry.Validate(fmt.Sprintf("%s.%s", path, "telemetry"))
}

func validateStdDevs(sd estimator.StdDevs) error {
	for _, v := range []float64{sd.X, sd.Y, sd.Theta} {
		if !finite(v) || v < 0 {
			return errors.Errorf("standard deviations must be finite and non-negative, got %+v", sd)
		}
	}
	return nil
}

// ApplyDefaults fills unset optional fields. Zero standard deviations count as unset.
func (c *Config) ApplyDefaults() {
	if c.LoopHz == 0 {
		c.LoopHz = DefaultLoopHz
	}
	if c.DiscretizePeriodSec == 0 {
		c.DiscretizePeriodSec = DefaultDiscretizePeriodSec
	}
	if c.HistoryWindowSec == 0 {
		c.HistoryWindowSec = DefaultHistoryWindowSec
	}
	if c.StateStdDevs == (estimator.StdDevs{}) {
		c.StateStdDevs = estimator.StdDevs{X: 0.1, Y: 0.1, Theta: 0.1}
	}
	if c.VisionStdDevs == (estimator.StdDevs{}) {
		c.VisionStdDevs = estimator.StdDevs{X: 0.9, Y: 0.9, Theta: 0.9}
	}
	if c.TranslationPID == (PIDConfig{}) {
		c.TranslationPID = PIDConfig{P: 10}
	}
	if c.RotationPID == (PIDConfig{}) {
		c.RotationPID = PIDConfig{P: 5}
	}
}

// ModuleTranslations returns the module offsets in config order.
func (c *Config) ModuleTranslations() kinematics.ModuleTranslations {
	var out kinematics.ModuleTranslations
	for i := 0; i < len(c.Modules) && i < kinematics.NumModules; i++ {
		out[i] = spatialmath.NewTranslation2d(c.Modules[i].XMeters, c.Modules[i].YMeters)
	}
	return out
}

// LoopPeriod returns the control loop period.
func (c *Config) LoopPeriod() time.Duration {
	return seconds(1 / c.LoopHz)
}

// DiscretizePeriod returns the period used to discretize chassis commands.
func (c *Config) DiscretizePeriod() time.Duration {
	return seconds(c.DiscretizePeriodSec)
}

// HistoryWindow returns how long the estimator keeps odometry history.
func (c *Config) HistoryWindow() time.Duration {
	return seconds(c.HistoryWindowSec)
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
