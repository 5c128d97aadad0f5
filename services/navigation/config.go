package navigation

import (
	"fmt"
	"math"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/dronenav/control"
)

// Defaults applied by DefaultConfig.
const (
	DefaultGain                 = 0.5
	DefaultTranslationalSpeed   = 2.0
	DefaultRotationalSpeed      = 2.0
	DefaultPositionTolerance    = 0.15
	DefaultYawTolerance         = 0.05
	DefaultNoTrajectoryWarnRate = 5 * time.Second
)

// MaxSpeed bounds the magnitude of each commanded velocity component.
type MaxSpeed struct {
	Translational float64 `json:"translational"`
	Rotational    float64 `json:"rotational"`
}

// Config describes how to configure the navigator.
type Config struct {
	X   control.Gains `json:"x"`
	Y   control.Gains `json:"y"`
	Z   control.Gains `json:"z"`
	Yaw control.Gains `json:"yaw"`

	MaxSpeed     MaxSpeed `json:"max_speed"`
	Tolerance    float64  `json:"tolerance"`
	YawTolerance float64  `json:"yaw_tolerance"`

	// IntegralMode is "rescaled" (default) or "accumulated"; see control.IntegralMode.
	IntegralMode string `json:"integral_mode"`
	// WrapYawError wraps the heading error into (-pi, pi] before it reaches the yaw controller.
	WrapYawError bool `json:"wrap_yaw_error"`
	// WarnInterval rate limits the warning logged for poses that arrive before any trajectory.
	WarnInterval time.Duration `json:"warn_interval"`
}

// DefaultConfig returns the configuration used when nothing else is supplied.
func DefaultConfig() Config {
	gains := control.Gains{Kp: DefaultGain}
	return Config{
		X:   gains,
		Y:   gains,
		Z:   gains,
		Yaw: gains,
		MaxSpeed: MaxSpeed{
			Translational: DefaultTranslationalSpeed,
			Rotational:    DefaultRotationalSpeed,
		},
		Tolerance:    DefaultPositionTolerance,
		YawTolerance: DefaultYawTolerance,
		IntegralMode: string(control.IntegralRescaled),
		WarnInterval: DefaultNoTrajectoryWarnRate,
	}
}

// Tolerances returns the configured tolerances.
func (config *Config) Tolerances() Tolerances {
	return Tolerances{Position: config.Tolerance, Yaw: config.YawTolerance}
}

// Validate ensures all parts of the config are valid.
func (config *Config) Validate(path string) error {
	for name, gains := range map[string]control.Gains{"x": config.X, "y": config.Y, "z": config.Z, "yaw": config.Yaw} {
		for term, v := range map[string]float64{"kp": gains.Kp, "ki": gains.Ki, "kd": gains.Kd} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return utils.NewConfigValidationError(fmt.Sprintf("%s.%s", path, name), errors.Errorf("%s must be finite", term))
			}
		}
	}
	if config.MaxSpeed.Translational <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_speed.translational")
	}
	if config.MaxSpeed.Rotational <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_speed.rotational")
	}
	if config.Tolerance <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "tolerance")
	}
	if config.YawTolerance <= 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "yaw_tolerance")
	}
	if config.WarnInterval < 0 {
		return utils.NewConfigValidationError(path, errors.New("warn_interval cannot be negative"))
	}
	if _, err := control.ParseIntegralMode(config.IntegralMode); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	return nil
}
