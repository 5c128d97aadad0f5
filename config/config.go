// Package config defines the on-disk configuration of a navigation node and how it is read,
// validated and reloaded.
package config

import (
	"github.com/pkg/errors"
	"go.viam.com/utils"

	"go.viam.com/dronenav/logging"
	"go.viam.com/dronenav/services/navigation"
)

// DefaultBaudRate is used for the serial link when none is configured.
const DefaultBaudRate = 115200

// Config is the full configuration of a navigation node. Controller parameters live at the top
// level so parameter files written for the ROS node keep working.
type Config struct {
	navigation.Config `json:",squash"`

	LogLevel  string        `json:"log_level,omitempty"`
	Serial    *SerialConfig `json:"serial,omitempty"`
	FlightLog string        `json:"flight_log,omitempty"`

	// ConfigFilePath is where the config was read from, if anywhere.
	ConfigFilePath string `json:"-"`
}

// SerialConfig describes the serial link to a flight controller.
type SerialConfig struct {
	Path     string `json:"path"`
	BaudRate int    `json:"baud_rate,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (sc *SerialConfig) Validate(path string) error {
	if sc.Path == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "path")
	}
	if sc.BaudRate < 0 {
		return utils.NewConfigValidationError(path, errors.New("baud_rate cannot be negative"))
	}
	return nil
}

// Default returns a config with every controller parameter at its default and no outputs.
func Default() *Config {
	return &Config{Config: navigation.DefaultConfig()}
}

// Validate ensures all parts of the config are valid and fills in defaults where a zero value
// means "unset".
func (c *Config) Validate(path string) error {
	if err := c.Config.Validate(path); err != nil {
		return err
	}
	if c.LogLevel != "" {
		if _, err := logging.LevelFromString(c.LogLevel); err != nil {
			return utils.NewConfigValidationError(path, err)
		}
	}
	if c.Serial != nil {
		if err := c.Serial.Validate(path + ".serial"); err != nil {
			return err
		}
		if c.Serial.BaudRate == 0 {
			c.Serial.BaudRate = DefaultBaudRate
		}
	}
	return nil
}

// Level returns the configured log level, defaulting to INFO.
func (c *Config) Level() logging.Level {
	if c.LogLevel == "" {
		return logging.INFO
	}
	level, err := logging.LevelFromString(c.LogLevel)
	if err != nil {
		return logging.INFO
	}
	return level
}
