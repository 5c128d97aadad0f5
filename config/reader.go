package config

import (
	"bytes"
	"io"
	"sort"

	"github.com/a8m/envsubst"
	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"go.viam.com/dronenav/logging"
)

// Read reads a config from the given file. Environment variables referenced as $VAR or ${VAR}
// are substituted before parsing.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}

	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a config from the given reader and specifies
// where, if applicable, the file the reader originated from.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	// json5 so hand edited files may carry comments and trailing commas
	var attributes map[string]interface{}
	if err := json5.Unmarshal(raw, &attributes); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %q", originalPath)
	}

	cfg := Default()
	if err := decode(attributes, cfg, logger); err != nil {
		return nil, errors.Wrapf(err, "failed to decode config %q", originalPath)
	}
	cfg.ConfigFilePath = originalPath

	if err := cfg.Validate("config"); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays attributes onto out. Keys that match no field are logged and ignored.
func decode(attributes map[string]interface{}, out *Config, logger logging.Logger) error {
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           out,
		Metadata:         &md,
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(attributes); err != nil {
		return err
	}
	if len(md.Unused) > 0 {
		sort.Strings(md.Unused)
		logger.Warnw("ignoring unknown config keys", "keys", md.Unused)
	}
	return nil
}
