package config

import (
	"bytes"
	"encoding/json"
	"io"
	"path/filepath"
	"strings"

	"github.com/a8m/envsubst"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a config file.
type Format string

// The supported config encodings.
const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFromPath picks the encoding from the file extension. Anything that is not .yaml or .yml
// is treated as JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// Read reads a config from the given file, substituting ${ENV} references, applying defaults,
// and validating the result.
func Read(filePath string) (*Config, error) {
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read config %q", filePath)
	}
	cfg, err := FromReader(filePath, bytes.NewReader(buf), FormatFromPath(filePath))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromReader reads a config from the given reader. originalPath is recorded on the config and
// used as the root of validation error paths.
func FromReader(originalPath string, r io.Reader, format Format) (*Config, error) {
	cfg := &Config{ConfigFilePath: originalPath}
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "cannot parse yaml config")
		}
	case FormatJSON:
		dec := json.NewDecoder(r)
		dec.DisallowUnknownFields()
		if err := dec.Decode(cfg); err != nil {
			return nil, errors.Wrap(err, "cannot parse json config")
		}
	default:
		return nil, errors.Errorf("unknown config format %q", format)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(validationRoot(originalPath)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validationRoot(path string) string {
	if path == "" {
		return "drivetrain"
	}
	return filepath.Base(path)
}
