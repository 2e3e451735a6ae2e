// internal/config/load.go
package config

import (
	"bytes"
	"io"
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Load reads and decodes a YAML config file.
// Unknown keys are rejected so typos surface at startup.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	return Parse(raw)
}

// Parse decodes a YAML document into a Config.
// It performs no validation.
func Parse(raw []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		// empty document: let Validate report what is missing
		if errors.Is(err, io.EOF) {
			return &cfg, nil
		}
		return nil, errors.Wrap(err, "decode config")
	}
	return &cfg, nil
}
