// internal/config/load.go
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads the YAML file and applies environment overrides.
// It does not validate or normalize.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Parse decodes YAML. Unknown keys are rejected; an empty document yields a zero Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("UPLINK_BUS_ADDRESS"); v != "" {
		c.Bus.Address = v
	}

	if v := os.Getenv("UPLINK_NATS_URL"); v != "" {
		c.Uplink.NATS.URL = v
	}

	if v := os.Getenv("UPLINK_ARCHIVE_DSN"); v != "" {
		c.Archive.DSN = v
	}

	if v := os.Getenv("UPLINK_API_JWT_SECRET"); v != "" {
		c.API.JWTSecret = v
	}

	if v := os.Getenv("UPLINK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}
