// Package config provides YAML configuration loading and validation for the
// switchboard server. Values loaded from file are meant to be overridden by
// command line flags at the call site; LoadConfig itself only deals with the
// file.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration for the switchboard server.
type Config struct {
	// Addr is the HTTP listen address, e.g. ":8000". Defaults to ":8000"
	// when omitted.
	Addr string `yaml:"addr"`

	// RegistrationPassword gates session registration: a POST to
	// /game/register must carry a secret_hash equal to
	// hex(sha1(RegistrationPassword)). Empty disables the check (dev mode).
	RegistrationPassword string `yaml:"registration_password"`

	// StaticDir is the directory the landing page (index.html) is served
	// from; no other file in it is served. Defaults to "www" when omitted.
	StaticDir string `yaml:"static_dir"`

	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates the result. A validation error joins every failure
// found (errors.Join) and is wrapped with the file path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8000"
	}
	if cfg.StaticDir == "" {
		cfg.StaticDir = "www"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// validate checks that all required fields are populated and that enumerated
// fields contain only valid values.
func validate(cfg *Config) error {
	var errs []error

	if cfg.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}

	return errors.Join(errs...)
}
