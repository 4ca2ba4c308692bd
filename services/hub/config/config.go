// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads the hub's configuration.
//
// Priority is defaults, then HUB_* environment variables, then an
// optional YAML file. The file wins where both are present so an
// operator can pin a deployment with one artifact; the environment
// covers the common container case where no file is mounted.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianHub/services/hub/planner"
	"github.com/AleutianAI/AleutianHub/services/hub/tsp"
)

// ErrInvalid wraps every validation failure so main can map any of them
// to the configuration exit code.
var ErrInvalid = errors.New("invalid hub configuration")

// configValidate is the validator instance for the config package.
var configValidate *validator.Validate

func init() {
	configValidate = validator.New()

	_ = configValidate.RegisterValidation("strategy", validateStrategy)
}

// validateStrategy accepts any spelling ParseStrategy accepts.
func validateStrategy(fl validator.FieldLevel) bool {
	_, err := planner.ParseStrategy(fl.Field().String())
	return err == nil
}

// Config is the hub's full configuration.
//
// # Thread Safety
//
// Safe to read concurrently. Not safe to modify after Load.
type Config struct {
	// Enabled is the master switch. A disabled hub serves the union
	// catalog and never filters.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Filtering toggles the detector/planner pipeline. False serves the
	// union catalog on every ListTools.
	Filtering bool `json:"filtering" yaml:"filtering"`

	// Fallback controls degradation: true serves the safe default on
	// filter errors, false surfaces them.
	Fallback bool `json:"fallback" yaml:"fallback"`

	// MaxTools caps the descriptors one ListTools may return.
	MaxTools int `json:"max_tools" yaml:"max_tools" validate:"min=1,max=500"`

	// Strategy is the base planning strategy for new sessions.
	Strategy string `json:"strategy" yaml:"strategy" validate:"strategy"`

	// T2Threshold and T3Threshold are the detector's base activation
	// thresholds.
	T2Threshold float64 `json:"t2_threshold" yaml:"t2_threshold" validate:"gt=0,lt=1"`
	T3Threshold float64 `json:"t3_threshold" yaml:"t3_threshold" validate:"gt=0,lt=1"`

	// DetectionTimeoutMs bounds one detector pass.
	DetectionTimeoutMs int `json:"detection_timeout_ms" yaml:"detection_timeout_ms" validate:"min=1,max=60000"`

	// ListTimeoutMs bounds a whole ListTools call, detection included.
	ListTimeoutMs int `json:"list_timeout_ms" yaml:"list_timeout_ms" validate:"min=1,max=600000"`

	// ClientTimeoutMs is the per-server tool call timeout.
	ClientTimeoutMs int `json:"client_timeout_ms" yaml:"client_timeout_ms" validate:"min=1,max=600000"`

	// Cache toggles the detection and decision caches together.
	Cache bool `json:"cache" yaml:"cache"`

	// DetectionCacheTTLSec and DecisionCacheTTLSec are per-cache entry
	// lifetimes.
	DetectionCacheTTLSec int `json:"detection_cache_ttl_sec" yaml:"detection_cache_ttl_sec" validate:"min=1"`
	DecisionCacheTTLSec  int `json:"decision_cache_ttl_sec" yaml:"decision_cache_ttl_sec" validate:"min=1"`

	// SessionTTLSec retires sessions idle this long.
	SessionTTLSec int `json:"session_ttl_sec" yaml:"session_ttl_sec" validate:"min=1"`

	// ValidateArgs checks CallTool arguments against the descriptor's
	// input schema before dispatch.
	ValidateArgs bool `json:"validate_args" yaml:"validate_args"`

	// Port is the HTTP listen port.
	Port int `json:"port" yaml:"port" validate:"min=1,max=65535"`

	// StorePath is the decision store directory. Empty disables
	// persistence; decisions then live only in RAM.
	StorePath string `json:"store_path,omitempty" yaml:"store_path,omitempty"`

	// CategoryMapPath points at an external category map. Empty uses the
	// embedded default.
	CategoryMapPath string `json:"category_map_path,omitempty" yaml:"category_map_path,omitempty"`

	// Servers are the back-end tool servers.
	Servers []tsp.ClientConfig `json:"servers,omitempty" yaml:"servers,omitempty"`
}

// Default returns the configuration the hub runs with when nothing is
// set.
func Default() Config {
	return Config{
		Enabled:              true,
		Filtering:            true,
		Fallback:             true,
		MaxTools:             planner.DefaultMaxTools,
		Strategy:             string(planner.StrategyConservative),
		T2Threshold:          0.25,
		T3Threshold:          0.55,
		DetectionTimeoutMs:   50,
		ListTimeoutMs:        5000,
		ClientTimeoutMs:      30000,
		Cache:                true,
		DetectionCacheTTLSec: 300,
		DecisionCacheTTLSec:  3600,
		SessionTTLSec:        1800,
		ValidateArgs:         false,
		Port:                 12240,
	}
}

// Load builds the configuration from defaults, environment, and the
// optional file at path.
//
// # Inputs
//
//   - path: YAML (or JSON) config file. Empty or missing uses
//     environment and defaults only.
//
// # Outputs
//
//   - Config: The merged configuration.
//   - error: Wraps ErrInvalid on any validation failure, so callers can
//     map all of them to the configuration exit code.
func Load(path string) (Config, error) {
	cfg := Default()
	fromEnv(&cfg)

	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile merges the file at path into cfg. A missing file is not an
// error; a present but unparseable one is.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config file: %v", err)
	}

	// Try YAML first, then JSON
	if yamlErr := yaml.Unmarshal(data, cfg); yamlErr != nil {
		if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
			return fmt.Errorf("parse config %s (tried YAML and JSON): YAML error: %v, JSON error: %v", path, yamlErr, jsonErr)
		}
	}
	return nil
}

// Validate checks the configuration. Every failure wraps ErrInvalid.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	seen := make(map[string]bool, len(c.Servers))
	for _, sc := range c.Servers {
		if err := sc.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		if seen[sc.Name] {
			return fmt.Errorf("%w: duplicate server name %q", ErrInvalid, sc.Name)
		}
		seen[sc.Name] = true
	}
	return nil
}

// DefaultStrategy returns the parsed base strategy.
func (c Config) DefaultStrategy() planner.Strategy {
	s, err := planner.ParseStrategy(c.Strategy)
	if err != nil {
		return planner.StrategyConservative
	}
	return s
}

// DetectionBudget returns the detector time budget.
func (c Config) DetectionBudget() time.Duration {
	return time.Duration(c.DetectionTimeoutMs) * time.Millisecond
}

// ListBudget returns the overall ListTools deadline.
func (c Config) ListBudget() time.Duration {
	return time.Duration(c.ListTimeoutMs) * time.Millisecond
}

// ClientTimeout returns the per-server call timeout.
func (c Config) ClientTimeout() time.Duration {
	return time.Duration(c.ClientTimeoutMs) * time.Millisecond
}

// DetectionTTL returns the detection cache entry lifetime.
func (c Config) DetectionTTL() time.Duration {
	return time.Duration(c.DetectionCacheTTLSec) * time.Second
}

// DecisionTTL returns the decision cache entry lifetime.
func (c Config) DecisionTTL() time.Duration {
	return time.Duration(c.DecisionCacheTTLSec) * time.Second
}

// SessionTTL returns the session idle lifetime.
func (c Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLSec) * time.Second
}

// EnabledServers filters Servers down to the entries to connect at
// startup.
func (c Config) EnabledServers() []tsp.ClientConfig {
	out := make([]tsp.ClientConfig, 0, len(c.Servers))
	for _, sc := range c.Servers {
		if sc.Enabled {
			out = append(out, sc)
		}
	}
	return out
}
