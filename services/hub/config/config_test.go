// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/AleutianAI/AleutianHub/services/hub/planner"
	"github.com/AleutianAI/AleutianHub/services/hub/tsp"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if !cfg.Enabled || !cfg.Filtering || !cfg.Fallback || !cfg.Cache {
		t.Errorf("expected enabled/filtering/fallback/cache on by default: %+v", cfg)
	}
	if cfg.MaxTools != planner.DefaultMaxTools {
		t.Errorf("MaxTools = %d, want %d", cfg.MaxTools, planner.DefaultMaxTools)
	}
	if cfg.T2Threshold != 0.25 || cfg.T3Threshold != 0.55 {
		t.Errorf("thresholds = %v/%v, want 0.25/0.55", cfg.T2Threshold, cfg.T3Threshold)
	}
	if cfg.DetectionTimeoutMs != 50 || cfg.ListTimeoutMs != 5000 || cfg.ClientTimeoutMs != 30000 {
		t.Errorf("timeouts = %d/%d/%d, want 50/5000/30000",
			cfg.DetectionTimeoutMs, cfg.ListTimeoutMs, cfg.ClientTimeoutMs)
	}
	if cfg.DetectionCacheTTLSec != 300 || cfg.DecisionCacheTTLSec != 3600 {
		t.Errorf("cache TTLs = %d/%d, want 300/3600",
			cfg.DetectionCacheTTLSec, cfg.DecisionCacheTTLSec)
	}
	if cfg.ValidateArgs {
		t.Error("ValidateArgs should default off")
	}
	if got := cfg.DefaultStrategy(); got != planner.StrategyConservative {
		t.Errorf("DefaultStrategy() = %q, want CONSERVATIVE", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate: %v", err)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HUB_MAX_TOOLS", "10")
	t.Setenv("HUB_FILTERING", "false")
	t.Setenv("HUB_STRATEGY", "balanced")
	t.Setenv("HUB_CACHE_TTL_SEC", "60")
	t.Setenv("HUB_DETECTION_TIMEOUT_MS", "75")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MaxTools != 10 {
		t.Errorf("MaxTools = %d, want 10", cfg.MaxTools)
	}
	if cfg.Filtering {
		t.Error("expected filtering off")
	}
	if got := cfg.DefaultStrategy(); got != planner.StrategyBalanced {
		t.Errorf("DefaultStrategy() = %q, want BALANCED", got)
	}
	// The single env knob sets both cache TTLs
	if cfg.DetectionCacheTTLSec != 60 || cfg.DecisionCacheTTLSec != 60 {
		t.Errorf("cache TTLs = %d/%d, want 60/60",
			cfg.DetectionCacheTTLSec, cfg.DecisionCacheTTLSec)
	}
	if cfg.DetectionTimeoutMs != 75 {
		t.Errorf("DetectionTimeoutMs = %d, want 75", cfg.DetectionTimeoutMs)
	}
}

func TestLoad_EnvUnparseableIgnored(t *testing.T) {
	t.Setenv("HUB_MAX_TOOLS", "lots")
	t.Setenv("HUB_T2_THRESHOLD", "high")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MaxTools != planner.DefaultMaxTools {
		t.Errorf("MaxTools = %d, want default on bad env", cfg.MaxTools)
	}
	if cfg.T2Threshold != 0.25 {
		t.Errorf("T2Threshold = %v, want default on bad env", cfg.T2Threshold)
	}
}

func TestLoad_FileOverridesEnv(t *testing.T) {
	t.Setenv("HUB_MAX_TOOLS", "10")
	t.Setenv("HUB_DETECTION_TIMEOUT_MS", "75")

	path := writeConfig(t, "hub.yaml", `
max_tools: 40
detection_cache_ttl_sec: 120
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.MaxTools != 40 {
		t.Errorf("MaxTools = %d, want file value 40", cfg.MaxTools)
	}
	// Keys absent from the file keep their env values
	if cfg.DetectionTimeoutMs != 75 {
		t.Errorf("DetectionTimeoutMs = %d, want env value 75", cfg.DetectionTimeoutMs)
	}
	// The file can split the cache TTLs the env knob sets together
	if cfg.DetectionCacheTTLSec != 120 {
		t.Errorf("DetectionCacheTTLSec = %d, want 120", cfg.DetectionCacheTTLSec)
	}
	if cfg.DecisionCacheTTLSec != 3600 {
		t.Errorf("DecisionCacheTTLSec = %d, want default 3600", cfg.DecisionCacheTTLSec)
	}
}

func TestLoad_Files(t *testing.T) {
	t.Run("missing file uses defaults", func(t *testing.T) {
		cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.MaxTools != planner.DefaultMaxTools {
			t.Errorf("MaxTools = %d, want default", cfg.MaxTools)
		}
	})

	t.Run("unparseable file is invalid", func(t *testing.T) {
		path := writeConfig(t, "bad.yaml", "{{{{")

		_, err := Load(path)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("expected ErrInvalid, got %v", err)
		}
	})

	t.Run("json accepted", func(t *testing.T) {
		path := writeConfig(t, "hub.json", `{"max_tools": 15, "port": 12245}`)

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.MaxTools != 15 || cfg.Port != 12245 {
			t.Errorf("MaxTools/Port = %d/%d, want 15/12245", cfg.MaxTools, cfg.Port)
		}
	})
}

func TestLoad_Servers(t *testing.T) {
	path := writeConfig(t, "hub.yaml", `
servers:
  - name: filesystem
    transport: stdio
    command: /usr/local/bin/fs-server
    args: ["--root", "/workspace"]
    enabled: true
  - name: search
    transport: sse
    url: http://localhost:9200/events
    enabled: true
  - name: staging
    transport: stdio
    command: /usr/local/bin/staging-server
    enabled: false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Servers) != 3 {
		t.Fatalf("expected 3 servers, got %d", len(cfg.Servers))
	}
	if cfg.Servers[0].Transport != tsp.TransportStdio {
		t.Errorf("servers[0].Transport = %q, want stdio", cfg.Servers[0].Transport)
	}
	if cfg.Servers[1].URL != "http://localhost:9200/events" {
		t.Errorf("servers[1].URL = %q", cfg.Servers[1].URL)
	}

	enabled := cfg.EnabledServers()
	if len(enabled) != 2 {
		t.Fatalf("EnabledServers() = %d entries, want 2", len(enabled))
	}
	for _, sc := range enabled {
		if sc.Name == "staging" {
			t.Error("disabled server returned by EnabledServers")
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config { return Default() }

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max tools", func(c *Config) { c.MaxTools = 0 }},
		{"oversized max tools", func(c *Config) { c.MaxTools = 1000 }},
		{"unknown strategy", func(c *Config) { c.Strategy = "RECKLESS" }},
		{"t2 threshold at zero", func(c *Config) { c.T2Threshold = 0 }},
		{"t3 threshold at one", func(c *Config) { c.T3Threshold = 1 }},
		{"zero detection timeout", func(c *Config) { c.DetectionTimeoutMs = 0 }},
		{"port out of range", func(c *Config) { c.Port = 70000 }},
		{"stdio server without command", func(c *Config) {
			c.Servers = []tsp.ClientConfig{{Name: "fs", Transport: tsp.TransportStdio}}
		}},
		{"duplicate server names", func(c *Config) {
			c.Servers = []tsp.ClientConfig{
				{Name: "fs", Transport: tsp.TransportStdio, Command: "/bin/a"},
				{Name: "fs", Transport: tsp.TransportStdio, Command: "/bin/b"},
			}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalid) {
				t.Errorf("expected ErrInvalid, got %v", err)
			}
		})
	}

	t.Run("hyphenated strategy accepted", func(t *testing.T) {
		cfg := valid()
		cfg.Strategy = "user-controlled"
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate: %v", err)
		}
		if got := cfg.DefaultStrategy(); got != planner.StrategyUserControlled {
			t.Errorf("DefaultStrategy() = %q, want USER_CONTROLLED", got)
		}
	})
}

func TestConfig_Durations(t *testing.T) {
	cfg := Default()

	if got := cfg.DetectionBudget(); got != 50*time.Millisecond {
		t.Errorf("DetectionBudget() = %v, want 50ms", got)
	}
	if got := cfg.ListBudget(); got != 5*time.Second {
		t.Errorf("ListBudget() = %v, want 5s", got)
	}
	if got := cfg.ClientTimeout(); got != 30*time.Second {
		t.Errorf("ClientTimeout() = %v, want 30s", got)
	}
	if got := cfg.DetectionTTL(); got != 5*time.Minute {
		t.Errorf("DetectionTTL() = %v, want 5m", got)
	}
	if got := cfg.DecisionTTL(); got != time.Hour {
		t.Errorf("DecisionTTL() = %v, want 1h", got)
	}
	if got := cfg.SessionTTL(); got != 30*time.Minute {
		t.Errorf("SessionTTL() = %v, want 30m", got)
	}
}
