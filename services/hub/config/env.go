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
	"os"
	"strconv"
)

// fromEnv overlays HUB_* environment variables onto cfg. Unparseable
// values are ignored so one bad variable cannot take the hub down; the
// final Validate still catches out-of-range results.
func fromEnv(cfg *Config) {
	if v, ok := envBool("HUB_ENABLED"); ok {
		cfg.Enabled = v
	}
	if v, ok := envBool("HUB_FILTERING"); ok {
		cfg.Filtering = v
	}
	if v, ok := envBool("HUB_FALLBACK"); ok {
		cfg.Fallback = v
	}
	if v, ok := envInt("HUB_MAX_TOOLS"); ok {
		cfg.MaxTools = v
	}
	if v := os.Getenv("HUB_STRATEGY"); v != "" {
		cfg.Strategy = v
	}
	if v, ok := envFloat("HUB_T2_THRESHOLD"); ok {
		cfg.T2Threshold = v
	}
	if v, ok := envFloat("HUB_T3_THRESHOLD"); ok {
		cfg.T3Threshold = v
	}
	if v, ok := envInt("HUB_DETECTION_TIMEOUT_MS"); ok {
		cfg.DetectionTimeoutMs = v
	}
	if v, ok := envInt("HUB_LIST_TIMEOUT_MS"); ok {
		cfg.ListTimeoutMs = v
	}
	if v, ok := envInt("HUB_CLIENT_TIMEOUT_MS"); ok {
		cfg.ClientTimeoutMs = v
	}
	if v, ok := envBool("HUB_CACHE"); ok {
		cfg.Cache = v
	}
	// One knob for both caches; the file keys set them individually.
	if v, ok := envInt("HUB_CACHE_TTL_SEC"); ok {
		cfg.DetectionCacheTTLSec = v
		cfg.DecisionCacheTTLSec = v
	}
	if v, ok := envInt("HUB_SESSION_TTL_SEC"); ok {
		cfg.SessionTTLSec = v
	}
	if v, ok := envBool("HUB_VALIDATE_ARGS"); ok {
		cfg.ValidateArgs = v
	}
	if v, ok := envInt("HUB_PORT"); ok {
		cfg.Port = v
	}
	if v := os.Getenv("HUB_STORE_PATH"); v != "" {
		cfg.StorePath = v
	}
	if v := os.Getenv("HUB_CATEGORY_MAP_PATH"); v != "" {
		cfg.CategoryMapPath = v
	}
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	return v == "true" || v == "1", true
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func envFloat(key string) (float64, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
