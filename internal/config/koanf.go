// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package config

import (
	"fmt"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/resonance/config.yaml",
	"/etc/resonance/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. Environment variables (highest priority)
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or "".
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps environment variable names to koanf paths. Unmapped
// variables are dropped so stray environment does not pollute the config.
func envTransform(key string) string {
	mappings := map[string]string{
		"HTTP_HOST":           "server.host",
		"HTTP_PORT":           "server.port",
		"HTTP_TIMEOUT":        "server.timeout",
		"RATE_LIMIT_REQUESTS": "server.rate_limit_requests",
		"RATE_LIMIT_WINDOW":   "server.rate_limit_window",

		"DUCKDB_PATH":       "database.path",
		"DUCKDB_MAX_MEMORY": "database.max_memory",
		"DUCKDB_THREADS":    "database.threads",

		"PROCESSOR_CONSUMER":          "processor.consumer",
		"PROCESSOR_BATCH_SIZE":        "processor.batch_size",
		"PROCESSOR_INTERVAL":          "processor.interval",
		"PROCESSOR_DECAY_HALF_LIFE":   "processor.decay_half_life",
		"PROCESSOR_DRAIN_BATCHES_SEC": "processor.drain_batches_per_second",
		"PROCESSOR_BREAKER_FAILURES":  "processor.breaker_failure_threshold",
		"PROCESSOR_BREAKER_TIMEOUT":   "processor.breaker_timeout",

		"ROLLUP_INTERVAL": "rollup.interval",
		"ROLLUP_LIMIT":    "rollup.limit",

		"MATCH_RANDOM_SHARE": "match.random_share",
		"MATCH_SEED":         "match.seed",

		"VERIFIER_INTERVAL":        "verifier.interval",
		"VERIFIER_GRACE_PERIOD":    "verifier.grace_period",
		"VERIFIER_BATCH_SIZE":      "verifier.batch_size",
		"VERIFIER_TOLERANCE_CENTS": "verifier.tolerance_cents",

		"LOG_LEVEL":  "logging.level",
		"LOG_FORMAT": "logging.format",
		"LOG_CALLER": "logging.caller",
	}

	if mapped, ok := mappings[key]; ok {
		return mapped
	}
	return ""
}
