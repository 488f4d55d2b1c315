// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package config holds the layered configuration for the analytics core.
// Precedence: environment variables > YAML config file > built-in defaults.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the Resonance server.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Processor ProcessorConfig `koanf:"processor"`
	Rollup    RollupConfig    `koanf:"rollup"`
	Match     MatchConfig     `koanf:"match"`
	Verifier  VerifierConfig  `koanf:"verifier"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	// RateLimitRequests/RateLimitWindow bound the append path per client IP.
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// CORSAllowedOrigins lists browser origins allowed to call the API.
	CORSAllowedOrigins []string `koanf:"cors_allowed_origins"`
}

// DatabaseConfig configures the embedded DuckDB store.
type DatabaseConfig struct {
	// Path is the DuckDB database file. Empty or ":memory:" opens an
	// in-memory database (used by tests).
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	// Threads is the DuckDB thread count. 0 = runtime.NumCPU().
	Threads int `koanf:"threads"`
}

// ProcessorConfig configures the trait mutation processor.
type ProcessorConfig struct {
	// Consumer names this processor in the ledger's processing side-table.
	Consumer string `koanf:"consumer"`

	// BatchSize bounds one RunBatch invocation.
	BatchSize int `koanf:"batch_size"`

	// Interval is the periodic trigger for batch runs.
	Interval time.Duration `koanf:"interval"`

	// DecayHalfLife controls recency decay: delta contributions halve for
	// every half-life between occurrence and processing time.
	DecayHalfLife time.Duration `koanf:"decay_half_life"`

	// DrainBatchesPerSecond rate-limits backlog draining. 0 = one batch per run.
	DrainBatchesPerSecond float64 `koanf:"drain_batches_per_second"`

	// BreakerFailureThreshold is the number of consecutive ledger read
	// failures before the circuit opens.
	BreakerFailureThreshold uint32 `koanf:"breaker_failure_threshold"`

	// BreakerTimeout is the open-state duration before a half-open probe.
	BreakerTimeout time.Duration `koanf:"breaker_timeout"`
}

// RollupConfig configures the leaderboard rollup builder.
type RollupConfig struct {
	Interval time.Duration `koanf:"interval"`
	// Limit caps rows materialized per (time_range, domain).
	Limit int `koanf:"limit"`
}

// MatchConfig configures the matching engine.
type MatchConfig struct {
	// RandomShare is the fraction of diversified results sampled randomly
	// from beyond the top scorers.
	RandomShare float64 `koanf:"random_share"`
	// Seed fixes the diversification RNG for reproducible runs. 0 = default.
	Seed int64 `koanf:"seed"`
}

// VerifierConfig configures the cross-ledger verifier.
type VerifierConfig struct {
	Interval time.Duration `koanf:"interval"`
	// GracePeriod is how old a finance row must be before reconciliation
	// is attempted, giving the event-ledger write time to land.
	GracePeriod time.Duration `koanf:"grace_period"`
	// BatchSize caps correlations verified per sweep.
	BatchSize int `koanf:"batch_size"`
	// ToleranceCents is the rounding tolerance for amount comparison.
	ToleranceCents int64 `koanf:"tolerance_cents"`
}

// LoggingConfig configures the zerolog output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:               "0.0.0.0",
			Port:               8372,
			Timeout:            30 * time.Second,
			RateLimitRequests:  300,
			RateLimitWindow:    time.Minute,
			CORSAllowedOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			Path:      "/data/resonance.duckdb",
			MaxMemory: "2GB",
			Threads:   0,
		},
		Processor: ProcessorConfig{
			Consumer:                "trait-processor",
			BatchSize:               200,
			Interval:                15 * time.Second,
			DecayHalfLife:           30 * 24 * time.Hour,
			DrainBatchesPerSecond:   4,
			BreakerFailureThreshold: 5,
			BreakerTimeout:          10 * time.Second,
		},
		Rollup: RollupConfig{
			Interval: 5 * time.Minute,
			Limit:    500,
		},
		Match: MatchConfig{
			RandomShare: 0.3,
			Seed:        0,
		},
		Verifier: VerifierConfig{
			Interval:       time.Minute,
			GracePeriod:    5 * time.Minute,
			BatchSize:      100,
			ToleranceCents: 1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if c.Processor.Consumer == "" {
		return fmt.Errorf("processor.consumer must not be empty")
	}
	if c.Processor.BatchSize <= 0 {
		return fmt.Errorf("processor.batch_size must be positive")
	}
	if c.Processor.DecayHalfLife <= 0 {
		return fmt.Errorf("processor.decay_half_life must be positive")
	}
	if c.Processor.DrainBatchesPerSecond < 0 {
		return fmt.Errorf("processor.drain_batches_per_second must not be negative")
	}
	if c.Rollup.Interval <= 0 {
		return fmt.Errorf("rollup.interval must be positive")
	}
	if c.Rollup.Limit <= 0 {
		return fmt.Errorf("rollup.limit must be positive")
	}
	if c.Match.RandomShare < 0 || c.Match.RandomShare > 1 {
		return fmt.Errorf("match.random_share must be in [0,1]: %g", c.Match.RandomShare)
	}
	if c.Verifier.ToleranceCents < 0 {
		return fmt.Errorf("verifier.tolerance_cents must not be negative")
	}
	if c.Verifier.GracePeriod < 0 {
		return fmt.Errorf("verifier.grace_period must not be negative")
	}
	if c.Verifier.BatchSize <= 0 {
		return fmt.Errorf("verifier.batch_size must be positive")
	}
	return nil
}
