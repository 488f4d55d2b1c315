// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package database provides the DuckDB-backed storage layer: the interaction
// ledger, its per-consumer processing side-table, trait mutations, domain
// strengths, leaderboard rollups, and the financial ledger reconciled by the
// verifier.
//
// The package implements the store interfaces declared by its consumers
// (ledger.Store, traits.LedgerSource, traits.MutationStore, rollup.Store,
// insights.Store, verify stores) so no package depends on this one except
// the wiring in cmd.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/harmonia-live/resonance/internal/config"
	"github.com/harmonia-live/resonance/internal/logging"
)

// queryTimeout bounds individual analytical queries.
const queryTimeout = 30 * time.Second

// DB wraps the DuckDB connection and provides all data access methods.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// New opens (or creates) the database and initializes the schema.
func New(cfg config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	dsn := ""
	if cfg.Path != "" && cfg.Path != ":memory:" {
		// Ensure the parent directory exists for the database file.
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("create database directory %s: %w", dbDir, err)
			}
		}

		maxMemory := cfg.MaxMemory
		if maxMemory == "" {
			maxMemory = "2GB"
		}

		// Disable auto-install/auto-load of extensions to prevent hangs in
		// restricted network environments. Nothing here needs extensions.
		dsn = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s&autoinstall_known_extensions=false&autoload_known_extensions=false",
			cfg.Path, numThreads, maxMemory)
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}

	if err := db.createSchema(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logging.Info().
		Str("path", cfg.Path).
		Int("threads", numThreads).
		Msg("database ready")

	return db, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the connection, for health checks.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// queryContext returns a context with the standard query timeout.
func queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, queryTimeout)
}
