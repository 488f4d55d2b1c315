// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package database

import (
	"context"
	"fmt"
	"time"
)

// Schema overview:
//
//   - ledger_entries: the append-only interaction ledger. Immutable after
//     insert; no update or delete path exists.
//   - ledger_processing: per-consumer processed flags as a side table, so
//     adding a consumer never touches the hot write path.
//   - trait_mutations: one quantified delta per (source entry, domain, key).
//     The uniqueness constraint is the processor's idempotency guard.
//   - domain_strengths: running sums per (entity, domain, key); the empty
//     key row is the domain total. Mutated only by atomic increments.
//   - leaderboard_rollups: fully derived ranked views, replaced wholesale
//     each refresh cycle. Never a write target for application code.
//   - finance_entries: the financial ledger reconciled against the event
//     ledger; verification results are written back onto these rows.
//
// All columns are defined in the initial CREATE TABLE statements; there are
// no versioned migrations yet.

// schemaContext returns a context with timeout for schema operations.
func schemaContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 60*time.Second)
}

// createSchema creates the sequence, tables, and indexes.
func (db *DB) createSchema() error {
	ctx, cancel := schemaContext()
	defer cancel()

	statements := []string{
		// Monotonic tiebreaker for ledger ordering within a timestamp granule.
		`CREATE SEQUENCE IF NOT EXISTS ledger_entry_seq`,

		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID PRIMARY KEY,
			seq BIGINT NOT NULL,
			actor_id TEXT NOT NULL,
			category TEXT NOT NULL,
			event_type TEXT NOT NULL,
			entity_type TEXT,
			entity_id TEXT,
			metadata TEXT NOT NULL DEFAULT '{}',
			session_id TEXT,
			occurred_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ledger_processing (
			entry_id UUID NOT NULL,
			consumer TEXT NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (entry_id, consumer)
		)`,

		`CREATE TABLE IF NOT EXISTS trait_mutations (
			id UUID PRIMARY KEY,
			source_entry_id UUID NOT NULL,
			actor_id TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			trait_key TEXT NOT NULL,
			raw_delta DOUBLE NOT NULL,
			weight DOUBLE NOT NULL,
			recency_decay DOUBLE NOT NULL,
			effective_delta DOUBLE NOT NULL,
			occurred_at TIMESTAMP NOT NULL,
			processed_at TIMESTAMP NOT NULL,
			UNIQUE (source_entry_id, domain, trait_key)
		)`,

		`CREATE TABLE IF NOT EXISTS domain_strengths (
			entity_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			trait_key TEXT NOT NULL DEFAULT '',
			strength DOUBLE NOT NULL DEFAULT 0,
			last_mutation_at TIMESTAMP NOT NULL,
			PRIMARY KEY (entity_id, domain, trait_key)
		)`,

		`CREATE TABLE IF NOT EXISTS leaderboard_rollups (
			time_range TEXT NOT NULL,
			domain TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			strength DOUBLE NOT NULL,
			rank INTEGER NOT NULL,
			computed_at TIMESTAMP NOT NULL,
			PRIMARY KEY (time_range, domain, entity_id)
		)`,

		`CREATE TABLE IF NOT EXISTS finance_entries (
			id UUID PRIMARY KEY,
			correlation_id TEXT NOT NULL,
			wallet_id TEXT NOT NULL,
			direction TEXT NOT NULL,
			amount_cents BIGINT NOT NULL,
			verified BOOLEAN,
			verification_hash TEXT,
			verified_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL
		)`,

		// Index strategy: the processor's oldest-unprocessed scan, the
		// per-entity mutation windows behind derived metrics and rollups,
		// and the verifier's correlation lookups.
		`CREATE INDEX IF NOT EXISTS idx_ledger_entries_created
			ON ledger_entries (created_at, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_trait_mutations_entity
			ON trait_mutations (entity_id, domain, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trait_mutations_domain_time
			ON trait_mutations (domain, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_finance_entries_correlation
			ON finance_entries (correlation_id)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute schema statement: %w", err)
		}
	}

	return nil
}
