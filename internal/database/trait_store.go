// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harmonia-live/resonance/internal/traits"
)

// ApplyMutation writes the mutation and folds its effective delta into the
// per-key strength row and the domain-total row, all in one transaction.
// When a record for the mutation's (source entry, domain, key) already
// exists the call is a no-op reporting false: its strength was applied in
// the transaction that inserted it, so reprocessing a crashed batch cannot
// double count and cannot leave the strength store behind the mutation
// history. Implements traits.MutationStore.
func (db *DB) ApplyMutation(ctx context.Context, m *traits.Mutation) (bool, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin mutation tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO trait_mutations
			(id, source_entry_id, actor_id, entity_id, domain, trait_key,
			 raw_delta, weight, recency_decay, effective_delta,
			 occurred_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (source_entry_id, domain, trait_key) DO NOTHING`,
		m.ID, m.SourceEntryID, m.ActorID, m.EntityID, string(m.Domain), m.Key,
		m.RawDelta, m.Weight, m.RecencyDecay, m.EffectiveDelta,
		m.OccurredAt, m.ProcessedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert mutation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert mutation rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	const upsert = `
		INSERT INTO domain_strengths
			(entity_id, domain, trait_key, strength, last_mutation_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entity_id, domain, trait_key)
		DO UPDATE SET
			strength = strength + EXCLUDED.strength,
			last_mutation_at = GREATEST(last_mutation_at, EXCLUDED.last_mutation_at)`

	for _, key := range []string{m.Key, traits.StrengthTotalKey} {
		if _, err := tx.ExecContext(ctx, upsert,
			m.EntityID, string(m.Domain), key, m.EffectiveDelta, m.ProcessedAt,
		); err != nil {
			return false, fmt.Errorf("upsert strength (key %q): %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit mutation tx: %w", err)
	}
	return true, nil
}

// DomainStrength returns the strength row for (entity, domain, key). The
// empty key reads the domain total. A missing row reads as zero strength,
// not an error.
func (db *DB) DomainStrength(ctx context.Context, entityID string, domain traits.Domain, key string) (traits.Strength, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	s := traits.Strength{EntityID: entityID, Domain: domain, Key: key}

	row := db.conn.QueryRowContext(ctx, `
		SELECT strength, last_mutation_at
		FROM domain_strengths
		WHERE entity_id = ? AND domain = ? AND trait_key = ?`,
		entityID, string(domain), key,
	)
	err := row.Scan(&s.Value, &s.LastMutationAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("query domain strength: %w", err)
	}
	return s, nil
}

// KeyStrengths returns the per-key strength rows for (entity, domain),
// excluding the domain-total row, strongest first. Used by the DNA builder.
func (db *DB) KeyStrengths(ctx context.Context, entityID string, domain traits.Domain) ([]traits.Strength, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT trait_key, strength, last_mutation_at
		FROM domain_strengths
		WHERE entity_id = ? AND domain = ? AND trait_key <> ''
		ORDER BY strength DESC, trait_key`,
		entityID, string(domain),
	)
	if err != nil {
		return nil, fmt.Errorf("query key strengths: %w", err)
	}
	defer rows.Close()

	var strengths []traits.Strength
	for rows.Next() {
		s := traits.Strength{EntityID: entityID, Domain: domain}
		if err := rows.Scan(&s.Key, &s.Value, &s.LastMutationAt); err != nil {
			return nil, fmt.Errorf("scan key strength: %w", err)
		}
		strengths = append(strengths, s)
	}
	return strengths, rows.Err()
}

// MutationCount returns the number of mutations recorded for the entity,
// used as the data-volume input to the DNA confidence score.
func (db *DB) MutationCount(ctx context.Context, entityID string) (int64, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	var count int64
	row := db.conn.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM trait_mutations WHERE entity_id = ?`, entityID)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("query mutation count: %w", err)
	}
	return count, nil
}

// StrengthFromMutations recomputes the domain total directly from mutation
// history. Used by the conservation consistency check: for every (entity,
// domain) the strength store must equal this sum.
func (db *DB) StrengthFromMutations(ctx context.Context, entityID string, domain traits.Domain) (float64, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	var total float64
	row := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(effective_delta), 0)
		FROM trait_mutations
		WHERE entity_id = ? AND domain = ?`,
		entityID, string(domain),
	)
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("query mutation sum: %w", err)
	}
	return total, nil
}
