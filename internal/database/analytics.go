// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/harmonia-live/resonance/internal/traits"
)

// Derived-metric queries over mutation history. All take a window start;
// the zero time reads as unbounded (alltime). Implements insights.Store.

// CulturalKeyWeights returns the positive cultural-domain key distribution
// for the entity within the window: trait key to summed effective delta.
func (db *DB) CulturalKeyWeights(ctx context.Context, entityID string, since time.Time) (map[string]float64, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT trait_key, SUM(effective_delta) AS total
		FROM trait_mutations
		WHERE entity_id = ? AND domain = ? AND occurred_at >= ?
		GROUP BY trait_key
		HAVING SUM(effective_delta) > 0`,
		entityID, string(traits.DomainCultural), since,
	)
	if err != nil {
		return nil, fmt.Errorf("query cultural key weights: %w", err)
	}
	defer rows.Close()

	weights := make(map[string]float64)
	for rows.Next() {
		var key string
		var total float64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, fmt.Errorf("scan cultural key weight: %w", err)
		}
		weights[key] = total
	}
	return weights, rows.Err()
}

// ActorInteractionCounts returns, per contributing actor, the number of
// distinct source entries that produced mutations for the entity within the
// window. Distinct entries, not mutations: one interaction routing into
// several domains still counts once.
func (db *DB) ActorInteractionCounts(ctx context.Context, entityID string, since time.Time) ([]int64, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT COUNT(DISTINCT source_entry_id) AS interactions
		FROM trait_mutations
		WHERE entity_id = ? AND occurred_at >= ?
		GROUP BY actor_id`,
		entityID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("query actor interaction counts: %w", err)
	}
	defer rows.Close()

	var counts []int64
	for rows.Next() {
		var n int64
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan actor interaction count: %w", err)
		}
		counts = append(counts, n)
	}
	return counts, rows.Err()
}

// EconomicRevenue returns the summed economic-domain monetary deltas (raw,
// in currency units, before weighting and decay) and the count of distinct
// contributing actors within the window.
func (db *DB) EconomicRevenue(ctx context.Context, entityID string, since time.Time) (float64, int64, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	var total float64
	var actors int64
	row := db.conn.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(raw_delta), 0), COUNT(DISTINCT actor_id)
		FROM trait_mutations
		WHERE entity_id = ? AND domain = ? AND occurred_at >= ?`,
		entityID, string(traits.DomainEconomic), since,
	)
	if err := row.Scan(&total, &actors); err != nil {
		return 0, 0, fmt.Errorf("query economic revenue: %w", err)
	}
	return total, actors, nil
}

// SpatialKeyCount returns the number of distinct spatial-domain keys for
// the entity within the window.
func (db *DB) SpatialKeyCount(ctx context.Context, entityID string, since time.Time) (int64, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	var count int64
	row := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT trait_key)
		FROM trait_mutations
		WHERE entity_id = ? AND domain = ? AND occurred_at >= ?`,
		entityID, string(traits.DomainSpatial), since,
	)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("query spatial key count: %w", err)
	}
	return count, nil
}
