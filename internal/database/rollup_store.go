// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package database

import (
	"context"
	"fmt"
	"time"

	"github.com/harmonia-live/resonance/internal/rollup"
	"github.com/harmonia-live/resonance/internal/traits"
)

// RebuildLeaderboard replaces the rollup rows for (time_range, domain) with
// a fresh ranked view derived from mutation history. Delete and insert run
// in one transaction so readers never see a half-built board. Implements
// rollup.Store.
func (db *DB) RebuildLeaderboard(ctx context.Context, timeRange traits.TimeRange, domain traits.Domain, since time.Time, limit int) (int, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin rollup tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM leaderboard_rollups
		WHERE time_range = ? AND domain = ?`,
		string(timeRange), string(domain),
	); err != nil {
		return 0, fmt.Errorf("clear rollup rows: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO leaderboard_rollups
			(time_range, domain, entity_id, strength, rank, computed_at)
		SELECT ?, ?, entity_id, total,
		       CAST(ROW_NUMBER() OVER (ORDER BY total DESC, entity_id) AS INTEGER),
		       ?
		FROM (
			SELECT entity_id, SUM(effective_delta) AS total
			FROM trait_mutations
			WHERE domain = ? AND occurred_at >= ?
			GROUP BY entity_id
		)
		ORDER BY total DESC, entity_id
		LIMIT ?`,
		string(timeRange), string(domain), time.Now().UTC(),
		string(domain), since, limit,
	)
	if err != nil {
		return 0, fmt.Errorf("insert rollup rows: %w", err)
	}

	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rollup rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rollup tx: %w", err)
	}
	return int(inserted), nil
}

// Leaderboard reads the materialized ranked view. Implements rollup.Store.
func (db *DB) Leaderboard(ctx context.Context, domain traits.Domain, timeRange traits.TimeRange, limit int) ([]rollup.Row, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT entity_id, strength, rank, computed_at
		FROM leaderboard_rollups
		WHERE domain = ? AND time_range = ?
		ORDER BY rank
		LIMIT ?`,
		string(domain), string(timeRange), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	defer rows.Close()

	var result []rollup.Row
	for rows.Next() {
		row := rollup.Row{TimeRange: timeRange, Domain: domain}
		if err := rows.Scan(&row.EntityID, &row.Strength, &row.Rank, &row.ComputedAt); err != nil {
			return nil, fmt.Errorf("scan leaderboard row: %w", err)
		}
		result = append(result, row)
	}
	return result, rows.Err()
}
