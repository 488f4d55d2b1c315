// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/harmonia-live/resonance/internal/verify"
)

// InsertFinanceEntry appends one finance-ledger row. Implements
// verify.FinanceStore.
func (db *DB) InsertFinanceEntry(ctx context.Context, entry *verify.FinanceEntry) error {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO finance_entries
			(id, correlation_id, wallet_id, direction, amount_cents, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.CorrelationID, entry.WalletID,
		string(entry.Direction), entry.AmountCents, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert finance entry: %w", err)
	}
	return nil
}

// FinanceEntriesByCorrelation returns every finance row sharing the
// correlation id, oldest first. Implements verify.FinanceStore.
func (db *DB) FinanceEntriesByCorrelation(ctx context.Context, correlationID string) ([]verify.FinanceEntry, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, correlation_id, wallet_id, direction, amount_cents,
		       verified, verification_hash, verified_at, created_at
		FROM finance_entries
		WHERE correlation_id = ?
		ORDER BY created_at`,
		correlationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query finance entries: %w", err)
	}
	defer rows.Close()

	var entries []verify.FinanceEntry
	for rows.Next() {
		var (
			entry      verify.FinanceEntry
			direction  string
			verified   sql.NullBool
			hash       sql.NullString
			verifiedAt sql.NullTime
		)
		if err := rows.Scan(
			&entry.ID, &entry.CorrelationID, &entry.WalletID, &direction,
			&entry.AmountCents, &verified, &hash, &verifiedAt, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan finance entry: %w", err)
		}
		entry.Direction = verify.Direction(direction)
		if verified.Valid {
			v := verified.Bool
			entry.Verified = &v
		}
		entry.Hash = hash.String
		if verifiedAt.Valid {
			t := verifiedAt.Time
			entry.VerifiedAt = &t
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// PendingCorrelations lists correlation ids with unverified finance rows
// older than the cutoff, oldest first. Implements verify.FinanceStore.
func (db *DB) PendingCorrelations(ctx context.Context, olderThan time.Time, limit int) ([]string, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT correlation_id
		FROM finance_entries
		WHERE verified IS NULL AND created_at <= ?
		GROUP BY correlation_id
		ORDER BY MIN(created_at)
		LIMIT ?`,
		olderThan, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending correlations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending correlation: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetVerification stamps every finance row for the correlation id with
// the reconciliation outcome. Implements verify.FinanceStore.
func (db *DB) SetVerification(ctx context.Context, v *verify.Verification) error {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		UPDATE finance_entries
		SET verified = ?, verification_hash = ?, verified_at = ?
		WHERE correlation_id = ?`,
		v.Verified, v.Hash, v.VerifiedAt, v.CorrelationID,
	)
	if err != nil {
		return fmt.Errorf("set verification: %w", err)
	}
	return nil
}
