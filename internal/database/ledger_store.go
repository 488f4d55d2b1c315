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

	"github.com/google/uuid"

	"github.com/harmonia-live/resonance/internal/ledger"
)

// AppendEntry performs the ledger's single fast insert. Implements
// ledger.Store.
func (db *DB) AppendEntry(ctx context.Context, entry *ledger.Entry) error {
	metadata, err := ledger.MarshalPayload(entry.Metadata)
	if err != nil {
		return err
	}

	ctx, cancel := queryContext(ctx)
	defer cancel()

	// RETURNING exposes the sequence value assigned inside the insert.
	row := db.conn.QueryRowContext(ctx, `
		INSERT INTO ledger_entries
			(id, seq, actor_id, category, event_type, entity_type, entity_id,
			 metadata, session_id, occurred_at, created_at)
		VALUES (?, nextval('ledger_entry_seq'), ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING seq`,
		entry.ID, entry.ActorID, string(entry.Category), string(entry.EventType),
		nullString(entry.EntityType), nullString(entry.EntityID),
		string(metadata), nullString(entry.SessionID),
		entry.OccurredAt, entry.CreatedAt,
	)
	if err := row.Scan(&entry.Seq); err != nil {
		return fmt.Errorf("insert ledger entry: %w", err)
	}
	return nil
}

// UnprocessedBatch returns the oldest entries, up to limit, lacking a
// processing row for the named consumer. Implements traits.LedgerSource.
// Ordering is global oldest-first, not per actor, so one backlogged actor
// does not starve others.
func (db *DB) UnprocessedBatch(ctx context.Context, consumer string, limit int) ([]ledger.Entry, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	rows, err := db.conn.QueryContext(ctx, `
		SELECT e.id, e.seq, e.actor_id, e.category, e.event_type,
		       e.entity_type, e.entity_id, e.metadata, e.session_id,
		       e.occurred_at, e.created_at
		FROM ledger_entries e
		LEFT JOIN ledger_processing p
			ON p.entry_id = e.id AND p.consumer = ?
		WHERE p.entry_id IS NULL
		ORDER BY e.created_at, e.seq
		LIMIT ?`,
		consumer, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query unprocessed batch: %w", err)
	}
	defer rows.Close()

	var entries []ledger.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// MarkProcessed flips the consumer's processed flag for the entry. The
// insert is conflict-ignoring so repeated marking is a no-op. Implements
// traits.LedgerSource.
func (db *DB) MarkProcessed(ctx context.Context, entryID uuid.UUID, consumer string) error {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO ledger_processing (entry_id, consumer, processed_at)
		VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`,
		entryID, consumer, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("mark processed: %w", err)
	}
	return nil
}

// EventEntryByCorrelation finds the event-ledger entry whose metadata
// carries the given correlation id. Returns (nil, nil) when no entry
// matches; the verifier records that as a failed verification rather than
// an error.
func (db *DB) EventEntryByCorrelation(ctx context.Context, correlationID string) (*ledger.Entry, error) {
	ctx, cancel := queryContext(ctx)
	defer cancel()

	// LIKE prefilter over the JSON text column; the payload is decoded and
	// the correlation id checked for real before an entry is accepted.
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, seq, actor_id, category, event_type,
		       entity_type, entity_id, metadata, session_id,
		       occurred_at, created_at
		FROM ledger_entries
		WHERE metadata LIKE '%' || ? || '%'
		ORDER BY created_at, seq`,
		correlationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query entry by correlation: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if cid, ok := entry.Metadata.String("correlation_id"); ok && cid == correlationID {
			return entry, nil
		}
	}
	return nil, rows.Err()
}

// scanEntry reads one ledger row from the current cursor position.
func scanEntry(rows *sql.Rows) (*ledger.Entry, error) {
	var (
		entry      ledger.Entry
		category   string
		eventType  string
		entityType sql.NullString
		entityID   sql.NullString
		metadata   string
		sessionID  sql.NullString
	)
	if err := rows.Scan(
		&entry.ID, &entry.Seq, &entry.ActorID, &category, &eventType,
		&entityType, &entityID, &metadata, &sessionID,
		&entry.OccurredAt, &entry.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scan ledger entry: %w", err)
	}

	entry.Category = ledger.Category(category)
	entry.EventType = ledger.EventType(eventType)
	entry.EntityType = entityType.String
	entry.EntityID = entityID.String
	entry.SessionID = sessionID.String

	payload, err := ledger.UnmarshalPayload([]byte(metadata))
	if err != nil {
		return nil, err
	}
	entry.Metadata = payload

	return &entry, nil
}

// nullString maps "" to SQL NULL for optional columns.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
