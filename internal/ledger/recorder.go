// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/logging"
	"github.com/harmonia-live/resonance/internal/metrics"
)

// Store is the write-side persistence interface for the ledger. Implemented
// by the database package.
type Store interface {
	// AppendEntry performs a single insert of the entry. It must never
	// update or delete existing rows.
	AppendEntry(ctx context.Context, entry *Entry) error
}

// Recorder is the single write path into the ledger. The append path
// validates, inserts, and returns; it never blocks on downstream processing.
type Recorder struct {
	store  Store
	logger zerolog.Logger

	// now is injectable for tests.
	now func() time.Time
}

// NewRecorder creates a Recorder over the given store.
func NewRecorder(store Store) *Recorder {
	return &Recorder{
		store:  store,
		logger: logging.With().Str("component", "ledger").Logger(),
		now:    time.Now,
	}
}

// RecordOption customizes an entry before append.
type RecordOption func(*Entry)

// WithEntity sets the interaction target reference.
func WithEntity(entityType, entityID string) RecordOption {
	return func(e *Entry) {
		e.EntityType = entityType
		e.EntityID = entityID
	}
}

// WithSession attaches the producer's session context. Session identity is
// always passed explicitly; there is no ambient session state.
func WithSession(sessionID string) RecordOption {
	return func(e *Entry) {
		e.SessionID = sessionID
	}
}

// WithOccurredAt overrides the interaction time, for producers that buffer
// events before reporting them. Defaults to append time.
func WithOccurredAt(t time.Time) RecordOption {
	return func(e *Entry) {
		e.OccurredAt = t
	}
}

// Record validates and appends one interaction, returning the new entry id.
// Concurrent producers may call Record simultaneously; there is no
// cross-actor ordering guarantee beyond creation time plus the sequence.
func (r *Recorder) Record(ctx context.Context, eventType EventType, actorID string, payload Payload, opts ...RecordOption) (uuid.UUID, error) {
	start := r.now()

	entry := &Entry{
		ID:         uuid.New(),
		ActorID:    actorID,
		Category:   eventType.Category(),
		EventType:  eventType,
		Metadata:   payload,
		OccurredAt: start,
		CreatedAt:  start,
	}
	for _, opt := range opts {
		opt(entry)
	}

	if err := entry.Validate(); err != nil {
		metrics.LedgerAppendErrors.WithLabelValues("validation").Inc()
		return uuid.Nil, err
	}

	if err := r.store.AppendEntry(ctx, entry); err != nil {
		metrics.LedgerAppendErrors.WithLabelValues("store").Inc()
		return uuid.Nil, fmt.Errorf("append entry: %w", err)
	}

	metrics.LedgerAppendsTotal.WithLabelValues(string(entry.Category), string(entry.EventType)).Inc()
	metrics.LedgerAppendDuration.Observe(time.Since(start).Seconds())

	r.logger.Debug().
		Str("entry_id", entry.ID.String()).
		Str("event_type", string(entry.EventType)).
		Str("actor_id", entry.ActorID).
		Msg("entry appended")

	return entry.ID, nil
}
