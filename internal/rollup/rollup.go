// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package rollup materializes ranked leaderboard views from mutation
// history. Boards are fully derived state: each refresh replaces the rows
// for a (time range, domain) pair wholesale, so a rebuild after data loss
// or a routing change needs no incremental catch-up logic.
package rollup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/metrics"
	"github.com/harmonia-live/resonance/internal/traits"
)

// Row is one ranked leaderboard position.
type Row struct {
	TimeRange  traits.TimeRange `json:"time_range"`
	Domain     traits.Domain    `json:"domain"`
	EntityID   string           `json:"entity_id"`
	Strength   float64          `json:"strength"`
	Rank       int              `json:"rank"`
	ComputedAt time.Time        `json:"computed_at"`
}

// Store is the persistence surface the builder needs.
type Store interface {
	// RebuildLeaderboard replaces the rows for (timeRange, domain) with a
	// ranked view of mutation sums since the cutoff, returning the number
	// of rows written. The zero cutoff means unbounded.
	RebuildLeaderboard(ctx context.Context, timeRange traits.TimeRange, domain traits.Domain, since time.Time, limit int) (int, error)

	// Leaderboard reads the current ranked view, best first.
	Leaderboard(ctx context.Context, domain traits.Domain, timeRange traits.TimeRange, limit int) ([]Row, error)
}

// DefaultLimit caps board size when the caller does not say otherwise.
const DefaultLimit = 100

// maxLimit bounds a single leaderboard read.
const maxLimit = 500

// Builder refreshes every (time range, domain) board in turn.
type Builder struct {
	store  Store
	limit  int
	logger zerolog.Logger
	now    func() time.Time
}

// NewBuilder creates a Builder that keeps up to limit rows per board.
func NewBuilder(store Store, limit int, logger zerolog.Logger) *Builder {
	if limit <= 0 {
		limit = maxLimit
	}
	return &Builder{
		store:  store,
		limit:  limit,
		logger: logger.With().Str("component", "rollup").Logger(),
		now:    time.Now,
	}
}

// RebuildAll refreshes all boards. A failed board is logged and skipped;
// the remaining boards still refresh, and the first error is returned so
// the caller can surface it.
func (b *Builder) RebuildAll(ctx context.Context) error {
	var firstErr error
	now := b.now().UTC()

	for _, tr := range traits.TimeRanges {
		since, _ := tr.Cutoff(now)
		for _, domain := range traits.Domains {
			if err := ctx.Err(); err != nil {
				return err
			}

			start := time.Now()
			rows, err := b.store.RebuildLeaderboard(ctx, tr, domain, since, b.limit)
			if err != nil {
				b.logger.Error().Err(err).
					Str("time_range", string(tr)).
					Str("domain", string(domain)).
					Msg("Leaderboard rebuild failed")
				if firstErr == nil {
					firstErr = fmt.Errorf("rebuild %s/%s: %w", tr, domain, err)
				}
				continue
			}

			metrics.RollupRebuildsTotal.WithLabelValues(string(tr), string(domain)).Inc()
			metrics.RollupRebuildDuration.Observe(time.Since(start).Seconds())

			b.logger.Debug().
				Str("time_range", string(tr)).
				Str("domain", string(domain)).
				Int("rows", rows).
				Msg("Leaderboard rebuilt")
		}
	}

	return firstErr
}

// Leaderboard validates the request and reads the materialized board.
func (b *Builder) Leaderboard(ctx context.Context, domain traits.Domain, timeRange traits.TimeRange, limit int) ([]Row, error) {
	if !domain.Valid() {
		return nil, fmt.Errorf("unknown domain %q", domain)
	}
	if !timeRange.Valid() {
		return nil, fmt.Errorf("unknown time range %q", timeRange)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	return b.store.Leaderboard(ctx, domain, timeRange, limit)
}
