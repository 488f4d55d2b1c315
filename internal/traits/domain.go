// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package traits derives quantified, domain-scoped trait deltas (mutations)
// from ledger entries. A static routing table maps each event type to the
// domains it affects; the processor converts unprocessed entries into
// mutation records and aggregates them into per-entity domain strengths.
package traits

import (
	"time"

	"github.com/google/uuid"
)

// Domain is one of the four fixed trait categories.
type Domain string

const (
	// DomainCultural captures taste: genres, scenes, aesthetics.
	DomainCultural Domain = "cultural"
	// DomainBehavioral captures engagement patterns: listening, sharing,
	// attending.
	DomainBehavioral Domain = "behavioral"
	// DomainEconomic captures monetary activity. All economic deltas are
	// denominated in currency units (dollars).
	DomainEconomic Domain = "economic"
	// DomainSpatial captures geography: cities and markets.
	DomainSpatial Domain = "spatial"
)

// Domains lists all four domains in canonical order.
var Domains = []Domain{DomainCultural, DomainBehavioral, DomainEconomic, DomainSpatial}

// Valid reports whether d is one of the four fixed domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainCultural, DomainBehavioral, DomainEconomic, DomainSpatial:
		return true
	}
	return false
}

// TimeRange is a bounded or unbounded window filtering mutation history.
type TimeRange string

const (
	Range7d      TimeRange = "7d"
	Range30d     TimeRange = "30d"
	RangeAllTime TimeRange = "alltime"
)

// TimeRanges lists all supported windows.
var TimeRanges = []TimeRange{Range7d, Range30d, RangeAllTime}

// Valid reports whether t is a supported window.
func (t TimeRange) Valid() bool {
	switch t {
	case Range7d, Range30d, RangeAllTime:
		return true
	}
	return false
}

// Cutoff returns the window start relative to now. For the unbounded window
// the second return is false.
func (t TimeRange) Cutoff(now time.Time) (time.Time, bool) {
	switch t {
	case Range7d:
		return now.Add(-7 * 24 * time.Hour), true
	case Range30d:
		return now.Add(-30 * 24 * time.Hour), true
	default:
		return time.Time{}, false
	}
}

// Mutation is one quantified trait delta derived from a ledger entry. At
// most one mutation exists per (source entry, domain, key); the uniqueness
// constraint is the processor's idempotency guard.
type Mutation struct {
	ID            uuid.UUID `json:"id"`
	SourceEntryID uuid.UUID `json:"source_entry_id"`
	ActorID       string    `json:"actor_id"`
	EntityID      string    `json:"entity_id"`
	Domain        Domain    `json:"domain"`

	// Key is the free-text trait label within the domain: a genre for
	// cultural, a city for spatial, a spend bucket for economic.
	Key string `json:"key"`

	RawDelta     float64 `json:"raw_delta"`
	Weight       float64 `json:"weight"`
	RecencyDecay float64 `json:"recency_decay"`

	// EffectiveDelta = RawDelta * Weight * RecencyDecay, frozen at
	// processing time. Decay is never recomputed after recording.
	EffectiveDelta float64 `json:"effective_delta"`

	OccurredAt  time.Time `json:"occurred_at"`
	ProcessedAt time.Time `json:"processed_at"`
}

// StrengthTotalKey is the key of the domain-total strength row. Per-key
// strengths use the mutation key; the running domain total uses this.
const StrengthTotalKey = ""

// Strength is one row of the domain strength store: the cumulative
// effective delta for (entity, domain, key) plus the last mutation time.
type Strength struct {
	EntityID       string    `json:"entity_id"`
	Domain         Domain    `json:"domain"`
	Key            string    `json:"key,omitempty"`
	Value          float64   `json:"strength"`
	LastMutationAt time.Time `json:"last_mutation_at"`
}
