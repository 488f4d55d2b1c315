// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package dna assembles per-entity audience vectors from the strength
// store. A vector has one fixed-order dimension list per domain, so two
// vectors built by the same release are always comparable position by
// position, plus a confidence score reflecting how much data backs it.
package dna

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/harmonia-live/resonance/internal/traits"
)

// OtherDimension absorbs keys outside a domain's fixed dimension list so
// no signal is silently dropped.
const OtherDimension = "other"

// Dimensions fixes the vector layout per domain. Order matters: vector
// positions are compared index by index, so changing a list is a breaking
// change for any stored or cached vector.
var Dimensions = map[traits.Domain][]string{
	traits.DomainCultural: {
		"pop", "rock", "hip_hop", "electronic", "r_and_b",
		"latin", "country", "jazz", OtherDimension,
	},
	traits.DomainBehavioral: {
		"listening", "engagement", "sharing", "collecting",
		"attendance", "campaigns",
	},
	traits.DomainEconomic: {
		"spend", "tickets", "merch", "brand_deals",
	},
	traits.DomainSpatial: {
		"new_york", "los_angeles", "london", "chicago", "atlanta",
		"toronto", "mexico_city", "sao_paulo", "berlin", "tokyo",
		OtherDimension,
	},
}

// dimensionIndex maps domain and key to vector position, precomputed once.
var dimensionIndex = func() map[traits.Domain]map[string]int {
	idx := make(map[traits.Domain]map[string]int, len(Dimensions))
	for domain, keys := range Dimensions {
		m := make(map[string]int, len(keys))
		for i, key := range keys {
			m[key] = i
		}
		idx[domain] = m
	}
	return idx
}()

// confidenceScale controls how fast confidence saturates with mutation
// count: confidence = 1 - e^(-n/50), so ~150 mutations reach 0.95.
const confidenceScale = 50.0

// Vector is one entity's audience DNA.
type Vector struct {
	EntityID   string                        `json:"entity_id"`
	Domains    map[traits.Domain][]float64   `json:"domains"`
	Keys       map[traits.Domain][]string    `json:"keys"`
	Confidence float64                       `json:"confidence"`
	Mutations  int64                         `json:"mutations"`
	ComputedAt time.Time                     `json:"computed_at"`
}

// Store is the strength-store surface the builder reads.
type Store interface {
	// KeyStrengths returns per-key strengths for (entity, domain),
	// excluding the domain-total row.
	KeyStrengths(ctx context.Context, entityID string, domain traits.Domain) ([]traits.Strength, error)

	// MutationCount returns the number of mutations behind the entity.
	MutationCount(ctx context.Context, entityID string) (int64, error)
}

// Builder assembles vectors.
type Builder struct {
	store Store
	now   func() time.Time
}

// NewBuilder creates a vector builder over the strength store.
func NewBuilder(store Store) *Builder {
	return &Builder{store: store, now: time.Now}
}

// Vector builds the entity's current audience vector. An entity with no
// mutations yields an all-zero vector with zero confidence, not an error.
func (b *Builder) Vector(ctx context.Context, entityID string) (*Vector, error) {
	if entityID == "" {
		return nil, fmt.Errorf("entity id required")
	}

	v := &Vector{
		EntityID:   entityID,
		Domains:    make(map[traits.Domain][]float64, len(traits.Domains)),
		Keys:       make(map[traits.Domain][]string, len(traits.Domains)),
		ComputedAt: b.now().UTC(),
	}

	for _, domain := range traits.Domains {
		dims := Dimensions[domain]
		values := make([]float64, len(dims))

		strengths, err := b.store.KeyStrengths(ctx, entityID, domain)
		if err != nil {
			return nil, fmt.Errorf("key strengths for %s: %w", domain, err)
		}
		for _, s := range strengths {
			if s.Value <= 0 {
				continue
			}
			i, ok := dimensionIndex[domain][s.Key]
			if !ok {
				i, ok = dimensionIndex[domain][OtherDimension]
				if !ok {
					continue
				}
			}
			values[i] += s.Value
		}

		v.Domains[domain] = values
		v.Keys[domain] = dims
	}

	count, err := b.store.MutationCount(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("mutation count: %w", err)
	}
	v.Mutations = count
	v.Confidence = Confidence(count)

	return v, nil
}

// Confidence maps mutation count to [0, 1), rising steeply at first and
// saturating as evidence accumulates.
func Confidence(mutations int64) float64 {
	if mutations <= 0 {
		return 0
	}
	return 1 - math.Exp(-float64(mutations)/confidenceScale)
}
