// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package dna

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/harmonia-live/resonance/internal/traits"
)

// mockStore serves canned strengths per domain.
type mockStore struct {
	strengths map[traits.Domain][]traits.Strength
	mutations int64
	err       error
}

func (m *mockStore) KeyStrengths(_ context.Context, entityID string, domain traits.Domain) ([]traits.Strength, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.strengths[domain], nil
}

func (m *mockStore) MutationCount(_ context.Context, _ string) (int64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.mutations, nil
}

func TestVectorLayout(t *testing.T) {
	store := &mockStore{
		strengths: map[traits.Domain][]traits.Strength{
			traits.DomainCultural: {
				{Key: "pop", Value: 3.5},
				{Key: "hip_hop", Value: 1.2},
			},
			traits.DomainEconomic: {
				{Key: "tickets", Value: 120},
			},
		},
		mutations: 10,
	}
	b := NewBuilder(store)

	v, err := b.Vector(context.Background(), "artist-9")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}

	for _, domain := range traits.Domains {
		if len(v.Domains[domain]) != len(Dimensions[domain]) {
			t.Errorf("%s vector has %d dims, want %d", domain, len(v.Domains[domain]), len(Dimensions[domain]))
		}
		if len(v.Keys[domain]) != len(Dimensions[domain]) {
			t.Errorf("%s keys list has %d entries, want %d", domain, len(v.Keys[domain]), len(Dimensions[domain]))
		}
	}

	popIdx := indexOf(t, traits.DomainCultural, "pop")
	if v.Domains[traits.DomainCultural][popIdx] != 3.5 {
		t.Errorf("pop dimension = %g, want 3.5", v.Domains[traits.DomainCultural][popIdx])
	}
	ticketsIdx := indexOf(t, traits.DomainEconomic, "tickets")
	if v.Domains[traits.DomainEconomic][ticketsIdx] != 120 {
		t.Errorf("tickets dimension = %g, want 120", v.Domains[traits.DomainEconomic][ticketsIdx])
	}
}

func TestVectorUnknownKeysFoldIntoOther(t *testing.T) {
	store := &mockStore{
		strengths: map[traits.Domain][]traits.Strength{
			traits.DomainCultural: {
				{Key: "zydeco", Value: 2},
				{Key: "klezmer", Value: 3},
			},
		},
	}
	b := NewBuilder(store)

	v, err := b.Vector(context.Background(), "artist-9")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}

	otherIdx := indexOf(t, traits.DomainCultural, OtherDimension)
	if got := v.Domains[traits.DomainCultural][otherIdx]; got != 5 {
		t.Errorf("other dimension = %g, want 5 (2+3 folded)", got)
	}
}

func TestVectorUnknownBehavioralKeyDropped(t *testing.T) {
	// Behavioral has no catch-all dimension: its key set is closed by the
	// routing table, so an unknown key means a routing bug and is dropped.
	store := &mockStore{
		strengths: map[traits.Domain][]traits.Strength{
			traits.DomainBehavioral: {
				{Key: "meditating", Value: 4},
				{Key: "listening", Value: 2},
			},
		},
	}
	b := NewBuilder(store)

	v, err := b.Vector(context.Background(), "artist-9")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}

	var sum float64
	for _, x := range v.Domains[traits.DomainBehavioral] {
		sum += x
	}
	if sum != 2 {
		t.Errorf("behavioral sum = %g, want 2 (unknown key dropped)", sum)
	}
}

func TestVectorNegativeStrengthsIgnored(t *testing.T) {
	store := &mockStore{
		strengths: map[traits.Domain][]traits.Strength{
			traits.DomainCultural: {{Key: "pop", Value: -1}},
		},
	}
	b := NewBuilder(store)

	v, err := b.Vector(context.Background(), "artist-9")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	popIdx := indexOf(t, traits.DomainCultural, "pop")
	if v.Domains[traits.DomainCultural][popIdx] != 0 {
		t.Error("negative strength must not enter the vector")
	}
}

func TestVectorEmptyEntity(t *testing.T) {
	b := NewBuilder(&mockStore{})

	v, err := b.Vector(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if v.Confidence != 0 {
		t.Errorf("confidence with no data = %g, want 0", v.Confidence)
	}

	if _, err := b.Vector(context.Background(), ""); err == nil {
		t.Error("empty entity id must fail")
	}
}

func TestVectorStoreError(t *testing.T) {
	b := NewBuilder(&mockStore{err: errors.New("io error")})
	if _, err := b.Vector(context.Background(), "artist-9"); err == nil {
		t.Error("store error must surface")
	}
}

func TestConfidence(t *testing.T) {
	if got := Confidence(0); got != 0 {
		t.Errorf("Confidence(0) = %g, want 0", got)
	}
	if got := Confidence(-5); got != 0 {
		t.Errorf("Confidence(-5) = %g, want 0", got)
	}

	// Rises monotonically, saturating below 1.
	prev := 0.0
	for _, n := range []int64{1, 10, 50, 150, 1000} {
		got := Confidence(n)
		if got <= prev || got >= 1 {
			t.Errorf("Confidence(%d) = %g, want in (%g, 1)", n, got, prev)
		}
		prev = got
	}

	// One scale constant's worth of mutations: 1 - 1/e.
	if got, want := Confidence(50), 1-math.Exp(-1); math.Abs(got-want) > 1e-9 {
		t.Errorf("Confidence(50) = %g, want %g", got, want)
	}
}

func TestCachedSource(t *testing.T) {
	store := &mockStore{mutations: 10}
	src := NewCachedSource(NewBuilder(store), time.Minute)
	defer src.Stop()

	v1, err := src.Vector(context.Background(), "artist-9")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}

	// Mutate the backing store; the cached vector must still be served.
	store.mutations = 999
	v2, err := src.Vector(context.Background(), "artist-9")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if v2.Mutations != v1.Mutations {
		t.Error("second read bypassed the cache")
	}

	src.Invalidate("artist-9")
	v3, err := src.Vector(context.Background(), "artist-9")
	if err != nil {
		t.Fatalf("Vector: %v", err)
	}
	if v3.Mutations != 999 {
		t.Error("invalidated entry must rebuild")
	}
}

func indexOf(t *testing.T, domain traits.Domain, key string) int {
	t.Helper()
	for i, k := range Dimensions[domain] {
		if k == key {
			return i
		}
	}
	t.Fatalf("dimension %q not in %s layout", key, domain)
	return -1
}
