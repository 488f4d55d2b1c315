// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package traits

import (
	"math"
	"testing"

	"github.com/harmonia-live/resonance/internal/ledger"
)

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hip Hop", "hip_hop"},
		{"hip-hop", "hip_hop"},
		{"  Electronic  ", "electronic"},
		{"R&B", "randb"},
		{"drum / bass", "drum_bass"},
		{"lo-fi.", "lo_fi"},
		{"pop", "pop"},
	}

	for _, tt := range tests {
		if got := NormalizeKey(tt.in); got != tt.want {
			t.Errorf("NormalizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRouteTrackPlayed(t *testing.T) {
	bindings, ok := Route(ledger.EventTrackPlayed)
	if !ok {
		t.Fatal("track_played must be routed")
	}
	if len(bindings) != 2 {
		t.Fatalf("track_played bindings = %d, want 2", len(bindings))
	}

	payload := ledger.Payload{
		"genre":       "Hip Hop",
		"played_ms":   float64(90_000),
		"duration_ms": float64(180_000),
	}

	cultural := bindings[0]
	if cultural.Domain != DomainCultural {
		t.Errorf("first binding domain = %s, want cultural", cultural.Domain)
	}
	key, err := cultural.Key(payload)
	if err != nil {
		t.Fatalf("cultural key: %v", err)
	}
	if key != "hip_hop" {
		t.Errorf("cultural key = %q, want hip_hop", key)
	}
	delta, err := cultural.Delta(payload)
	if err != nil {
		t.Fatalf("cultural delta: %v", err)
	}
	if math.Abs(delta-0.5) > 1e-9 {
		t.Errorf("half-played track delta = %g, want 0.5", delta)
	}

	behavioral := bindings[1]
	if behavioral.Domain != DomainBehavioral {
		t.Errorf("second binding domain = %s, want behavioral", behavioral.Domain)
	}
	key, err = behavioral.Key(payload)
	if err != nil {
		t.Fatalf("behavioral key: %v", err)
	}
	if key != "listening" {
		t.Errorf("behavioral key = %q, want listening", key)
	}
	if behavioral.Weight != 0.5 {
		t.Errorf("behavioral weight = %g, want 0.5", behavioral.Weight)
	}
}

func TestRouteGap(t *testing.T) {
	if _, ok := Route(ledger.EventType("player.unknown_action")); ok {
		t.Error("unknown event type must not route")
	}
}

func TestCompletionRatioClamped(t *testing.T) {
	tests := []struct {
		name    string
		payload ledger.Payload
		want    float64
		wantErr bool
	}{
		{
			"over-played clamps to 1",
			ledger.Payload{"played_ms": float64(400_000), "duration_ms": float64(180_000)},
			1.0, false,
		},
		{
			"negative clamps to 0",
			ledger.Payload{"played_ms": float64(-5), "duration_ms": float64(180_000)},
			0, false,
		},
		{
			"missing played_ms is malformed",
			ledger.Payload{"duration_ms": float64(180_000)},
			0, true,
		},
		{
			"zero duration is malformed",
			ledger.Payload{"played_ms": float64(1000), "duration_ms": float64(0)},
			0, true,
		},
		{
			"json number strings are not numbers",
			ledger.Payload{"played_ms": "90000", "duration_ms": float64(180_000)},
			0, true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := completionRatio(tt.payload)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !IsMalformedMetadata(err) {
					t.Errorf("error %v is not malformed-metadata", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ratio = %g, want %g", got, tt.want)
			}
		})
	}
}

func TestMonetaryAmount(t *testing.T) {
	got, err := monetaryAmount(ledger.Payload{"amount_cents": float64(4250)})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42.50 {
		t.Errorf("amount = %g, want 42.50", got)
	}

	if _, err := monetaryAmount(ledger.Payload{"amount_cents": float64(-100)}); err == nil {
		t.Error("negative amount must be malformed")
	}
	if _, err := monetaryAmount(ledger.Payload{}); err == nil {
		t.Error("missing amount must be malformed")
	}
}

func TestEveryRouteHasValidDomainAndWeight(t *testing.T) {
	for _, et := range RoutedEventTypes() {
		bindings, _ := Route(et)
		for i, b := range bindings {
			if !b.Domain.Valid() {
				t.Errorf("%s binding %d has invalid domain %q", et, i, b.Domain)
			}
			if b.Weight <= 0 || b.Weight > 1 {
				t.Errorf("%s binding %d has weight %g outside (0,1]", et, i, b.Weight)
			}
			if b.Key == nil || b.Delta == nil {
				t.Errorf("%s binding %d has nil key or delta func", et, i)
			}
		}
	}
}

func TestRoutedEventTypesAreKnown(t *testing.T) {
	for _, et := range RoutedEventTypes() {
		if !et.Known() {
			t.Errorf("routed event type %q is not a known ledger event", et)
		}
	}
}
