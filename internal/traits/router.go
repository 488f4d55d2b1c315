// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package traits

import (
	"errors"
	"fmt"
	"strings"

	"github.com/harmonia-live/resonance/internal/ledger"
)

// ErrMalformedMetadata indicates a routing rule's expected payload field is
// absent or of the wrong shape. The processor skips only the affected
// (domain, key) contribution; other contributions from the same entry still
// apply.
var ErrMalformedMetadata = errors.New("malformed metadata")

// KeyFunc extracts the trait key for a binding from the entry payload.
type KeyFunc func(ledger.Payload) (string, error)

// DeltaFunc computes the raw delta for a binding from the entry payload.
type DeltaFunc func(ledger.Payload) (float64, error)

// Binding declares one (domain, key, delta, weight) contribution an event
// type makes. An event type routes to zero or more bindings.
type Binding struct {
	Domain Domain
	Key    KeyFunc
	Delta  DeltaFunc
	Weight float64
}

// routes is the static routing table: event type to affected bindings.
// Events absent from the table are processed no-ops (routing gaps), never
// errors. The table is the single auditable list of supported events.
var routes = map[ledger.EventType][]Binding{
	ledger.EventTrackPlayed: {
		{DomainCultural, payloadKey("genre"), completionRatio, 1.0},
		{DomainBehavioral, staticKey("listening"), completionRatio, 0.5},
	},
	ledger.EventTrackSaved: {
		{DomainCultural, payloadKey("genre"), unitDelta, 0.8},
		{DomainBehavioral, staticKey("collecting"), unitDelta, 0.6},
	},
	ledger.EventArtistFollowed: {
		{DomainBehavioral, staticKey("engagement"), unitDelta, 1.0},
	},
	ledger.EventPostLiked: {
		{DomainBehavioral, staticKey("engagement"), unitDelta, 0.3},
	},
	ledger.EventPostShared: {
		{DomainBehavioral, staticKey("sharing"), unitDelta, 0.8},
	},
	ledger.EventTicketPurchased: {
		{DomainEconomic, staticKey("tickets"), monetaryAmount, 1.0},
		{DomainSpatial, payloadKey("city"), unitDelta, 1.0},
	},
	ledger.EventMerchPurchased: {
		{DomainEconomic, staticKey("merch"), monetaryAmount, 1.0},
	},
	ledger.EventMoneySpent: {
		{DomainEconomic, staticKey("spend"), monetaryAmount, 1.0},
	},
	ledger.EventAttended: {
		{DomainSpatial, payloadKey("city"), unitDelta, 1.0},
		{DomainBehavioral, staticKey("attendance"), unitDelta, 1.0},
		{DomainCultural, payloadKey("genre"), unitDelta, 0.7},
	},
	ledger.EventCampaignClicked: {
		{DomainBehavioral, staticKey("campaigns"), unitDelta, 0.4},
	},
	ledger.EventDealCompleted: {
		{DomainEconomic, staticKey("brand_deals"), monetaryAmount, 1.0},
	},
}

// Route returns the bindings for an event type. ok is false for routing
// gaps.
func Route(eventType ledger.EventType) (bindings []Binding, ok bool) {
	bindings, ok = routes[eventType]
	return bindings, ok
}

// RoutedEventTypes returns the event types with at least one binding.
func RoutedEventTypes() []ledger.EventType {
	types := make([]ledger.EventType, 0, len(routes))
	for et := range routes {
		types = append(types, et)
	}
	return types
}

// staticKey binds a fixed trait label independent of the payload.
func staticKey(key string) KeyFunc {
	return func(ledger.Payload) (string, error) {
		return key, nil
	}
}

// payloadKey extracts and normalizes a free-text trait label from the
// payload field.
func payloadKey(field string) KeyFunc {
	return func(p ledger.Payload) (string, error) {
		s, ok := p.String(field)
		if !ok || strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: missing field %q", ErrMalformedMetadata, field)
		}
		return NormalizeKey(s), nil
	}
}

// NormalizeKey canonicalizes a free-text trait label: lowercased, trimmed,
// separators collapsed to underscores. "Hip Hop" and "hip-hop" key the same
// trait.
func NormalizeKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "&", "and")
	var b strings.Builder
	b.Grow(len(s))
	lastUnderscore := false
	for _, r := range s {
		switch r {
		case ' ', '-', '/', '.':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

// unitDelta is the fixed delta for discrete actions.
func unitDelta(ledger.Payload) (float64, error) {
	return 1.0, nil
}

// completionRatio is the delta formula for continuous playback events:
// proportional to how much of the track was actually heard, clamped to
// [0, 1].
func completionRatio(p ledger.Payload) (float64, error) {
	played, ok := p.Float("played_ms")
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedMetadata, "played_ms")
	}
	duration, ok := p.Float("duration_ms")
	if !ok || duration <= 0 {
		return 0, fmt.Errorf("%w: missing or invalid field %q", ErrMalformedMetadata, "duration_ms")
	}
	ratio := played / duration
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	return ratio, nil
}

// monetaryAmount converts the payload's amount_cents into currency units.
// All economic deltas are monetary, so economic sums read as revenue.
func monetaryAmount(p ledger.Payload) (float64, error) {
	cents, ok := p.Float("amount_cents")
	if !ok {
		return 0, fmt.Errorf("%w: missing field %q", ErrMalformedMetadata, "amount_cents")
	}
	if cents < 0 {
		return 0, fmt.Errorf("%w: negative amount_cents", ErrMalformedMetadata)
	}
	return cents / 100.0, nil
}
