// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

// Package ledger models the append-only interaction ledger. Every product
// surface writes interactions through one operation, Record, and the entries
// are never mutated afterwards; downstream consumers track their own progress
// in a processing side-table keyed by consumer name.
package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the fixed top-level classification of a ledger entry. It is
// always the namespace portion of the event type.
type Category string

const (
	CategoryPlayer   Category = "player"
	CategorySocial   Category = "social"
	CategoryCommerce Category = "commerce"
	CategoryLive     Category = "live"
	CategoryBrand    Category = "brand"
)

// EventType is a namespaced event identifier of the form "category.action".
type EventType string

// Interaction event types recorded by the platform. Adding a producer means
// adding a constant here plus a routing rule in the traits package; the
// ledger schema never changes.
const (
	EventTrackPlayed     EventType = "player.track_played"
	EventTrackSaved      EventType = "player.track_saved"
	EventArtistFollowed  EventType = "social.artist_followed"
	EventPostLiked       EventType = "social.post_liked"
	EventPostShared      EventType = "social.post_shared"
	EventTicketPurchased EventType = "commerce.ticket_purchased"
	EventMerchPurchased  EventType = "commerce.merch_purchased"
	EventMoneySpent      EventType = "commerce.money_spent"
	EventAttended        EventType = "live.event_attended"
	EventCampaignClicked EventType = "brand.campaign_clicked"
	EventDealCompleted   EventType = "brand.deal_completed"
)

// knownEventTypes is the closed set accepted by the append path.
var knownEventTypes = map[EventType]struct{}{
	EventTrackPlayed:     {},
	EventTrackSaved:      {},
	EventArtistFollowed:  {},
	EventPostLiked:       {},
	EventPostShared:      {},
	EventTicketPurchased: {},
	EventMerchPurchased:  {},
	EventMoneySpent:      {},
	EventAttended:        {},
	EventCampaignClicked: {},
	EventDealCompleted:   {},
}

// Known reports whether the event type is accepted by the append path.
func (e EventType) Known() bool {
	_, ok := knownEventTypes[e]
	return ok
}

// Category returns the namespace portion of the event type.
func (e EventType) Category() Category {
	s := string(e)
	if i := strings.IndexByte(s, '.'); i > 0 {
		return Category(s[:i])
	}
	return Category(s)
}

// KnownEventTypes returns the accepted event types, for discovery endpoints.
func KnownEventTypes() []EventType {
	types := make([]EventType, 0, len(knownEventTypes))
	for et := range knownEventTypes {
		types = append(types, et)
	}
	return types
}

// Validation errors for the append path. These are synchronous; callers must
// retry with corrected input.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingActor     = errors.New("actor id required")
)

// Entry is one immutable recorded interaction. After insert nothing on the
// row changes; processed state lives in the side-table.
type Entry struct {
	ID uuid.UUID `json:"id"`

	// Seq is a database sequence value providing a monotonic tiebreaker for
	// entries created in the same timestamp granule.
	Seq int64 `json:"seq"`

	ActorID   string    `json:"actor_id"`
	Category  Category  `json:"category"`
	EventType EventType `json:"event_type"`

	// EntityType/EntityID optionally reference the target of the
	// interaction (an artist, an event, a brand campaign).
	EntityType string `json:"entity_type,omitempty"`
	EntityID   string `json:"entity_id,omitempty"`

	// Metadata is the open, schema-less attribute map. Routing rules read
	// only the keys they recognize and ignore the rest.
	Metadata Payload `json:"metadata,omitempty"`

	// SessionID is the producer's session context, passed explicitly into
	// the append call.
	SessionID string `json:"session_id,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// Validate checks the entry for append. It enforces the ValidationError
// taxonomy: unknown event types and missing actors are rejected synchronously.
func (e *Entry) Validate() error {
	if !e.EventType.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownEventType, e.EventType)
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return ErrMissingActor
	}
	return nil
}
