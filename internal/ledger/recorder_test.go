// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// mockStore captures appended entries.
type mockStore struct {
	entries   []*Entry
	appendErr error
}

func (m *mockStore) AppendEntry(_ context.Context, entry *Entry) error {
	if m.appendErr != nil {
		return m.appendErr
	}
	m.entries = append(m.entries, entry)
	return nil
}

func TestRecordAppendsValidEntry(t *testing.T) {
	store := &mockStore{}
	r := NewRecorder(store)

	id, err := r.Record(context.Background(), EventTrackPlayed, "fan-1",
		Payload{"genre": "pop", "played_ms": float64(1000), "duration_ms": float64(2000)},
		WithEntity("artist", "artist-9"),
		WithSession("sess-1"),
	)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if id == uuid.Nil {
		t.Error("Record returned nil id")
	}
	if len(store.entries) != 1 {
		t.Fatalf("appended %d entries, want 1", len(store.entries))
	}

	entry := store.entries[0]
	if entry.Category != CategoryPlayer {
		t.Errorf("category = %s, want player", entry.Category)
	}
	if entry.EntityID != "artist-9" || entry.EntityType != "artist" {
		t.Errorf("entity = %s/%s, want artist/artist-9", entry.EntityType, entry.EntityID)
	}
	if entry.SessionID != "sess-1" {
		t.Errorf("session = %s, want sess-1", entry.SessionID)
	}
	if entry.OccurredAt.IsZero() || entry.CreatedAt.IsZero() {
		t.Error("timestamps not set")
	}
}

func TestRecordRejectsUnknownEventType(t *testing.T) {
	store := &mockStore{}
	r := NewRecorder(store)

	_, err := r.Record(context.Background(), EventType("player.telepathy"), "fan-1", nil)
	if !errors.Is(err, ErrUnknownEventType) {
		t.Errorf("err = %v, want ErrUnknownEventType", err)
	}
	if len(store.entries) != 0 {
		t.Error("invalid entry must not be appended")
	}
}

func TestRecordRejectsMissingActor(t *testing.T) {
	store := &mockStore{}
	r := NewRecorder(store)

	for _, actor := range []string{"", "   "} {
		if _, err := r.Record(context.Background(), EventTrackSaved, actor, nil); !errors.Is(err, ErrMissingActor) {
			t.Errorf("actor %q: err = %v, want ErrMissingActor", actor, err)
		}
	}
}

func TestRecordPropagatesStoreError(t *testing.T) {
	store := &mockStore{appendErr: errors.New("disk full")}
	r := NewRecorder(store)

	if _, err := r.Record(context.Background(), EventTrackSaved, "fan-1", nil); err == nil {
		t.Error("store failure must surface")
	}
}

func TestRecordWithOccurredAt(t *testing.T) {
	store := &mockStore{}
	r := NewRecorder(store)

	past := time.Now().UTC().Add(-time.Hour)
	if _, err := r.Record(context.Background(), EventTrackSaved, "fan-1", nil, WithOccurredAt(past)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	entry := store.entries[0]
	if !entry.OccurredAt.Equal(past) {
		t.Errorf("occurred_at = %v, want %v", entry.OccurredAt, past)
	}
	if entry.CreatedAt.Equal(past) {
		t.Error("created_at must stay at append time")
	}
}

func TestEventTypeCategory(t *testing.T) {
	tests := []struct {
		et   EventType
		want Category
	}{
		{EventTrackPlayed, CategoryPlayer},
		{EventPostShared, CategorySocial},
		{EventMoneySpent, CategoryCommerce},
		{EventAttended, CategoryLive},
		{EventDealCompleted, CategoryBrand},
	}
	for _, tt := range tests {
		if got := tt.et.Category(); got != tt.want {
			t.Errorf("%s category = %s, want %s", tt.et, got, tt.want)
		}
	}
}

func TestPayloadTypedGetters(t *testing.T) {
	p := Payload{
		"genre":  "pop",
		"count":  float64(3),
		"whole":  int64(7),
		"flag":   true,
		"nested": map[string]any{"k": "v"},
	}

	if s, ok := p.String("genre"); !ok || s != "pop" {
		t.Errorf("String(genre) = %q, %v", s, ok)
	}
	if f, ok := p.Float("count"); !ok || f != 3 {
		t.Errorf("Float(count) = %g, %v", f, ok)
	}
	if f, ok := p.Float("whole"); !ok || f != 7 {
		t.Errorf("Float(whole) = %g, %v", f, ok)
	}
	if b, ok := p.Bool("flag"); !ok || !b {
		t.Errorf("Bool(flag) = %v, %v", b, ok)
	}
	if m, ok := p.Map("nested"); !ok || m["k"] != "v" {
		t.Errorf("Map(nested) = %v, %v", m, ok)
	}
	if _, ok := p.Float("genre"); ok {
		t.Error("Float over a string must fail")
	}
	if _, ok := p.String("missing"); ok {
		t.Error("missing key must not resolve")
	}
}

func TestMarshalPayloadNil(t *testing.T) {
	data, err := MarshalPayload(nil)
	if err != nil {
		t.Fatalf("MarshalPayload(nil): %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("nil payload marshals to %q, want {}", data)
	}
}
