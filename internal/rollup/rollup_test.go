// Resonance - Audience Trait Analytics for the Harmonia Platform
// Copyright 2026 Harmonia Live
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/harmonia-live/resonance

package rollup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/harmonia-live/resonance/internal/traits"
)

type rebuildCall struct {
	timeRange traits.TimeRange
	domain    traits.Domain
	since     time.Time
	limit     int
}

// mockStore records rebuild calls and can fail selected boards.
type mockStore struct {
	calls      []rebuildCall
	failDomain traits.Domain

	rows      []Row
	lastLimit int
}

func (m *mockStore) RebuildLeaderboard(_ context.Context, tr traits.TimeRange, domain traits.Domain, since time.Time, limit int) (int, error) {
	m.calls = append(m.calls, rebuildCall{tr, domain, since, limit})
	if domain == m.failDomain {
		return 0, errors.New("constraint violation")
	}
	return 5, nil
}

func (m *mockStore) Leaderboard(_ context.Context, _ traits.Domain, _ traits.TimeRange, limit int) ([]Row, error) {
	m.lastLimit = limit
	return m.rows, nil
}

func TestRebuildAllCoversEveryBoard(t *testing.T) {
	store := &mockStore{}
	b := NewBuilder(store, 50, zerolog.Nop())
	fixed := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	if err := b.RebuildAll(context.Background()); err != nil {
		t.Fatalf("RebuildAll: %v", err)
	}

	want := len(traits.TimeRanges) * len(traits.Domains)
	if len(store.calls) != want {
		t.Fatalf("rebuilt %d boards, want %d", len(store.calls), want)
	}

	seen := map[string]bool{}
	for _, c := range store.calls {
		seen[string(c.timeRange)+"/"+string(c.domain)] = true
		if c.limit != 50 {
			t.Errorf("board %s/%s limit = %d, want 50", c.timeRange, c.domain, c.limit)
		}
		switch c.timeRange {
		case traits.Range7d:
			if got, want := c.since, fixed.Add(-7*24*time.Hour); !got.Equal(want) {
				t.Errorf("7d cutoff = %v, want %v", got, want)
			}
		case traits.RangeAllTime:
			if !c.since.IsZero() {
				t.Errorf("alltime cutoff = %v, want zero time", c.since)
			}
		}
	}
	if len(seen) != want {
		t.Errorf("saw %d distinct boards, want %d", len(seen), want)
	}
}

func TestRebuildAllContinuesPastFailures(t *testing.T) {
	store := &mockStore{failDomain: traits.DomainEconomic}
	b := NewBuilder(store, 50, zerolog.Nop())

	err := b.RebuildAll(context.Background())
	if err == nil {
		t.Fatal("failed board must surface an error")
	}

	// Every board was still attempted despite the economic failures.
	want := len(traits.TimeRanges) * len(traits.Domains)
	if len(store.calls) != want {
		t.Errorf("attempted %d boards, want %d", len(store.calls), want)
	}
}

func TestRebuildAllStopsOnCancel(t *testing.T) {
	store := &mockStore{}
	b := NewBuilder(store, 50, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := b.RebuildAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(store.calls) != 0 {
		t.Errorf("rebuilt %d boards after cancel, want 0", len(store.calls))
	}
}

func TestLeaderboardValidation(t *testing.T) {
	b := NewBuilder(&mockStore{}, 50, zerolog.Nop())
	ctx := context.Background()

	if _, err := b.Leaderboard(ctx, traits.Domain("astral"), traits.Range7d, 10); err == nil {
		t.Error("unknown domain must fail")
	}
	if _, err := b.Leaderboard(ctx, traits.DomainCultural, traits.TimeRange("90d"), 10); err == nil {
		t.Error("unknown time range must fail")
	}
}

func TestLeaderboardLimitBounds(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		want  int
	}{
		{"zero gets default", 0, DefaultLimit},
		{"negative gets default", -3, DefaultLimit},
		{"in range passes through", 25, 25},
		{"over cap is clamped", 9000, maxLimit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			b := NewBuilder(store, 50, zerolog.Nop())
			if _, err := b.Leaderboard(context.Background(), traits.DomainCultural, traits.Range30d, tt.limit); err != nil {
				t.Fatalf("Leaderboard: %v", err)
			}
			if store.lastLimit != tt.want {
				t.Errorf("store limit = %d, want %d", store.lastLimit, tt.want)
			}
		})
	}
}
